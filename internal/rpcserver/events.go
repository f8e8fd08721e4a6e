package rpcserver

import (
	"net/http"
	"time"
)

// evictionPollInterval bounds how quickly a handler notices its
// subscription was evicted for slowness (§8: "the server closes the
// stream" on eviction). The hub itself does not close the channel on
// eviction, only stops delivering to it, so this handler must poll.
const evictionPollInterval = time.Second

// handleEvents serves GET /events/{agent_id}?since=<seq> as an SSE
// stream: replay buffered events with seq > since, then live events
// until the client disconnects or the subscription is evicted.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe(agentID)
	defer s.hub.Unsubscribe(agentID, sub)

	since := parseSince(r)
	for _, ev := range s.hub.GetEventsSince(agentID, since) {
		writeSSE(w, flusher, ev.Seq, ev.Type, ev)
	}

	ticker := time.NewTicker(evictionPollInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C:
			writeSSE(w, flusher, ev.Seq, ev.Type, ev)
		case <-ticker.C:
			if !s.hub.IsSubscribed(agentID, sub) {
				return
			}
		}
	}
}
