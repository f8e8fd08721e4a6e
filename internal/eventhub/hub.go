// Package eventhub implements per-agent publish/subscribe event fan-out
// for Server-Sent Events. Multiple subscribers can attach to one agent's
// event stream; events are delivered in strict sequence order, slow
// subscribers are dropped after a run of consecutive backpressure
// failures, and a bounded ring buffer lets a reconnecting subscriber
// replay everything it missed.
package eventhub

import (
	"sync"

	"github.com/batalabs/nexus3d/internal/domain"
)

const (
	// DefaultMaxQueueSize is the per-subscriber queue capacity before the
	// hub starts dropping events for that subscriber.
	DefaultMaxQueueSize = 100
	// DefaultHistorySize is the per-agent ring-buffer capacity.
	DefaultHistorySize = 100
	// DefaultDropLimit is the number of consecutive drops before a
	// subscriber is evicted.
	DefaultDropLimit = 10
)

// Subscription is a bounded FIFO of Events for one SSE connection to one
// agent. The zero value is not useful; obtain one via Hub.Subscribe.
type Subscription struct {
	C <-chan domain.Event

	ch chan domain.Event
}

type subscriberState struct {
	ch               chan domain.Event
	consecutiveDrops int
}

// agentState bundles one agent's subscriber set with its seq counter
// and history ring buffer. The three survive independently: dropping
// to zero subscribers (via Unsubscribe or drop-limit eviction) only
// ever prunes subs, never seq/history — only Forget removes all three
// together. This mirrors the reference's separate `_subscribers`,
// `_seq`, `_history` dicts rather than one combined record per agent.
type agentState struct {
	subs    map[chan domain.Event]*subscriberState
	seq     int64
	history []domain.Event // ring buffer, oldest first
}

// Hub is a per-agent pub/sub broker. One instance per process, shared
// across all agents. Safe for concurrent use; every mutation happens
// under a single mutex, matching the reference's single-threaded
// scheduler semantics (Event Hub never suspends, so a mutex introduces
// no observable reordering).
type Hub struct {
	mu           sync.Mutex
	agents       map[string]*agentState
	maxQueueSize int
	historySize  int
	dropLimit    int
}

// New creates an event hub with the given construction parameters. Use
// NewDefault for the reference defaults (100/100/10).
func New(maxQueueSize, historySize, dropLimit int) *Hub {
	return &Hub{
		agents:       make(map[string]*agentState),
		maxQueueSize: maxQueueSize,
		historySize:  historySize,
		dropLimit:    dropLimit,
	}
}

// NewDefault creates an event hub using the reference defaults.
func NewDefault() *Hub {
	return New(DefaultMaxQueueSize, DefaultHistorySize, DefaultDropLimit)
}

// Subscribe creates a fresh bounded queue registered for the given
// agent. Never errors.
func (h *Hub) Subscribe(agentID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.agents[agentID]
	if a == nil {
		a = &agentState{subs: make(map[chan domain.Event]*subscriberState)}
		h.agents[agentID] = a
	}
	ch := make(chan domain.Event, h.maxQueueSize)
	a.subs[ch] = &subscriberState{ch: ch}
	return &Subscription{C: ch, ch: ch}
}

// Unsubscribe removes a subscription. The agent's seq counter and
// history survive even when this was the last subscriber — only
// Forget deletes those, matching the reference's three separate
// dicts (`_subscribers`, `_seq`, `_history`): `unsubscribe` there only
// ever does `del self._subscribers[agent_id]`. Idempotent: safe to
// call on an already-removed or never-registered subscription.
func (h *Hub) Unsubscribe(agentID string, sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(agentID, sub.ch)
}

func (h *Hub) unsubscribeLocked(agentID string, ch chan domain.Event) {
	a, ok := h.agents[agentID]
	if !ok {
		return
	}
	delete(a.subs, ch)
}

// Publish delivers event to every current subscriber of agentID,
// assigning it the next sequence number and appending it to the agent's
// ring buffer. The caller's event is never mutated; the seq is set only
// on the delivered copy. Never blocks, never errors: a full subscriber
// queue drops the event for that subscriber and increments its
// consecutive-drop counter; at dropLimit the subscriber is evicted.
// Publishing to an agent with no subscribers still advances seq and
// history, so Subscribe/GetEventsSince/LatestSeq stay correct even
// before the first subscriber attaches.
func (h *Hub) Publish(agentID string, event domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.agents[agentID]
	if a == nil {
		a = &agentState{subs: make(map[chan domain.Event]*subscriberState)}
		h.agents[agentID] = a
	}

	a.seq++
	delivered := event
	delivered.Seq = a.seq
	if delivered.Data != nil {
		cp := make(map[string]any, len(delivered.Data))
		for k, v := range delivered.Data {
			cp[k] = v
		}
		delivered.Data = cp
	}

	a.history = append(a.history, delivered)
	if len(a.history) > h.historySize {
		a.history = a.history[len(a.history)-h.historySize:]
	}

	if len(a.subs) == 0 {
		return
	}

	for ch, state := range a.subs {
		select {
		case ch <- delivered:
			state.consecutiveDrops = 0
		default:
			state.consecutiveDrops++
			if state.consecutiveDrops >= h.dropLimit {
				delete(a.subs, ch)
			}
		}
	}
}

// IsSubscribed reports whether sub is still registered for agentID. SSE
// handlers poll this (or detect the channel's own close, which this hub
// never does — callers should treat eviction as "stop reading") to
// notice eviction.
func (h *Hub) IsSubscribed(agentID string, sub *Subscription) bool {
	if sub == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[agentID]
	if !ok {
		return false
	}
	_, present := a.subs[sub.ch]
	return present
}

// HasSubscribers reports whether agentID currently has any subscriber.
func (h *Hub) HasSubscribers(agentID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[agentID]
	return ok && len(a.subs) > 0
}

// SubscriberCount returns the number of active subscribers for agentID.
func (h *Hub) SubscriberCount(agentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[agentID]
	if !ok {
		return 0
	}
	return len(a.subs)
}

// TotalSubscriberCount returns the number of active subscribers across
// all agents. Used for idle-shutdown accounting: the daemon should not
// exit while this is non-zero.
func (h *Hub) TotalSubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, a := range h.agents {
		total += len(a.subs)
	}
	return total
}

// GetEventsSince returns the events in agentID's ring buffer with
// seq > sinceSeq, in increasing seq order. Empty if the agent has no
// history or nothing qualifies.
func (h *Hub) GetEventsSince(agentID string, sinceSeq int64) []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[agentID]
	if !ok || len(a.history) == 0 {
		return nil
	}
	out := make([]domain.Event, 0, len(a.history))
	for _, ev := range a.history {
		if ev.Seq > sinceSeq {
			out = append(out, ev)
		}
	}
	return out
}

// LatestSeq returns the highest seq ever assigned to agentID, or 0 if
// none has been published. It does not decrease as old events fall out
// of the ring buffer.
func (h *Hub) LatestSeq(agentID string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[agentID]
	if !ok {
		return 0
	}
	return a.seq
}

// Forget drops all state for agentID: subscribers, history, and the
// sequence counter. Called by the registry on Destroy so memory is
// bounded by live agents rather than every agent ever created (see
// the core spec's open question on unbounded ring-buffer growth).
func (h *Hub) Forget(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.agents, agentID)
}
