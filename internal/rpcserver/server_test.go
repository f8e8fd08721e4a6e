package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/batalabs/nexus3d/internal/agent"
	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/eventhub"
	"github.com/batalabs/nexus3d/internal/registry"
	"github.com/batalabs/nexus3d/internal/skills"
)

type stubProvider struct{ reply string }

func (p *stubProvider) Send(ctx context.Context, messages []domain.TranscriptMessage, tools []agent.ToolSpec) (agent.Response, error) {
	return agent.Response{
		Blocks:     []domain.ContentBlock{{Type: "text", Text: p.reply}},
		StopReason: "end_turn",
	}, nil
}

func newTestServer(apiKey string) (*Server, *registry.Registry) {
	hub := eventhub.NewDefault()
	reg := registry.New(hub, func(string) agent.Provider { return &stubProvider{reply: "ack"} }, nil, skills.DefaultFactories(), nil, "/tmp")
	return New(reg, hub, apiKey), reg
}

func rpcRequest(method string, params any) *http.Request {
	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	req := httptest.NewRequest("POST", "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, w.Body.String())
	}
	return resp
}

func TestDetectRequiresNoAuth(t *testing.T) {
	srv, _ := newTestServer("secret")
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	req := rpcRequest("detect", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := decodeResponse(t, w)
	if resp.Error != nil {
		t.Fatalf("detect should not require auth, got error: %v", resp.Error)
	}
}

func TestUnauthenticatedCreateIsRejected(t *testing.T) {
	srv, _ := newTestServer("secret")
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	req := rpcRequest("create", map[string]any{"agent_id": "a1", "preset": "sandboxed"})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := decodeResponse(t, w)
	if resp.Error == nil {
		t.Fatal("expected an auth error for an unauthenticated create call")
	}
}

func TestCreateSendStatusRoundTrip(t *testing.T) {
	srv, _ := newTestServer("secret")
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	create := rpcRequest("create", map[string]any{"agent_id": "a1", "preset": "worker"})
	create.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, create)
	if resp := decodeResponse(t, w); resp.Error != nil {
		t.Fatalf("create failed: %v", resp.Error)
	}

	send := rpcRequest("send", map[string]any{"agent_id": "a1", "content": "hello"})
	send.Header.Set("Authorization", "Bearer secret")
	w2 := httptest.NewRecorder()
	mux.ServeHTTP(w2, send)
	if resp := decodeResponse(t, w2); resp.Error != nil {
		t.Fatalf("send failed: %v", resp.Error)
	}

	status := rpcRequest("status", map[string]any{"agent_id": "a1"})
	status.Header.Set("Authorization", "Bearer secret")
	w3 := httptest.NewRecorder()
	mux.ServeHTTP(w3, status)
	resp3 := decodeResponse(t, w3)
	if resp3.Error != nil {
		t.Fatalf("status failed: %v", resp3.Error)
	}
}

func TestDestroyUnknownAgentIsMethodError(t *testing.T) {
	srv, _ := newTestServer("secret")
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	req := rpcRequest("destroy", map[string]any{"agent_id": "nope"})
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := decodeResponse(t, w)
	if resp.Error == nil {
		t.Fatal("expected a method error destroying a nonexistent agent")
	}
}

func TestUnknownMethodIsMethodNotFound(t *testing.T) {
	srv, _ := newTestServer("")
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	req := rpcRequest("frobnicate", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected codeMethodNotFound, got %+v", resp.Error)
	}
}

func TestEmptyAPIKeyDisablesAuth(t *testing.T) {
	srv, _ := newTestServer("")
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	req := rpcRequest("create", map[string]any{"agent_id": "a1", "preset": "sandboxed"})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := decodeResponse(t, w)
	if resp.Error != nil {
		t.Fatalf("expected no auth required when apiKey is empty, got %v", resp.Error)
	}
}

func TestEventsEndpointReplaysSinceSeq(t *testing.T) {
	hub := eventhub.NewDefault()
	reg := registry.New(hub, func(string) agent.Provider { return &stubProvider{reply: "ack"} }, nil, skills.DefaultFactories(), nil, "/tmp")
	srv := New(reg, hub, "")
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	hub.Publish("a1", domain.NewEvent("turn_started", map[string]any{"request_id": "r1"}))
	hub.Publish("a1", domain.NewEvent("turn_completed", map[string]any{"request_id": "r1"}))

	// The handler streams live events until the client disconnects, so
	// the request is given a context that's cancelled once the initial
	// replay has had time to flush, rather than served to completion.
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/events/a1?since=1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		mux.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !bytes.Contains(w.Body.Bytes(), []byte("turn_completed")) {
		t.Errorf("expected replay to include turn_completed, got %q", body)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("\"type\":\"turn_started\"")) {
		t.Errorf("since=1 should not replay seq 1 (turn_started), got %q", body)
	}
}
