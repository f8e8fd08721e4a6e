package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/batalabs/nexus3d/internal/agent"
	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/eventhub"
	"github.com/batalabs/nexus3d/internal/skills"
)

// stubProvider returns one fixed text reply and never requests a tool,
// so the turn loop completes in a single round-trip.
type stubProvider struct{ reply string }

func (p *stubProvider) Send(ctx context.Context, messages []domain.TranscriptMessage, tools []agent.ToolSpec) (agent.Response, error) {
	return agent.Response{
		Blocks:     []domain.ContentBlock{{Type: "text", Text: p.reply}},
		StopReason: "end_turn",
	}, nil
}

func newTestRegistry(reply string) *Registry {
	hub := eventhub.NewDefault()
	newProvider := func(model string) agent.Provider { return &stubProvider{reply: reply} }
	return New(hub, newProvider, nil, skills.DefaultFactories(), nil, "/tmp")
}

func TestCreateRejectsDuplicateAgentID(t *testing.T) {
	r := newTestRegistry("hi")
	ctx := context.Background()
	if _, err := r.Create(ctx, CreateRequest{AgentID: "a1", Preset: PresetSandboxed}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := r.Create(ctx, CreateRequest{AgentID: "a1", Preset: PresetSandboxed}); err == nil {
		t.Fatal("expected error creating a duplicate agent_id")
	}
}

func TestCreateRunsInitialMessageSynchronously(t *testing.T) {
	r := newTestRegistry("hello there")
	ctx := context.Background()
	summary, err := r.Create(ctx, CreateRequest{AgentID: "a1", Preset: PresetSandboxed, InitialMessage: "hi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if summary.AgentID != "a1" {
		t.Errorf("summary.AgentID = %q, want a1", summary.AgentID)
	}
	status, err := r.Status("a1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2 (one user, one assistant)", status.MessageCount)
	}
}

func TestDestroyRemovesFromListAndForgetsHistory(t *testing.T) {
	r := newTestRegistry("hi")
	ctx := context.Background()
	if _, err := r.Create(ctx, CreateRequest{AgentID: "a1", Preset: PresetWorker}); err != nil {
		t.Fatalf("create: %v", err)
	}
	r.hub.Publish("a1", domain.NewEvent("turn_started", nil))
	if r.hub.LatestSeq("a1") == 0 {
		t.Fatal("expected a published event before destroy")
	}
	if err := r.Destroy("a1"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if seq := r.hub.LatestSeq("a1"); seq != 0 {
		t.Errorf("LatestSeq after destroy = %d, want 0 (history forgotten)", seq)
	}
	if err := r.Destroy("a1"); err == nil {
		t.Fatal("expected error destroying an already-removed agent")
	}
	for _, id := range r.List() {
		if id == "a1" {
			t.Fatal("destroyed agent still present in List()")
		}
	}
}

func TestSendUnknownAgentErrors(t *testing.T) {
	r := newTestRegistry("hi")
	if _, err := r.Send(context.Background(), "nope", "hi", 0); err == nil {
		t.Fatal("expected error sending to a nonexistent agent")
	}
}

func TestSendReturnsFinalAssistantText(t *testing.T) {
	r := newTestRegistry("the answer is 42")
	ctx := context.Background()
	if _, err := r.Create(ctx, CreateRequest{AgentID: "a1", Preset: PresetTrusted}); err != nil {
		t.Fatalf("create: %v", err)
	}
	reply, err := r.Send(ctx, "a1", "what is the answer?", 0)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(reply, "42") {
		t.Errorf("reply = %q, want it to contain 42", reply)
	}
}

func TestCancelOnUnknownAgentErrors(t *testing.T) {
	r := newTestRegistry("hi")
	if err := r.Cancel("nope", "req-1"); err == nil {
		t.Fatal("expected error cancelling on a nonexistent agent")
	}
}

func TestCancelOnIdleAgentIsNoop(t *testing.T) {
	r := newTestRegistry("hi")
	ctx := context.Background()
	if _, err := r.Create(ctx, CreateRequest{AgentID: "a1", Preset: PresetSandboxed}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Cancel("a1", "some-unrelated-request-id"); err != nil {
		t.Fatalf("cancel on idle agent should not error, got %v", err)
	}
}

func TestPresetMapsToPermissionLevel(t *testing.T) {
	cases := []struct {
		preset Preset
		want   domain.PermissionLevel
	}{
		{PresetSandboxed, domain.Sandboxed},
		{PresetTrusted, domain.Trusted},
		{PresetWorker, domain.YOLO},
		{Preset("bogus"), domain.Sandboxed},
	}
	for _, c := range cases {
		if got := c.preset.Level(); got != c.want {
			t.Errorf("Preset(%q).Level() = %v, want %v", c.preset, got, c.want)
		}
	}
}

func TestShutdownDestroysEveryAgent(t *testing.T) {
	r := newTestRegistry("hi")
	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3"} {
		if _, err := r.Create(ctx, CreateRequest{AgentID: id, Preset: PresetSandboxed}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	r.Shutdown()
	if len(r.List()) != 0 {
		t.Errorf("expected no agents after Shutdown, got %v", r.List())
	}
}

func TestSendRespectsCancelledContext(t *testing.T) {
	r := newTestRegistry("hi")
	ctx := context.Background()
	if _, err := r.Create(ctx, CreateRequest{AgentID: "a1", Preset: PresetSandboxed}); err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := r.Send(cancelled, "a1", "hi", 0)
	if err == nil {
		t.Fatal("expected a pre-cancelled context to surface an error")
	}
}
