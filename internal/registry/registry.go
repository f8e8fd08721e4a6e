// Package registry holds the single-process agent map and implements
// the control-plane operations named in the core spec's JSON-RPC method
// table (§6): create, destroy, list, send, cancel, status, compact. The
// transport itself (the POST /rpc dispatch and the detect/shutdown
// wiring that needs the listening port) lives one layer up, in
// internal/rpcserver. Grounded on batalabs-muxd's daemon/server.go,
// which plays the identical role for *agent.Service keyed by session
// ID: a mutex-guarded map, a factory callback for building new agents,
// and thin methods that translate RPC params into agent calls.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/batalabs/nexus3d/internal/agent"
	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/eventhub"
	"github.com/batalabs/nexus3d/internal/skills"
)

// Preset names the three permission tiers an agent can be created at,
// matching the original CLI's --preset flag (NEXUS3's arg_parser.py:
// choices=["trusted", "sandboxed", "worker"]); "worker" is the
// unattended-automation tier and maps to YOLO, the only level that never
// stops for a confirmation prompt.
type Preset string

const (
	PresetSandboxed Preset = "sandboxed"
	PresetTrusted   Preset = "trusted"
	PresetWorker    Preset = "worker"
)

// Level resolves a Preset to its domain.PermissionLevel. An unrecognized
// preset resolves to Sandboxed, the least-privileged level, matching
// domain.ParsePermissionLevel's own fail-safe default.
func (p Preset) Level() domain.PermissionLevel {
	switch p {
	case PresetTrusted:
		return domain.Trusted
	case PresetWorker:
		return domain.YOLO
	default:
		return domain.Sandboxed
	}
}

// ProviderFactory builds the Provider a newly created agent will use.
// The wire format behind Provider is out of scope for this runtime
// (core spec §1); the registry only needs something that can build one
// given the requested model name.
type ProviderFactory func(model string) agent.Provider

// GitLabConfig is threaded through to skills.NewServices for every
// agent; nil is valid and simply means no GitLab skills register.
type GitLabConfig = skills.GitLabConfig

// CreateRequest mirrors the `create` RPC's params object (§6).
type CreateRequest struct {
	AgentID           string
	Preset            Preset
	Cwd               string
	AllowedWritePaths []string
	Model             string
	InitialMessage    string
	Timeout           time.Duration
}

// Summary is the `create`/`list`-adjacent agent summary returned to
// callers: enough to render a status line without exposing internals.
type Summary struct {
	AgentID           string    `json:"agent_id"`
	Preset            Preset    `json:"preset"`
	Cwd               string    `json:"cwd"`
	AllowedWritePaths []string  `json:"allowed_write_paths,omitempty"`
	Model             string    `json:"model,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type record struct {
	agent   *agent.Agent
	summary Summary
}

// Registry is the single-process map of live agents. Safe for
// concurrent use. One instance per daemon process, shared by the
// rpcserver's HTTP handlers and the SSE endpoint (via Hub).
type Registry struct {
	hub             *eventhub.Hub
	newProvider     ProviderFactory
	gitlab          GitLabConfig
	factories       []skills.Factory
	confirm         skills.Confirmer
	defaultCwd      string

	mu     sync.Mutex
	agents map[string]*record
}

// New constructs a Registry. factories is the skill-factory table wired
// into every agent's Dispatcher (DefaultFactories plus any optional
// families, e.g. GitLab's, appended by the caller); confirm is the
// shared confirmation rendezvous (§4.5) every Dispatcher consults for
// TRUSTED-gated operations.
func New(hub *eventhub.Hub, newProvider ProviderFactory, gitlab GitLabConfig, factories []skills.Factory, confirm skills.Confirmer, defaultCwd string) *Registry {
	return &Registry{
		hub:         hub,
		newProvider: newProvider,
		gitlab:      gitlab,
		factories:   factories,
		confirm:     confirm,
		defaultCwd:  defaultCwd,
		agents:      make(map[string]*record),
	}
}

// Create registers a new agent under req.AgentID. Errors if the id is
// already in use, matching the `create` RPC's stated error case (§6).
// If req.InitialMessage is non-empty, the turn it triggers runs
// synchronously before Create returns — a caller wanting it
// asynchronous should pass no initial message and follow up with send.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (Summary, error) {
	if req.AgentID == "" {
		return Summary{}, fmt.Errorf("agent_id is required")
	}

	r.mu.Lock()
	if _, exists := r.agents[req.AgentID]; exists {
		r.mu.Unlock()
		return Summary{}, fmt.Errorf("agent %q already exists", req.AgentID)
	}

	cwd := req.Cwd
	if cwd == "" {
		cwd = r.defaultCwd
	}
	level := req.Preset.Level()

	services := skills.NewServices(cwd, level, r.gitlab)
	dispatcher := skills.NewDispatcher(services, r.confirm, r.factories)

	var provider agent.Provider
	if r.newProvider != nil {
		provider = r.newProvider(req.Model)
	}

	ag := agent.New(req.AgentID, cwd, level, r.hub, dispatcher, provider)
	summary := Summary{
		AgentID:           req.AgentID,
		Preset:            req.Preset,
		Cwd:               cwd,
		AllowedWritePaths: req.AllowedWritePaths,
		Model:             req.Model,
		CreatedAt:         time.Now(),
	}
	r.agents[req.AgentID] = &record{agent: ag, summary: summary}
	r.mu.Unlock()

	if req.InitialMessage != "" {
		sendCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		if _, err := ag.Send(sendCtx, req.InitialMessage); err != nil {
			return summary, fmt.Errorf("initial message failed: %w", err)
		}
	}

	return summary, nil
}

// Destroy cancels the agent's in-flight turn (if any), removes it from
// the map, and forgets its event-hub history. Errors if not found,
// matching the `destroy` RPC's stated error case (§6).
func (r *Registry) Destroy(agentID string) error {
	r.mu.Lock()
	rec, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("agent %q not found", agentID)
	}
	delete(r.agents, agentID)
	r.mu.Unlock()

	rec.agent.Destroy()
	if r.hub != nil {
		r.hub.Forget(agentID)
	}
	return nil
}

// List returns every live agent id. Order is unspecified (map
// iteration), matching the `list` RPC's bare array result (§6).
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

// Send runs one turn on the named agent and returns its final assistant
// message. timeout, if positive, bounds the call with an absolute
// deadline (§5's "absolute deadlines rather than total-elapsed bounds").
func (r *Registry) Send(ctx context.Context, agentID, content string, timeout time.Duration) (string, error) {
	ag, err := r.lookup(agentID)
	if err != nil {
		return "", err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return ag.Send(ctx, content)
}

// Cancel triggers the cancellation token for requestID on the named
// agent. A mismatched request_id or no running turn is a silent no-op
// at the Agent layer, so this always reports ok unless the agent itself
// does not exist (§6: `cancel` → `{ ok: true }`).
func (r *Registry) Cancel(agentID, requestID string) error {
	ag, err := r.lookup(agentID)
	if err != nil {
		return err
	}
	ag.Cancel(requestID)
	return nil
}

// Status returns the named agent's token counts and running state.
func (r *Registry) Status(agentID string) (agent.Status, error) {
	ag, err := r.lookup(agentID)
	if err != nil {
		return agent.Status{}, err
	}
	return ag.Status(), nil
}

// Compact runs history compaction on the named agent and returns the
// resulting status plus whether compaction actually ran.
func (r *Registry) Compact(agentID string) (agent.Status, bool, error) {
	ag, err := r.lookup(agentID)
	if err != nil {
		return agent.Status{}, false, err
	}
	status, compacted := ag.Compact()
	return status, compacted, nil
}

// Shutdown destroys every live agent, in preparation for process exit.
// The RPC layer (`shutdown` → `{ ok: true }`, server exits after reply)
// owns actually terminating the process; Registry only owns tearing
// down agent state so no turn is left running underneath it.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Destroy(id)
	}
}

func (r *Registry) lookup(agentID string) (*agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("agent %q not found", agentID)
	}
	return rec.agent, nil
}
