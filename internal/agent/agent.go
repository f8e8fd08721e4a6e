// Package agent owns one conversation: it runs at most one turn at a
// time, dispatches tool calls through the Skill Dispatcher, and emits
// lifecycle events through the Event Hub. Grounded on batalabs-muxd's
// internal/agent/submit.go turn loop and agent.go's Service shape,
// adapted to the core spec's simpler four-step send() contract (§4.6):
// assign a request_id, publish turn_started, iterate provider/tool
// round-trips, publish turn_completed or error.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/eventhub"
	"github.com/batalabs/nexus3d/internal/skills"
	"github.com/google/uuid"
)

// LoopLimit bounds how many provider round-trips one turn may take
// before the agent gives up rather than looping forever on a
// misbehaving model. Mirrors the teacher's own LoopLimit safeguard.
const LoopLimit = 60

// ToolSpec describes one callable tool to the Provider, built fresh each
// turn from the Dispatcher's currently-registered skill set.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage reports token accounting for a single Provider call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is what a Provider call returns: zero or more content
// blocks, a stop reason ("tool_use" asks the Agent to run tools and
// continue; anything else ends the turn), and usage.
type Response struct {
	Blocks     []domain.ContentBlock
	StopReason string
	Usage      Usage
}

// Provider is the minimum contract the Agent depends on from an LLM
// backend. The wire format of any concrete backend is out of scope for
// this runtime (core spec §1) — only this interface is specified.
type Provider interface {
	Send(ctx context.Context, messages []domain.TranscriptMessage, tools []ToolSpec) (Response, error)
}

// Agent owns a conversation, runs at most one turn concurrently, and
// publishes lifecycle events to its Event Hub channel.
type Agent struct {
	ID    string
	Cwd   string
	Level domain.PermissionLevel

	hub        *eventhub.Hub
	dispatcher *skills.Dispatcher
	provider   Provider

	mu           sync.Mutex
	messages     []domain.TranscriptMessage
	inputTokens  int
	outputTokens int
	running      bool
	requestID    string
	cancel       context.CancelFunc
	createdAt    time.Time
}

// New constructs an Agent bound to hub and dispatcher. provider may be
// nil only in tests that never call Send.
func New(id, cwd string, level domain.PermissionLevel, hub *eventhub.Hub, dispatcher *skills.Dispatcher, provider Provider) *Agent {
	return &Agent{
		ID:         id,
		Cwd:        cwd,
		Level:      level,
		hub:        hub,
		dispatcher: dispatcher,
		provider:   provider,
		createdAt:  time.Now(),
	}
}

func (a *Agent) publish(eventType string, data map[string]any) {
	if a.hub == nil {
		return
	}
	a.hub.Publish(a.ID, domain.NewEvent(eventType, data))
}

// Status reports the agent's token accounting, used by the `status` RPC.
type Status struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	MessageCount int  `json:"message_count"`
	Running      bool `json:"running"`
}

// Status returns the agent's current token accounting and run state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		InputTokens:  a.inputTokens,
		OutputTokens: a.outputTokens,
		MessageCount: len(a.messages),
		Running:      a.running,
	}
}

// Send assigns a fresh request_id, installs a cancellation token, runs
// the turn loop to completion (or cancellation/error), and returns the
// final assistant text. Only one turn may run at a time; a concurrent
// call while one is in flight is rejected rather than queued.
func (a *Agent) Send(ctx context.Context, content string) (string, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return "", fmt.Errorf("agent %s is already running a turn", a.ID)
	}
	requestID := uuid.New().String()
	turnCtx, cancel := context.WithCancel(ctx)
	a.running = true
	a.requestID = requestID
	a.cancel = cancel

	if repaired, changed := repairDanglingToolUseMessages(a.messages); changed {
		a.messages = repaired
	}
	a.messages = append(a.messages, domain.TranscriptMessage{Role: "user", Content: content})
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.requestID = ""
		a.cancel = nil
		a.mu.Unlock()
		cancel()
	}()

	a.publish("turn_started", map[string]any{"request_id": requestID})

	final, err := a.runLoop(turnCtx, requestID)
	if err != nil {
		a.publish("error", map[string]any{"request_id": requestID, "message": err.Error()})
		return "", err
	}

	a.publish("turn_completed", map[string]any{"request_id": requestID})
	return final, nil
}

func (a *Agent) runLoop(ctx context.Context, requestID string) (string, error) {
	for i := 0; i < LoopLimit; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		a.mu.Lock()
		messages := make([]domain.TranscriptMessage, len(a.messages))
		copy(messages, a.messages)
		a.mu.Unlock()

		if a.provider == nil {
			return "", fmt.Errorf("no provider configured for agent %s", a.ID)
		}
		resp, err := a.provider.Send(ctx, messages, a.toolSpecs())
		if err != nil {
			return "", err
		}

		asst := domain.TranscriptMessage{Role: "assistant", Blocks: resp.Blocks}
		asst.Content = asst.TextContent()

		a.mu.Lock()
		a.inputTokens += resp.Usage.InputTokens
		a.outputTokens += resp.Usage.OutputTokens
		a.messages = append(a.messages, asst)
		a.mu.Unlock()

		if resp.StopReason != "tool_use" {
			a.compactIfNeeded(ctx)
			return asst.TextContent(), nil
		}

		var toolUse []domain.ContentBlock
		for _, b := range resp.Blocks {
			if b.Type == "tool_use" {
				toolUse = append(toolUse, b)
			}
		}
		if len(toolUse) == 0 {
			return asst.TextContent(), nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		results := a.runTools(ctx, requestID, toolUse)

		a.mu.Lock()
		a.messages = append(a.messages, domain.TranscriptMessage{Role: "user", Blocks: results})
		a.mu.Unlock()
	}
	return "", fmt.Errorf("agent loop limit exceeded (%d iterations)", LoopLimit)
}

// runTools executes every tool_use block concurrently (none of these
// skills are the interactive, ask-user kind the teacher's submit.go
// reserves a sequential path for — that confirmation rendezvous lives
// in the Skill Dispatcher's own Confirmer call, not here) and publishes
// a tool_started/tool_completed event pair around each one.
func (a *Agent) runTools(ctx context.Context, requestID string, blocks []domain.ContentBlock) []domain.ContentBlock {
	results := make([]domain.ContentBlock, len(blocks))
	var wg sync.WaitGroup
	for i, b := range blocks {
		wg.Add(1)
		go func(idx int, block domain.ContentBlock) {
			defer wg.Done()
			a.publish("tool_started", map[string]any{
				"request_id":  requestID,
				"tool_use_id": block.ToolUseID,
				"tool_name":   block.ToolName,
			})

			result := a.dispatcher.Execute(ctx, block.ToolName, block.ToolInput)

			a.publish("tool_completed", map[string]any{
				"request_id":  requestID,
				"tool_use_id": block.ToolUseID,
				"tool_name":   block.ToolName,
				"is_error":    !result.OK(),
			})

			results[idx] = domain.ContentBlock{
				Type:       "tool_result",
				ToolUseID:  block.ToolUseID,
				ToolName:   block.ToolName,
				ToolResult: resultText(result),
				IsError:    !result.OK(),
			}
		}(i, b)
	}
	wg.Wait()
	return results
}

func resultText(result domain.ToolResult) string {
	if !result.OK() {
		return result.Error
	}
	return result.Output
}

func (a *Agent) toolSpecs() []ToolSpec {
	if a.dispatcher == nil {
		return nil
	}
	names := a.dispatcher.Names()
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		skill, ok := a.dispatcher.Lookup(name)
		if !ok {
			continue
		}
		specs = append(specs, ToolSpec{
			Name:        skill.Name(),
			Description: skill.Description(),
			Parameters:  skill.Parameters(),
		})
	}
	return specs
}

// Cancel marks the cancellation token if requestID matches the turn
// currently in flight. A mismatched id or no running turn is a silent
// no-op, per the core spec's explicit cancel() contract (§4.6, §9).
func (a *Agent) Cancel(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running || a.requestID != requestID || a.cancel == nil {
		return
	}
	a.cancel()
}

// Destroy cancels any in-flight turn. The caller (Registry) is
// responsible for removing the agent from its map afterward.
func (a *Agent) Destroy() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Compact runs CompactMessages over the conversation history and
// reports the new token counts, per the `compact` RPC (§6). Token
// counts are not recomputed from the trimmed history (that requires a
// provider round-trip to re-tokenize) — they are left as last recorded,
// matching the teacher's own compaction, which only shrinks messages
// and relies on the next provider call to report fresh usage.
func (a *Agent) Compact() (Status, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := CompactMessages(a.messages)
	if result.DidCompact {
		a.messages = result.Messages
	}
	return Status{
		InputTokens:  a.inputTokens,
		OutputTokens: a.outputTokens,
		MessageCount: len(a.messages),
		Running:      a.running,
	}, result.DidCompact
}
