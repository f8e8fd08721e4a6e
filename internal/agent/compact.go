package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/batalabs/nexus3d/internal/domain"
)

const (
	// CompactThreshold is the input token count above which compaction runs.
	// Set at 100k to compact early for tool-heavy workflows.
	CompactThreshold = 100_000
	// CompactKeepTail is the number of trailing messages to keep.
	CompactKeepTail = 20
)

// CompactResult holds the output of a CompactMessages call.
type CompactResult struct {
	Messages   []domain.TranscriptMessage // compacted list (head + placeholder + tail)
	Dropped    []domain.TranscriptMessage // removed middle section
	DidCompact bool
}

// CompactMessages trims the middle of a conversation to fit within token
// limits. It keeps the first user+assistant exchange and the last
// CompactKeepTail messages, inserting a synthetic notice in between.
// The Dropped field contains the removed messages for summarization.
func CompactMessages(msgs []domain.TranscriptMessage) CompactResult {
	if len(msgs) <= CompactKeepTail+2 {
		return CompactResult{Messages: msgs}
	}

	// Keep first user+assistant pair (up to 2 messages).
	headEnd := 0
	for i, m := range msgs {
		if m.Role == "assistant" {
			headEnd = i + 1
			break
		}
	}
	if headEnd == 0 {
		headEnd = 1
	}
	head := msgs[:headEnd]

	// Determine tail start -- ensure it begins on a "user" message so the
	// API sees proper alternation.
	tailStart := len(msgs) - CompactKeepTail
	if tailStart <= headEnd {
		return CompactResult{Messages: msgs}
	}
	for tailStart < len(msgs) && msgs[tailStart].Role != "user" {
		tailStart++
	}
	if tailStart >= len(msgs) {
		return CompactResult{Messages: msgs}
	}
	tail := msgs[tailStart:]

	droppedMsgs := make([]domain.TranscriptMessage, tailStart-headEnd)
	copy(droppedMsgs, msgs[headEnd:tailStart])

	droppedCount := len(droppedMsgs)
	notice := fmt.Sprintf("[%d earlier messages compacted to save context]", droppedCount)

	compacted := make([]domain.TranscriptMessage, 0, len(head)+2+len(tail))
	compacted = append(compacted, head...)
	compacted = append(compacted,
		domain.TranscriptMessage{Role: "user", Content: notice},
		domain.TranscriptMessage{Role: "assistant", Content: "Understood. I'll continue with the context available."},
	)
	compacted = append(compacted, tail...)
	return CompactResult{
		Messages:   compacted,
		Dropped:    droppedMsgs,
		DidCompact: true,
	}
}

// compactIfNeeded checks if context exceeds the threshold and performs
// compaction with an LLM-generated summary if needed. Acts as a safety net
// for tool-heavy turns that grow the transcript faster than the `compact`
// RPC is called explicitly.
func (a *Agent) compactIfNeeded(ctx context.Context) {
	a.mu.Lock()
	if a.inputTokens <= CompactThreshold {
		a.mu.Unlock()
		return
	}
	result := CompactMessages(a.messages)
	if !result.DidCompact {
		a.mu.Unlock()
		return
	}
	a.messages = result.Messages
	a.mu.Unlock()

	summary := a.generateCompactionSummary(ctx, result.Dropped)

	a.mu.Lock()
	for i := range a.messages {
		if strings.Contains(a.messages[i].Content, "compacted to save context") {
			a.messages[i].Content = summary
			break
		}
	}
	a.mu.Unlock()

	a.publish("compacted", nil)
}

// serializeMessagesForSummary converts dropped messages to a text
// representation suitable for the compaction summary prompt.
func serializeMessagesForSummary(msgs []domain.TranscriptMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.HasBlocks() {
			for _, block := range m.Blocks {
				switch block.Type {
				case "text":
					fmt.Fprintf(&b, "[%s]: %s\n", m.Role, block.Text)
				case "tool_use":
					input := summarizeToolInput(block.ToolInput)
					fmt.Fprintf(&b, "[tool: %s] input: %s\n", block.ToolName, input)
				case "tool_result":
					result := block.ToolResult
					if len(result) > 200 {
						result = result[:200] + "..."
					}
					fmt.Fprintf(&b, "[result: %s] %s\n", block.ToolName, result)
				}
			}
		} else if m.Content != "" {
			fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
		}
	}

	text := b.String()
	const maxChars = 30_000
	if len(text) <= maxChars {
		return text
	}

	// Keep first 25% and last 75% when truncating.
	headSize := maxChars / 4
	tailSize := maxChars - headSize
	return text[:headSize] + "\n...[truncated]...\n" + text[len(text)-tailSize:]
}

// summarizeToolInput produces a short string representation of tool input.
func summarizeToolInput(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	var parts []string
	for k, v := range input {
		s := fmt.Sprintf("%v", v)
		if len(s) > 100 {
			s = s[:100] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, s))
	}
	result := "{" + strings.Join(parts, ", ") + "}"
	if len(result) > 300 {
		return result[:300] + "..."
	}
	return result
}

// generateCompactionSummary asks the agent's own provider for a structured
// summary of the dropped messages. Falls back to a placeholder on error or
// when no provider is configured (tests, detached agents).
func (a *Agent) generateCompactionSummary(ctx context.Context, dropped []domain.TranscriptMessage) string {
	fallback := fmt.Sprintf("[%d earlier messages were compacted. No summary available.]", len(dropped))

	a.mu.Lock()
	prov := a.provider
	a.mu.Unlock()
	if prov == nil {
		return fallback
	}

	serialized := serializeMessagesForSummary(dropped)
	if serialized == "" {
		return fallback
	}

	prompt := fmt.Sprintf(`Summarize the following conversation excerpt that is being compacted to save context. Produce a concise structured summary that preserves key information for continuing the conversation.

Format your response as:
## Topics discussed
- (bullet points)

## Files modified
- (list file paths, or "none" if no files were changed)

## Tools used
- (list tool names and what they did)

## Key decisions
- (important choices or conclusions)

## Current task state
(brief description of where things stand)

---
Conversation to summarize:
%s`, serialized)

	msgs := []domain.TranscriptMessage{
		{Role: "user", Content: "You are a conversation summarizer. Produce a concise structured summary. Maximum 500 words.\n\n" + prompt},
	}

	resp, err := prov.Send(ctx, msgs, nil)
	if err != nil {
		return fallback
	}

	respText := domain.TranscriptMessage{Blocks: resp.Blocks}.TextContent()
	if strings.TrimSpace(respText) == "" {
		return fallback
	}

	return "[Conversation summary]\n\n" + strings.TrimSpace(respText)
}
