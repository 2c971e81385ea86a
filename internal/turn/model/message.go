// Package model defines the message and session records the turn orchestrator
// operates on, plus the tool-round flattening used when a request is rendered
// for a different model than the one that produced the history.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolCall is an LLM's request to invoke a named tool with arguments.
// Ids are opaque strings, unique within a turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is an immutable record in a session's history. Builders (With*)
// return a modified copy; nothing in this package mutates a Message in place.
type Message struct {
	ID          string
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolCallID  string
	ToolName    string
	Timestamp   time.Time
	ChannelType string
	ChatID      string
	Metadata    map[string]any
}

// IsAutoMode reports whether this message was tagged auto.mode=true.
func (m Message) IsAutoMode() bool {
	if m.Metadata == nil {
		return false
	}
	v, _ := m.Metadata["auto.mode"].(bool)
	return v
}

// maxResultChars is the truncation threshold applied to tool results when
// flattening a tool round into assistant text.
const maxResultChars = 2000

// flattenedMarkerKey tags messages produced by flatten so a second pass can
// recognize them as already-collapsed and leave them untouched.
const flattenedMarkerKey = "flatten.collapsed"

// Flatten replaces every complete tool round — an assistant message carrying
// tool calls plus the tool-role messages that answer them — with a single
// assistant message summarizing the round as text. Orphan tool messages (no
// preceding assistant-with-toolCalls) become standalone assistant messages
// with a "[Tool: name]" header. Flatten never mutates its input and is
// idempotent: flattening an already-flattened slice returns an equal slice.
func Flatten(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	if len(messages) == 0 {
		return []Message{}
	}

	out := make([]Message, 0, len(messages))
	i := 0
	for i < len(messages) {
		msg := messages[i]

		if msg.Role == RoleAssistant && len(msg.ToolCalls) > 0 && !isCollapsed(msg) {
			// Gather the tool-role messages that answer this round, in order,
			// by matching toolCallId; stop at the first message that is not a
			// tool-role reply to one of this round's calls.
			pending := make(map[string]bool, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				pending[tc.ID] = true
			}
			j := i + 1
			var results []Message
			for j < len(messages) && messages[j].Role == RoleTool && pending[messages[j].ToolCallID] {
				results = append(results, messages[j])
				j++
			}

			out = append(out, collapseRound(msg, results))
			i = j
			continue
		}

		if msg.Role == RoleTool {
			out = append(out, collapseOrphanTool(msg))
			i++
			continue
		}

		out = append(out, msg)
		i++
	}

	return out
}

func isCollapsed(m Message) bool {
	if m.Metadata == nil {
		return false
	}
	v, _ := m.Metadata[flattenedMarkerKey].(bool)
	return v
}

func collapseRound(assistant Message, results []Message) Message {
	resultByID := make(map[string]Message, len(results))
	for _, r := range results {
		resultByID[r.ToolCallID] = r
	}

	var b strings.Builder
	if assistant.Content != "" {
		b.WriteString(assistant.Content)
	}
	for _, tc := range assistant.ToolCalls {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[Tool: %s] %s", tc.Name, summarizeArguments(tc.Arguments))
		b.WriteString("\n")
		if r, ok := resultByID[tc.ID]; ok {
			b.WriteString(renderResult(r.Content))
		} else {
			b.WriteString("[Result: <no response>]")
		}
	}

	meta := cloneMetadata(assistant.Metadata)
	meta[flattenedMarkerKey] = true

	return Message{
		ID:          assistant.ID,
		Role:        RoleAssistant,
		Content:     b.String(),
		Timestamp:   assistant.Timestamp,
		ChannelType: assistant.ChannelType,
		ChatID:      assistant.ChatID,
		Metadata:    meta,
	}
}

func collapseOrphanTool(m Message) Message {
	name := m.ToolName
	if name == "" {
		name = "tool"
	}
	meta := cloneMetadata(m.Metadata)
	meta[flattenedMarkerKey] = true
	return Message{
		ID:          m.ID,
		Role:        RoleAssistant,
		Content:     fmt.Sprintf("[Tool: %s]\n%s", name, renderResult(m.Content)),
		Timestamp:   m.Timestamp,
		ChannelType: m.ChannelType,
		ChatID:      m.ChatID,
		Metadata:    meta,
	}
}

func renderResult(content string) string {
	if content == "" {
		return "[Result: <empty>]"
	}
	if len(content) > maxResultChars {
		return fmt.Sprintf("[Result: %s...]", content[:maxResultChars])
	}
	return fmt.Sprintf("[Result: %s]", content)
}

func summarizeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
