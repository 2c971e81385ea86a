// Package view builds the message list sent to the LLM from raw session
// history, masking prior tool-call rounds to opaque assistant text when the
// driving model has changed. The raw history a Session owns is never
// mutated by this package.
package view

import (
	"fmt"

	"github.com/arcbound/turnloop/internal/turn/model"
)

// Diagnostic is one observation the masker produced while rewriting a
// message list, useful for debugging and tests.
type Diagnostic struct {
	MessageID string
	Note      string
}

// Build derives the LLM request view from raw session history. When
// modelSwitch is false, every message passes through unchanged into a new
// slice. When true, the
// FlatteningToolMessageMasker runs and every prior tool round is masked.
func Build(messages []model.Message, modelSwitch bool) ([]model.Message, []Diagnostic) {
	if !modelSwitch {
		return normalize(messages), nil
	}
	return mask(messages)
}

func normalize(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m)
	}
	return out
}

// mask implements FlatteningToolMessageMasker: every assistant(toolCalls) is
// replaced by an assistant-only message noting how many calls were masked,
// and every tool message becomes an assistant message carrying a
// "[Tool result: name]" header plus its original content. Nothing here
// mutates the input slice or its elements.
func mask(messages []model.Message) ([]model.Message, []Diagnostic) {
	out := make([]model.Message, 0, len(messages))
	var diags []Diagnostic
	transformed := false

	for _, m := range messages {
		switch {
		case m.Role == model.RoleAssistant && len(m.ToolCalls) > 0:
			masked := model.Message{
				ID:          m.ID,
				Role:        model.RoleAssistant,
				Content:     fmt.Sprintf("%s [masked: %d tool call(s)]", m.Content, len(m.ToolCalls)),
				Timestamp:   m.Timestamp,
				ChannelType: m.ChannelType,
				ChatID:      m.ChatID,
				Metadata:    m.Metadata,
			}
			out = append(out, masked)
			diags = append(diags, Diagnostic{MessageID: m.ID, Note: fmt.Sprintf("masked %d tool call(s)", len(m.ToolCalls))})
			transformed = true

		case m.Role == model.RoleTool:
			name := m.ToolName
			if name == "" {
				name = "tool"
			}
			masked := model.Message{
				ID:          m.ID,
				Role:        model.RoleAssistant,
				Content:     fmt.Sprintf("[Tool result: %s]%s", name, m.Content),
				Timestamp:   m.Timestamp,
				ChannelType: m.ChannelType,
				ChatID:      m.ChatID,
				Metadata:    m.Metadata,
			}
			out = append(out, masked)
			diags = append(diags, Diagnostic{MessageID: m.ID, Note: "masked tool result"})
			transformed = true

		default:
			out = append(out, m)
		}
	}

	if !transformed {
		diags = append(diags, Diagnostic{Note: "no-op: no tool messages found"})
	}

	return out, diags
}
