// Package history implements the append-only session writer: the only code
// path (besides initial turn intake) permitted to grow a session's message
// list.
package history

import (
	"time"

	"github.com/arcbound/turnloop/internal/turn/model"

	"github.com/google/uuid"
)

// Clock supplies timestamps for appended messages, injectable so tests can
// assert monotonic ordering deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Writer appends assistant, tool, and final-assistant messages to a session.
// It never reorders or removes messages; each append is atomic.
type Writer struct {
	clock Clock
}

// NewWriter builds a Writer using clock, or SystemClock{} if nil.
func NewWriter(clock Clock) *Writer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Writer{clock: clock}
}

func (w *Writer) stamp(session *model.Session, m model.Message) model.Message {
	m.ID = uuid.NewString()
	m.Timestamp = w.clock.Now()
	m.ChannelType = session.ChannelType
	m.ChatID = session.ChatID
	return m
}

// AppendAssistant appends an assistant message, optionally carrying tool
// calls the LLM proposed this iteration.
func (w *Writer) AppendAssistant(session *model.Session, content string, toolCalls []model.ToolCall) model.Message {
	m := w.stamp(session, model.Message{
		Role:      model.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
	session.Append(m)
	return m
}

// AppendTool appends a tool-role message answering one tool call.
func (w *Writer) AppendTool(session *model.Session, toolCallID, toolName, content string) model.Message {
	m := w.stamp(session, model.Message{
		Role:       model.RoleTool,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    content,
	})
	session.Append(m)
	return m
}

// AppendFinalAssistant appends the terminal assistant message for a turn —
// an answer with no further tool calls.
func (w *Writer) AppendFinalAssistant(session *model.Session, content string) model.Message {
	m := w.stamp(session, model.Message{
		Role:    model.RoleAssistant,
		Content: content,
	})
	session.Append(m)
	return m
}
