package model

import "time"

// Session is a conversation thread that persists across turns. Its message
// list is append-only; only the History Writer and initial turn intake may
// grow it.
type Session struct {
	ID          string
	ChannelType string
	ChatID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Metadata    map[string]any
	Messages    []Message
}

// MetaModelKey is the session metadata key tracking the last model used to
// drive conversation-view flattening on model switch.
const MetaModelKey = "llm.model"

// LastModel returns the model recorded in session metadata, if any.
func (s *Session) LastModel() string {
	if s.Metadata == nil {
		return ""
	}
	v, _ := s.Metadata[MetaModelKey].(string)
	return v
}

// SetLastModel records the model driving this session going forward.
func (s *Session) SetLastModel(model string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[MetaModelKey] = model
}

// Append adds a message to raw history. Only History Writer operations and
// initial turn intake may call this.
func (s *Session) Append(m Message) {
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = m.Timestamp
}

// Snapshot returns a read-only copy of the current message slice for readers
// that must not observe concurrent appends.
func (s *Session) Snapshot() []Message {
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}
