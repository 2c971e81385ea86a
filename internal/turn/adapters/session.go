package adapters

import (
	"context"
	"encoding/json"

	"github.com/arcbound/turnloop/internal/sessions"
	"github.com/arcbound/turnloop/internal/turn/model"
	pkgmodels "github.com/arcbound/turnloop/pkg/models"
)

// defaultAgentID is used for every session lookup; this build does not
// distinguish multiple agents sharing one sessions.Store.
const defaultAgentID = "turnloop"

// SessionAdapter implements ports.SessionPort over sessions.Store,
// translating between pkg/models' storage representation and the turn
// orchestrator's own Session/Message shapes.
type SessionAdapter struct {
	Store sessions.Store
}

// NewSessionAdapter wraps store.
func NewSessionAdapter(store sessions.Store) *SessionAdapter {
	return &SessionAdapter{Store: store}
}

// GetOrCreate resolves (or creates) the stored session for (channelType,
// chatID) and replays its persisted history into a turn model.Session.
func (a *SessionAdapter) GetOrCreate(ctx context.Context, channelType, chatID string) (*model.Session, error) {
	key := sessions.SessionKey(defaultAgentID, pkgmodels.ChannelType(channelType), chatID)
	stored, err := a.Store.GetOrCreate(ctx, key, defaultAgentID, pkgmodels.ChannelType(channelType), chatID)
	if err != nil {
		return nil, err
	}

	history, err := a.Store.GetHistory(ctx, stored.ID, 0)
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, fromStoredMessage(*m))
	}

	return &model.Session{
		ID:          stored.ID,
		ChannelType: channelType,
		ChatID:      chatID,
		CreatedAt:   stored.CreatedAt,
		UpdatedAt:   stored.UpdatedAt,
		Metadata:    stored.Metadata,
		Messages:    messages,
	}, nil
}

func fromStoredMessage(m pkgmodels.Message) model.Message {
	out := model.Message{
		ID:          m.ID,
		Role:        model.Role(m.Role),
		Content:     m.Content,
		Timestamp:   m.CreatedAt,
		ChannelType: string(m.Channel),
		ChatID:      m.ChannelID,
		Metadata:    m.Metadata,
	}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal(tc.Input, &args)
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args})
	}
	if len(m.ToolResults) == 1 && m.Role == pkgmodels.RoleTool {
		out.ToolCallID = m.ToolResults[0].ToolCallID
		out.Content = m.ToolResults[0].Content
	}
	return out
}

func toStoredMessage(sessionID string, m model.Message) *pkgmodels.Message {
	out := &pkgmodels.Message{
		ID:        m.ID,
		SessionID: sessionID,
		Channel:   pkgmodels.ChannelType(m.ChannelType),
		ChannelID: m.ChatID,
		Direction: pkgmodels.DirectionOutbound,
		Role:      pkgmodels.Role(m.Role),
		Content:   m.Content,
		Metadata:  m.Metadata,
		CreatedAt: m.Timestamp,
	}
	if m.Role == model.RoleUser {
		out.Direction = pkgmodels.DirectionInbound
	}
	for _, tc := range m.ToolCalls {
		input, _ := json.Marshal(tc.Arguments)
		out.ToolCalls = append(out.ToolCalls, pkgmodels.ToolCall{ID: tc.ID, Name: tc.Name, Input: input})
	}
	if m.Role == model.RoleTool {
		out.ToolResults = []pkgmodels.ToolResult{{ToolCallID: m.ToolCallID, Content: m.Content}}
	}
	return out
}

// Persist appends every message in session not yet reflected in the store
// and writes back the session's metadata, so model-switch tracking survives
// across turns. The History Writer and initial turn intake are the only
// callers permitted to grow a session's in-memory message list; this
// adapter mirrors that growth into durable storage after the pipeline runs.
func (a *SessionAdapter) Persist(ctx context.Context, session *model.Session, fromIndex int) error {
	for _, m := range session.Messages[fromIndex:] {
		if err := a.Store.AppendMessage(ctx, session.ID, toStoredMessage(session.ID, m)); err != nil {
			return err
		}
	}
	return a.Store.UpdateMetadata(ctx, session.ID, session.Metadata)
}
