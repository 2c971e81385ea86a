// Package sessions persists conversation threads and their message history.
// A session is keyed by (agent, channel, channel id); the turn pipeline
// resolves one per incoming message and mirrors every appended message back
// through the store after the turn completes.
package sessions

import (
	"context"
	"errors"

	"github.com/arcbound/turnloop/pkg/models"
)

// ErrNotFound is returned when a session id resolves to nothing.
var ErrNotFound = errors.New("sessions: not found")

// Store is the session persistence interface the turn pipeline's session
// adapter drives.
type Store interface {
	// GetOrCreate resolves the session stored under key, creating it with
	// the given identity fields when absent.
	GetOrCreate(ctx context.Context, key, agentID string, channel models.ChannelType, channelID string) (*models.Session, error)

	// Get resolves a session by id.
	Get(ctx context.Context, id string) (*models.Session, error)

	// UpdateMetadata replaces the stored metadata for session id.
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error

	// AppendMessage adds one message to the session's history.
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error

	// GetHistory returns the session's messages in append order. limit <= 0
	// returns everything; otherwise the most recent limit messages.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// SessionKey builds the store key for an (agent, channel, channel id)
// triple.
func SessionKey(agentID string, channel models.ChannelType, channelID string) string {
	return agentID + ":" + string(channel) + ":" + channelID
}
