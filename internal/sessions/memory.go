package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcbound/turnloop/pkg/models"
)

// MemoryStore is an in-process Store, used in tests and single-node runs
// where durability across restarts is not needed.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*models.Session
	byKey    map[string]string
	messages map[string][]*models.Message
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*models.Session),
		byKey:    make(map[string]string),
		messages: make(map[string][]*models.Message),
	}
}

// GetOrCreate resolves key, creating a fresh session when absent.
func (s *MemoryStore) GetOrCreate(_ context.Context, key, agentID string, channel models.ChannelType, channelID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[key]; ok {
		return cloneSession(s.byID[id]), nil
	}

	now := time.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		Key:       key,
		AgentID:   agentID,
		Channel:   channel,
		ChannelID: channelID,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[session.ID] = session
	s.byKey[key] = session.ID
	return cloneSession(session), nil
}

// Get resolves a session by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

// UpdateMetadata replaces session id's metadata.
func (s *MemoryStore) UpdateMetadata(_ context.Context, id string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	session.Metadata = cloneMetadata(metadata)
	session.UpdatedAt = time.Now()
	return nil
}

// AppendMessage adds msg to sessionID's history.
func (s *MemoryStore) AppendMessage(_ context.Context, sessionID string, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.SessionID = sessionID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.messages[sessionID] = append(s.messages[sessionID], &stored)
	session.UpdatedAt = stored.CreatedAt
	return nil
}

// GetHistory returns sessionID's messages in append order.
func (s *MemoryStore) GetHistory(_ context.Context, sessionID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byID[sessionID]; !ok {
		return nil, ErrNotFound
	}
	history := s.messages[sessionID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]*models.Message, len(history))
	for i, m := range history {
		clone := *m
		out[i] = &clone
	}
	return out, nil
}

func cloneSession(s *models.Session) *models.Session {
	clone := *s
	clone.Metadata = cloneMetadata(s.Metadata)
	return &clone
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
