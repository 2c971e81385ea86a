// Package memory is the long-term recall layer: facts distilled from
// conversations, embedded and stored per scope, recalled by similarity when
// a new turn's prompt is assembled.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arcbound/turnloop/internal/memory/backend"
	"github.com/arcbound/turnloop/internal/memory/embeddings"
	"github.com/arcbound/turnloop/pkg/models"
)

// Config tunes recall and retention.
type Config struct {
	// DefaultLimit is used when a search request has no limit set.
	DefaultLimit int `yaml:"defaultLimit"`
	// MinScore drops recalled entries scoring below this similarity.
	MinScore float64 `yaml:"minScore"`
}

// DefaultConfig returns the recall defaults.
func DefaultConfig() Config {
	return Config{DefaultLimit: 5, MinScore: 0.0}
}

func sanitizeConfig(cfg Config) Config {
	d := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = d.DefaultLimit
	}
	return cfg
}

// StoreRequest is one fact to remember.
type StoreRequest struct {
	Scope    models.MemoryScope
	ScopeID  string
	Content  string
	Metadata models.MemoryMetadata
}

// Manager embeds and stores memory entries and serves ranked recall.
type Manager struct {
	backend  backend.VectorBackend
	embedder embeddings.Provider
	config   Config
	logger   *slog.Logger
}

// NewManager builds a Manager. embedder may be nil, in which case entries
// are stored and recalled by recency only.
func NewManager(b backend.VectorBackend, embedder embeddings.Provider, cfg Config) *Manager {
	return &Manager{
		backend:  b,
		embedder: embedder,
		config:   sanitizeConfig(cfg),
		logger:   slog.Default().With("component", "memory"),
	}
}

// Store embeds and persists one fact.
func (m *Manager) Store(ctx context.Context, req *StoreRequest) (*models.MemoryEntry, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("memory: empty content")
	}

	entry := &models.MemoryEntry{
		Scope:    req.Scope,
		ScopeID:  req.ScopeID,
		Content:  req.Content,
		Metadata: req.Metadata,
	}
	if m.embedder != nil {
		vector, err := m.embedder.Embed(ctx, req.Content)
		if err != nil {
			// Store without a vector rather than forgetting the fact.
			m.logger.Warn("embedding failed, storing without vector", "error", err)
		} else {
			entry.Embedding = vector
		}
	}

	if err := m.backend.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Search returns the scope's entries ranked by similarity to the request
// query, or by recency when no query/embedder is available.
func (m *Manager) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = m.config.DefaultLimit
	}

	var vector []float32
	if m.embedder != nil && strings.TrimSpace(req.Query) != "" {
		v, err := m.embedder.Embed(ctx, req.Query)
		if err != nil {
			m.logger.Warn("query embedding failed, falling back to recency", "error", err)
		} else {
			vector = v
		}
	}

	results, err := m.backend.Query(ctx, req.Scope, req.ScopeID, vector, limit)
	if err != nil {
		return nil, err
	}

	if vector != nil && m.config.MinScore > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= m.config.MinScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	return &models.SearchResponse{Results: results}, nil
}

// Forget removes one entry by id.
func (m *Manager) Forget(ctx context.Context, id string) error {
	return m.backend.Delete(ctx, id)
}
