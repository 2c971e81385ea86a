// Package backend defines the storage interface vector memory sits on.
package backend

import (
	"context"

	"github.com/arcbound/turnloop/pkg/models"
)

// VectorBackend stores memory entries with their embeddings and answers
// similarity queries. Implementations own durability and indexing; the
// memory manager owns embedding and ranking policy.
type VectorBackend interface {
	// Insert stores one entry (embedding included).
	Insert(ctx context.Context, entry *models.MemoryEntry) error

	// Query returns up to limit entries in the given scope ranked by cosine
	// similarity to vector. A nil vector returns the newest entries instead.
	Query(ctx context.Context, scope models.MemoryScope, scopeID string, vector []float32, limit int) ([]models.SearchResult, error)

	// Delete removes one entry by id.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}
