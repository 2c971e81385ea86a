// Package store holds ingested documents and serves chunk-level vector
// retrieval for prompt augmentation.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcbound/turnloop/internal/memory/embeddings"
	"github.com/arcbound/turnloop/pkg/models"
)

// DocumentStore is the retrieval interface prompt assembly queries. Search
// takes the query's pre-computed embedding; the caller owns the embedder so
// ingestion and retrieval always use the same model.
type DocumentStore interface {
	// Ingest stores a document split into embedded chunks.
	Ingest(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error

	// Search returns chunks in the request's scope ranked by similarity to
	// vector.
	Search(ctx context.Context, req *models.DocumentSearchRequest, vector []float32) (*models.DocumentSearchResponse, error)

	// Remove deletes a document and its chunks.
	Remove(ctx context.Context, documentID string) error
}

// chunkSize and chunkOverlap govern SplitText's windowing.
const (
	chunkSize    = 1200
	chunkOverlap = 200
)

// SplitText slices text into overlapping chunks suitable for embedding.
func SplitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(text); start += chunkSize - chunkOverlap {
		end := start + chunkSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

// MemoryStore is an in-process DocumentStore.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*models.Document
	chunks map[string][]*models.DocumentChunk // documentID -> chunks
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string][]*models.DocumentChunk),
	}
}

// Ingest stores doc and its chunks.
func (s *MemoryStore) Ingest(_ context.Context, doc *models.Document, chunks []*models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	stored := make([]*models.DocumentChunk, 0, len(chunks))
	for i, c := range chunks {
		clone := *c
		if clone.ID == "" {
			clone.ID = uuid.NewString()
		}
		clone.DocumentID = doc.ID
		clone.Metadata.Index = i
		if clone.Metadata.DocumentName == "" {
			clone.Metadata.DocumentName = doc.Name
		}
		if clone.Metadata.DocumentSource == "" {
			clone.Metadata.DocumentSource = doc.Source
		}
		stored = append(stored, &clone)
	}
	s.docs[doc.ID] = doc
	s.chunks[doc.ID] = stored
	return nil
}

// Search ranks the scope's chunks by cosine similarity to vector.
func (s *MemoryStore) Search(_ context.Context, req *models.DocumentSearchRequest, vector []float32) (*models.DocumentSearchResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}

	var results []models.DocumentSearchResult
	for docID, chunks := range s.chunks {
		doc := s.docs[docID]
		if req.Scope != "" && doc.Scope != req.Scope {
			continue
		}
		if req.ScopeID != "" && doc.ScopeID != req.ScopeID {
			continue
		}
		for _, c := range chunks {
			results = append(results, models.DocumentSearchResult{
				Chunk: c,
				Score: embeddings.CosineSimilarity(vector, c.Embedding),
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return &models.DocumentSearchResponse{Results: results}, nil
}

// Remove deletes documentID and its chunks.
func (s *MemoryStore) Remove(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	delete(s.chunks, documentID)
	return nil
}
