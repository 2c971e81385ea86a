package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcbound/turnloop/internal/memory/embeddings"
	"github.com/arcbound/turnloop/internal/rag/store"
	pkgmodels "github.com/arcbound/turnloop/pkg/models"
)

// ragResultLimit bounds how many retrieved chunks are rendered into the
// "# Relevant Memory" prompt section.
const ragResultLimit = 5

// RagAdapter implements ports.RagPort over the document store, embedding
// the query text with the same embeddings.Provider used for ingestion
// before issuing a vector search.
type RagAdapter struct {
	Store    store.DocumentStore
	Embedder embeddings.Provider
}

// NewRagAdapter wraps docStore/embedder. Either may be nil, in which case
// IsAvailable reports false and Query is never called by the Context
// Builder.
func NewRagAdapter(docStore store.DocumentStore, embedder embeddings.Provider) *RagAdapter {
	return &RagAdapter{Store: docStore, Embedder: embedder}
}

// IsAvailable reports whether both the document store and an embedder are
// configured.
func (a *RagAdapter) IsAvailable() bool {
	return a.Store != nil && a.Embedder != nil
}

// Query embeds text and returns the top matching document chunks rendered
// as a context block, scoped to the given session.
func (a *RagAdapter) Query(ctx context.Context, sessionID, text string) (string, error) {
	if !a.IsAvailable() {
		return "", nil
	}

	vector, err := a.Embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("rag: embed query: %w", err)
	}

	resp, err := a.Store.Search(ctx, &pkgmodels.DocumentSearchRequest{
		Query:   text,
		Scope:   pkgmodels.DocumentScopeSession,
		ScopeID: sessionID,
		Limit:   ragResultLimit,
	}, vector)
	if err != nil {
		return "", fmt.Errorf("rag: search failed: %w", err)
	}
	if resp == nil || len(resp.Results) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, r := range resp.Results {
		if r.Chunk == nil || r.Chunk.Content == "" {
			continue
		}
		source := r.Chunk.Metadata.DocumentName
		if source == "" {
			source = r.Chunk.Metadata.DocumentSource
		}
		if source != "" {
			fmt.Fprintf(&b, "[%s] %s\n", source, r.Chunk.Content)
		} else {
			fmt.Fprintf(&b, "%s\n", r.Chunk.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
