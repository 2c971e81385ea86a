// Package sqlitevec stores memory entries in SQLite with embeddings kept as
// packed little-endian float32 blobs; similarity ranking happens in-process
// after a scope-filtered fetch.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arcbound/turnloop/internal/memory/embeddings"
	"github.com/arcbound/turnloop/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS memory_entries (
	id         TEXT PRIMARY KEY,
	scope      TEXT NOT NULL,
	scope_id   TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	embedding  BLOB,
	source     TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_scope ON memory_entries(scope, scope_id);
`

// Backend is a backend.VectorBackend on a local SQLite database.
type Backend struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral backend.
func New(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitevec: create schema: %w", err)
	}
	return &Backend{db: db}, nil
}

// Close releases the database handle.
func (b *Backend) Close() error { return b.db.Close() }

// Insert stores one entry.
func (b *Backend) Insert(ctx context.Context, entry *models.MemoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO memory_entries (id, scope, scope_id, content, embedding, source, session_id, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Scope, entry.ScopeID, entry.Content, packVector(entry.Embedding),
		entry.Metadata.Source, entry.Metadata.SessionID, entry.Metadata.Model, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlitevec: insert: %w", err)
	}
	return nil
}

// Query fetches the scope's entries and ranks them by cosine similarity to
// vector; with a nil vector it returns the newest entries.
func (b *Backend) Query(ctx context.Context, scope models.MemoryScope, scopeID string, vector []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT id, scope, scope_id, content, embedding, source, session_id, model, created_at
		 FROM memory_entries WHERE scope = ? AND scope_id = ? ORDER BY created_at DESC`,
		scope, scopeID)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: query: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		score := 0.0
		if vector != nil {
			score = embeddings.CosineSimilarity(vector, entry.Embedding)
		}
		results = append(results, models.SearchResult{Entry: entry, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitevec: rows: %w", err)
	}

	if vector != nil {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes one entry by id.
func (b *Backend) Delete(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlitevec: delete: %w", err)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (*models.MemoryEntry, error) {
	var entry models.MemoryEntry
	var blob []byte
	err := rows.Scan(&entry.ID, &entry.Scope, &entry.ScopeID, &entry.Content, &blob,
		&entry.Metadata.Source, &entry.Metadata.SessionID, &entry.Metadata.Model, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: scan: %w", err)
	}
	entry.Embedding = unpackVector(blob)
	return &entry, nil
}

func packVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func unpackVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
