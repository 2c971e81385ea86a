package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arcbound/turnloop/pkg/models"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	key        TEXT UNIQUE NOT NULL,
	agent_id   TEXT NOT NULL,
	channel    TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS session_messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_messages_session
	ON session_messages(session_id, seq);
`

// SQLiteStore is a durable Store backed by a local SQLite database. Message
// payloads are stored as JSON; ordering is by an explicit per-session
// sequence number, never by timestamp.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessions: open %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// GetOrCreate resolves key, inserting a fresh session row when absent.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, key, agentID string, channel models.ChannelType, channelID string) (*models.Session, error) {
	if session, err := s.getByKey(ctx, key); err == nil {
		return session, nil
	} else if err != ErrNotFound {
		return nil, err
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, key, agent_id, channel, channel_id, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '{}', ?, ?)`,
		session.ID, session.Key, session.AgentID, session.Channel, session.ChannelID,
		session.CreatedAt, session.UpdatedAt)
	if err != nil {
		// Lost a race to a concurrent insert; the row exists now.
		if existing, getErr := s.getByKey(ctx, key); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("sessions: insert: %w", err)
	}
	return session, nil
}

// Get resolves a session by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, agent_id, channel, channel_id, metadata, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) getByKey(ctx context.Context, key string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, agent_id, channel, channel_id, metadata, created_at, updated_at
		 FROM sessions WHERE key = ?`, key)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var session models.Session
	var metadata string
	err := row.Scan(&session.ID, &session.Key, &session.AgentID, &session.Channel,
		&session.ChannelID, &metadata, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &session.Metadata); err != nil {
		session.Metadata = make(map[string]any)
	}
	return &session, nil
}

// UpdateMetadata replaces session id's metadata.
func (s *SQLiteStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("sessions: encode metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now(), id)
	if err != nil {
		return fmt.Errorf("sessions: update metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage adds msg at the next sequence number for sessionID.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.SessionID = sessionID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("sessions: encode message: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sessions: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM session_messages WHERE session_id = ?`,
		sessionID).Scan(&seq); err != nil {
		return fmt.Errorf("sessions: next seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_messages (id, session_id, seq, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		stored.ID, sessionID, seq, string(payload), stored.CreatedAt); err != nil {
		return fmt.Errorf("sessions: insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, stored.CreatedAt, sessionID); err != nil {
		return fmt.Errorf("sessions: touch session: %w", err)
	}
	return tx.Commit()
}

// GetHistory returns sessionID's messages in sequence order.
func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	query := `SELECT payload FROM session_messages WHERE session_id = ? ORDER BY seq`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT payload FROM (
			SELECT payload, seq FROM session_messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sessions: query history: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sessions: scan message: %w", err)
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("sessions: decode message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}
