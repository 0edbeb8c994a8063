// Package postgres is a PostgreSQL-backed implementation of the Transcript
// Store (C2), persisting the `sessions` table laid out in spec §6:
// `sessions(id, user_id, persona_id, started_at, ended_at, transcript)`.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auravox/core/internal/transcript"
	"github.com/auravox/core/pkg/types"
)

// Schema is the SQL DDL for the sessions table used by [Store].
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL DEFAULT '',
    persona_id  TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at    TIMESTAMPTZ,
    transcript  JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_persona ON sessions(user_id, persona_id, started_at);
`

// wireMessage is the on-disk JSON shape of one transcript row entry. It
// keeps Content as a raw value so both modern (string/parts) and legacy
// (object) shapes can be read back via [transcript.NormalizeLegacyContent].
type wireMessage struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Name      string          `json:"name,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store is a [transcript.Store] backed by a single `sessions` table.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ transcript.Store = (*Store)(nil)

// NewStore connects to dsn and migrates the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSession upserts the owning row for sessionID so later appends have
// somewhere to land. The Session Manager (C8) calls this once at session
// creation.
func (s *Store) EnsureSession(ctx context.Context, sessionID, userID, personaID string) error {
	const query = `
		INSERT INTO sessions (id, user_id, persona_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query, sessionID, userID, personaID)
	if err != nil {
		return fmt.Errorf("transcript postgres: ensure session %q: %w", sessionID, err)
	}
	return nil
}

// EndSession records the session's end time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	const query = `UPDATE sessions SET ended_at = now() WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("transcript postgres: end session %q: %w", sessionID, err)
	}
	return nil
}

// Append appends messages to sessionID's transcript array atomically using
// jsonb concatenation, preserving order.
func (s *Store) Append(ctx context.Context, sessionID string, messages []types.Message) error {
	if len(messages) == 0 {
		return nil
	}
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		content, err := marshalContent(m.Content)
		if err != nil {
			return fmt.Errorf("transcript postgres: marshal content: %w", err)
		}
		wire[i] = wireMessage{
			Role:      string(m.Role),
			Content:   content,
			Name:      m.Name,
			Timestamp: m.Timestamp,
		}
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("transcript postgres: marshal batch: %w", err)
	}

	const query = `
		UPDATE sessions
		SET transcript = transcript || $2::jsonb
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, sessionID, payload)
	if err != nil {
		return fmt.Errorf("transcript postgres: append %q: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transcript postgres: append %q: session row not found", sessionID)
	}
	return nil
}

// HistoryFor returns every message across all sessions for (userID,
// personaID), oldest session first, normalizing legacy content shapes on
// read.
func (s *Store) HistoryFor(ctx context.Context, userID, personaID string) ([]types.Message, error) {
	const query = `
		SELECT transcript
		FROM sessions
		WHERE user_id = $1 AND persona_id = $2
		ORDER BY started_at ASC`

	rows, err := s.pool.Query(ctx, query, userID, personaID)
	if err != nil {
		return nil, fmt.Errorf("transcript postgres: history for %q/%q: %w", userID, personaID, err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("transcript postgres: scan: %w", err)
		}
		var wire []wireMessage
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("transcript postgres: unmarshal transcript: %w", err)
		}
		for _, w := range wire {
			content, err := transcript.NormalizeLegacyContent(w.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, types.Message{
				Role:      types.MessageRole(w.Role),
				Content:   content,
				Name:      w.Name,
				Timestamp: w.Timestamp,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript postgres: history for %q/%q: %w", userID, personaID, err)
	}
	return out, nil
}

// marshalContent serialises a [types.Content] to its wire shape: a plain
// JSON string for text content, or an array of {kind, text|url} parts.
func marshalContent(c types.Content) (json.RawMessage, error) {
	if c.Kind == types.ContentText {
		return json.Marshal(c.Text)
	}
	type wirePart struct {
		Kind string `json:"kind"`
		Text string `json:"text,omitempty"`
		URL  string `json:"url,omitempty"`
	}
	parts := make([]wirePart, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p.Kind == types.PartImage {
			parts = append(parts, wirePart{Kind: "image", URL: p.URL})
		} else {
			parts = append(parts, wirePart{Kind: "text", Text: p.Text})
		}
	}
	return json.Marshal(parts)
}
