package styleimage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LogSchema is the SQL DDL for the style_generations table, the durable
// record of every style-generation call (§4.10 item 5).
const LogSchema = `
CREATE TABLE IF NOT EXISTS style_generations (
    id            BIGSERIAL PRIMARY KEY,
    session_id    TEXT NOT NULL,
    persona_id    TEXT NOT NULL,
    original_url  TEXT NOT NULL,
    generated_url TEXT NOT NULL,
    prompt        TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Log persists one row per successful GenerateStyle call.
type Log struct {
	pool *pgxpool.Pool
}

// NewLog connects to dsn and migrates the style_generations schema.
func NewLog(ctx context.Context, dsn string) (*Log, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("styleimage log: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("styleimage log: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, LogSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("styleimage log: migrate: %w", err)
	}
	return &Log{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (l *Log) Close() { l.pool.Close() }

// Record inserts a style-generation row.
func (l *Log) Record(ctx context.Context, sessionID, personaID, originalURL, generatedURL, prompt string, at time.Time) error {
	const query = `
		INSERT INTO style_generations (session_id, persona_id, original_url, generated_url, prompt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := l.pool.Exec(ctx, query, sessionID, personaID, originalURL, generatedURL, prompt, at); err != nil {
		return fmt.Errorf("styleimage log: record: %w", err)
	}
	return nil
}
