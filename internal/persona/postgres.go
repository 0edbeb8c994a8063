package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/auravox/core/pkg/types"
)

// Schema is the SQL DDL for the personas table.
const Schema = `
CREATE TABLE IF NOT EXISTS personas (
    id                    TEXT PRIMARY KEY,
    display_name          TEXT NOT NULL,
    category              TEXT NOT NULL DEFAULT 'generic',
    system_prompt         TEXT NOT NULL DEFAULT '',
    voice_id              TEXT NOT NULL DEFAULT '',
    reference_outfits     JSONB NOT NULL DEFAULT '[]',
    preferred_genres      JSONB NOT NULL DEFAULT '[]',
    vision_capture_interval_ms INT NOT NULL DEFAULT 0
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a [Store] backed by a PostgreSQL table. Reference
// outfits and preferred genres are serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over the given connection or pool.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Lookup retrieves a persona by ID.
func (s *PostgresStore) Lookup(ctx context.Context, id string) (*types.Persona, error) {
	const query = `
		SELECT id, display_name, category, system_prompt, voice_id,
		       reference_outfits, preferred_genres, vision_capture_interval_ms
		FROM personas WHERE id = $1`

	var p types.Persona
	var category string
	var outfitsJSON, genresJSON []byte

	err := s.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.DisplayName, &category, &p.SystemPrompt, &p.VoiceID,
		&outfitsJSON, &genresJSON, &p.VisionCaptureIntervalMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("persona: lookup %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("persona: lookup %q: %w", id, err)
	}
	p.Category = types.PersonaCategory(category)

	if err := json.Unmarshal(outfitsJSON, &p.ReferenceOutfits); err != nil {
		return nil, fmt.Errorf("persona: unmarshal reference_outfits: %w", err)
	}
	if err := json.Unmarshal(genresJSON, &p.PreferredGenres); err != nil {
		return nil, fmt.Errorf("persona: unmarshal preferred_genres: %w", err)
	}
	return &p, nil
}
