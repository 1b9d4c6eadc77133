// Package postgres implements the transcript archive on PostgreSQL.
//
// The archive is an optional broker subscriber: it records session metadata
// and final transcription results as they are published, so completed notes
// survive a server restart. It is deliberately write-mostly; reads happen
// through reporting tools, not through the dictation path.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinscribe/clinscribe/pkg/types"
)

// Store is the PostgreSQL-backed transcript archive. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure the archive tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the archive tables when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const schema = `
CREATE TABLE IF NOT EXISTS dictation_sessions (
    id          TEXT PRIMARY KEY,
    started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at    TIMESTAMPTZ,
    final_text  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dictation_results (
    id            BIGSERIAL PRIMARY KEY,
    session_id    TEXT NOT NULL REFERENCES dictation_sessions(id) ON DELETE CASCADE,
    raw_text      TEXT NOT NULL,
    enhanced_text TEXT NOT NULL,
    confidence    DOUBLE PRECISION NOT NULL,
    section       TEXT NOT NULL,
    audio_quality TEXT NOT NULL,
    medical_terms JSONB NOT NULL DEFAULT '[]',
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS dictation_results_session_idx
    ON dictation_results (session_id, created_at);
`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("archive: create schema: %w", err)
	}
	return nil
}

// StartSession records a session's existence. Idempotent so replays after a
// reconnect do not fail.
func (s *Store) StartSession(ctx context.Context, sessionID string, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO dictation_sessions (id, started_at)
VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING`,
		sessionID, startedAt)
	if err != nil {
		return fmt.Errorf("archive: start session %s: %w", sessionID, err)
	}
	return nil
}

// AppendResult archives one final transcription result.
func (s *Store) AppendResult(ctx context.Context, res types.TranscriptionResult) error {
	terms, err := json.Marshal(res.MedicalTerms)
	if err != nil {
		return fmt.Errorf("archive: marshal terms: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO dictation_results
    (session_id, raw_text, enhanced_text, confidence, section, audio_quality, medical_terms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.SessionID, res.RawText, res.EnhancedText, res.Confidence,
		string(res.Section), string(res.AudioQuality), terms, res.Timestamp)
	if err != nil {
		return fmt.Errorf("archive: append result for session %s: %w", res.SessionID, err)
	}
	return nil
}

// FinishSession stamps the session's end time and stores the accumulated
// final transcript.
func (s *Store) FinishSession(ctx context.Context, sessionID, finalText string, endedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
UPDATE dictation_sessions
SET ended_at = $2, final_text = $3
WHERE id = $1`,
		sessionID, endedAt, finalText)
	if err != nil {
		return fmt.Errorf("archive: finish session %s: %w", sessionID, err)
	}
	return nil
}

// Ping verifies the underlying pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool. Call it when
// the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
