package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. Session parameters
// survive restarts, so a value stripped from the boot URL on one run is still
// resolvable on the next.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL session store and ensures its table exists.
func NewPgStore(ctx context.Context, pool *pgxpool.Pool) (*PgStore, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_params (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("create session_params table: %w", err)
	}
	return &PgStore{pool: pool}, nil
}

// Get implements Store.
func (s *PgStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM session_params WHERE key = $1`, key,
	).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query session param: %w", err)
	}
	return value, true, nil
}

// Set implements Store.
func (s *PgStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_params (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert session param: %w", err)
	}
	return nil
}

// HealthCheck implements Store.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
