package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"reprojects/models"
)

// PostgresStore mirrors run history into a shared Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the run tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS query_runs (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			city TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			listings_found INT NOT NULL DEFAULT 0,
			geocoded INT NOT NULL DEFAULT 0,
			geocode_misses INT NOT NULL DEFAULT 0,
			preseeded INT NOT NULL DEFAULT 0,
			fallback BOOLEAN NOT NULL DEFAULT FALSE,
			advisory TEXT,
			error TEXT
		);

		CREATE TABLE IF NOT EXISTS query_logs (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID REFERENCES query_runs(id) ON DELETE CASCADE,
			timestamp TIMESTAMPTZ NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			city TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_query_runs_city ON query_runs(city, started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_query_logs_run ON query_logs(run_id, timestamp);`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Query Runs
// =============================================================================

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.QueryRun) error {
	query := `
		INSERT INTO query_runs (id, kind, city, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, run.ID, run.Kind, run.City, run.StartedAt, run.Status)
	return err
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *models.QueryRun) error {
	query := `
		UPDATE query_runs SET
			finished_at = $2, status = $3, listings_found = $4, geocoded = $5,
			geocode_misses = $6, preseeded = $7, fallback = $8,
			advisory = NULLIF($9, ''), error = NULLIF($10, '')
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.FinishedAt, run.Status, run.ListingsFound, run.Geocoded,
		run.GeocodeMisses, run.Preseeded, run.Fallback, run.Advisory, run.Error,
	)
	return err
}

// =============================================================================
// Query Logs
// =============================================================================

func (s *PostgresStore) Log(ctx context.Context, entry *models.QueryLog) error {
	query := `
		INSERT INTO query_logs (run_id, timestamp, level, message, city)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var runID any
	if entry.RunID != uuid.Nil {
		runID = entry.RunID
	}

	return s.pool.QueryRow(ctx, query, runID, ts, entry.Level, entry.Message, entry.City).Scan(&entry.ID)
}
