package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"reprojects/models"
)

// SQLiteStore keeps the local run history.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		city TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		listings_found INTEGER DEFAULT 0,
		geocoded INTEGER DEFAULT 0,
		geocode_misses INTEGER DEFAULT 0,
		preseeded INTEGER DEFAULT 0,
		fallback BOOLEAN DEFAULT FALSE,
		advisory TEXT,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS query_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		city TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_city ON query_runs(city, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_kind ON query_runs(kind, started_at);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON query_logs(run_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.QueryRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_runs (id, kind, city, started_at, status)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID.String(), run.Kind, run.City, run.StartedAt, run.Status)
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *models.QueryRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE query_runs SET finished_at = ?, status = ?, listings_found = ?, geocoded = ?,
			geocode_misses = ?, preseeded = ?, fallback = ?, advisory = ?, error = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.ListingsFound, run.Geocoded,
		run.GeocodeMisses, run.Preseeded, run.Fallback, nullString(run.Advisory), nullString(run.Error),
		run.ID.String())
	return err
}

func (s *SQLiteStore) Log(ctx context.Context, entry *models.QueryLog) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO query_logs (run_id, timestamp, level, message, city)
		VALUES (?, ?, ?, ?, ?)`,
		runIDString(entry.RunID), ts, entry.Level, entry.Message, entry.City)
	if err != nil {
		return err
	}
	entry.ID, _ = result.LastInsertId()
	return nil
}

// RecentRuns returns the newest runs first. An empty city matches every city.
func (s *SQLiteStore) RecentRuns(ctx context.Context, city string, limit int) ([]models.QueryRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, city, started_at, finished_at, status, listings_found, geocoded,
			geocode_misses, preseeded, fallback, COALESCE(advisory, ''), COALESCE(error, '')
		FROM query_runs
		WHERE ? = '' OR city = ?
		ORDER BY started_at DESC
		LIMIT ?`, city, city, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.QueryRun
	for rows.Next() {
		var r models.QueryRun
		var id string
		var finishedAt sql.NullTime
		if err := rows.Scan(&id, &r.Kind, &r.City, &r.StartedAt, &finishedAt, &r.Status,
			&r.ListingsFound, &r.Geocoded, &r.GeocodeMisses, &r.Preseeded, &r.Fallback,
			&r.Advisory, &r.Error); err != nil {
			return nil, err
		}
		r.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunLogs returns the log lines of one run in insertion order.
func (s *SQLiteStore) RunLogs(ctx context.Context, runID uuid.UUID) ([]models.QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, level, message, city
		FROM query_logs WHERE run_id = ? ORDER BY id`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.QueryLog
	for rows.Next() {
		l := models.QueryLog{RunID: runID}
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.City); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func runIDString(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
