// Package store persists schedules, intake events and the medication view in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

const busyTimeout = 2 * time.Second

// Store wraps the SQLite database. Construct it with Open and close it when
// the owner shuts down; there is no process-wide shared instance.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at path and ensures the tables exist.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", connectionString(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func connectionString(file string) string {
	qs := url.Values{
		"_txlock": []string{"immediate"},
		"_pragma": []string{
			"journal_mode(WAL)",
			fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()),
		},
	}
	return "file:" + file + "?" + qs.Encode()
}

func (s *Store) ensureTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT NOT NULL PRIMARY KEY,
			medication_id TEXT NOT NULL,
			cycle_type INTEGER NOT NULL,
			times_of_day TEXT NOT NULL,
			days_of_week_mask INTEGER NOT NULL,
			day_of_month INTEGER NOT NULL,
			interval_days INTEGER NOT NULL,
			start_date INTEGER NOT NULL,
			enabled INTEGER NOT NULL,
			next_trigger_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		) WITHOUT ROWID;

		CREATE INDEX IF NOT EXISTS schedules_medication_idx ON schedules (medication_id);
		CREATE INDEX IF NOT EXISTS schedules_next_trigger_idx ON schedules (next_trigger_at ASC);

		CREATE TABLE IF NOT EXISTS intake_events (
			id TEXT NOT NULL PRIMARY KEY,
			medication_name TEXT NOT NULL,
			taken_at INTEGER NOT NULL,
			dosage_taken INTEGER NOT NULL
		) WITHOUT ROWID;

		CREATE INDEX IF NOT EXISTS intake_events_taken_at_idx ON intake_events (taken_at DESC);

		CREATE TABLE IF NOT EXISTS medications (
			id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			dosage_per_intake INTEGER NOT NULL
		) WITHOUT ROWID;
		`,
	)
	return err
}

// Times are stored as epoch milliseconds; zero time maps to 0.

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
