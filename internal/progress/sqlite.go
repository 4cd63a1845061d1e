package progress

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Field keys. Each progress field is stored as its own row so a failed
// write to one field never corrupts the others.
const (
	fieldStreak     = "streak"
	fieldLastPlayed = "lastPlayed"
	fieldBestTime   = "bestTime"
	fieldComplete   = "complete"
)

// SQLiteStore implements Store on a SQLite database, one row per
// (topic, field) with string-encoded values.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency with the announcements store
	// sharing the same file.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing connection, running
// migrations on it. The caller keeps ownership of db.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `CREATE TABLE IF NOT EXISTS progress (
		topic      TEXT NOT NULL,
		field      TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (topic, field)
	)`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("progress migration failed: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the progress record for topic. Missing rows and malformed
// values both read as absent fields; only an unreachable store is an
// error.
func (s *SQLiteStore) Load(ctx context.Context, topic string) (Progress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM progress WHERE topic = ?`, topic)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to load progress for %q: %w", topic, err)
	}
	defer rows.Close()

	var p Progress
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return Progress{}, fmt.Errorf("failed to scan progress row: %w", err)
		}
		switch field {
		case fieldStreak:
			if n, err := strconv.Atoi(value); err == nil {
				p.Streak = n
			}
		case fieldLastPlayed:
			p.LastPlayed = value
		case fieldBestTime:
			if n, err := strconv.Atoi(value); err == nil {
				best := n
				p.BestTimeSeconds = &best
			}
		case fieldComplete:
			p.Completed = value == "true"
		}
	}
	if err := rows.Err(); err != nil {
		return Progress{}, fmt.Errorf("failed to read progress rows: %w", err)
	}
	return p, nil
}

// Save upserts each field as its own row, in the streak, lastPlayed,
// complete, bestTime order. Fields are written independently; if one
// write fails the earlier ones stand, mirroring the per-key store this
// schema models.
func (s *SQLiteStore) Save(ctx context.Context, topic string, p Progress) error {
	if err := s.setField(ctx, topic, fieldStreak, strconv.Itoa(p.Streak)); err != nil {
		return err
	}
	if err := s.setField(ctx, topic, fieldLastPlayed, p.LastPlayed); err != nil {
		return err
	}
	if err := s.setField(ctx, topic, fieldComplete, strconv.FormatBool(p.Completed)); err != nil {
		return err
	}
	if p.BestTimeSeconds != nil {
		if err := s.setField(ctx, topic, fieldBestTime, strconv.Itoa(*p.BestTimeSeconds)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) setField(ctx context.Context, topic, field, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (topic, field, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (topic, field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		topic, field, value)
	if err != nil {
		return fmt.Errorf("failed to save %s for %q: %w", field, topic, err)
	}
	return nil
}
