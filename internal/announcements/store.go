// Package announcements is the record-store collaborator that lives
// alongside the daily puzzle: plain CRUD over mentor announcements.
// The game core does not depend on it; it shares the service boundary
// and the SQLite file.
package announcements

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ErrNotFound is returned when an announcement id does not exist.
var ErrNotFound = errors.New("announcement not found")

// Category groups an announcement for display.
type Category string

const (
	CategoryGeneral   Category = "general"
	CategoryEvent     Category = "event"
	CategoryDeadline  Category = "deadline"
	CategoryImportant Category = "important"
	CategoryReminder  Category = "reminder"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryGeneral, CategoryEvent, CategoryDeadline, CategoryImportant, CategoryReminder:
		return true
	}
	return false
}

// Priority orders announcements by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Announcement is one stored record. TimeAgo is derived from
// CreatedAt at read time and never stored.
type Announcement struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
	Priority    Priority   `json:"priority"`
	EventDate   *time.Time `json:"event_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	TimeAgo     string     `json:"time_ago"`
}

// Fields carries the mutable attributes for create and update.
type Fields struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
	Priority    Priority   `json:"priority"`
	EventDate   *time.Time `json:"event_date,omitempty"`
}

func (f Fields) validate() error {
	if f.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !f.Category.Valid() {
		return fmt.Errorf("unknown category %q", f.Category)
	}
	if !f.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", f.Priority)
	}
	return nil
}

// Store persists announcements in SQLite.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// NewStore opens (or creates) the database at path and runs
// migrations.
func NewStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	s := &Store{db: db, clock: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreFromDB wraps an existing connection, running migrations on
// it. The caller keeps ownership of db.
func NewStoreFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db, clock: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `CREATE TABLE IF NOT EXISTS announcements (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category    TEXT NOT NULL,
		priority    TEXT NOT NULL,
		event_date  DATETIME,
		created_at  DATETIME NOT NULL
	)`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("announcements migration failed: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_announcements_created ON announcements(created_at DESC)`); err != nil {
		return fmt.Errorf("announcements index migration failed: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns all announcements, newest first.
func (s *Store) List(ctx context.Context) ([]Announcement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, category, priority, event_date, created_at
		 FROM announcements ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	now := s.clock()
	out := []Announcement{}
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		a.TimeAgo = humanize.RelTime(a.CreatedAt, now, "ago", "from now")
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read announcement rows: %w", err)
	}
	return out, nil
}

// Get returns a single announcement by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Announcement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, category, priority, event_date, created_at
		 FROM announcements WHERE id = ?`, id.String())
	a, err := scanAnnouncement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Announcement{}, ErrNotFound
	}
	if err != nil {
		return Announcement{}, err
	}
	a.TimeAgo = humanize.RelTime(a.CreatedAt, s.clock(), "ago", "from now")
	return a, nil
}

// Create validates fields and inserts a new announcement.
func (s *Store) Create(ctx context.Context, f Fields) (Announcement, error) {
	if err := f.validate(); err != nil {
		return Announcement{}, err
	}

	a := Announcement{
		ID:          uuid.New(),
		Title:       f.Title,
		Description: f.Description,
		Category:    f.Category,
		Priority:    f.Priority,
		EventDate:   f.EventDate,
		CreatedAt:   s.clock().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO announcements (id, title, description, category, priority, event_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Title, a.Description, string(a.Category), string(a.Priority), a.EventDate, a.CreatedAt)
	if err != nil {
		return Announcement{}, fmt.Errorf("failed to create announcement: %w", err)
	}
	a.TimeAgo = humanize.RelTime(a.CreatedAt, s.clock(), "ago", "from now")
	return a, nil
}

// Update validates fields and replaces the mutable attributes of an
// existing announcement.
func (s *Store) Update(ctx context.Context, id uuid.UUID, f Fields) (Announcement, error) {
	if err := f.validate(); err != nil {
		return Announcement{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE announcements SET title = ?, description = ?, category = ?, priority = ?, event_date = ?
		 WHERE id = ?`,
		f.Title, f.Description, string(f.Category), string(f.Priority), f.EventDate, id.String())
	if err != nil {
		return Announcement{}, fmt.Errorf("failed to update announcement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Announcement{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes an announcement by id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete announcement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnouncement(r rowScanner) (Announcement, error) {
	var (
		a         Announcement
		id        string
		eventDate sql.NullTime
	)
	if err := r.Scan(&id, &a.Title, &a.Description, &a.Category, &a.Priority, &eventDate, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Announcement{}, err
		}
		return Announcement{}, fmt.Errorf("failed to scan announcement: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Announcement{}, fmt.Errorf("malformed announcement id %q: %w", id, err)
	}
	a.ID = parsed
	if eventDate.Valid {
		t := eventDate.Time
		a.EventDate = &t
	}
	return a, nil
}
