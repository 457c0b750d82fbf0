// Package store persists monitoring sessions, condition transitions and cue
// fires in SQLite. Waveform samples are never stored.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Event kinds reported by RecentEvents.
const (
	KindTransition = "transition"
	KindCue        = "cue"
)

// Store wraps the event database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer keeps SQLite free of busy errors.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for admin tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// MigrateUp runs all pending migrations.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version; 0 when none.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Session is one monitoring run.
type Session struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Event is a stored transition or cue.
type Event struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	Previous  string    `json:"previous,omitempty"`
	Condition string    `json:"condition"`
	Value     *float64  `json:"value,omitempty"`
	At        time.Time `json:"at"`
}

// Summary aggregates one session for reporting.
type Summary struct {
	Session     Session        `json:"session"`
	Transitions int            `json:"transitions"`
	Cues        int            `json:"cues"`
	CuesBy      map[string]int `json:"cues_by_condition"`
	Conditions  []string       `json:"conditions_seen"`
}

// StartSession records a new session and returns its ID.
func (s *Store) StartSession(ctx context.Context, source string, at time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, source, started_at) VALUES (?, ?, ?)`,
		id, source, at.UTC()); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session end time.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	var ended sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, source, started_at, ended_at FROM sessions WHERE session_id = ?`, id,
	).Scan(&sess.ID, &sess.Source, &sess.StartedAt, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}

// RecordTransition stores one condition change.
func (s *Store) RecordTransition(ctx context.Context, sessionID string, ev cue.TransitionEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO condition_transitions (session_id, previous, condition, at) VALUES (?, ?, ?, ?)`,
		sessionID, string(ev.Previous), string(ev.Current), ev.At.UTC())
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecordCue stores one cue fire.
func (s *Store) RecordCue(ctx context.Context, sessionID string, ev cue.CueEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cue_events (session_id, condition, value, at) VALUES (?, ?, ?, ?)`,
		sessionID, string(ev.Condition), ev.Value, ev.At.UTC())
	if err != nil {
		return fmt.Errorf("record cue: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit transitions and cues, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, session_id, previous, condition, value, at FROM (
			SELECT 'transition' AS kind, session_id, previous, condition, NULL AS value, at
			  FROM condition_transitions
			UNION ALL
			SELECT 'cue' AS kind, session_id, '' AS previous, condition, value, at
			  FROM cue_events
		)
		ORDER BY at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var value sql.NullFloat64
		var at string
		if err := rows.Scan(&ev.Kind, &ev.SessionID, &ev.Previous, &ev.Condition, &value, &at); err != nil {
			return nil, err
		}
		if value.Valid {
			v := value.Float64
			ev.Value = &v
		}
		if ev.At, err = parseTime(at); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Summarize aggregates a session's events.
func (s *Store) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Session: sess, CuesBy: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM condition_transitions WHERE session_id = ?`, sessionID,
	).Scan(&sum.Transitions); err != nil {
		return Summary{}, fmt.Errorf("count transitions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT condition, COUNT(*) FROM cue_events WHERE session_id = ? GROUP BY condition ORDER BY condition`, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("count cues: %w", err)
	}
	for rows.Next() {
		var cond string
		var n int
		if err := rows.Scan(&cond, &n); err != nil {
			rows.Close()
			return Summary{}, err
		}
		sum.CuesBy[cond] = n
		sum.Cues += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	crows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT condition FROM condition_transitions WHERE session_id = ? ORDER BY condition`, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("list conditions: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var cond string
		if err := crows.Scan(&cond); err != nil {
			return Summary{}, err
		}
		sum.Conditions = append(sum.Conditions, cond)
	}
	return sum, crows.Err()
}

// timeLayouts covers the encodings the sqlite driver uses for TIMESTAMP
// columns read through an untyped UNION.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
