// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides ledger persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turtle_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			turtle_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			subject TEXT NOT NULL,
			detail TEXT,
			actor TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_turtle_events_turtle
			ON turtle_events(turtle_id, seq);

		CREATE INDEX IF NOT EXISTS idx_turtle_events_type
			ON turtle_events(type, seq);

		CREATE TABLE IF NOT EXISTS turtle_sessions (
			session_id TEXT PRIMARY KEY,
			turtle_id INTEGER NOT NULL,
			remote_addr TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			end_reason TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_turtle_sessions_turtle
			ON turtle_sessions(turtle_id, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// AppendEvent inserts a ledger event. Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO turtle_events (event_id, turtle_id, type, subject, detail, actor, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.TurtleID,
		string(event.Type),
		event.Subject,
		nullString(event.Detail),
		event.Actor,
		event.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("inserting event %s: duplicate id", event.ID)
		}
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("appended ledger event",
		"event_id", event.ID,
		"turtle_id", event.TurtleID,
		"type", event.Type,
	)
	return nil
}

// ListEvents returns events matching the filter, newest first
func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.TurtleID != 0 {
		where = append(where, "turtle_id = ?")
		args = append(args, filter.TurtleID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	query := `
		SELECT event_id, turtle_id, type, subject, detail, actor, timestamp
		FROM turtle_events
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e            Event
			eventType    string
			detail       sql.NullString
			timestampStr string
		)
		if err := rows.Scan(&e.ID, &e.TurtleID, &eventType, &e.Subject, &detail, &e.Actor, &timestampStr); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Type = EventType(eventType)
		e.Detail = detail.String
		e.Timestamp, err = time.Parse(timeLayout, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

// StartSession records the start of a turtle connection
func (s *SQLiteStore) StartSession(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO turtle_sessions (session_id, turtle_id, remote_addr, started_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.TurtleID,
		session.RemoteAddr,
		session.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("started session", "session_id", session.ID, "turtle_id", session.TurtleID)
	return nil
}

// EndSession marks a session as ended
func (s *SQLiteStore) EndSession(ctx context.Context, id string, endedAt time.Time, reason string) error {
	query := `
		UPDATE turtle_sessions
		SET ended_at = ?, end_reason = ?
		WHERE session_id = ? AND ended_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, endedAt.UTC().Format(timeLayout), nullString(reason), id)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("ended session", "session_id", id, "reason", reason)
	return nil
}

// ListSessions returns a turtle's sessions, newest first
func (s *SQLiteStore) ListSessions(ctx context.Context, turtleID int, limit int) ([]*Session, error) {
	query := `
		SELECT session_id, turtle_id, remote_addr, started_at, ended_at, end_reason
		FROM turtle_sessions
		WHERE turtle_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, turtleID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var (
			sess       Session
			startedStr string
			endedStr   sql.NullString
			reason     sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.TurtleID, &sess.RemoteAddr, &startedStr, &endedStr, &reason); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.StartedAt, err = time.Parse(timeLayout, startedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if endedStr.Valid {
			ended, err := time.Parse(timeLayout, endedStr.String)
			if err != nil {
				return nil, fmt.Errorf("parsing ended_at: %w", err)
			}
			sess.EndedAt = &ended
		}
		sess.EndReason = reason.String
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	return sessions, nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsNotFound reports whether err is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
