// ABOUTME: Store interface and ledger data types for turtle-gateway persistence
// ABOUTME: Defines Event and Session records and their query filters

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// EventType categorizes a ledger event
type EventType string

const (
	EventTypeInstructionQueued   EventType = "instruction_queued"
	EventTypeInstructionExecuted EventType = "instruction_executed"
	EventTypeInstructionFailed   EventType = "instruction_failed"
	EventTypeGoalChanged         EventType = "goal_changed"
	EventTypeMinePlanned         EventType = "mine_planned"
	EventTypeRefueled            EventType = "refueled"
	EventTypeSessionStarted      EventType = "session_started"
	EventTypeSessionEnded        EventType = "session_ended"
)

// Event is one immutable ledger entry about a turtle
type Event struct {
	ID        string    `json:"id"`
	TurtleID  int       `json:"turtle_id"`
	Type      EventType `json:"type"`
	Subject   string    `json:"subject"`          // instruction or goal the event is about
	Detail    string    `json:"detail,omitempty"` // position reached, error text, etc.
	Actor     string    `json:"actor"`            // "machine", "dashboard", "api:<principal>"
	Timestamp time.Time `json:"timestamp"`
}

// EventFilter narrows ListEvents results
type EventFilter struct {
	TurtleID int        // 0 matches every turtle
	Type     EventType  // empty matches every type
	Since    *time.Time // optional: only events at or after this time
	Limit    int        // 1-1000, defaults to 100
}

// Session records one turtle connection
type Session struct {
	ID         string     `json:"id"`
	TurtleID   int        `json:"turtle_id"`
	RemoteAddr string     `json:"remote_addr"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	EndReason  string     `json:"end_reason,omitempty"`
}

// Store defines the ledger operations used by the gateway
type Store interface {
	// AppendEvent records an event. ID and Timestamp are generated when unset.
	AppendEvent(ctx context.Context, event *Event) error

	// ListEvents returns matching events, newest first.
	ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	// StartSession records the start of a turtle connection.
	StartSession(ctx context.Context, session *Session) error

	// EndSession closes a session. Returns ErrNotFound for unknown or
	// already ended sessions.
	EndSession(ctx context.Context, id string, endedAt time.Time, reason string) error

	// ListSessions returns a turtle's sessions, newest first.
	ListSessions(ctx context.Context, turtleID int, limit int) ([]*Session, error)

	// Close releases the underlying resources.
	Close() error
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
