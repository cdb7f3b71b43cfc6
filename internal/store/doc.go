// Package store provides the gateway's append-only ledger using SQLite.
//
// # Overview
//
// The ledger records what happened to each turtle: connection sessions,
// instructions queued by operators, instructions executed or failed by the
// goal machine, goal changes and planned mining rectangles. It is an audit
// trail only. Live turtle state is never reloaded from it on restart.
//
// # Store Interface
//
//	type Store interface {
//	    AppendEvent(ctx, event) error
//	    ListEvents(ctx, filter) ([]*Event, error)
//	    StartSession(ctx, session) error
//	    EndSession(ctx, id, endedAt, reason) error
//	    ListSessions(ctx, turtleID, limit) ([]*Session, error)
//	    Close() error
//	}
//
// SQLiteStore is the production implementation, backed by modernc.org/sqlite
// (pure Go, no cgo). MockStore is an in-memory implementation for tests.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/turtle-gateway/ledger.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.AppendEvent(ctx, &store.Event{
//	    TurtleID: 1,
//	    Type:     store.EventTypeInstructionQueued,
//	    Subject:  "MovePoint(1,2,3)",
//	    Actor:    "dashboard",
//	})
//
// # Schema
//
// Tables are created on open if they do not exist:
//
//   - turtle_events: one row per ledger event, indexed by turtle and time
//   - turtle_sessions: one row per turtle connection
//
// WAL mode is enabled so the HTTP API can read while turtles write.
package store
