// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	events   []*Event            // append order
	sessions map[string]*Session // keyed by session ID
	order    []string            // session IDs in start order

	// AppendErr, when set, is returned by AppendEvent.
	AppendErr error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
	}
}

// AppendEvent stores a copy of the event.
func (m *MockStore) AppendEvent(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return m.AppendErr
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	e := *event
	m.events = append(m.events, &e)
	return nil
}

// ListEvents returns matching events, newest first.
func (m *MockStore) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := clampLimit(filter.Limit)
	var out []*Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if filter.TurtleID != 0 && e.TurtleID != filter.TurtleID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// StartSession stores a copy of the session.
func (m *MockStore) StartSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}

	s := *session
	m.sessions[s.ID] = &s
	m.order = append(m.order, s.ID)
	return nil
}

// EndSession marks a session as ended.
func (m *MockStore) EndSession(ctx context.Context, id string, endedAt time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.EndedAt != nil {
		return ErrNotFound
	}
	ended := endedAt.UTC()
	s.EndedAt = &ended
	s.EndReason = reason
	return nil
}

// ListSessions returns a turtle's sessions, newest first.
func (m *MockStore) ListSessions(ctx context.Context, turtleID int, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = clampLimit(limit)
	var out []*Session
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.sessions[m.order[i]]
		if s.TurtleID != turtleID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }
