// ABOUTME: Registry of every turtle that has connected since startup.
// ABOUTME: Insert-only map with monotonic id allocation and disconnect marking.

package turtle

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Registry tracks turtles by id. Entries are never removed; a turtle whose
// connection ends stays visible with connected=false.
type Registry struct {
	turtles map[int]*Turtle
	nextID  int
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		turtles: make(map[int]*Turtle),
		logger:  logger.With("component", "registry"),
	}
}

// NextID allocates a fresh turtle id. Ids start at 1 and are never reused.
func (r *Registry) NextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

// Register adds a turtle. Returns ErrAgentAlreadyRegistered if the id is taken.
func (r *Registry) Register(t *Turtle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.turtles[t.ID()]; exists {
		return fmt.Errorf("%w: %d", ErrAgentAlreadyRegistered, t.ID())
	}
	if t.ID() > r.nextID {
		r.nextID = t.ID()
	}

	r.turtles[t.ID()] = t
	r.logger.Info("=== TURTLE CONNECTED ===",
		"turtle_id", t.ID(),
		"total_turtles", len(r.turtles),
	)
	return nil
}

// Lookup returns the turtle with the given id.
func (r *Registry) Lookup(id int) (*Turtle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.turtles[id]
	return t, ok
}

// List returns every registered turtle in id order.
func (r *Registry) List() []*Turtle {
	r.mu.RLock()
	out := make([]*Turtle, 0, len(r.turtles))
	for _, t := range r.turtles {
		out = append(out, t)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Turtle) int { return a.ID() - b.ID() })
	return out
}

// Snapshots returns a copy of every turtle's state in id order.
func (r *Registry) Snapshots() []Snapshot {
	turtles := r.List()
	out := make([]Snapshot, len(turtles))
	for i, t := range turtles {
		out[i] = t.Snapshot()
	}
	return out
}

// Len returns the number of registered turtles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.turtles)
}

// MarkDisconnected records that a turtle's connection ended.
func (r *Registry) MarkDisconnected(id int) error {
	t, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrAgentNotFound, id)
	}
	t.MarkDisconnected(time.Now())
	r.logger.Info("=== TURTLE DISCONNECTED ===", "turtle_id", id)
	return nil
}
