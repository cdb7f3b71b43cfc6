// ABOUTME: Fixed-capacity ring of executed instructions.
// ABOUTME: The oldest entry is evicted when a push would exceed capacity.

package turtle

import "github.com/2389/turtle-gateway/internal/protocol"

// DefaultHistoryCapacity bounds executed-instruction history when no
// capacity is configured.
const DefaultHistoryCapacity = 100

// History is a bounded FIFO of executed instructions. It is not safe for
// concurrent use; Turtle guards it with its own mutex.
type History struct {
	items []protocol.Instruction
	start int
	size  int
}

// NewHistory creates a history holding at most capacity entries.
// A non-positive capacity uses DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{items: make([]protocol.Instruction, capacity)}
}

// Push appends an instruction, evicting the oldest entry when full.
func (h *History) Push(instr protocol.Instruction) {
	if h.size < len(h.items) {
		h.items[(h.start+h.size)%len(h.items)] = instr
		h.size++
		return
	}
	h.items[h.start] = instr
	h.start = (h.start + 1) % len(h.items)
}

// Len returns the number of stored entries.
func (h *History) Len() int { return h.size }

// Cap returns the maximum number of entries.
func (h *History) Cap() int { return len(h.items) }

// Items returns the entries oldest first.
func (h *History) Items() []protocol.Instruction {
	out := make([]protocol.Instruction, h.size)
	for i := range h.size {
		out[i] = h.items[(h.start+i)%len(h.items)]
	}
	return out
}
