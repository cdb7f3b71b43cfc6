// ABOUTME: In-memory fan-out of encoded dashboard frames to websocket subscribers
// ABOUTME: Slow subscribers drop frames instead of stalling the broadcaster

package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	// Frames are full snapshots, so only the latest few matter.
	subscriberBufferSize = 4
)

// Hub provides in-memory pub/sub for dashboard frames.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan []byte // subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]chan []byte),
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers a subscriber. Returns a channel that receives frames
// and a subscription ID for later unsubscription. The subscription is
// automatically cleaned up when ctx is cancelled. The channel is closed on
// unsubscription.
func (h *Hub) Subscribe(ctx context.Context) (<-chan []byte, string) {
	subID := uuid.New().String()
	ch := make(chan []byte, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	h.subscribers[subID] = ch
	total := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "sub_id", subID, "subscribers", total)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		h.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a frame to every subscriber and returns how many accepted
// it. Non-blocking: frames are dropped for subscribers whose channels are
// full.
func (h *Hub) Publish(frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, ch := range h.subscribers {
		select {
		case ch <- frame:
			delivered++
		default:
			h.logger.Debug("dropped frame for slow subscriber", "sub_id", id)
		}
	}
	return delivered
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, exists := h.subscribers[subID]
	if !exists {
		return
	}
	delete(h.subscribers, subID)
	close(ch)

	h.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subID, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, subID)
	}
	h.closed = true

	h.logger.Debug("hub closed")
}
