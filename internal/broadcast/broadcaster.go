// ABOUTME: Periodic snapshot of every turtle published to dashboard subscribers
// ABOUTME: Read-only toward turtle state; frames are encoded once per tick

package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/turtle-gateway/internal/turtle"
)

// DefaultInterval is the dashboard refresh period.
const DefaultInterval = 100 * time.Millisecond

// SnapshotSource supplies the turtles to broadcast.
type SnapshotSource interface {
	Snapshots() []turtle.Snapshot
}

// FrameSink receives every encoded frame, e.g. a recorder.
type FrameSink interface {
	WriteFrame(frame []byte) error
}

// Broadcaster snapshots a source on a ticker and fans frames out through
// a Hub.
type Broadcaster struct {
	source   SnapshotSource
	hub      *Hub
	interval time.Duration
	sinks    []FrameSink
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster. A non-positive interval uses
// DefaultInterval.
func NewBroadcaster(source SnapshotSource, hub *Hub, interval time.Duration, logger *slog.Logger, sinks ...FrameSink) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Broadcaster{
		source:   source,
		hub:      hub,
		interval: interval,
		sinks:    sinks,
		logger:   logger.With("component", "broadcaster"),
	}
}

// Run publishes a frame every interval until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("broadcaster started", "interval", b.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if b.hub.Len() == 0 && len(b.sinks) == 0 {
				continue
			}
			if err := b.Tick(); err != nil {
				b.logger.Warn("broadcast tick failed", "error", err)
			}
		}
	}
}

// Tick encodes the current snapshots and publishes them once.
func (b *Broadcaster) Tick() error {
	frame, err := EncodeFrame(b.source.Snapshots())
	if err != nil {
		return err
	}

	b.hub.Publish(frame)
	for _, sink := range b.sinks {
		if err := sink.WriteFrame(frame); err != nil {
			b.logger.Warn("frame sink failed", "error", err)
		}
	}
	return nil
}

// EncodeFrame renders snapshots as the dashboard's JSON array.
func EncodeFrame(snaps []turtle.Snapshot) ([]byte, error) {
	if snaps == nil {
		snaps = []turtle.Snapshot{}
	}
	frame, err := json.Marshal(snaps)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshots: %w", err)
	}
	return frame, nil
}
