// ABOUTME: Ledger event recording with actor attribution from AuthContext
// ABOUTME: Shared instruction ingestion used by both the dashboard socket and the HTTP API

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/turtle-gateway/internal/auth"
	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/store"
)

// Ingestion errors
var (
	errUnknownTurtle      = errors.New("unknown turtle")
	errTurtleDisconnected = errors.New("turtle disconnected")
)

// actorFor names who is acting through a surface, e.g. "api:alice".
func actorFor(ctx context.Context, surface string) string {
	return surface + ":" + auth.FromContext(ctx).Actor()
}

// recordEvent saves a ledger event. Failures are logged and never reach the caller.
func (g *Gateway) recordEvent(ctx context.Context, event *store.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := g.store.AppendEvent(ctx, event); err != nil {
		g.logger.Warn("failed to record event",
			"turtle_id", event.TurtleID,
			"type", event.Type,
			"error", err,
		)
	}
}

// QueueResult reports the outcome of queuing one instruction.
type QueueResult struct {
	TurtleID  int    `json:"turtle_id"`
	QueueLen  int    `json:"queue_len"`
	Duplicate bool   `json:"duplicate,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// queueInstruction appends an instruction to a connected turtle's queue.
// A request id seen recently for the same turtle is acknowledged without
// queuing again.
func (g *Gateway) queueInstruction(ctx context.Context, turtleID int, instr protocol.Instruction, requestID, actor string) (QueueResult, error) {
	t, ok := g.registry.Lookup(turtleID)
	if !ok {
		return QueueResult{}, fmt.Errorf("%w: %d", errUnknownTurtle, turtleID)
	}
	if !t.Connected() {
		return QueueResult{}, fmt.Errorf("%w: %d", errTurtleDisconnected, turtleID)
	}

	result := QueueResult{TurtleID: turtleID, RequestID: requestID}
	if g.dedupe.CheckAndMark(turtleID, requestID) {
		g.logger.Debug("duplicate instruction ignored", "turtle_id", turtleID, "request_id", requestID)
		result.Duplicate = true
		result.QueueLen = t.QueueLen()
		return result, nil
	}

	result.QueueLen = t.Enqueue(instr)
	g.logger.Info("instruction queued",
		"turtle_id", turtleID,
		"instruction", instr.String(),
		"queue_len", result.QueueLen,
		"actor", actor,
	)
	g.recordEvent(ctx, &store.Event{
		TurtleID: turtleID,
		Type:     store.EventTypeInstructionQueued,
		Subject:  instr.String(),
		Detail:   requestID,
		Actor:    actor,
	})
	return result, nil
}
