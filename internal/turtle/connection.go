// ABOUTME: Command/response correlation over a turtle's bidirectional transport.
// ABOUTME: One command in flight at a time, matched by request id, bounded by a timeout.

package turtle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/turtle-gateway/internal/protocol"
)

// inboxSize bounds replies buffered between the transport reader and Send.
const inboxSize = 8

// Transport writes one encoded frame to a turtle.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, payload []byte) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Connection pairs a turtle with its transport and correlates each command
// with the reply that follows it.
type Connection struct {
	turtle    *Turtle
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger

	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	inFlight  atomic.Bool
}

// NewConnection creates a connection. A zero timeout waits until the
// context ends.
func NewConnection(t *Turtle, transport Transport, timeout time.Duration, logger *slog.Logger) *Connection {
	return &Connection{
		turtle:    t,
		transport: transport,
		timeout:   timeout,
		logger:    logger.With("turtle_id", t.ID()),
		inbox:     make(chan []byte, inboxSize),
		closed:    make(chan struct{}),
	}
}

// Turtle returns the state this connection updates.
func (c *Connection) Turtle() *Turtle { return c.turtle }

// Deliver hands an inbound frame to a waiting Send. It never blocks; the
// frame is dropped when the inbox is full or the connection is closed.
func (c *Connection) Deliver(payload []byte) bool {
	select {
	case <-c.closed:
		c.logger.Warn("dropping frame on closed connection")
		return false
	default:
	}

	select {
	case c.inbox <- payload:
		return true
	default:
		c.logger.Warn("inbox full, dropping frame", "bytes", len(payload))
		return false
	}
}

// Close marks the connection closed and wakes any waiting Send. Safe to
// call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// Send writes one command and waits for the turtle's reply, which is
// applied to the turtle state before returning.
func (c *Connection) Send(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %s", ErrCommandInFlight, cmd)
	}
	defer c.inFlight.Store(false)

	select {
	case <-c.closed:
		return nil, fmt.Errorf("%w: connection closed before %s", ErrTransport, cmd)
	default:
	}

	c.drainStale()

	requestID := uuid.New().String()
	payload, err := json.Marshal(protocol.Envelope{Action: cmd, RequestID: requestID})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", cmd, err)
	}

	if err := c.transport.Send(ctx, payload); err != nil {
		return nil, fmt.Errorf("%w: sending %s: %w", ErrTransport, cmd, err)
	}

	waitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	for {
		select {
		case <-waitCtx.Done():
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrCommandTimeout, cmd)
			}
			return nil, fmt.Errorf("awaiting %s: %w", cmd, waitCtx.Err())

		case <-c.closed:
			return nil, fmt.Errorf("%w: connection closed awaiting %s", ErrTransport, cmd)

		case data := <-c.inbox:
			resp, err := protocol.DecodeResponse(data)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrResponseMalformed, err)
			}
			if resp.RequestID != "" && resp.RequestID != requestID {
				c.logger.Warn("discarding stale reply",
					"request_id", resp.RequestID,
					"awaiting", requestID,
				)
				continue
			}

			c.turtle.ApplyResponse(resp, time.Now())
			c.logger.Debug("command completed", "command", cmd.String(), "pos", resp.Pos.String(), "fuel", resp.Fuel)
			return resp, nil
		}
	}
}

// drainStale discards replies that arrived after their command gave up.
func (c *Connection) drainStale() {
	for {
		select {
		case data := <-c.inbox:
			c.logger.Debug("discarding late reply", "bytes", len(data))
		default:
			return
		}
	}
}
