package turtle

import (
	"context"
	"log/slog"
	"testing"

	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/simturtle"
)

// simTransport answers every frame with a simulated turtle's reply.
type simTransport struct {
	sim  *simturtle.Turtle
	conn *Connection
}

func (s *simTransport) Send(ctx context.Context, payload []byte) error {
	reply, err := s.sim.HandleFrame(payload)
	if err != nil {
		return err
	}
	s.conn.Deliver(reply)
	return nil
}

type harness struct {
	turtle *Turtle
	conn   *Connection
	ctrl   *Controller
	sim    *simturtle.Turtle
	world  *simturtle.World
}

// newHarness wires a controller to a simulated turtle. The local heading
// starts in agreement with the simulated one.
func newHarness(t *testing.T, world *simturtle.World, opts simturtle.Options) *harness {
	t.Helper()
	if opts.Facing == "" {
		opts.Facing = protocol.North
	}
	if opts.Fuel == 0 {
		opts.Fuel = 1000
	}

	sim := simturtle.NewTurtle(world, opts)
	tr := &simTransport{sim: sim}
	turtle := New(1, 10)
	turtle.SetDirection(opts.Facing)
	conn := NewConnection(turtle, tr, 0, slog.Default())
	tr.conn = conn
	t.Cleanup(conn.Close)

	h := &harness{
		turtle: turtle,
		conn:   conn,
		ctrl:   NewController(conn, 0, slog.Default()),
		sim:    sim,
		world:  world,
	}
	return h
}

// sync sends Info so the local state mirrors the simulated turtle.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Info(context.Background()); err != nil {
		t.Fatalf("Info() error = %v", err)
	}
}

func countKind(cmds []protocol.Command, kind protocol.CommandKind) int {
	n := 0
	for _, c := range cmds {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
