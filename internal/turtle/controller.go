// ABOUTME: Executes planned navigation against a live turtle connection.
// ABOUTME: Expands queued instructions into primitive commands sent one at a time.

package turtle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/turtle-gateway/internal/protocol"
)

// Controller drives a single turtle. It is the only caller of its
// connection's Send and must not be shared between goroutines.
type Controller struct {
	conn            *Connection
	turtle          *Turtle
	maxMoveAttempts int
	logger          *slog.Logger
}

// NewController creates a controller. A positive maxMoveAttempts bounds
// how many times a mining move retries before giving up.
func NewController(conn *Connection, maxMoveAttempts int, logger *slog.Logger) *Controller {
	return &Controller{
		conn:            conn,
		turtle:          conn.Turtle(),
		maxMoveAttempts: maxMoveAttempts,
		logger:          logger.With("component", "controller", "turtle_id", conn.Turtle().ID()),
	}
}

// Turtle returns the controlled turtle's state.
func (c *Controller) Turtle() *Turtle { return c.turtle }

// Info asks the turtle for a fresh state report.
func (c *Controller) Info(ctx context.Context) error {
	_, err := c.conn.Send(ctx, protocol.Info())
	return err
}

// Refuel tells the turtle to burn fuel from its selected slot.
func (c *Controller) Refuel(ctx context.Context) error {
	_, err := c.conn.Send(ctx, protocol.Refuel())
	return err
}

// Select selects an inventory slot.
func (c *Controller) Select(ctx context.Context, slot int64) error {
	_, err := c.conn.Send(ctx, protocol.Select(slot))
	return err
}

// Turn updates the dead-reckoned heading, then turns the turtle.
func (c *Controller) Turn(ctx context.Context, turn protocol.TurnDirection) error {
	c.turtle.SetDirection(Rotate(c.turtle.Direction(), turn))
	_, err := c.conn.Send(ctx, protocol.Turn(turn))
	return err
}

// TurnTowards turns until the turtle faces target.
func (c *Controller) TurnTowards(ctx context.Context, target protocol.Direction) error {
	for _, turn := range PlanTurns(c.turtle.Direction(), target) {
		if err := c.Turn(ctx, turn); err != nil {
			return err
		}
	}
	return nil
}

// MoveTurtle sends a single raw move without mining.
func (c *Controller) MoveTurtle(ctx context.Context, dir protocol.MoveDirection) error {
	_, err := c.conn.Send(ctx, protocol.Move(dir))
	return err
}

// MoveAndMineBlock moves one block in dir, mining first whenever the
// turtle senses a block in the way, and repeats until its reported
// position changes.
func (c *Controller) MoveAndMineBlock(ctx context.Context, dir protocol.MoveDirection) error {
	sense, ok := dir.Sense()
	if !ok {
		return fmt.Errorf("%w: mining move %s", ErrUnsupportedMotion, dir)
	}

	start := c.turtle.Position()
	for attempt := 1; ; attempt++ {
		if c.maxMoveAttempts > 0 && attempt > c.maxMoveAttempts {
			return fmt.Errorf("%w: %s from %s after %d attempts", ErrMoveBlocked, dir, start, c.maxMoveAttempts)
		}

		if block, ok := c.turtle.BlockAt(sense); ok && block.Exists {
			if _, err := c.conn.Send(ctx, protocol.Mine(sense)); err != nil {
				return err
			}
		}
		if _, err := c.conn.Send(ctx, protocol.Move(dir)); err != nil {
			return err
		}

		if c.turtle.Position() != start {
			return nil
		}
	}
}

// MoveBlocks performs n mining moves in dir.
func (c *Controller) MoveBlocks(ctx context.Context, dir protocol.MoveDirection, n int64) error {
	for range n {
		if err := c.MoveAndMineBlock(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// MovePoint walks to target, clearing blocks along the way. Deltas are
// taken once from the position at the start; the longest remaining axis
// is travelled first, ties going to z, then y, then x.
func (c *Controller) MovePoint(ctx context.Context, target protocol.Position) error {
	pos := c.turtle.Position()
	dx, dy, dz := target.X-pos.X, target.Y-pos.Y, target.Z-pos.Z

	if abs(dx)+abs(dy)+abs(dz) == 1 {
		if heading, ok := DirectionForDelta(dx, dz); ok {
			if err := c.TurnTowards(ctx, heading); err != nil {
				return err
			}
			return c.MoveAndMineBlock(ctx, protocol.Forward)
		}
		if dy > 0 {
			return c.MoveAndMineBlock(ctx, protocol.Up)
		}
		return c.MoveAndMineBlock(ctx, protocol.Down)
	}

	for {
		axis, dist := 'x', abs(dx)
		if abs(dy) >= dist {
			axis, dist = 'y', abs(dy)
		}
		if abs(dz) >= dist {
			axis, dist = 'z', abs(dz)
		}
		if dist == 0 {
			return nil
		}

		switch axis {
		case 'x':
			heading, _ := DirectionForDelta(dx, 0)
			if err := c.TurnTowards(ctx, heading); err != nil {
				return err
			}
			if err := c.MoveBlocks(ctx, protocol.Forward, dist); err != nil {
				return err
			}
			dx = 0
		case 'y':
			dir := protocol.Up
			if dy < 0 {
				dir = protocol.Down
			}
			if err := c.MoveBlocks(ctx, dir, dist); err != nil {
				return err
			}
			dy = 0
		case 'z':
			heading, _ := DirectionForDelta(0, dz)
			if err := c.TurnTowards(ctx, heading); err != nil {
				return err
			}
			if err := c.MoveBlocks(ctx, protocol.Forward, dist); err != nil {
				return err
			}
			dz = 0
		}
	}
}

// Execute expands one queued instruction into primitive commands.
func (c *Controller) Execute(ctx context.Context, instr protocol.Instruction) error {
	switch instr.Kind {
	case protocol.InstrTurn:
		return c.Turn(ctx, instr.Turn)
	case protocol.InstrMoveAndMineLen:
		return c.MoveBlocks(ctx, protocol.Forward, instr.Length)
	case protocol.InstrMoveDirection:
		if err := c.TurnTowards(ctx, instr.Direction); err != nil {
			return err
		}
		return c.MoveAndMineBlock(ctx, protocol.Forward)
	case protocol.InstrMovePoint:
		return c.MovePoint(ctx, instr.Point)
	case protocol.InstrTurnToward:
		return c.TurnTowards(ctx, instr.Direction)
	case protocol.InstrMoveAndMine:
		return c.MoveAndMineBlock(ctx, instr.Move)
	case protocol.InstrNothing:
		return nil
	}
	return fmt.Errorf("unknown instruction %q", instr.Kind)
}

// Calibrate establishes the turtle's heading. It clears the four
// surrounding blocks, then tries each heading in turn until a forward move
// decreases z, which means it faces North.
func (c *Controller) Calibrate(ctx context.Context) error {
	for range 4 {
		if _, err := c.conn.Send(ctx, protocol.Mine(protocol.MineForward)); err != nil {
			return err
		}
		if _, err := c.conn.Send(ctx, protocol.Turn(protocol.Right)); err != nil {
			return err
		}
	}

	start := c.turtle.Position()
	for range 4 {
		if err := c.MoveAndMineBlock(ctx, protocol.Forward); err != nil {
			return err
		}
		if c.turtle.Position().Z < start.Z {
			c.turtle.SetDirection(protocol.North)
			c.logger.Info("calibrated heading", "pos", c.turtle.Position().String())
			return nil
		}
		if err := c.MoveTurtle(ctx, protocol.Backward); err != nil {
			return err
		}
		if _, err := c.conn.Send(ctx, protocol.Turn(protocol.Right)); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: no heading decreased z from %s", ErrCalibrationFailed, start)
}

// PlanMineRect plans a sweep of the box between a and b from the turtle's
// current heading and replaces its queue with the plan.
func (c *Controller) PlanMineRect(a, b protocol.Position) ([]protocol.Instruction, error) {
	return PlanMineRect(c.turtle, a, b, c.logger)
}

// PlanMineRect plans a rectangle sweep for t and replaces its queue with
// the plan. The mine area is recorded for display.
func PlanMineRect(t *Turtle, a, b protocol.Position, logger *slog.Logger) ([]protocol.Instruction, error) {
	dir := t.Direction()
	plan, err := MineRect(dir, a, b)
	if err != nil {
		return nil, err
	}

	// Layers alternate their intended starting heading but are all
	// planned from the live heading.
	intended := dir
	for y := a.Y; y <= b.Y; y++ {
		logger.Debug("planned layer", "y", y, "intended_heading", intended, "planned_heading", dir)
		if intended == protocol.East {
			intended = protocol.West
		} else {
			intended = protocol.East
		}
	}

	t.ReplaceQueue(plan)
	t.SetMineArea(a, b)
	logger.Info("planned mine rect",
		"turtle_id", t.ID(),
		"from", a.String(),
		"to", b.String(),
		"instructions", len(plan),
	)
	return plan, nil
}
