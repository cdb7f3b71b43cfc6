// ABOUTME: Pure navigation planning: turn sequences, headings for deltas and layer sweeps.
// ABOUTME: Nothing here touches a connection; the Controller executes the plans.

package turtle

import (
	"fmt"

	"github.com/2389/turtle-gateway/internal/protocol"
)

// Rotate returns the heading after one quarter turn.
func Rotate(d protocol.Direction, turn protocol.TurnDirection) protocol.Direction {
	if turn == protocol.Right {
		switch d {
		case protocol.North:
			return protocol.East
		case protocol.East:
			return protocol.South
		case protocol.South:
			return protocol.West
		case protocol.West:
			return protocol.North
		}
		return d
	}

	switch d {
	case protocol.North:
		return protocol.West
	case protocol.West:
		return protocol.South
	case protocol.South:
		return protocol.East
	case protocol.East:
		return protocol.North
	}
	return d
}

// isClockwiseStep reports whether target is one right turn from current.
func isClockwiseStep(current, target protocol.Direction) bool {
	return Rotate(current, protocol.Right) == target
}

// PlanTurns returns the turns that take current to target. The turn is
// chosen once from the starting heading: Right when the target is one step
// clockwise, Left otherwise. Reversals are always two Lefts.
func PlanTurns(current, target protocol.Direction) []protocol.TurnDirection {
	turn := protocol.Left
	if isClockwiseStep(current, target) {
		turn = protocol.Right
	}

	var turns []protocol.TurnDirection
	for d := current; d != target && len(turns) < 4; d = Rotate(d, turn) {
		turns = append(turns, turn)
	}
	return turns
}

// DirectionForDelta returns the heading that moves one block along a
// horizontal axis: +x East, -x West, +z South, -z North.
func DirectionForDelta(dx, dz int64) (protocol.Direction, bool) {
	switch {
	case dx > 0 && dz == 0:
		return protocol.East, true
	case dx < 0 && dz == 0:
		return protocol.West, true
	case dz > 0 && dx == 0:
		return protocol.South, true
	case dz < 0 && dx == 0:
		return protocol.North, true
	}
	return "", false
}

// sweepStep advances the layer-sweep cursor. The sweep walks rows along z
// and advances rows along x.
func sweepStep(p protocol.Position, d protocol.Direction) protocol.Position {
	switch d {
	case protocol.North:
		return p.Add(-1, 0, 0)
	case protocol.South:
		return p.Add(1, 0, 0)
	case protocol.East:
		return p.Add(0, 0, 1)
	case protocol.West:
		return p.Add(0, 0, -1)
	}
	return p
}

// MineLayer plans a boustrophedon sweep of one horizontal layer from start
// to end, beginning with heading dir. Each step is a MoveDirection
// instruction. The sweep stops before the step that would take x past
// end.x.
func MineLayer(dir protocol.Direction, start, end protocol.Position) ([]protocol.Instruction, error) {
	budget := (abs(end.X-start.X) + 2) * (abs(end.Z-start.Z) + 2)

	var plan []protocol.Instruction
	cursor := start
	for range budget {
		switch {
		case dir == protocol.East && cursor.Z == end.Z:
			dir = protocol.South
		case dir == protocol.South && cursor.X == end.X:
			dir = protocol.West
		case dir == protocol.West && cursor.Z == start.Z:
			dir = protocol.South
		case dir == protocol.South && cursor.X == start.X:
			dir = protocol.East
		}

		next := sweepStep(cursor, dir)
		if next.X > end.X {
			return plan, nil
		}
		plan = append(plan, protocol.MoveDirectionTo(dir))
		cursor = next
	}

	return nil, fmt.Errorf("%w: %s to %s facing %s", ErrSweepUnbounded, start, end, dir)
}

// MineRect plans a sweep of every layer between a.y and b.y inclusive.
// Each layer starts with a MovePoint to its corner followed by that
// layer's sweep. Every layer is planned from dir.
func MineRect(dir protocol.Direction, a, b protocol.Position) ([]protocol.Instruction, error) {
	var plan []protocol.Instruction
	for y := a.Y; y <= b.Y; y++ {
		start := protocol.Position{X: a.X, Y: y, Z: a.Z}
		end := protocol.Position{X: b.X, Y: y, Z: b.Z}

		layer, err := MineLayer(dir, start, end)
		if err != nil {
			return nil, fmt.Errorf("planning layer y=%d: %w", y, err)
		}
		plan = append(plan, protocol.MovePoint(start))
		plan = append(plan, layer...)
	}
	return plan, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
