// ABOUTME: High-level instructions operators queue and the goals a turtle pursues.
// ABOUTME: Both encode as externally tagged unions, matching the dashboard client.

package protocol

import (
	"fmt"
	"strconv"
)

// InstructionKind identifies a queued instruction variant.
type InstructionKind string

const (
	InstrMoveAndMine    InstructionKind = "MoveAndMine"
	InstrMoveDirection  InstructionKind = "MoveDirection"
	InstrMoveAndMineLen InstructionKind = "MoveAndMineLen"
	InstrMovePoint      InstructionKind = "MovePoint"
	InstrTurn           InstructionKind = "Turn"
	InstrTurnToward     InstructionKind = "TurnToward"
	InstrNothing        InstructionKind = "Nothing"
)

// Instruction is a high-level action awaiting expansion into primitives.
// Only the field matching Kind is meaningful.
type Instruction struct {
	Kind      InstructionKind
	Move      MoveDirection // MoveAndMine
	Direction Direction     // MoveDirection, TurnToward
	Length    int64         // MoveAndMineLen
	Point     Position      // MovePoint
	Turn      TurnDirection // Turn
}

// MoveAndMine mines (if needed) and moves one block in a relative direction.
func MoveAndMine(d MoveDirection) Instruction {
	return Instruction{Kind: InstrMoveAndMine, Move: d}
}

// MoveDirectionTo faces a cardinal direction and mines/moves one block.
func MoveDirectionTo(d Direction) Instruction {
	return Instruction{Kind: InstrMoveDirection, Direction: d}
}

// MoveAndMineLen mines/moves forward n blocks.
func MoveAndMineLen(n int64) Instruction {
	return Instruction{Kind: InstrMoveAndMineLen, Length: n}
}

// MovePoint walks to a target position.
func MovePoint(p Position) Instruction {
	return Instruction{Kind: InstrMovePoint, Point: p}
}

// TurnInstr turns once.
func TurnInstr(t TurnDirection) Instruction {
	return Instruction{Kind: InstrTurn, Turn: t}
}

// TurnToward faces a cardinal direction.
func TurnToward(d Direction) Instruction {
	return Instruction{Kind: InstrTurnToward, Direction: d}
}

// Nothing is the empty instruction.
func Nothing() Instruction {
	return Instruction{Kind: InstrNothing}
}

func (i Instruction) String() string {
	switch i.Kind {
	case InstrMoveAndMine:
		return "MoveAndMine(" + string(i.Move) + ")"
	case InstrMoveDirection:
		return "MoveDirection(" + string(i.Direction) + ")"
	case InstrMoveAndMineLen:
		return "MoveAndMineLen(" + strconv.FormatInt(i.Length, 10) + ")"
	case InstrMovePoint:
		return "MovePoint" + i.Point.String()
	case InstrTurn:
		return "Turn(" + string(i.Turn) + ")"
	case InstrTurnToward:
		return "TurnToward(" + string(i.Direction) + ")"
	}
	return string(i.Kind)
}

// MarshalJSON encodes the instruction as an externally tagged union.
func (i Instruction) MarshalJSON() ([]byte, error) {
	switch i.Kind {
	case InstrMoveAndMine:
		return marshalTagged(string(i.Kind), i.Move)
	case InstrMoveDirection, InstrTurnToward:
		return marshalTagged(string(i.Kind), i.Direction)
	case InstrMoveAndMineLen:
		return marshalTagged(string(i.Kind), i.Length)
	case InstrMovePoint:
		return marshalTagged(string(i.Kind), i.Point)
	case InstrTurn:
		return marshalTagged(string(i.Kind), i.Turn)
	case InstrNothing:
		return marshalTagged(string(i.Kind), nil)
	}
	return nil, fmt.Errorf("unknown instruction kind %q", i.Kind)
}

// UnmarshalJSON decodes an externally tagged instruction and validates
// its payload.
func (i *Instruction) UnmarshalJSON(data []byte) error {
	tag, payload, err := unmarshalTagged(data)
	if err != nil {
		return fmt.Errorf("decoding instruction: %w", err)
	}

	out := Instruction{Kind: InstructionKind(tag)}
	switch out.Kind {
	case InstrNothing:
	case InstrMoveAndMine:
		if err = decodePayload(tag, payload, &out.Move); err == nil && !out.Move.Valid() {
			err = fmt.Errorf("invalid move direction %q", out.Move)
		}
	case InstrMoveDirection, InstrTurnToward:
		if err = decodePayload(tag, payload, &out.Direction); err == nil && !out.Direction.Valid() {
			err = fmt.Errorf("invalid direction %q", out.Direction)
		}
	case InstrMoveAndMineLen:
		if err = decodePayload(tag, payload, &out.Length); err == nil && out.Length < 0 {
			err = fmt.Errorf("negative length %d", out.Length)
		}
	case InstrMovePoint:
		err = decodePayload(tag, payload, &out.Point)
	case InstrTurn:
		if err = decodePayload(tag, payload, &out.Turn); err == nil && !out.Turn.Valid() {
			err = fmt.Errorf("invalid turn direction %q", out.Turn)
		}
	default:
		return fmt.Errorf("unknown instruction %q", tag)
	}
	if err != nil {
		return err
	}

	*i = out
	return nil
}

// GoalKind identifies a turtle's operating mode.
type GoalKind string

const (
	GoalIdle    GoalKind = "Idle"
	GoalRefuel  GoalKind = "Refuel"
	GoalDeposit GoalKind = "Deposit"
	GoalMine    GoalKind = "Mine"
)

// Goal is a turtle's high-level operating mode. Material is set only for
// Mine goals.
type Goal struct {
	Kind     GoalKind
	Material Material
}

// Idle is the default goal.
func Idle() Goal { return Goal{Kind: GoalIdle} }

func (g Goal) String() string {
	if g.Kind == GoalMine {
		return "Mine(" + string(g.Material) + ")"
	}
	return string(g.Kind)
}

// MarshalJSON encodes the goal as an externally tagged union.
func (g Goal) MarshalJSON() ([]byte, error) {
	switch g.Kind {
	case GoalIdle, GoalRefuel, GoalDeposit:
		return marshalTagged(string(g.Kind), nil)
	case GoalMine:
		return marshalTagged(string(g.Kind), g.Material)
	case "":
		return marshalTagged(string(GoalIdle), nil)
	}
	return nil, fmt.Errorf("unknown goal kind %q", g.Kind)
}

// UnmarshalJSON decodes an externally tagged goal.
func (g *Goal) UnmarshalJSON(data []byte) error {
	tag, payload, err := unmarshalTagged(data)
	if err != nil {
		return fmt.Errorf("decoding goal: %w", err)
	}

	out := Goal{Kind: GoalKind(tag)}
	switch out.Kind {
	case GoalIdle, GoalRefuel, GoalDeposit:
	case GoalMine:
		if err := decodePayload(tag, payload, &out.Material); err != nil {
			return err
		}
		if !out.Material.Valid() {
			return fmt.Errorf("unknown material %q", out.Material)
		}
	default:
		return fmt.Errorf("unknown goal %q", tag)
	}

	*g = out
	return nil
}
