// ABOUTME: Primitive commands sent from the gateway to a turtle.
// ABOUTME: Command is a tagged union; Envelope adds the correlation request id.

package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CommandKind identifies a primitive command variant.
type CommandKind string

const (
	CommandMove     CommandKind = "Move"
	CommandTurn     CommandKind = "Turn"
	CommandMine     CommandKind = "Mine"
	CommandRefuel   CommandKind = "Refuel"
	CommandInteract CommandKind = "Interact"
	CommandChest    CommandKind = "Chest"
	CommandSlot     CommandKind = "Slot"
	CommandInfo     CommandKind = "Info"
)

// SlotAction is a named inventory operation with integer arguments.
type SlotAction struct {
	Name string  `json:"name"`
	Args []int64 `json:"args"`
}

// Command is one primitive the turtle executes. Only the field matching
// Kind is meaningful.
type Command struct {
	Kind  CommandKind
	Move  MoveDirection
	Turn  TurnDirection
	Mine  MineDirection
	Chest ChestAction
	Slot  SlotAction
}

// Move builds a Move command.
func Move(d MoveDirection) Command { return Command{Kind: CommandMove, Move: d} }

// Turn builds a Turn command.
func Turn(t TurnDirection) Command { return Command{Kind: CommandTurn, Turn: t} }

// Mine builds a Mine command.
func Mine(d MineDirection) Command { return Command{Kind: CommandMine, Mine: d} }

// Refuel builds a Refuel command.
func Refuel() Command { return Command{Kind: CommandRefuel} }

// Interact builds an Interact command.
func Interact() Command { return Command{Kind: CommandInteract} }

// Chest builds a Chest command.
func Chest(a ChestAction) Command { return Command{Kind: CommandChest, Chest: a} }

// Select builds the Slot command that selects an inventory slot.
func Select(slot int64) Command {
	return Command{Kind: CommandSlot, Slot: SlotAction{Name: "Select", Args: []int64{slot}}}
}

// Info builds an Info command, used purely to refresh state.
func Info() Command { return Command{Kind: CommandInfo} }

func (c Command) String() string {
	switch c.Kind {
	case CommandMove:
		return "Move(" + string(c.Move) + ")"
	case CommandTurn:
		return "Turn(" + string(c.Turn) + ")"
	case CommandMine:
		return "Mine(" + string(c.Mine) + ")"
	case CommandChest:
		return "Chest(" + string(c.Chest) + ")"
	case CommandSlot:
		args := make([]string, len(c.Slot.Args))
		for i, a := range c.Slot.Args {
			args[i] = strconv.FormatInt(a, 10)
		}
		return "Slot(" + c.Slot.Name + " " + strings.Join(args, ",") + ")"
	}
	return string(c.Kind)
}

// MarshalJSON encodes the command as an externally tagged union.
func (c Command) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CommandMove:
		return marshalTagged(string(c.Kind), c.Move)
	case CommandTurn:
		return marshalTagged(string(c.Kind), c.Turn)
	case CommandMine:
		return marshalTagged(string(c.Kind), c.Mine)
	case CommandChest:
		return marshalTagged(string(c.Kind), c.Chest)
	case CommandSlot:
		slot := c.Slot
		if slot.Args == nil {
			slot.Args = []int64{}
		}
		return marshalTagged(string(c.Kind), slot)
	case CommandRefuel, CommandInteract, CommandInfo:
		return marshalTagged(string(c.Kind), nil)
	}
	return nil, fmt.Errorf("unknown command kind %q", c.Kind)
}

// UnmarshalJSON decodes an externally tagged command.
func (c *Command) UnmarshalJSON(data []byte) error {
	tag, payload, err := unmarshalTagged(data)
	if err != nil {
		return fmt.Errorf("decoding command: %w", err)
	}

	out := Command{Kind: CommandKind(tag)}
	switch out.Kind {
	case CommandRefuel, CommandInteract, CommandInfo:
	case CommandMove:
		err = decodePayload(tag, payload, &out.Move)
	case CommandTurn:
		err = decodePayload(tag, payload, &out.Turn)
	case CommandMine:
		err = decodePayload(tag, payload, &out.Mine)
	case CommandChest:
		err = decodePayload(tag, payload, &out.Chest)
	case CommandSlot:
		err = decodePayload(tag, payload, &out.Slot)
	default:
		return fmt.Errorf("unknown command %q", tag)
	}
	if err != nil {
		return err
	}

	*c = out
	return nil
}

func decodePayload(tag string, payload json.RawMessage, v any) error {
	if err := requirePayload(tag, payload); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", tag, err)
	}
	return nil
}

// Envelope is the frame written to a turtle. RequestID lets turtles that
// echo it have their replies matched to the command that caused them.
type Envelope struct {
	Action    Command `json:"action"`
	RequestID string  `json:"requestId,omitempty"`
}
