// ABOUTME: Lattice and orientation value types shared by the turtle wire protocol.
// ABOUTME: Position, cardinal and relative directions, turn directions and materials.

package protocol

import "fmt"

// Position is a point on the unbounded integer lattice.
type Position struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// Add returns p shifted by the given deltas.
func (p Position) Add(dx, dy, dz int64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// Direction is a cardinal heading. Turtles have no vertical orientation.
type Direction string

const (
	North Direction = "North"
	South Direction = "South"
	East  Direction = "East"
	West  Direction = "West"
)

// Valid reports whether d is one of the four cardinal directions.
func (d Direction) Valid() bool {
	switch d {
	case North, South, East, West:
		return true
	}
	return false
}

// MoveDirection is a movement relative to the turtle's heading.
type MoveDirection string

const (
	Forward  MoveDirection = "Forward"
	Backward MoveDirection = "Backward"
	Up       MoveDirection = "Up"
	Down     MoveDirection = "Down"
)

// Valid reports whether m is a known relative movement.
func (m MoveDirection) Valid() bool {
	switch m {
	case Forward, Backward, Up, Down:
		return true
	}
	return false
}

// Sense returns the sensing direction matching a movement. Backward has
// no sensor and reports false.
func (m MoveDirection) Sense() (MineDirection, bool) {
	switch m {
	case Forward:
		return MineForward, true
	case Up:
		return MineUp, true
	case Down:
		return MineDown, true
	}
	return "", false
}

// Reverse returns the opposite movement.
func (m MoveDirection) Reverse() MoveDirection {
	switch m {
	case Forward:
		return Backward
	case Backward:
		return Forward
	case Up:
		return Down
	case Down:
		return Up
	}
	return m
}

// MineDirection is a direction a turtle can dig or sense in.
type MineDirection string

const (
	MineForward MineDirection = "Forward"
	MineUp      MineDirection = "Up"
	MineDown    MineDirection = "Down"
)

// Valid reports whether m is a known sensing direction.
func (m MineDirection) Valid() bool {
	switch m {
	case MineForward, MineUp, MineDown:
		return true
	}
	return false
}

// TurnDirection is a quarter turn.
type TurnDirection string

const (
	Left  TurnDirection = "Left"
	Right TurnDirection = "Right"
)

// Valid reports whether t is Left or Right.
func (t TurnDirection) Valid() bool {
	return t == Left || t == Right
}

// ChestAction is an interaction with an adjacent chest.
type ChestAction string

const (
	ChestDeposit ChestAction = "Deposit"
)

// Material names an ore a Mine goal targets.
type Material string

const (
	Coal    Material = "Coal"
	Diamond Material = "Diamond"
)

// Level is the y level the material is most commonly found at.
func (m Material) Level() int64 {
	switch m {
	case Coal:
		return 50
	case Diamond:
		return -53
	}
	return 0
}

// Valid reports whether m is a known material.
func (m Material) Valid() bool {
	return m == Coal || m == Diamond
}
