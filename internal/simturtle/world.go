// ABOUTME: In-process block world and turtle that answer gateway commands.
// ABOUTME: Used by tests and the fake-turtle binary in place of a real game client.

package simturtle

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/2389/turtle-gateway/internal/protocol"
)

// World is a sparse map of solid blocks. Unset positions are air.
type World struct {
	mu     sync.Mutex
	blocks map[protocol.Position]string
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{blocks: make(map[protocol.Position]string)}
}

// Set places a block. An empty name clears it.
func (w *World) Set(p protocol.Position, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if name == "" {
		delete(w.blocks, p)
		return
	}
	w.blocks[p] = name
}

// Fill places the same block over the box between a and b inclusive.
func (w *World) Fill(a, b protocol.Position, name string) {
	for x := min(a.X, b.X); x <= max(a.X, b.X); x++ {
		for y := min(a.Y, b.Y); y <= max(a.Y, b.Y); y++ {
			for z := min(a.Z, b.Z); z <= max(a.Z, b.Z); z++ {
				w.Set(protocol.Position{X: x, Y: y, Z: z}, name)
			}
		}
	}
}

// Block returns the block at p.
func (w *World) Block(p protocol.Position) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	name, ok := w.blocks[p]
	return name, ok
}

// take removes and returns the block at p.
func (w *World) take(p protocol.Position) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	name, ok := w.blocks[p]
	if ok {
		delete(w.blocks, p)
	}
	return name, ok
}

// Unbreakable names blocks that Mine leaves in place.
var Unbreakable = map[string]bool{"minecraft:bedrock": true}

const (
	slotCount    = 16
	stackSize    = 64
	fuelPerItem  = 80
	moveFuelCost = 1
)

var fuelItems = map[string]bool{"minecraft:coal": true, "minecraft:charcoal": true}

// Options configures a simulated turtle.
type Options struct {
	Pos    protocol.Position
	Facing protocol.Direction
	Fuel   int64
	// SkipRequestID makes the turtle omit the correlation id from replies,
	// like older turtle scripts.
	SkipRequestID bool
}

// Turtle is a simulated turtle living in a World. It is safe for
// concurrent use.
type Turtle struct {
	mu       sync.Mutex
	world    *World
	pos      protocol.Position
	facing   protocol.Direction
	fuel     int64
	slots    [slotCount]*protocol.Item
	selected int
	skipID   bool
	commands []protocol.Command
}

// NewTurtle places a turtle in w.
func NewTurtle(w *World, opts Options) *Turtle {
	if opts.Facing == "" {
		opts.Facing = protocol.North
	}
	return &Turtle{
		world:  w,
		pos:    opts.Pos,
		facing: opts.Facing,
		fuel:   opts.Fuel,
		skipID: opts.SkipRequestID,
	}
}

// Give adds items to the first slot that can hold them.
func (t *Turtle) Give(name string, count int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store(name, count)
}

// Pos returns the turtle's true position.
func (t *Turtle) Pos() protocol.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// Facing returns the turtle's true heading.
func (t *Turtle) Facing() protocol.Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.facing
}

// Fuel returns the remaining fuel.
func (t *Turtle) Fuel() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fuel
}

// Commands returns every command handled so far.
func (t *Turtle) Commands() []protocol.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Command(nil), t.commands...)
}

// HandleFrame decodes one gateway envelope, applies it and returns the
// encoded reply.
func (t *Turtle) HandleFrame(frame []byte) ([]byte, error) {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	resp := t.Handle(env.Action)
	if !t.skipID {
		resp.RequestID = env.RequestID
	}
	return json.Marshal(resp)
}

// Handle applies one command and returns the turtle's report.
func (t *Turtle) Handle(cmd protocol.Command) protocol.Response {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.commands = append(t.commands, cmd)
	switch cmd.Kind {
	case protocol.CommandMove:
		t.move(cmd.Move)
	case protocol.CommandTurn:
		t.turn(cmd.Turn)
	case protocol.CommandMine:
		t.mine(cmd.Mine)
	case protocol.CommandRefuel:
		t.refuel()
	case protocol.CommandSlot:
		if cmd.Slot.Name == "Select" && len(cmd.Slot.Args) == 1 {
			if id := cmd.Slot.Args[0]; id >= 1 && id <= slotCount {
				t.selected = int(id - 1)
			}
		}
	case protocol.CommandChest:
		if cmd.Chest == protocol.ChestDeposit {
			t.slots = [slotCount]*protocol.Item{}
		}
	}
	return t.report()
}

func (t *Turtle) ahead() protocol.Position {
	switch t.facing {
	case protocol.North:
		return t.pos.Add(0, 0, -1)
	case protocol.South:
		return t.pos.Add(0, 0, 1)
	case protocol.East:
		return t.pos.Add(1, 0, 0)
	case protocol.West:
		return t.pos.Add(-1, 0, 0)
	}
	return t.pos
}

func (t *Turtle) target(dir protocol.MoveDirection) protocol.Position {
	switch dir {
	case protocol.Forward:
		return t.ahead()
	case protocol.Backward:
		ahead := t.ahead()
		return protocol.Position{X: 2*t.pos.X - ahead.X, Y: t.pos.Y, Z: 2*t.pos.Z - ahead.Z}
	case protocol.Up:
		return t.pos.Add(0, 1, 0)
	case protocol.Down:
		return t.pos.Add(0, -1, 0)
	}
	return t.pos
}

func (t *Turtle) sensed(dir protocol.MineDirection) protocol.Position {
	switch dir {
	case protocol.MineUp:
		return t.pos.Add(0, 1, 0)
	case protocol.MineDown:
		return t.pos.Add(0, -1, 0)
	}
	return t.ahead()
}

func (t *Turtle) move(dir protocol.MoveDirection) {
	if t.fuel < moveFuelCost {
		return
	}
	next := t.target(dir)
	if _, solid := t.world.Block(next); solid {
		return
	}
	t.pos = next
	t.fuel -= moveFuelCost
}

func (t *Turtle) turn(turn protocol.TurnDirection) {
	order := []protocol.Direction{protocol.North, protocol.East, protocol.South, protocol.West}
	for i, d := range order {
		if d != t.facing {
			continue
		}
		if turn == protocol.Right {
			t.facing = order[(i+1)%4]
		} else {
			t.facing = order[(i+3)%4]
		}
		return
	}
}

func (t *Turtle) mine(dir protocol.MineDirection) {
	p := t.sensed(dir)
	if name, ok := t.world.Block(p); !ok || Unbreakable[name] {
		return
	}
	if name, ok := t.world.take(p); ok {
		t.store(name, 1)
	}
}

func (t *Turtle) refuel() {
	item := t.slots[t.selected]
	if item == nil || !fuelItems[item.Name] {
		return
	}
	t.fuel += item.Count * fuelPerItem
	t.slots[t.selected] = nil
}

func (t *Turtle) store(name string, count int64) {
	for i := range t.slots {
		if count == 0 {
			return
		}
		if s := t.slots[i]; s != nil && s.Name == name && s.Count < stackSize {
			n := min(count, stackSize-s.Count)
			s.Count += n
			count -= n
		}
	}
	for i := range t.slots {
		if count == 0 {
			return
		}
		if t.slots[i] == nil {
			n := min(count, stackSize)
			t.slots[i] = &protocol.Item{Name: name, Count: n}
			count -= n
		}
	}
}

func (t *Turtle) report() protocol.Response {
	resp := protocol.Response{
		Fuel:   t.fuel,
		Pos:    t.pos,
		Slots:  make([]protocol.Slot, slotCount),
		Blocks: make([]protocol.Block, 0, 3),
	}
	for i, item := range t.slots {
		slot := protocol.Slot{ID: int64(i + 1), Space: stackSize}
		if item != nil {
			cp := *item
			slot.Item = &cp
			slot.Space = stackSize - item.Count
		}
		resp.Slots[i] = slot
	}
	for _, d := range []protocol.MineDirection{protocol.MineForward, protocol.MineUp, protocol.MineDown} {
		name, ok := t.world.Block(t.sensed(d))
		resp.Blocks = append(resp.Blocks, protocol.Block{Direction: d, Exists: ok, Name: name})
	}
	return resp
}
