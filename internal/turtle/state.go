// ABOUTME: Per-turtle mutable state guarded by a private mutex.
// ABOUTME: Readers receive deep-copied Snapshots; writers use short critical sections.

package turtle

import (
	"slices"
	"sync"
	"time"

	"github.com/2389/turtle-gateway/internal/protocol"
)

// Turtle is the coordinator's live view of one connected turtle. All
// methods are safe for concurrent use.
type Turtle struct {
	mu sync.Mutex

	id        int
	pos       protocol.Position
	direction protocol.Direction
	fuel      int64
	slots     []protocol.Slot
	blocks    []protocol.Block
	currGoal  protocol.Goal
	mainGoal  protocol.Goal
	queue     []protocol.Instruction
	history   *History
	visited   map[protocol.Position]struct{}
	order     []protocol.Position
	mineArea  []protocol.Position

	connected      bool
	connectedAt    time.Time
	disconnectedAt time.Time
	lastSeen       time.Time
}

// Snapshot is a point-in-time copy of a Turtle. It shares no memory with
// the live state.
type Snapshot struct {
	ID              int                    `json:"id"`
	Pos             protocol.Position      `json:"pos"`
	Direction       protocol.Direction     `json:"direction"`
	Fuel            int64                  `json:"fuel"`
	Slots           []protocol.Slot        `json:"slots"`
	Blocks          []protocol.Block       `json:"blocks"`
	CurrGoal        protocol.Goal          `json:"curr_goal"`
	MainGoal        protocol.Goal          `json:"main_goal"`
	ActionQueue     []protocol.Instruction `json:"action_queue"`
	ExecutedActions []protocol.Instruction `json:"executed_actions"`
	Visited         []protocol.Position    `json:"visited"`
	MineArea        []protocol.Position    `json:"mine_area"`
	NeedsDeposit    bool                   `json:"needs_deposit"`
	Connected       bool                   `json:"connected"`
	ConnectedAt     time.Time              `json:"connected_at"`
	DisconnectedAt  *time.Time             `json:"disconnected_at,omitempty"`
	LastSeen        time.Time              `json:"last_seen"`
}

// New creates a connected turtle facing North with an Idle goal.
func New(id, historyCapacity int) *Turtle {
	now := time.Now()
	return &Turtle{
		id:          id,
		direction:   protocol.North,
		currGoal:    protocol.Idle(),
		mainGoal:    protocol.Idle(),
		history:     NewHistory(historyCapacity),
		visited:     make(map[protocol.Position]struct{}),
		connected:   true,
		connectedAt: now,
		lastSeen:    now,
	}
}

// ID returns the turtle's registry id.
func (t *Turtle) ID() int { return t.id }

// Snapshot returns a deep copy of the current state.
func (t *Turtle) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ID:              t.id,
		Pos:             t.pos,
		Direction:       t.direction,
		Fuel:            t.fuel,
		Slots:           cloneSlots(t.slots),
		Blocks:          slices.Clone(t.blocks),
		CurrGoal:        t.currGoal,
		MainGoal:        t.mainGoal,
		ActionQueue:     slices.Clone(t.queue),
		ExecutedActions: t.history.Items(),
		Visited:         slices.Clone(t.order),
		MineArea:        slices.Clone(t.mineArea),
		Connected:       t.connected,
		ConnectedAt:     t.connectedAt,
		LastSeen:        t.lastSeen,
	}
	s.NeedsDeposit = s.needsDeposit()
	if !t.connected {
		at := t.disconnectedAt
		s.DisconnectedAt = &at
	}
	if s.ActionQueue == nil {
		s.ActionQueue = []protocol.Instruction{}
	}
	if s.Visited == nil {
		s.Visited = []protocol.Position{}
	}
	if s.MineArea == nil {
		s.MineArea = []protocol.Position{}
	}
	return s
}

func cloneSlots(in []protocol.Slot) []protocol.Slot {
	if in == nil {
		return nil
	}
	out := make([]protocol.Slot, len(in))
	for i, s := range in {
		out[i] = s
		if s.Item != nil {
			item := *s.Item
			out[i].Item = &item
		}
	}
	return out
}

// Position returns the last reported position.
func (t *Turtle) Position() protocol.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// Direction returns the dead-reckoned heading.
func (t *Turtle) Direction() protocol.Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.direction
}

// SetDirection overrides the dead-reckoned heading.
func (t *Turtle) SetDirection(d protocol.Direction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.direction = d
}

// BlockAt returns the last sensed reading in a direction.
func (t *Turtle) BlockAt(d protocol.MineDirection) (protocol.Block, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.blocks {
		if b.Direction == d {
			return b, true
		}
	}
	return protocol.Block{}, false
}

// Goal returns the current goal.
func (t *Turtle) Goal() protocol.Goal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currGoal
}

// SetGoal replaces the current goal, and the main goal too when main is set.
func (t *Turtle) SetGoal(g protocol.Goal, main bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currGoal = g
	if main {
		t.mainGoal = g
	}
}

// Enqueue appends an instruction to the back of the queue and returns the
// new queue length.
func (t *Turtle) Enqueue(instr protocol.Instruction) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, instr)
	return len(t.queue)
}

// ReplaceQueue discards queued instructions in favor of plan.
func (t *Turtle) ReplaceQueue(plan []protocol.Instruction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = slices.Clone(plan)
}

// PopInstruction removes and returns the front of the queue.
func (t *Turtle) PopInstruction() (protocol.Instruction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return protocol.Instruction{}, false
	}
	instr := t.queue[0]
	t.queue[0] = protocol.Instruction{}
	t.queue = t.queue[1:]
	return instr, true
}

// QueueLen returns the number of pending instructions.
func (t *Turtle) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// PushHistory records an executed instruction.
func (t *Turtle) PushHistory(instr protocol.Instruction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history.Push(instr)
}

// SetMineArea records the corners of the last planned rectangle.
func (t *Turtle) SetMineArea(a, b protocol.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mineArea = []protocol.Position{a, b}
}

// ApplyResponse mirrors a turtle report into the state.
func (t *Turtle) ApplyResponse(resp *protocol.Response, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fuel = resp.Fuel
	t.blocks = slices.Clone(resp.Blocks)
	t.slots = cloneSlots(resp.Slots)
	t.pos = resp.Pos
	if _, seen := t.visited[resp.Pos]; !seen {
		t.visited[resp.Pos] = struct{}{}
		t.order = append(t.order, resp.Pos)
	}
	t.lastSeen = at
}

// MarkDisconnected flags the turtle as no longer connected.
func (t *Turtle) MarkDisconnected(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	t.connected = false
	t.disconnectedAt = at
}

// Connected reports whether the turtle's connection is live.
func (t *Turtle) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// FuelSlot returns the first slot holding one of the named fuel items.
func (s Snapshot) FuelSlot(fuelItems []string) (protocol.Slot, bool) {
	for _, slot := range s.Slots {
		if slot.Item != nil && slices.Contains(fuelItems, slot.Item.Name) {
			return slot, true
		}
	}
	return protocol.Slot{}, false
}

// needsDeposit reports whether the inventory is close enough to full that
// the turtle should unload: free space under a quarter of the items held,
// or every slot occupied. Turtles already refueling or depositing never
// need to.
func (s Snapshot) needsDeposit() bool {
	if s.CurrGoal.Kind == protocol.GoalRefuel || s.CurrGoal.Kind == protocol.GoalDeposit {
		return false
	}

	var free, held int64
	occupied := 0
	for _, slot := range s.Slots {
		free += slot.Space
		if slot.Item != nil {
			held += slot.Item.Count
			occupied++
		}
	}
	if occupied >= 16 {
		return true
	}
	return held > 0 && float64(free)/float64(held) < 0.25
}
