package turtle

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/simturtle"
)

func TestController_TurnUpdatesHeadingFirst(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{Facing: protocol.North})
	ctx := context.Background()

	require.NoError(t, h.ctrl.Turn(ctx, protocol.Right))
	assert.Equal(t, protocol.East, h.turtle.Direction())
	assert.Equal(t, protocol.East, h.sim.Facing())

	require.NoError(t, h.ctrl.TurnTowards(ctx, protocol.West))
	assert.Equal(t, protocol.West, h.turtle.Direction())
	assert.Equal(t, protocol.West, h.sim.Facing())
	assert.Len(t, h.sim.Commands(), 3)
}

func TestController_MovePointDistanceOne(t *testing.T) {
	targets := []protocol.Position{
		{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
	}

	for _, facing := range allDirections {
		for _, target := range targets {
			t.Run(string(facing)+target.String(), func(t *testing.T) {
				world := simturtle.NewWorld()
				world.Set(target, "minecraft:stone")
				h := newHarness(t, world, simturtle.Options{Facing: facing})
				h.sync(t)
				before := len(h.sim.Commands())

				require.NoError(t, h.ctrl.MovePoint(context.Background(), target))

				cmds := h.sim.Commands()[before:]
				assert.LessOrEqual(t, countKind(cmds, protocol.CommandTurn), 2)
				assert.Equal(t, 1, countKind(cmds, protocol.CommandMove), "exactly one mining move")
				assert.Equal(t, 1, countKind(cmds, protocol.CommandMine))
				assert.Equal(t, target, h.sim.Pos())
				assert.Equal(t, target, h.turtle.Position())
				assert.Equal(t, h.sim.Facing(), h.turtle.Direction())
			})
		}
	}
}

func TestController_MovePointAdjacentClockwiseIsOneTurn(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{Facing: protocol.North})
	h.sync(t)

	require.NoError(t, h.ctrl.MovePoint(context.Background(), protocol.Position{X: 1}))
	assert.Equal(t, 1, countKind(h.sim.Commands(), protocol.CommandTurn))
}

func TestController_MovePointToSelfIssuesNothing(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{Pos: protocol.Position{X: 4, Y: 5, Z: 6}})
	h.sync(t)
	before := len(h.sim.Commands())

	require.NoError(t, h.ctrl.MovePoint(context.Background(), protocol.Position{X: 4, Y: 5, Z: 6}))
	assert.Len(t, h.sim.Commands(), before)
}

func TestController_MovePointThroughStone(t *testing.T) {
	world := simturtle.NewWorld()
	world.Fill(protocol.Position{X: -5, Y: -5, Z: -5}, protocol.Position{X: 5, Y: 5, Z: 5}, "minecraft:stone")
	world.Set(protocol.Position{}, "")
	h := newHarness(t, world, simturtle.Options{Facing: protocol.North})
	h.sync(t)

	target := protocol.Position{X: 3, Y: -2, Z: -4}
	require.NoError(t, h.ctrl.MovePoint(context.Background(), target))

	assert.Equal(t, target, h.sim.Pos())
	assert.Equal(t, 9, countKind(h.sim.Commands(), protocol.CommandMine), "one block cleared per step")

	// z is the longest axis so it is travelled first.
	_, ok := world.Block(protocol.Position{Z: -4})
	assert.False(t, ok)
}

func TestController_MoveAndMineBlock(t *testing.T) {
	t.Run("backward is unsupported", func(t *testing.T) {
		h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
		err := h.ctrl.MoveAndMineBlock(context.Background(), protocol.Backward)
		assert.ErrorIs(t, err, ErrUnsupportedMotion)
		assert.Empty(t, h.sim.Commands())
	})

	t.Run("unsensed block is mined after the failed move", func(t *testing.T) {
		world := simturtle.NewWorld()
		world.Set(protocol.Position{Y: 1}, "minecraft:dirt")
		h := newHarness(t, world, simturtle.Options{})

		require.NoError(t, h.ctrl.MoveAndMineBlock(context.Background(), protocol.Up))
		assert.Equal(t, protocol.Position{Y: 1}, h.sim.Pos())
		assert.Equal(t, []protocol.Command{
			protocol.Move(protocol.Up),
			protocol.Mine(protocol.MineUp),
			protocol.Move(protocol.Up),
		}, h.sim.Commands())
	})

	t.Run("bounded attempts", func(t *testing.T) {
		world := simturtle.NewWorld()
		world.Set(protocol.Position{Y: -1}, "minecraft:bedrock")
		h := newHarness(t, world, simturtle.Options{})
		ctrl := NewController(h.conn, 3, slog.Default())

		err := ctrl.MoveAndMineBlock(context.Background(), protocol.Down)
		assert.ErrorIs(t, err, ErrMoveBlocked)
		assert.Equal(t, 3, countKind(h.sim.Commands(), protocol.CommandMove))
	})
}

func TestController_MoveTurtleDoesNotMine(t *testing.T) {
	world := simturtle.NewWorld()
	world.Set(protocol.Position{Z: -1}, "minecraft:stone")
	h := newHarness(t, world, simturtle.Options{})
	h.sync(t)

	require.NoError(t, h.ctrl.MoveTurtle(context.Background(), protocol.Forward))
	assert.Equal(t, protocol.Position{}, h.sim.Pos())
	assert.Zero(t, countKind(h.sim.Commands(), protocol.CommandMine))
}

func TestController_Execute(t *testing.T) {
	tests := []struct {
		name    string
		instr   protocol.Instruction
		wantPos protocol.Position
		wantDir protocol.Direction
	}{
		{"nothing", protocol.Nothing(), protocol.Position{}, protocol.North},
		{"turn", protocol.TurnInstr(protocol.Left), protocol.Position{}, protocol.West},
		{"turn toward", protocol.TurnToward(protocol.South), protocol.Position{}, protocol.South},
		{"move direction", protocol.MoveDirectionTo(protocol.East), protocol.Position{X: 1}, protocol.East},
		{"move and mine", protocol.MoveAndMine(protocol.Down), protocol.Position{Y: -1}, protocol.North},
		{"move and mine len", protocol.MoveAndMineLen(3), protocol.Position{Z: -3}, protocol.North},
		{"move point", protocol.MovePoint(protocol.Position{X: -2, Z: 1}), protocol.Position{X: -2, Z: 1}, protocol.South},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, simturtle.NewWorld(), simturtle.Options{Facing: protocol.North})
			require.NoError(t, h.ctrl.Execute(context.Background(), tt.instr))
			assert.Equal(t, tt.wantPos, h.sim.Pos())
			assert.Equal(t, tt.wantDir, h.sim.Facing())
			assert.Equal(t, tt.wantDir, h.turtle.Direction())
		})
	}
}

func TestController_ExecuteBackwardMiningIsFatal(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
	err := h.ctrl.Execute(context.Background(), protocol.MoveAndMine(protocol.Backward))
	assert.ErrorIs(t, err, ErrUnsupportedMotion)
}

func TestController_Calibrate(t *testing.T) {
	world := simturtle.NewWorld()
	world.Set(protocol.Position{X: 1}, "minecraft:stone")
	h := newHarness(t, world, simturtle.Options{Facing: protocol.East})
	h.turtle.SetDirection(protocol.South) // local heading is wrong

	require.NoError(t, h.ctrl.Calibrate(context.Background()))
	assert.Equal(t, protocol.North, h.turtle.Direction())
	assert.Equal(t, protocol.North, h.sim.Facing())
	assert.Equal(t, protocol.Position{Z: -1}, h.sim.Pos())

	_, ok := world.Block(protocol.Position{X: 1})
	assert.False(t, ok, "surrounding blocks are cleared first")
}

func TestController_CalibrateFails(t *testing.T) {
	// A turtle whose forward moves only ever increase x.
	var pos protocol.Position
	var conn *Connection
	conn = NewConnection(New(1, 10), TransportFunc(func(ctx context.Context, payload []byte) error {
		var env protocol.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return err
		}
		if env.Action.Kind == protocol.CommandMove {
			switch env.Action.Move {
			case protocol.Forward:
				pos.X++
			case protocol.Backward:
				pos.X--
			}
		}
		reply, _ := json.Marshal(protocol.Response{Slots: []protocol.Slot{}, Blocks: []protocol.Block{}, Pos: pos, RequestID: env.RequestID})
		conn.Deliver(reply)
		return nil
	}), 0, slog.Default())

	err := NewController(conn, 0, slog.Default()).Calibrate(context.Background())
	assert.ErrorIs(t, err, ErrCalibrationFailed)
}

func TestPlanMineRect_ReplacesQueue(t *testing.T) {
	turtle := New(1, 10)
	turtle.SetDirection(protocol.East)
	turtle.Enqueue(protocol.Nothing())

	a := protocol.Position{X: 0, Y: 0, Z: 0}
	b := protocol.Position{X: 1, Y: 0, Z: 2}
	plan, err := PlanMineRect(turtle, a, b, slog.Default())
	require.NoError(t, err)

	snap := turtle.Snapshot()
	assert.Equal(t, plan, snap.ActionQueue)
	assert.Equal(t, protocol.MovePoint(a), snap.ActionQueue[0])
	assert.Equal(t, []protocol.Position{a, b}, snap.MineArea)

	turtle.SetDirection(protocol.North)
	_, err = PlanMineRect(turtle, a, b, slog.Default())
	assert.ErrorIs(t, err, ErrSweepUnbounded)
	assert.Equal(t, plan, turtle.Snapshot().ActionQueue, "failed plan leaves the queue alone")
}
