package turtle

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/simturtle"
	"github.com/2389/turtle-gateway/internal/store"
)

func newMachine(t *testing.T, h *harness, events EventLog) *Machine {
	t.Helper()
	return NewMachine(h.ctrl, events, MachineConfig{IdlePollInterval: 10 * time.Millisecond}, slog.Default())
}

func TestMachine_IdleEmptyQueueSendsInfo(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
	m := newMachine(t, h, nil)

	require.NoError(t, m.Step(context.Background()))
	assert.Equal(t, []protocol.Command{protocol.Info()}, h.sim.Commands())
}

func TestMachine_IdleExecutesInOrder(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
	ledger := store.NewMockStore()
	m := newMachine(t, h, ledger)
	ctx := context.Background()

	h.turtle.Enqueue(protocol.MoveAndMine(protocol.Up))
	h.turtle.Enqueue(protocol.TurnInstr(protocol.Right))

	require.NoError(t, m.Step(ctx))
	assert.Equal(t, protocol.Position{Y: 1}, h.sim.Pos())
	assert.Equal(t, protocol.North, h.sim.Facing(), "second instruction waits for the next step")

	require.NoError(t, m.Step(ctx))
	assert.Equal(t, protocol.East, h.sim.Facing())

	snap := h.turtle.Snapshot()
	assert.Empty(t, snap.ActionQueue)
	assert.Equal(t, []protocol.Instruction{
		protocol.MoveAndMine(protocol.Up),
		protocol.TurnInstr(protocol.Right),
	}, snap.ExecutedActions)

	cmds := h.sim.Commands()
	assert.Equal(t, protocol.Info(), cmds[len(cmds)-1], "every idle step ends with Info")

	events, err := ledger.ListEvents(ctx, store.EventFilter{TurtleID: 1})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, store.EventTypeInstructionExecuted, events[0].Type)
	assert.Equal(t, "Turn(Right)", events[0].Subject)
}

func TestMachine_HistoryIsBounded(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
	m := newMachine(t, h, nil)

	for range 15 {
		h.turtle.Enqueue(protocol.Nothing())
	}
	for range 15 {
		require.NoError(t, m.Step(context.Background()))
	}
	assert.Len(t, h.turtle.Snapshot().ExecutedActions, 10)
}

func TestMachine_Refuel(t *testing.T) {
	t.Run("burns the first fuel slot", func(t *testing.T) {
		h := newHarness(t, simturtle.NewWorld(), simturtle.Options{Fuel: 5})
		h.sim.Give("minecraft:cobblestone", 10)
		h.sim.Give("minecraft:charcoal", 2)
		h.turtle.SetGoal(protocol.Goal{Kind: protocol.GoalRefuel}, false)
		ledger := store.NewMockStore()
		m := newMachine(t, h, ledger)

		require.NoError(t, m.Step(context.Background()))
		assert.Equal(t, []protocol.Command{
			protocol.Info(),
			protocol.Select(2),
			protocol.Refuel(),
		}, h.sim.Commands())
		assert.Equal(t, int64(165), h.turtle.Snapshot().Fuel)
		assert.Equal(t, protocol.GoalRefuel, h.turtle.Goal().Kind, "refuel has no exit transition")

		events, err := ledger.ListEvents(context.Background(), store.EventFilter{Type: store.EventTypeRefueled})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("no fuel items only reports", func(t *testing.T) {
		h := newHarness(t, simturtle.NewWorld(), simturtle.Options{Fuel: 5})
		h.sim.Give("minecraft:dirt", 1)
		h.turtle.SetGoal(protocol.Goal{Kind: protocol.GoalRefuel}, false)
		m := newMachine(t, h, nil)

		require.NoError(t, m.Step(context.Background()))
		assert.Equal(t, []protocol.Command{protocol.Info()}, h.sim.Commands())
	})
}

func TestMachine_UnimplementedGoals(t *testing.T) {
	goals := []protocol.Goal{
		{Kind: protocol.GoalDeposit},
		{Kind: protocol.GoalMine, Material: protocol.Diamond},
	}
	for _, goal := range goals {
		t.Run(goal.String(), func(t *testing.T) {
			h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
			h.turtle.SetGoal(goal, true)
			m := newMachine(t, h, nil)

			err := m.Step(context.Background())
			assert.ErrorIs(t, err, ErrGoalNotImplemented)
			assert.Empty(t, h.sim.Commands())
		})
	}
}

func TestMachine_RunWaitsOnUnimplementedGoal(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
	h.turtle.SetGoal(protocol.Goal{Kind: protocol.GoalDeposit}, false)
	m := newMachine(t, h, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.sim.Commands())
}

func TestMachine_RunResumesAfterGoalChange(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
	h.turtle.SetGoal(protocol.Goal{Kind: protocol.GoalMine, Material: protocol.Coal}, false)
	h.turtle.Enqueue(protocol.MoveAndMineLen(2))
	m := newMachine(t, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	h.turtle.SetGoal(protocol.Idle(), false)

	require.Eventually(t, func() bool {
		return h.sim.Pos() == protocol.Position{Z: -2}
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMachine_RunAbortsOnFatalError(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
	ledger := store.NewMockStore()
	m := newMachine(t, h, ledger)
	h.turtle.Enqueue(protocol.MoveAndMine(protocol.Backward))

	err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedMotion)

	events, lerr := ledger.ListEvents(context.Background(), store.EventFilter{Type: store.EventTypeInstructionFailed})
	require.NoError(t, lerr)
	require.Len(t, events, 1)
	assert.Equal(t, "MoveAndMine(Backward)", events[0].Subject)
}

func TestMachine_LedgerFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, simturtle.NewWorld(), simturtle.Options{})
	ledger := store.NewMockStore()
	ledger.AppendErr = assert.AnError
	m := newMachine(t, h, ledger)
	h.turtle.Enqueue(protocol.Nothing())

	require.NoError(t, m.Step(context.Background()))
}
