// ABOUTME: Per-turtle goal state machine driving the controller.
// ABOUTME: Idle drains the instruction queue, Refuel burns fuel from inventory.

package turtle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/store"
)

// DefaultFuelItems are the inventory items the Refuel goal burns.
var DefaultFuelItems = []string{"minecraft:coal", "minecraft:charcoal"}

// DefaultIdlePollInterval is how long Run waits before re-checking a goal
// that has no behavior.
const DefaultIdlePollInterval = time.Second

// EventLog records what a turtle did. Recording failures are logged and
// never stop the turtle.
type EventLog interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// MachineConfig tunes a Machine.
type MachineConfig struct {
	IdlePollInterval time.Duration
	FuelItems        []string
}

// Machine runs one turtle's goal loop. Exactly one goroutine may call Run
// or Step at a time.
type Machine struct {
	ctrl   *Controller
	turtle *Turtle
	events EventLog
	cfg    MachineConfig
	logger *slog.Logger

	reported protocol.Goal
}

// NewMachine creates a goal machine. events may be nil.
func NewMachine(ctrl *Controller, events EventLog, cfg MachineConfig, logger *slog.Logger) *Machine {
	if cfg.IdlePollInterval <= 0 {
		cfg.IdlePollInterval = DefaultIdlePollInterval
	}
	if len(cfg.FuelItems) == 0 {
		cfg.FuelItems = DefaultFuelItems
	}
	return &Machine{
		ctrl:   ctrl,
		turtle: ctrl.Turtle(),
		events: events,
		cfg:    cfg,
		logger: logger.With("component", "machine", "turtle_id", ctrl.Turtle().ID()),
	}
}

// Run steps the machine until ctx ends or a step fails. Goals without
// behavior are reported once and polled at the idle interval.
func (m *Machine) Run(ctx context.Context) error {
	m.logger.Info("goal loop started", "goal", m.turtle.Goal().String())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := m.Step(ctx)
		switch {
		case err == nil:
			m.reported = protocol.Goal{}
			continue
		case errors.Is(err, ErrGoalNotImplemented):
			if goal := m.turtle.Goal(); goal != m.reported {
				m.logger.Warn("goal has no behavior, waiting", "goal", goal.String())
				m.reported = goal
			}
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("goal loop aborted", "error", err)
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.IdlePollInterval):
		}
	}
}

// Step performs one iteration of the current goal.
func (m *Machine) Step(ctx context.Context) error {
	goal := m.turtle.Goal()
	switch goal.Kind {
	case protocol.GoalIdle, "":
		return m.stepIdle(ctx)
	case protocol.GoalRefuel:
		return m.stepRefuel(ctx)
	case protocol.GoalDeposit, protocol.GoalMine:
		return fmt.Errorf("%w: %s", ErrGoalNotImplemented, goal)
	}
	return fmt.Errorf("unknown goal %q", goal.Kind)
}

func (m *Machine) stepIdle(ctx context.Context) error {
	if instr, ok := m.turtle.PopInstruction(); ok {
		m.logger.Info("executing instruction", "instruction", instr.String())
		if err := m.ctrl.Execute(ctx, instr); err != nil {
			m.record(ctx, store.EventTypeInstructionFailed, instr.String(), err.Error())
			return fmt.Errorf("executing %s: %w", instr, err)
		}
		m.turtle.PushHistory(instr)
		m.record(ctx, store.EventTypeInstructionExecuted, instr.String(), m.turtle.Position().String())
	}
	return m.ctrl.Info(ctx)
}

func (m *Machine) stepRefuel(ctx context.Context) error {
	if err := m.ctrl.Info(ctx); err != nil {
		return err
	}

	slot, ok := m.turtle.Snapshot().FuelSlot(m.cfg.FuelItems)
	if !ok {
		return nil
	}

	if err := m.ctrl.Select(ctx, slot.ID); err != nil {
		return err
	}
	if err := m.ctrl.Refuel(ctx); err != nil {
		return err
	}
	m.record(ctx, store.EventTypeRefueled, slot.Item.Name, fmt.Sprintf("slot %d", slot.ID))
	return nil
}

func (m *Machine) record(ctx context.Context, typ store.EventType, subject, detail string) {
	if m.events == nil {
		return
	}
	event := &store.Event{
		ID:        uuid.New().String(),
		TurtleID:  m.turtle.ID(),
		Type:      typ,
		Subject:   subject,
		Detail:    detail,
		Actor:     "machine",
		Timestamp: time.Now().UTC(),
	}
	if err := m.events.AppendEvent(ctx, event); err != nil {
		m.logger.Warn("failed to record event", "type", typ, "error", err)
	}
}
