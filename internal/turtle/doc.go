// Package turtle coordinates connected turtles: their state, the commands
// sent to them and the goals they pursue.
//
// # Overview
//
// Each turtle holds one persistent connection to the gateway and executes
// one primitive command at a time, answering every command with a full
// state report. Operators queue high-level instructions; the package
// expands them into primitives and dispatches them in order.
//
// # Registry
//
// The Registry tracks every turtle that has connected since startup:
//
//	reg := turtle.NewRegistry(logger)
//	t := turtle.New(reg.NextID(), historyCapacity)
//	err := reg.Register(t)
//
// Entries are never removed. When a connection ends the turtle is marked
// disconnected and stays visible to the dashboard.
//
// # State
//
// Turtle guards its fields with a private mutex. Readers take a Snapshot,
// a deep copy that can be serialized or inspected without holding any
// lock. Queue operations, goal changes and report application are short
// critical sections and never span a network wait.
//
// # Request/Response Correlation
//
// Connection owns the link to one turtle:
//
//  1. Send refuses a second command while one is outstanding
//  2. The command is wrapped in an envelope with a fresh requestId
//  3. The reply is awaited, bounded by the context and the command timeout
//  4. Replies echoing another requestId are stale and discarded
//  5. The accepted reply is applied to the turtle's state
//
// The transport reader hands frames to Deliver, which never blocks.
//
// # Planning
//
// Planner functions are pure. PlanTurns picks the turns between two
// headings, MineLayer and MineRect lay out boustrophedon sweeps. The
// Controller executes plans against a connection, tracking heading by dead
// reckoning since turtles do not report it.
//
// # Goals
//
// A Machine runs one goroutine per connected turtle:
//
//   - Idle: execute the next queued instruction, then request a report
//   - Refuel: request a report, then burn the first fuel item found
//   - Deposit, Mine: no behavior yet; the machine waits and re-checks
//
// Any other error ends the loop for that turtle only.
package turtle
