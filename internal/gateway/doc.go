// Package gateway orchestrates the turtle-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the turtle-gateway
// server. It owns the turtle registry, the SQLite ledger, the dashboard
// broadcast hub and the optional frame recorder, and serves every HTTP and
// websocket surface on a single listener (plain TCP or tailnet).
//
// # Gateway Struct
//
//	type Gateway struct {
//	    config      *config.Config
//	    registry    *turtle.Registry
//	    store       store.Store
//	    hub         *broadcast.Hub
//	    broadcaster *broadcast.Broadcaster
//	    recorder    *recorder.Recorder
//	    dedupe      *dedupe.Cache
//	    verifier    auth.TokenVerifier
//	    // ... and more
//	}
//
// # Turtle Socket
//
// Turtles connect to /ws. Each connection is assigned the next turtle id
// (ids are never reused), registered, and driven by its own goal loop
// until the socket closes. The gateway speaks first: every command is a
// JSON frame and the turtle answers each one with a status response.
//
// # Dashboard Socket
//
// Dashboards connect to /turtle_updates. They receive the whole fleet as a
// JSON array on connect and then on every broadcast tick. Text frames sent
// by the dashboard are operator commands:
//
//	{"turtle_id": 1, "action": {"MovePoint": {"x": 0, "y": 64, "z": 10}}, "request_id": "abc"}
//
// A command carrying a request_id is answered with a JSON object, an ack or
// error frame echoing that id. Commands without one get no reply, so a
// dashboard that never tags commands only ever receives snapshot arrays.
// A bad command never closes the connection.
//
// # HTTP API
//
//   - GET /api/turtles - List turtles (?connected=true)
//   - GET /api/turtles/{id} - One turtle snapshot
//   - POST /api/turtles/{id}/queue - Queue an instruction
//   - POST /api/turtles/{id}/goal - Set the current (or main) goal
//   - POST /api/turtles/{id}/mine-rect - Plan and queue a rectangular dig
//   - GET /api/turtles/{id}/history - Ledger events (?limit, ?type)
//   - GET /api/turtles/{id}/sessions - Connection sessions
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check
//
// Mutating routes require the operator role when a JWT secret is set.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//	gw.Shutdown(shutdownCtx)
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - turtle_socket.go: turtle websocket and goal loop wiring
//   - dashboard_socket.go: dashboard stream and operator commands
//   - api.go: operator HTTP handlers
//   - events.go: shared queueing and ledger helpers
package gateway
