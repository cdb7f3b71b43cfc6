// ABOUTME: Tests for the operator HTTP API
// ABOUTME: Covers listing, queuing, goals, mine planning, ledger history and auth

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/turtle-gateway/internal/auth"
	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/simturtle"
	"github.com/2389/turtle-gateway/internal/store"
	"github.com/2389/turtle-gateway/internal/turtle"
)

func TestHandleListTurtles(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))

	status, body := tg.do(t, http.MethodGet, "/api/turtles", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	world := simturtle.NewWorld()
	first := tg.connectTurtle(t, world, simturtle.Options{})
	tg.waitTurtle(t, 1)
	tg.connectTurtle(t, world, simturtle.Options{Pos: protocol.Position{X: 3}})
	tg.waitTurtle(t, 2)

	first.close()
	require.Eventually(t, func() bool {
		tt, _ := tg.gw.Registry().Lookup(1)
		return !tt.Connected()
	}, 5*time.Second, 10*time.Millisecond)

	status, body = tg.do(t, http.MethodGet, "/api/turtles", "", nil)
	require.Equal(t, http.StatusOK, status)
	var all []turtle.Snapshot
	require.NoError(t, json.Unmarshal(body, &all))
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].ID)
	assert.Equal(t, 2, all[1].ID)

	status, body = tg.do(t, http.MethodGet, "/api/turtles?connected=true", "", nil)
	require.Equal(t, http.StatusOK, status)
	var connected []turtle.Snapshot
	require.NoError(t, json.Unmarshal(body, &connected))
	require.Len(t, connected, 1)
	assert.Equal(t, 2, connected[0].ID)
}

func TestHandleGetTurtle_Errors(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))

	status, body := tg.do(t, http.MethodGet, "/api/turtles/7", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"turtle 7 not found"}`, string(body))

	status, _ = tg.do(t, http.MethodGet, "/api/turtles/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = tg.do(t, http.MethodGet, "/api/turtles/0", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandleQueueInstruction_MovesTurtle(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))

	world := simturtle.NewWorld()
	world.Set(protocol.Position{Z: -1}, "minecraft:stone")
	ft := tg.connectTurtle(t, world, simturtle.Options{})
	tg.waitTurtle(t, 1)

	status, body := tg.do(t, http.MethodPost, "/api/turtles/1/queue", "", map[string]any{
		"action":     map[string]any{"MovePoint": map[string]int{"x": 0, "y": 0, "z": -2}},
		"request_id": "req-1",
	})
	require.Equal(t, http.StatusAccepted, status, string(body))

	var result QueueResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 1, result.TurtleID)
	assert.Equal(t, "req-1", result.RequestID)
	assert.False(t, result.Duplicate)

	require.Eventually(t, func() bool {
		return ft.sim.Pos() == protocol.Position{Z: -2}
	}, 5*time.Second, 10*time.Millisecond)

	_, found := world.Block(protocol.Position{Z: -1})
	assert.False(t, found, "stone in the way is mined")

	require.Eventually(t, func() bool {
		events, err := tg.gw.store.ListEvents(context.Background(), store.EventFilter{
			TurtleID: 1,
			Type:     store.EventTypeInstructionExecuted,
		})
		return err == nil && len(events) == 1
	}, 5*time.Second, 10*time.Millisecond)

	status, body = tg.do(t, http.MethodGet, "/api/turtles/1/history?type=instruction_queued", "", nil)
	require.Equal(t, http.StatusOK, status)
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history.Events, 1)
	assert.Equal(t, "MovePoint(0,0,-2)", history.Events[0].Subject)
	assert.Equal(t, "api:anonymous", history.Events[0].Actor)
	assert.Equal(t, "req-1", history.Events[0].Detail)
}

func TestHandleQueueInstruction_DuplicateRequestID(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tg.connectTurtle(t, simturtle.NewWorld(), simturtle.Options{})
	tg.waitTurtle(t, 1)

	req := map[string]any{"action": map[string]any{"Turn": "Left"}, "request_id": "same"}

	status, _ := tg.do(t, http.MethodPost, "/api/turtles/1/queue", "", req)
	require.Equal(t, http.StatusAccepted, status)

	status, body := tg.do(t, http.MethodPost, "/api/turtles/1/queue", "", req)
	require.Equal(t, http.StatusAccepted, status)
	var result QueueResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Duplicate)

	events, err := tg.gw.store.ListEvents(context.Background(), store.EventFilter{
		TurtleID: 1,
		Type:     store.EventTypeInstructionQueued,
	})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestHandleQueueInstruction_Errors(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	ft := tg.connectTurtle(t, simturtle.NewWorld(), simturtle.Options{})
	live := tg.waitTurtle(t, 1)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"invalid json", "/api/turtles/1/queue", "{", http.StatusBadRequest},
		{"unknown instruction", "/api/turtles/1/queue", `{"action":{"Fly":"Up"}}`, http.StatusBadRequest},
		{"missing action", "/api/turtles/1/queue", `{}`, http.StatusBadRequest},
		{"unknown turtle", "/api/turtles/9/queue", `{"action":"Nothing"}`, http.StatusNotFound},
		{"bad id", "/api/turtles/x/queue", `{"action":"Nothing"}`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := tg.do(t, http.MethodPost, tc.path, "", tc.body)
			assert.Equal(t, tc.status, status, string(body))
		})
	}

	ft.close()
	require.Eventually(t, func() bool { return !live.Connected() }, 5*time.Second, 10*time.Millisecond)

	status, _ := tg.do(t, http.MethodPost, "/api/turtles/1/queue", "", `{"action":"Nothing"}`)
	assert.Equal(t, http.StatusConflict, status)
}

func TestHandleSetGoal(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tg.connectTurtle(t, simturtle.NewWorld(), simturtle.Options{})
	tt := tg.waitTurtle(t, 1)

	status, body := tg.do(t, http.MethodPost, "/api/turtles/1/goal", "", `{"goal":{"Mine":"Diamond"},"main":true}`)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"turtle_id":1,"goal":{"Mine":"Diamond"},"main":true,"target_level":-53}`, string(body))

	snap := tt.Snapshot()
	assert.Equal(t, protocol.Goal{Kind: protocol.GoalMine, Material: protocol.Diamond}, snap.CurrGoal)
	assert.Equal(t, snap.CurrGoal, snap.MainGoal)

	status, _ = tg.do(t, http.MethodPost, "/api/turtles/1/goal", "", `{"goal":"Refuel"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, protocol.GoalRefuel, tt.Goal().Kind)
	assert.Equal(t, protocol.GoalMine, tt.Snapshot().MainGoal.Kind, "main goal is kept")

	events, err := tg.gw.store.ListEvents(context.Background(), store.EventFilter{
		TurtleID: 1,
		Type:     store.EventTypeGoalChanged,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Refuel", events[0].Subject)

	status, _ = tg.do(t, http.MethodPost, "/api/turtles/1/goal", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = tg.do(t, http.MethodPost, "/api/turtles/1/goal", "", `{"goal":"Sleep"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandleMineRect(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tg.connectTurtle(t, simturtle.NewWorld(), simturtle.Options{Facing: protocol.East})
	tt := tg.waitTurtle(t, 1)

	// Park the machine so the plan stays queued
	status, _ := tg.do(t, http.MethodPost, "/api/turtles/1/goal", "", `{"goal":"Deposit"}`)
	require.Equal(t, http.StatusOK, status)
	tt.SetDirection(protocol.East)

	status, body := tg.do(t, http.MethodPost, "/api/turtles/1/mine-rect", "", map[string]any{
		"from": protocol.Position{X: 0, Y: 0, Z: 0},
		"to":   protocol.Position{X: 0, Y: 0, Z: 2},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var resp MineRectResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, []protocol.Instruction{
		protocol.MovePoint(protocol.Position{}),
		protocol.MoveDirectionTo(protocol.East),
		protocol.MoveDirectionTo(protocol.East),
	}, resp.Plan)

	snap := tt.Snapshot()
	assert.Equal(t, resp.Plan, snap.ActionQueue)
	assert.Equal(t, []protocol.Position{{}, {Z: 2}}, snap.MineArea)
}

func TestHandleMineRect_Errors(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tg.connectTurtle(t, simturtle.NewWorld(), simturtle.Options{})
	tg.waitTurtle(t, 1)

	status, _ := tg.do(t, http.MethodPost, "/api/turtles/1/mine-rect", "", `{"from":{"x":0,"y":0,"z":0}}`)
	assert.Equal(t, http.StatusBadRequest, status)

	// A sweep cannot start while facing North
	status, body := tg.do(t, http.MethodPost, "/api/turtles/1/mine-rect", "", map[string]any{
		"from": protocol.Position{},
		"to":   protocol.Position{X: 2, Z: 2},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status, string(body))
}

func TestHandleTurtleHistory_Errors(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))

	status, body := tg.do(t, http.MethodGet, "/api/turtles/42/history", "", nil)
	require.Equal(t, http.StatusOK, status, "history does not require a live turtle")
	assert.JSONEq(t, `{"turtle_id":42,"events":[]}`, string(body))

	status, _ = tg.do(t, http.MethodGet, "/api/turtles/1/history?limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = tg.do(t, http.MethodGet, "/api/turtles/1/sessions?limit=5", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"turtle_id":1,"sessions":[]}`, string(body))
}

func TestAPI_Auth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "api-auth-test-secret-with-32-bytes"
	tg := newTestGateway(t, cfg)

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	require.NoError(t, err)
	operator, err := verifier.Generate("alice", auth.RoleOperator, time.Hour)
	require.NoError(t, err)
	viewer, err := verifier.Generate("bob", auth.RoleViewer, time.Hour)
	require.NoError(t, err)

	tg.connectTurtle(t, simturtle.NewWorld(), simturtle.Options{})
	tg.waitTurtle(t, 1)

	status, _ := tg.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status, "health needs no token")

	status, _ = tg.do(t, http.MethodGet, "/api/turtles", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = tg.do(t, http.MethodGet, "/api/turtles", viewer, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = tg.do(t, http.MethodPost, "/api/turtles/1/queue", viewer, `{"action":"Nothing"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = tg.do(t, http.MethodPost, "/api/turtles/1/queue", operator, `{"action":"Nothing"}`)
	assert.Equal(t, http.StatusAccepted, status)

	events, err := tg.gw.store.ListEvents(context.Background(), store.EventFilter{
		TurtleID: 1,
		Type:     store.EventTypeInstructionQueued,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "api:alice", events[0].Actor)
}
