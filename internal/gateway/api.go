// ABOUTME: HTTP API handlers for operators driving the turtle fleet
// ABOUTME: Lists turtles, queues instructions, sets goals, plans mines and reads the ledger

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/store"
	"github.com/2389/turtle-gateway/internal/turtle"
)

// maxRequestBody bounds operator request bodies
const maxRequestBody = 64 * 1024

// SetGoalRequest is the JSON request body for POST /api/turtles/{id}/goal.
type SetGoalRequest struct {
	Goal *protocol.Goal `json:"goal"`
	Main bool           `json:"main,omitempty"`
}

// SetGoalResponse is the JSON response for POST /api/turtles/{id}/goal.
type SetGoalResponse struct {
	TurtleID int           `json:"turtle_id"`
	Goal     protocol.Goal `json:"goal"`
	Main     bool          `json:"main"`
	// TargetLevel is the y level a Mine goal's material is usually found at
	TargetLevel int64 `json:"target_level,omitempty"`
}

// MineRectRequest is the JSON request body for POST /api/turtles/{id}/mine-rect.
type MineRectRequest struct {
	From *protocol.Position `json:"from"`
	To   *protocol.Position `json:"to"`
}

// MineRectResponse is the JSON response for POST /api/turtles/{id}/mine-rect.
type MineRectResponse struct {
	TurtleID int                    `json:"turtle_id"`
	Plan     []protocol.Instruction `json:"plan"`
}

// HistoryResponse is the JSON response for GET /api/turtles/{id}/history.
type HistoryResponse struct {
	TurtleID int            `json:"turtle_id"`
	Events   []*store.Event `json:"events"`
}

// SessionsResponse is the JSON response for GET /api/turtles/{id}/sessions.
type SessionsResponse struct {
	TurtleID int              `json:"turtle_id"`
	Sessions []*store.Session `json:"sessions"`
}

// sendJSON writes v with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}

// sendJSONError writes {"error": message}.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// pathTurtleID parses the {id} path segment.
func (g *Gateway) pathTurtleID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		g.sendJSONError(w, http.StatusBadRequest, "invalid turtle id")
		return 0, false
	}
	return id, true
}

// lookupTurtle resolves {id} to a registered turtle.
func (g *Gateway) lookupTurtle(w http.ResponseWriter, r *http.Request) (*turtle.Turtle, bool) {
	id, ok := g.pathTurtleID(w, r)
	if !ok {
		return nil, false
	}
	t, ok := g.registry.Lookup(id)
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, fmt.Sprintf("turtle %d not found", id))
		return nil, false
	}
	return t, true
}

// readBody reads a bounded request body.
func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return nil, false
	}
	return body, true
}

// handleListTurtles handles GET /api/turtles.
// Supports ?connected=true to hide turtles whose connection has closed.
func (g *Gateway) handleListTurtles(w http.ResponseWriter, r *http.Request) {
	onlyConnected := r.URL.Query().Get("connected") == "true"

	snaps := g.registry.Snapshots()
	out := make([]turtle.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if onlyConnected && !s.Connected {
			continue
		}
		out = append(out, s)
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handleGetTurtle handles GET /api/turtles/{id}.
func (g *Gateway) handleGetTurtle(w http.ResponseWriter, r *http.Request) {
	t, ok := g.lookupTurtle(w, r)
	if !ok {
		return
	}
	g.sendJSON(w, http.StatusOK, t.Snapshot())
}

// handleQueueInstruction handles POST /api/turtles/{id}/queue.
func (g *Gateway) handleQueueInstruction(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathTurtleID(w, r)
	if !ok {
		return
	}
	body, ok := g.readBody(w, r)
	if !ok {
		return
	}

	req, err := protocol.ParseQueueRequest(body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.queueInstruction(r.Context(), id, req.Action, req.RequestID, actorFor(r.Context(), "api"))
	switch {
	case errors.Is(err, errUnknownTurtle):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, errTurtleDisconnected):
		g.sendJSONError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	g.sendJSON(w, http.StatusAccepted, result)
}

// handleSetGoal handles POST /api/turtles/{id}/goal.
func (g *Gateway) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	t, ok := g.lookupTurtle(w, r)
	if !ok {
		return
	}
	body, ok := g.readBody(w, r)
	if !ok {
		return
	}

	var req SetGoalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid goal request: "+err.Error())
		return
	}
	if req.Goal == nil {
		g.sendJSONError(w, http.StatusBadRequest, "goal is required")
		return
	}
	if !t.Connected() {
		g.sendJSONError(w, http.StatusConflict, fmt.Sprintf("turtle %d disconnected", t.ID()))
		return
	}

	t.SetGoal(*req.Goal, req.Main)

	actor := actorFor(r.Context(), "api")
	g.logger.Info("goal changed", "turtle_id", t.ID(), "goal", req.Goal.String(), "main", req.Main, "actor", actor)
	detail := ""
	if req.Main {
		detail = "main"
	}
	g.recordEvent(r.Context(), &store.Event{
		TurtleID: t.ID(),
		Type:     store.EventTypeGoalChanged,
		Subject:  req.Goal.String(),
		Detail:   detail,
		Actor:    actor,
	})

	resp := SetGoalResponse{TurtleID: t.ID(), Goal: *req.Goal, Main: req.Main}
	if req.Goal.Kind == protocol.GoalMine {
		resp.TargetLevel = req.Goal.Material.Level()
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleMineRect handles POST /api/turtles/{id}/mine-rect.
// The planned sweep replaces the turtle's queue and is returned.
func (g *Gateway) handleMineRect(w http.ResponseWriter, r *http.Request) {
	t, ok := g.lookupTurtle(w, r)
	if !ok {
		return
	}
	body, ok := g.readBody(w, r)
	if !ok {
		return
	}

	var req MineRectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid mine-rect request: "+err.Error())
		return
	}
	if req.From == nil || req.To == nil {
		g.sendJSONError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	if !t.Connected() {
		g.sendJSONError(w, http.StatusConflict, fmt.Sprintf("turtle %d disconnected", t.ID()))
		return
	}

	plan, err := turtle.PlanMineRect(t, *req.From, *req.To, g.logger)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, turtle.ErrSweepUnbounded) {
			status = http.StatusUnprocessableEntity
		}
		g.sendJSONError(w, status, err.Error())
		return
	}

	g.recordEvent(r.Context(), &store.Event{
		TurtleID: t.ID(),
		Type:     store.EventTypeMinePlanned,
		Subject:  req.From.String() + " to " + req.To.String(),
		Detail:   fmt.Sprintf("%d instructions", len(plan)),
		Actor:    actorFor(r.Context(), "api"),
	})

	if plan == nil {
		plan = []protocol.Instruction{}
	}
	g.sendJSON(w, http.StatusOK, MineRectResponse{TurtleID: t.ID(), Plan: plan})
}

// parseLimit reads ?limit=, returning 0 when absent.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

// handleTurtleHistory handles GET /api/turtles/{id}/history.
// The ledger outlives the registry, so ids from earlier runs are accepted.
// Supports ?limit=n and ?type=<event type>.
func (g *Gateway) handleTurtleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathTurtleID(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := g.store.ListEvents(r.Context(), store.EventFilter{
		TurtleID: id,
		Type:     store.EventType(r.URL.Query().Get("type")),
		Limit:    limit,
	})
	if err != nil {
		g.logger.Error("failed to list events", "turtle_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	g.sendJSON(w, http.StatusOK, HistoryResponse{TurtleID: id, Events: events})
}

// handleTurtleSessions handles GET /api/turtles/{id}/sessions.
func (g *Gateway) handleTurtleSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathTurtleID(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := g.store.ListSessions(r.Context(), id, limit)
	if err != nil {
		g.logger.Error("failed to list sessions", "turtle_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	g.sendJSON(w, http.StatusOK, SessionsResponse{TurtleID: id, Sessions: sessions})
}
