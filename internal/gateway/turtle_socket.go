// ABOUTME: Websocket endpoint turtles connect to, one goal loop per connection
// ABOUTME: Registers the turtle, records its session and tears everything down on disconnect

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/turtle-gateway/internal/store"
	"github.com/2389/turtle-gateway/internal/turtle"
)

// maxTurtleFrame bounds a single turtle report
const maxTurtleFrame = 1 << 20

// wsTransport writes command frames to a turtle's websocket.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Send writes one frame, bounded by writeWait or the ctx deadline if sooner.
func (t *wsTransport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// handleTurtleSocket handles GET /ws.
func (g *Gateway) handleTurtleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("turtle websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	g.turtles.Add(1)
	defer g.turtles.Done()
	if g.baseCtx.Err() != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	g.serveTurtle(ws, r.RemoteAddr)
}

// serveTurtle owns one turtle connection until it ends.
func (g *Gateway) serveTurtle(ws *websocket.Conn, remoteAddr string) {
	id := g.registry.NextID()
	t := turtle.New(id, g.config.Agents.HistoryCapacity)
	if err := g.registry.Register(t); err != nil {
		g.logger.Error("failed to register turtle", "turtle_id", id, "error", err)
		_ = ws.Close()
		return
	}
	logger := g.logger.With("turtle_id", id)

	ctx, cancel := context.WithCancel(g.baseCtx)
	defer cancel()

	session := &store.Session{TurtleID: id, RemoteAddr: remoteAddr}
	if err := g.store.StartSession(ctx, session); err != nil {
		logger.Warn("failed to record session start", "error", err)
	}
	g.recordEvent(ctx, &store.Event{
		TurtleID: id,
		Type:     store.EventTypeSessionStarted,
		Subject:  remoteAddr,
		Actor:    "gateway",
	})

	conn := turtle.NewConnection(t, &wsTransport{conn: ws}, g.config.Agents.CommandTimeout, g.logger)

	readDone := make(chan error, 1)
	go func() {
		readDone <- readTurtle(ws, conn, logger)
		cancel()
	}()
	go pingLoop(ctx, ws)

	loopErr := g.runTurtle(ctx, conn)

	cancel()
	conn.Close()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	_ = ws.Close()
	readErr := <-readDone

	reason := "disconnected"
	switch {
	case g.baseCtx.Err() != nil:
		reason = "shutdown"
	case loopErr != nil && !errors.Is(loopErr, context.Canceled):
		reason = loopErr.Error()
	}
	logger.Info("turtle connection closed", "reason", reason, "read_error", readErr)

	if err := g.registry.MarkDisconnected(id); err != nil {
		logger.Warn("failed to mark turtle disconnected", "error", err)
	}

	// The connection context is already canceled
	endCtx, endCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer endCancel()
	if err := g.store.EndSession(endCtx, session.ID, time.Now().UTC(), reason); err != nil {
		logger.Warn("failed to record session end", "error", err)
	}
	g.recordEvent(endCtx, &store.Event{
		TurtleID: id,
		Type:     store.EventTypeSessionEnded,
		Subject:  remoteAddr,
		Detail:   reason,
		Actor:    "gateway",
	})
}

// runTurtle optionally calibrates the heading, then runs the goal machine.
func (g *Gateway) runTurtle(ctx context.Context, conn *turtle.Connection) error {
	ctrl := turtle.NewController(conn, g.config.Agents.MaxMoveAttempts, g.logger)

	if g.config.Agents.CalibrateOnConnect {
		if err := ctrl.Calibrate(ctx); err != nil {
			g.logger.Error("heading calibration failed", "turtle_id", conn.Turtle().ID(), "error", err)
			return err
		}
	}

	machine := turtle.NewMachine(ctrl, g.store, turtle.MachineConfig{
		IdlePollInterval: g.config.Agents.IdlePollInterval,
		FuelItems:        g.config.Agents.FuelItems,
	}, g.logger)
	return machine.Run(ctx)
}

// readTurtle hands every inbound frame to the connection until the socket fails.
func readTurtle(ws *websocket.Conn, conn *turtle.Connection, logger *slog.Logger) error {
	defer conn.Close()

	ws.SetReadLimit(maxTurtleFrame)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if !conn.Deliver(data) {
			logger.Debug("turtle frame not delivered", "bytes", len(data))
		}
	}
}

// pingLoop sends keepalive pings until ctx ends or a ping fails.
func pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
