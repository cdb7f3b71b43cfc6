// ABOUTME: Dashboard websocket streaming turtle snapshots and accepting operator commands
// ABOUTME: Commands tagged with a request_id get an ack or error frame back

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/turtle-gateway/internal/auth"
	"github.com/2389/turtle-gateway/internal/broadcast"
	"github.com/2389/turtle-gateway/internal/protocol"
)

// maxOperatorFrame bounds a single operator command
const maxOperatorFrame = 64 * 1024

// DashboardReply answers one operator command frame.
type DashboardReply struct {
	Type      string `json:"type"` // "ack" or "error"
	TurtleID  int    `json:"turtle_id,omitempty"`
	QueueLen  int    `json:"queue_len,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func errorReply(err error) DashboardReply {
	return DashboardReply{Type: "error", Error: err.Error()}
}

// handleDashboardSocket handles GET /turtle_updates.
func (g *Gateway) handleDashboardSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("dashboard websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(g.baseCtx)
	defer cancel()

	// Auth context from the upgrade request outlives the request itself
	ctx = auth.WithAuth(ctx, auth.FromContext(r.Context()))

	frames, subID := g.hub.Subscribe(ctx)
	logger := g.logger.With("subscriber", subID)
	logger.Info("dashboard connected", "remote_addr", r.RemoteAddr)

	replies := make(chan DashboardReply, 16)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		g.writeDashboard(ctx, ws, frames, replies, logger)
		cancel()
		_ = ws.Close()
	}()

	g.readDashboard(ctx, ws, replies, logger)
	cancel()
	<-writeDone
	logger.Info("dashboard disconnected")
}

// readDashboard answers operator commands until the socket fails.
func (g *Gateway) readDashboard(ctx context.Context, ws *websocket.Conn, replies chan<- DashboardReply, logger *slog.Logger) {
	ws.SetReadLimit(maxOperatorFrame)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			logger.Debug("dashboard read ended", "error", err)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		reply := g.handleOperatorFrame(ctx, data)
		if reply.RequestID == "" {
			// Untagged commands are fire and forget
			if reply.Type == "error" {
				logger.Debug("untagged operator command failed", "error", reply.Error)
			}
			continue
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

// requestIDOf pulls the correlation id out of a frame that may not parse
// as a full operator command.
func requestIDOf(data []byte) string {
	var tagged struct {
		RequestID string `json:"request_id"`
	}
	if json.Unmarshal(data, &tagged) != nil {
		return ""
	}
	return tagged.RequestID
}

// handleOperatorFrame validates and queues one operator command.
func (g *Gateway) handleOperatorFrame(ctx context.Context, data []byte) DashboardReply {
	if !auth.FromContext(ctx).CanOperate() {
		return DashboardReply{Type: "error", Error: "operator role required", RequestID: requestIDOf(data)}
	}

	cmd, err := protocol.ParseOperatorCommand(data)
	if err != nil {
		g.logger.Debug("rejected operator command", "error", err)
		reply := errorReply(err)
		reply.RequestID = requestIDOf(data)
		return reply
	}

	result, err := g.queueInstruction(ctx, cmd.TurtleID, cmd.Action, cmd.RequestID, actorFor(ctx, "dashboard"))
	if err != nil {
		reply := errorReply(err)
		reply.TurtleID = cmd.TurtleID
		reply.RequestID = cmd.RequestID
		return reply
	}

	return DashboardReply{
		Type:      "ack",
		TurtleID:  result.TurtleID,
		QueueLen:  result.QueueLen,
		Duplicate: result.Duplicate,
		RequestID: result.RequestID,
	}
}

// writeDashboard is the only writer on a dashboard socket. It sends the
// current fleet at once, then every broadcast frame and command reply.
func (g *Gateway) writeDashboard(ctx context.Context, ws *websocket.Conn, frames <-chan []byte, replies <-chan DashboardReply, logger *slog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(payload []byte) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Debug("dashboard write failed", "error", err)
			return false
		}
		return true
	}

	initial, err := broadcast.EncodeFrame(g.registry.Snapshots())
	if err != nil {
		logger.Error("failed to encode initial frame", "error", err)
		return
	}
	if !write(initial) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if !write(frame) {
				return
			}
		case reply := <-replies:
			payload, err := json.Marshal(reply)
			if err != nil {
				logger.Error("failed to encode reply", "error", err)
				continue
			}
			if !write(payload) {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
