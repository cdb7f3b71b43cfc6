// ABOUTME: Shared fixtures for gateway tests
// ABOUTME: Builds a gateway behind httptest and dials simulated turtles over real websockets

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/2389/turtle-gateway/internal/config"
	"github.com/2389/turtle-gateway/internal/simturtle"
	"github.com/2389/turtle-gateway/internal/turtle"
)

// testConfig creates a minimal config backed by a temporary database.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "ledger.db")},
		Agents: config.AgentsConfig{
			CommandTimeout:   2 * time.Second,
			IdlePollInterval: 10 * time.Millisecond,
			HistoryCapacity:  10,
			FuelItems:        config.DefaultFuelItems,
		},
		Dashboard: config.DashboardConfig{BroadcastInterval: 10 * time.Millisecond},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testGateway struct {
	gw  *Gateway
	srv *httptest.Server
}

func newTestGateway(t *testing.T, cfg *config.Config) *testGateway {
	t.Helper()
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})
	return &testGateway{gw: gw, srv: srv}
}

func (tg *testGateway) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(tg.srv.URL, "http") + path
}

// do sends an HTTP request and returns the status and body.
func (tg *testGateway) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, tg.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// fakeTurtle is a simulated turtle attached to the gateway over /ws.
type fakeTurtle struct {
	sim  *simturtle.Turtle
	conn *websocket.Conn
	done chan struct{}
}

// connectTurtle dials /ws and answers every command from a simulated turtle.
func (tg *testGateway) connectTurtle(t *testing.T, world *simturtle.World, opts simturtle.Options) *fakeTurtle {
	t.Helper()
	if opts.Fuel == 0 {
		opts.Fuel = 1000
	}

	conn, _, err := websocket.DefaultDialer.Dial(tg.wsURL("/ws"), nil)
	require.NoError(t, err)

	ft := &fakeTurtle{
		sim:  simturtle.NewTurtle(world, opts),
		conn: conn,
		done: make(chan struct{}),
	}
	go func() {
		defer close(ft.done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply, err := ft.sim.HandleFrame(msg)
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}()
	t.Cleanup(ft.close)
	return ft
}

func (ft *fakeTurtle) close() {
	_ = ft.conn.Close()
	<-ft.done
}

// waitTurtle waits until turtle id is registered and has reported once.
func (tg *testGateway) waitTurtle(t *testing.T, id int) *turtle.Turtle {
	t.Helper()
	var tt *turtle.Turtle
	require.Eventually(t, func() bool {
		var ok bool
		tt, ok = tg.gw.Registry().Lookup(id)
		return ok && tt.Snapshot().Fuel > 0
	}, 5*time.Second, 10*time.Millisecond)
	return tt
}
