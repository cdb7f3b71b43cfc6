// ABOUTME: Gateway orchestrator that wires turtles, dashboards and the operator API
// ABOUTME: Manages the HTTP server, tailnet listener, broadcaster and store lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/turtle-gateway/internal/auth"
	"github.com/2389/turtle-gateway/internal/broadcast"
	"github.com/2389/turtle-gateway/internal/config"
	"github.com/2389/turtle-gateway/internal/dedupe"
	"github.com/2389/turtle-gateway/internal/recorder"
	"github.com/2389/turtle-gateway/internal/store"
	"github.com/2389/turtle-gateway/internal/turtle"
)

// Websocket keepalive settings shared by turtle and dashboard connections
const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Gateway coordinates the turtle fleet.
// It owns the registry, the ledger store and the HTTP server every surface is mounted on.
type Gateway struct {
	config      *config.Config
	registry    *turtle.Registry
	store       store.Store
	hub         *broadcast.Hub
	broadcaster *broadcast.Broadcaster
	recorder    *recorder.Recorder
	dedupe      *dedupe.Cache
	verifier    auth.TokenVerifier
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	// baseCtx bounds every turtle goal loop; cancel stops them all
	baseCtx context.Context
	cancel  context.CancelFunc
	turtles sync.WaitGroup

	// stopBroadcast cancels the running broadcaster and waits for it
	broadcastMu   sync.Mutex
	stopBroadcast func()

	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore creates the ledger store from config, honoring TURTLE_DB_PATH.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("TURTLE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// createVerifier returns a token verifier, or nil when auth is disabled.
func createVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("HTTP auth disabled - no jwt_secret configured")
		return nil, nil
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	logger.Info("HTTP auth middleware enabled")
	return verifier, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, s, logger)
}

// NewWithStore creates a Gateway around an existing store. The gateway
// takes ownership of s and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	verifier, err := createVerifier(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	gw := &Gateway{
		config:   cfg,
		registry: turtle.NewRegistry(logger),
		store:    s,
		hub:      broadcast.NewHub(logger),
		dedupe:   dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize),
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.With("component", "gateway"),
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	var sinks []broadcast.FrameSink
	if cfg.Recorder.Enabled {
		gw.recorder = recorder.New(cfg.Recorder.Dir)
		sinks = append(sinks, gw.recorder)
		logger.Info("dashboard frame recorder enabled", "dir", cfg.Recorder.Dir)
	}
	gw.broadcaster = broadcast.NewBroadcaster(gw.registry, gw.hub, cfg.Dashboard.BroadcastInterval, logger, sinks...)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the HTTP handler serving every gateway surface.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints and the turtle transport - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.HandleFunc("GET /ws", g.handleTurtleSocket)

	authMiddleware := auth.HTTPAuthMiddleware(g.verifier)
	operatorOnly := auth.RequireOperatorHTTP()

	mux.Handle("GET /turtle_updates", authMiddleware(http.HandlerFunc(g.handleDashboardSocket)))
	mux.Handle("GET /api/turtles", authMiddleware(http.HandlerFunc(g.handleListTurtles)))
	mux.Handle("GET /api/turtles/{id}", authMiddleware(http.HandlerFunc(g.handleGetTurtle)))
	mux.Handle("GET /api/turtles/{id}/history", authMiddleware(http.HandlerFunc(g.handleTurtleHistory)))
	mux.Handle("GET /api/turtles/{id}/sessions", authMiddleware(http.HandlerFunc(g.handleTurtleSessions)))
	mux.Handle("POST /api/turtles/{id}/queue", authMiddleware(operatorOnly(http.HandlerFunc(g.handleQueueInstruction))))
	mux.Handle("POST /api/turtles/{id}/goal", authMiddleware(operatorOnly(http.HandlerFunc(g.handleSetGoal))))
	mux.Handle("POST /api/turtles/{id}/mine-rect", authMiddleware(operatorOnly(http.HandlerFunc(g.handleMineRect))))

	return mux
}

// Registry exposes the turtle registry.
func (g *Gateway) Registry() *turtle.Registry { return g.registry }

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and broadcaster and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	g.startBroadcaster(ctx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// No frame may reach the recorder once Shutdown closes it
	g.stopBroadcaster()
	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startBroadcaster runs the broadcaster until ctx ends or stopBroadcaster is called.
func (g *Gateway) startBroadcaster(ctx context.Context) {
	bctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.broadcaster.Run(bctx)
	}()

	g.broadcastMu.Lock()
	g.stopBroadcast = func() {
		cancel()
		<-done
	}
	g.broadcastMu.Unlock()
}

// stopBroadcaster stops a running broadcaster and waits for its last tick.
func (g *Gateway) stopBroadcaster() {
	g.broadcastMu.Lock()
	stop := g.stopBroadcast
	g.stopBroadcast = nil
	g.broadcastMu.Unlock()
	if stop != nil {
		stop()
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "turtle-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :80 there.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// waitTurtles waits for every turtle handler to finish or ctx to end.
func (g *Gateway) waitTurtles(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.turtles.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for turtle loops: %w", ctx.Err())
	}
}

// Shutdown stops every turtle loop, the HTTP server and releases resources.
// It is safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")

		g.stopBroadcaster()

		var errs []error
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

		// Hijacked websocket connections are not covered by http.Server.Shutdown
		g.cancel()
		errs = appendCloseError(errs, "turtle loops", g.waitTurtles(ctx))

		g.hub.Close()
		if g.recorder != nil {
			errs = appendCloseError(errs, "recorder close", g.recorder.Close())
		}
		if g.tsnetServer != nil {
			errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
		}
		errs = appendCloseError(errs, "store close", g.store.Close())

		if len(errs) > 0 {
			g.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return g.shutdownErr
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if at least one turtle is connected.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	connected := 0
	for _, t := range g.registry.List() {
		if t.Connected() {
			connected++
		}
	}
	if connected == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no turtles connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d turtles)", connected)
}
