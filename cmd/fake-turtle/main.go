// ABOUTME: Simulated turtle for end-to-end runs against a live gateway
// ABOUTME: Usage: fake-turtle [-url ws://localhost:8080/ws] [-count 1] [-fill 8]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/simturtle"
)

type options struct {
	url     string
	count   int
	start   protocol.Position
	facing  protocol.Direction
	fuel    int64
	coal    int64
	fill    int64
	block   string
	delay   time.Duration
	noReqID bool
}

func main() {
	var opts options
	var facing string
	flag.StringVar(&opts.url, "url", "ws://localhost:8080/ws", "gateway turtle websocket URL")
	flag.IntVar(&opts.count, "count", 1, "number of turtles to connect")
	flag.Int64Var(&opts.start.X, "x", 0, "start x (turtle n is offset by 2n)")
	flag.Int64Var(&opts.start.Y, "y", 64, "start y")
	flag.Int64Var(&opts.start.Z, "z", 0, "start z")
	flag.StringVar(&facing, "facing", string(protocol.North), "true facing (North, South, East, West)")
	flag.Int64Var(&opts.fuel, "fuel", 1000, "initial fuel")
	flag.Int64Var(&opts.coal, "coal", 16, "coal given to each turtle")
	flag.Int64Var(&opts.fill, "fill", 0, "fill a cube of this radius below the start with -block")
	flag.StringVar(&opts.block, "block", "minecraft:stone", "block used by -fill")
	flag.DurationVar(&opts.delay, "delay", 0, "artificial delay before each reply")
	flag.BoolVar(&opts.noReqID, "no-request-id", false, "omit correlation ids like older turtle scripts")
	flag.Parse()

	opts.facing = protocol.Direction(facing)
	if !opts.facing.Valid() {
		fmt.Fprintf(os.Stderr, "invalid -facing %q\n", facing)
		os.Exit(2)
	}
	if opts.count < 1 {
		fmt.Fprintln(os.Stderr, "-count must be at least 1")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("fake turtle failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	world := simturtle.NewWorld()
	if opts.fill > 0 {
		r := opts.fill
		world.Fill(
			opts.start.Add(-r, -2*r, -r),
			opts.start.Add(r+2*int64(opts.count), -1, r),
			opts.block,
		)
		logger.Info("filled world", "radius", r, "block", opts.block)
	}

	var wg sync.WaitGroup
	errs := make([]error, opts.count)
	for i := 0; i < opts.count; i++ {
		sim := simturtle.NewTurtle(world, simturtle.Options{
			Pos:           opts.start.Add(2*int64(i), 0, 0),
			Facing:        opts.facing,
			Fuel:          opts.fuel,
			SkipRequestID: opts.noReqID,
		})
		if opts.coal > 0 {
			sim.Give("minecraft:coal", opts.coal)
		}

		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = serve(ctx, opts, sim, logger.With("turtle", n))
		}(i)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// serve answers gateway commands until the connection or ctx ends.
func serve(ctx context.Context, opts options, sim *simturtle.Turtle, logger *slog.Logger) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", opts.url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	logger.Info("connected", "url", opts.url, "pos", sim.Pos(), "facing", sim.Facing())

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("disconnected")
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}

		reply, err := sim.HandleFrame(frame)
		if err != nil {
			logger.Warn("bad command frame", "frame", strings.TrimSpace(string(frame)), "error", err)
			continue
		}

		if opts.delay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.delay):
			}
		}

		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
		logger.Debug("answered", "pos", sim.Pos(), "facing", sim.Facing(), "fuel", sim.Fuel())
	}
}
