// ABOUTME: Operator CLI for turtle-gateway
// ABOUTME: Lists turtles, queues instructions, sets goals, reads the ledger and replays recordings

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/turtle-gateway/internal/protocol"
	"github.com/2389/turtle-gateway/internal/store"
	"github.com/2389/turtle-gateway/internal/turtle"
)

const banner = `
 _             _   _                 _           _
| |_ _   _ _ _| |_| | ___        __ _| |_ __ ___ (_)_ __
| __| | | | '_| __| |/ _ \_____ / _' | | '_ ' _ \| | '_ \
| |_| |_| | | | |_| |  __/_____| (_| | | | | | | | | | | |
 \__|\__,_|_|  \__|_|\___|      \__,_|_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := newAPIClient(getEnv("TURTLE_GATEWAY_URL", "http://localhost:8080"), getToken())

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(ctx, client)
	case "turtles", "ls":
		err = cmdTurtles(ctx, client, args)
	case "show":
		err = cmdShow(ctx, client, args)
	case "queue":
		err = cmdQueue(ctx, client, args)
	case "goal":
		err = cmdGoal(ctx, client, args)
	case "mine-rect":
		err = cmdMineRect(ctx, client, args)
	case "history":
		err = cmdHistory(ctx, client, args)
	case "sessions":
		err = cmdSessions(ctx, client, args)
	case "watch":
		err = cmdWatch(ctx, client)
	case "replay":
		err = cmdReplay(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: turtle-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                          Show gateway health and fleet size")
	fmt.Println("  turtles [--connected]           List turtles")
	fmt.Println("  show <id>                       Show one turtle")
	fmt.Println("  queue <id> <instruction>        Queue an instruction (JSON)")
	fmt.Println("  goal <id> <goal> [--main]       Set a goal (JSON)")
	fmt.Println("  mine-rect <id> <x,y,z> <x,y,z>  Plan and queue a rectangular dig")
	fmt.Println("  history <id> [--limit n] [--type t]")
	fmt.Println("                                  Show ledger events")
	fmt.Println("  sessions <id>                   Show connection sessions")
	fmt.Println("  watch                           Stream dashboard updates")
	fmt.Println("  replay <file> [--speed n]       Replay a recorded .jsonl.zst file")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  TURTLE_GATEWAY_URL       Gateway URL (default: http://localhost:8080)")
	fmt.Println("  TURTLE_TOKEN             JWT operator token")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println(`  turtle-admin queue 1 '{"MovePoint":{"x":10,"y":64,"z":-3}}'`)
	fmt.Println(`  turtle-admin queue 1 '"Nothing"'`)
	fmt.Println(`  turtle-admin goal 1 '{"Mine":"Diamond"}' --main`)
	fmt.Println("  turtle-admin mine-rect 1 0,12,0 8,12,8")
	fmt.Println()
}

func parseTurtleID(args []string) (int, []string, error) {
	if len(args) == 0 {
		return 0, nil, fmt.Errorf("turtle id is required")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 1 {
		return 0, nil, fmt.Errorf("invalid turtle id %q", args[0])
	}
	return id, args[1:], nil
}

func parsePosition(s string) (protocol.Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return protocol.Position{}, fmt.Errorf("invalid position %q (want x,y,z)", s)
	}
	var coords [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return protocol.Position{}, fmt.Errorf("invalid position %q: %w", s, err)
		}
		coords[i] = v
	}
	return protocol.Position{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

func cmdStatus(ctx context.Context, c *apiClient) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	var turtles []turtle.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/turtles", nil, &turtles); err != nil {
		yellow.Printf("  Gateway:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}

	connected := 0
	for _, t := range turtles {
		if t.Connected {
			connected++
		}
	}

	green.Printf("  Gateway:  ")
	fmt.Printf("%s\n", c.baseURL)
	green.Printf("  Turtles:  ")
	fmt.Printf("%d connected, %d total\n", connected, len(turtles))
	if c.token == "" {
		yellow.Printf("  Token:    ")
		fmt.Println("(none - set TURTLE_TOKEN)")
	}
	fmt.Println()
	return nil
}

func cmdTurtles(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("turtles", flag.ContinueOnError)
	onlyConnected := fs.Bool("connected", false, "hide disconnected turtles")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "/api/turtles"
	if *onlyConnected {
		path += "?connected=true"
	}
	var turtles []turtle.Snapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &turtles); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Turtles")
	cyan.Println("  -------")

	if len(turtles) == 0 {
		fmt.Println("  (no turtles)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSTATE\tPOS\tFACING\tFUEL\tGOAL\tQUEUE\tLAST SEEN")
	fmt.Fprintln(w, "  --\t-----\t---\t------\t----\t----\t-----\t---------")
	for _, t := range turtles {
		state := color.GreenString("online")
		if !t.Connected {
			state = color.HiBlackString("offline")
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			t.ID, state, t.Pos, t.Direction, t.Fuel, t.CurrGoal, len(t.ActionQueue),
			t.LastSeen.Local().Format("Jan 02 15:04:05"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdShow(ctx context.Context, c *apiClient, args []string) error {
	id, _, err := parseTurtleID(args)
	if err != nil {
		return err
	}

	var t turtle.Snapshot
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/turtles/%d", id), nil, &t); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Turtle %d\n", t.ID)
	cyan.Println("  ---------")
	fmt.Printf("  Connected:   %t\n", t.Connected)
	fmt.Printf("  Position:    %s\n", t.Pos)
	fmt.Printf("  Facing:      %s\n", t.Direction)
	fmt.Printf("  Fuel:        %d\n", t.Fuel)
	if t.NeedsDeposit {
		color.Yellow("  Inventory:   needs deposit\n")
	}
	fmt.Printf("  Goal:        %s (main %s)\n", t.CurrGoal, t.MainGoal)
	fmt.Printf("  Queue:       %d\n", len(t.ActionQueue))
	for i, instr := range t.ActionQueue {
		fmt.Printf("    %2d. %s\n", i+1, instr)
	}
	fmt.Printf("  Executed:    %d (most recent last)\n", len(t.ExecutedActions))
	for _, instr := range t.ExecutedActions {
		fmt.Printf("        %s\n", instr)
	}
	if len(t.MineArea) == 2 {
		fmt.Printf("  Mine area:   %s to %s\n", t.MineArea[0], t.MineArea[1])
	}
	occupied := 0
	for _, s := range t.Slots {
		if s.Item != nil {
			occupied++
		}
	}
	fmt.Printf("  Inventory:   %d/%d slots used\n", occupied, len(t.Slots))
	fmt.Println()
	return nil
}

func cmdQueue(ctx context.Context, c *apiClient, args []string) error {
	id, rest, err := parseTurtleID(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("instruction is required")
	}

	raw := rest[0]
	fs := flag.NewFlagSet("queue", flag.ContinueOnError)
	requestID := fs.String("request-id", uuid.NewString(), "idempotency key")
	if err := fs.Parse(rest[1:]); err != nil {
		return err
	}

	if !json.Valid([]byte(raw)) {
		return fmt.Errorf("instruction must be JSON, e.g. '\"Nothing\"' or '{\"Turn\":\"Left\"}'")
	}
	body := map[string]any{
		"action":     json.RawMessage(raw),
		"request_id": *requestID,
	}

	var result struct {
		TurtleID  int    `json:"turtle_id"`
		QueueLen  int    `json:"queue_len"`
		Duplicate bool   `json:"duplicate"`
		RequestID string `json:"request_id"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/turtles/%d/queue", id), body, &result); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if result.Duplicate {
		color.Yellow("  duplicate request %s ignored\n", result.RequestID)
		return nil
	}
	green.Printf("  ✓ queued on turtle %d (queue length %d)\n", result.TurtleID, result.QueueLen)
	return nil
}

func cmdGoal(ctx context.Context, c *apiClient, args []string) error {
	id, rest, err := parseTurtleID(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("goal is required")
	}

	raw := rest[0]
	fs := flag.NewFlagSet("goal", flag.ContinueOnError)
	setMain := fs.Bool("main", false, "also set the main goal")
	if err := fs.Parse(rest[1:]); err != nil {
		return err
	}

	var goal protocol.Goal
	if err := json.Unmarshal([]byte(raw), &goal); err != nil {
		return fmt.Errorf("invalid goal %s: %w", raw, err)
	}

	var result struct {
		TargetLevel int64 `json:"target_level"`
	}
	body := map[string]any{"goal": goal, "main": *setMain}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/turtles/%d/goal", id), body, &result); err != nil {
		return err
	}

	color.Green("  ✓ turtle %d goal set to %s\n", id, goal)
	if goal.Kind == protocol.GoalMine {
		fmt.Printf("  target level: y=%d\n", result.TargetLevel)
	}
	return nil
}

func cmdMineRect(ctx context.Context, c *apiClient, args []string) error {
	id, rest, err := parseTurtleID(args)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return fmt.Errorf("usage: mine-rect <id> <x,y,z> <x,y,z>")
	}
	from, err := parsePosition(rest[0])
	if err != nil {
		return err
	}
	to, err := parsePosition(rest[1])
	if err != nil {
		return err
	}

	var result struct {
		Plan []protocol.Instruction `json:"plan"`
	}
	body := map[string]any{"from": from, "to": to}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/turtles/%d/mine-rect", id), body, &result); err != nil {
		return err
	}

	color.Green("  ✓ turtle %d queued %d instructions\n", id, len(result.Plan))
	return nil
}

func cmdHistory(ctx context.Context, c *apiClient, args []string) error {
	id, rest, err := parseTurtleID(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "maximum events")
	eventType := fs.String("type", "", "event type filter")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	path := fmt.Sprintf("/api/turtles/%d/history?limit=%d", id, *limit)
	if *eventType != "" {
		path += "&type=" + *eventType
	}
	var resp struct {
		Events []*store.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Turtle %d history\n", id)
	cyan.Println("  -----------------")
	if len(resp.Events) == 0 {
		fmt.Println("  (no events)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tTYPE\tSUBJECT\tDETAIL\tACTOR")
	fmt.Fprintln(w, "  ----\t----\t-------\t------\t-----")
	for _, e := range resp.Events {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("Jan 02 15:04:05"), e.Type,
			truncate(e.Subject, 32), truncate(e.Detail, 40), e.Actor)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdSessions(ctx context.Context, c *apiClient, args []string) error {
	id, _, err := parseTurtleID(args)
	if err != nil {
		return err
	}

	var resp struct {
		Sessions []*store.Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/turtles/%d/sessions", id), nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Turtle %d sessions\n", id)
	cyan.Println("  ------------------")
	if len(resp.Sessions) == 0 {
		fmt.Println("  (no sessions)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  STARTED\tENDED\tREASON\tREMOTE")
	fmt.Fprintln(w, "  -------\t-----\t------\t------")
	for _, s := range resp.Sessions {
		ended := color.GreenString("open")
		if s.EndedAt != nil {
			ended = s.EndedAt.Local().Format("Jan 02 15:04:05")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			s.StartedAt.Local().Format("Jan 02 15:04:05"), ended, s.EndReason, s.RemoteAddr)
	}
	w.Flush()
	fmt.Println()
	return nil
}

// cmdWatch prints a one-line summary of every dashboard frame until interrupted.
func cmdWatch(ctx context.Context, c *apiClient) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL("/turtle_updates"), header)
	if err != nil {
		return fmt.Errorf("connecting to dashboard: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading dashboard: %w", err)
		}
		if len(data) == 0 || data[0] != '[' {
			continue
		}
		var snaps []turtle.Snapshot
		if err := json.Unmarshal(data, &snaps); err != nil {
			return fmt.Errorf("decoding frame: %w", err)
		}
		printFrame(time.Now(), snaps)
	}
}

func printFrame(at time.Time, snaps []turtle.Snapshot) {
	var b strings.Builder
	b.WriteString(color.HiBlackString(at.Local().Format("15:04:05.000")))
	if len(snaps) == 0 {
		b.WriteString(" (no turtles)")
	}
	for _, t := range snaps {
		id := color.CyanString("#%d", t.ID)
		if !t.Connected {
			id = color.HiBlackString("#%d", t.ID)
		}
		fmt.Fprintf(&b, " %s %s %s fuel=%d q=%d", id, t.Pos, t.Direction, t.Fuel, len(t.ActionQueue))
	}
	fmt.Println(b.String())
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
