// ABOUTME: Replays dashboard recordings written by the gateway recorder
// ABOUTME: Prints each frame, optionally paced by the recorded timestamps

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/2389/turtle-gateway/internal/recorder"
	"github.com/2389/turtle-gateway/internal/turtle"
)

func cmdReplay(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("recording path is required")
	}
	path := args[0]

	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	speed := fs.Float64("speed", 0, "playback speed (0 prints without pausing)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *speed < 0 {
		return fmt.Errorf("--speed must not be negative")
	}

	var prev time.Time
	frames := 0
	err := recorder.ReadFile(path, func(e recorder.Entry) error {
		if *speed > 0 && !prev.IsZero() {
			gap := time.Duration(float64(e.Time.Sub(prev)) / *speed)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(gap):
			}
		}
		prev = e.Time

		var snaps []turtle.Snapshot
		if err := json.Unmarshal(e.Turtles, &snaps); err != nil {
			return fmt.Errorf("decoding frame at %s: %w", e.Time.Format(time.RFC3339), err)
		}
		printFrame(e.Time, snaps)
		frames++
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	fmt.Printf("%d frames\n", frames)
	return nil
}
