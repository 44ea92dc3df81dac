package batch

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"time"
)

// Stubbed in tests.
var runPowerCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// PowerAction executes a post-batch machine power action after a countdown
// that a Ctrl+C can still cancel. Supported actions: "off", "sleep".
func PowerAction(ctx context.Context, action string, delay time.Duration) error {
	var name string
	var args []string
	switch action {
	case "off":
		name, args = "systemctl", []string{"poweroff"}
	case "sleep":
		name, args = "systemctl", []string{"suspend"}
	default:
		return fmt.Errorf("unknown power action %q", action)
	}

	log.Printf("batch: %s in %s (Ctrl+C to cancel)", action, delay)
	select {
	case <-ctx.Done():
		log.Println("batch: power action cancelled")
		return ctx.Err()
	case <-time.After(delay):
	}

	if err := runPowerCommand(name, args...); err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}
