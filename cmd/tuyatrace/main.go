// TuyaTrace - Tuya IoT cloud event collector
//
// This is the main entry point for the TuyaTrace application. TuyaTrace
// records device events from the Tuya cloud through two complementary
// paths: a periodic collector that polls the device log API, and a
// real-time watcher that subscribes to the Pulsar event stream. Both
// paths deduplicate into a shared SQLite store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/calden87/tuyatrace/migrations"

	"github.com/calden87/tuyatrace/internal/cli"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// so every subsystem gets a chance to shut down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cli.New(buildVersion())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildVersion folds the ldflags variables into a single display string.
func buildVersion() string {
	return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}
