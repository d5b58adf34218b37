// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/cmd"
	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/observability"
)

// main is the entry point for the aegis CLI.
func main() {
	// Ctrl+C cancels the context; in-flight requests and downloads unwind
	// through it instead of being killed mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
