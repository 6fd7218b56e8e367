// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/quotescope/quotescope/cmd"
	"github.com/quotescope/quotescope/internal/observability"
)

// main is the entry point for the quotescope CLI application.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	cmd.ExecuteContext(ctx)
}
