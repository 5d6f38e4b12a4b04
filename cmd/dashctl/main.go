package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sitedash/internal/cli"
	"sitedash/internal/config"
	"sitedash/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	// Logs go to stderr so command output stays parseable.
	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel, "text"))

	root := cli.NewRootCommand(cli.Options{
		BackendURL: cfg.BackendURL,
		Secret:     cfg.SessionSecret,
		Timeout:    cfg.BackendTimeout,
	})
	if err := root.ExecuteContext(ctx); err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\nOperation cancelled by user")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
