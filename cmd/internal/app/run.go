package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
)

// Run loads configuration, builds the application, and serves until the
// process receives SIGINT or SIGTERM.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	return a.Run(ctx)
}
