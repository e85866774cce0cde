// Command server runs the trustline API: event ingestion, trust scoring,
// and preflight decisions for AI agents.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mbd888/trustline/internal/config"
	"github.com/mbd888/trustline/internal/logging"
	"github.com/mbd888/trustline/internal/server"
)

// Set via -ldflags at release build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "trustline:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New("info", "text")
	logger.Info("starting trustline", "version", version, "commit", commit)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"snapshot_interval", cfg.SnapshotInterval,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	return srv.Run(context.Background())
}
