// Package main is the entry point for the csstoy API server.
//
// MAIN PACKAGE IN GO:
// main stays minimal. Its job is to
//  1. read configuration (internal/config: .env plus environment)
//  2. build the logger
//  3. hand both to internal/server and block until shutdown
//
// All actual logic lives in the internal packages, which keeps it testable.
//
// WHY cmd/server/?
// cmd/ holds one directory per executable. This repo has two: the server
// and cmd/csstoyctl, the admin CLI.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/csstoy/internal/config"
	"github.com/sakif/csstoy/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No configured logger yet; the default one writes to stderr.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)

	// os.MkdirAll is `mkdir -p`. In-memory databases need no directory.
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
