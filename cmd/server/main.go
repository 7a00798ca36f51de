// Package main is the entry point for the Dreams Saver API server.
//
// main stays small: load configuration, build the logger, hand both to
// internal/server and block until shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sakif/dreams-saver/internal/server"
)

func main() {
	// === 1. LOAD .env ===
	// A missing .env is normal in production where the environment is set
	// by the platform.
	envErr := godotenv.Load()

	// === 2. SET UP LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}))
	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warn("failed to load .env", slog.String("error", envErr.Error()))
	}

	// === 3. READ CONFIGURATION ===
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. DATABASE DIRECTORY ===
	if cfg.DBDriver == server.DriverSQLite && cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
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
