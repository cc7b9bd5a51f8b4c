// Package main is the entry point for the SnipShare API server.
//
// main stays small: load config, build the logger and telemetry, hand over
// to internal/server. Everything else lives in internal packages.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sakif/snipshare/internal/config"
	"github.com/sakif/snipshare/internal/repository/sqldb"
	"github.com/sakif/snipshare/internal/server"
	"github.com/sakif/snipshare/internal/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	// Cancelled on Ctrl+C or SIGTERM; Run then shuts down gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg.Otel, cfg.App)
	if err != nil {
		logger.Error("failed to set up telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	// The sqlite driver creates the file but not its directory.
	if cfg.Database.Driver == sqldb.DriverSQLite && !strings.Contains(cfg.Database.DSN, ":memory:") {
		dir := filepath.Dir(cfg.Database.DSN)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(ctx, cfg, logger, server.WithTracer(tel.Tracer))
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if !cfg.GitHubEnabled() {
		logger.Info("GitHub sign-in disabled: GITHUB_CLIENT_ID or GITHUB_CLIENT_SECRET not set")
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
