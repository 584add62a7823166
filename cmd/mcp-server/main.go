package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apresai/personagen/internal/config"
	"github.com/apresai/personagen/internal/mcpserver"
	"github.com/apresai/personagen/internal/observability"
)

var version = "dev"

// shutdownGrace bounds how long in-flight generations get after SIGTERM.
const shutdownGrace = 8 * time.Second

func main() {
	settings, err := config.Load()
	if err != nil {
		observability.InitLogger("info").Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stderr, settings.LogLevel, settings.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Personagen MCP Server starting...", "version", version, "model", settings.Model, "contract", settings.Contract)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if observability.TracingEnabled() {
		tp, err := observability.InitTracer(ctx, observability.TracerConfig{
			Service:     "personagen-mcp",
			Version:     version,
			Environment: settings.Environment,
			SampleRatio: settings.TraceSampleRatio,
		})
		if err != nil {
			logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Error("Tracer shutdown error", "error", err)
				}
			}()
		}
	}

	srv, err := mcpserver.New(ctx, settings, version, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received, waiting for active generations...", "running", srv.Running())
		deadline := time.Now().Add(shutdownGrace)
		for srv.Running() > 0 && time.Now().Before(deadline) {
			time.Sleep(250 * time.Millisecond)
		}
		logger.Info("Shutdown complete", "abandoned", srv.Running())
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
