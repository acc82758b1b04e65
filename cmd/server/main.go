package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/id"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/logger"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/otel"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/core/config"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/app"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg, os.Stdout)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "webhook listener starting",
		"env", cfg.Env,
		"port", cfg.Webhook.Port,
		"resources_enabled", cfg.EnableResources)

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg, app.Options{ServeHTTP: true})
	if err != nil {
		slog.ErrorContext(ctx, "failed to start", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- application.Run(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		slog.InfoContext(ctx, "shutting down...")
		stop()
		if err := <-done; err != nil {
			slog.ErrorContext(ctx, "event source error during shutdown", "error", err)
		}
	case err := <-done:
		if err != nil {
			slog.ErrorContext(ctx, "event sources failed", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
	if exitCode != 0 {
		application.Close()
		os.Exit(exitCode)
	}
}

const banner = `
██████╗  █████╗ ██╗   ██╗██╗    ██╗ █████╗ ████████╗ ██████╗██╗  ██╗
██╔══██╗██╔══██╗╚██╗ ██╔╝██║    ██║██╔══██╗╚══██╔══╝██╔════╝██║  ██║
██████╔╝███████║ ╚████╔╝ ██║ █╗ ██║███████║   ██║   ██║     ███████║
██╔═══╝ ██╔══██║  ╚██╔╝  ██║███╗██║██╔══██║   ██║   ██║     ██╔══██║
██║     ██║  ██║   ██║   ╚███╔███╔╝██║  ██║   ██║   ╚██████╗██║  ██║
╚═╝     ╚═╝  ╚═╝   ╚═╝    ╚══╝╚══╝ ╚═╝  ╚═╝   ╚═╝    ╚═════╝╚═╝  ╚═╝
`
