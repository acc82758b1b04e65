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
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/mcp"
)

// stdout carries JSON-RPC frames only; everything else goes to stderr.
func main() {
	fmt.Fprintf(os.Stderr, "%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg, os.Stderr)

	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	// Without resources there is nothing to read, so no listener is started.
	application, err := app.New(ctx, cfg, app.Options{ServeHTTP: cfg.EnableResources})
	if err != nil {
		slog.ErrorContext(ctx, "failed to start", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sourcesDone := make(chan error, 1)
	go func() {
		sourcesDone <- application.Run(runCtx)
	}()

	server := mcp.NewServer(application.Reader, mcp.Config{ResourcesEnabled: cfg.EnableResources})
	if err := server.Serve(runCtx, os.Stdin, os.Stdout); err != nil {
		slog.ErrorContext(ctx, "mcp server error", "error", err)
	}

	slog.InfoContext(ctx, "shutting down...")
	stop()
	if err := <-sourcesDone; err != nil {
		slog.ErrorContext(ctx, "event source error during shutdown", "error", err)
	}

	if telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
}

const banner = `
██████╗  █████╗ ██╗   ██╗██╗    ██╗ █████╗ ████████╗ ██████╗██╗  ██╗    ███╗   ███╗ ██████╗██████╗
██╔══██╗██╔══██╗╚██╗ ██╔╝██║    ██║██╔══██╗╚══██╔══╝██╔════╝██║  ██║    ████╗ ████║██╔════╝██╔══██╗
██████╔╝███████║ ╚████╔╝ ██║ █╗ ██║███████║   ██║   ██║     ███████║    ██╔████╔██║██║     ██████╔╝
██╔═══╝ ██╔══██║  ╚██╔╝  ██║███╗██║██╔══██║   ██║   ██║     ██╔══██║    ██║╚██╔╝██║██║     ██╔═══╝
██║     ██║  ██║   ██║   ╚███╔███╔╝██║  ██║   ██║   ╚██████╗██║  ██║    ██║ ╚═╝ ██║╚██████╗██║
╚═╝     ╚═╝  ╚═╝   ╚═╝    ╚══╝╚══╝ ╚═╝  ╚═╝   ╚═╝    ╚═════╝╚═╝  ╚═╝    ╚═╝     ╚═╝ ╚═════╝╚═╝
`
