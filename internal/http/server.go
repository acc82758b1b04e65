package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/logger"
)

const (
	ListenerName           = "webhook_listener"
	defaultShutdownTimeout = 10 * time.Second
)

type ListenerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Listener serves the webhook endpoint and the read surface. It is the
// authoritative event source; a bind failure is fatal to the process.
type Listener struct {
	server *http.Server
	cfg    ListenerConfig

	mu sync.Mutex
	ln net.Listener
}

func NewListener(handler http.Handler, cfg ListenerConfig) *Listener {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Listener{
		cfg: cfg,
		server: &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

func (l *Listener) Name() string {
	return ListenerName
}

// Listen binds the configured port. Calling it before Run surfaces bind
// errors at startup; Run calls it itself when needed.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.server.Addr)
	if err != nil {
		return fmt.Errorf("binding webhook listener on %s: %w", l.server.Addr, err)
	}
	l.ln = ln
	return nil
}

// Port returns the bound port, or the configured one before Listen.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil {
		if addr, ok := l.ln.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return l.cfg.Port
}

// WebhookURL is the local URL upstream deliveries should be forwarded to.
func (l *Listener) WebhookURL() string {
	return fmt.Sprintf("http://localhost:%d/webhooks", l.Port())
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (l *Listener) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "paywatch.http.listener"})

	if err := l.Listen(); err != nil {
		return err
	}

	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- l.server.Serve(ln)
	}()

	slog.InfoContext(ctx, "webhook listener started",
		"port", l.Port(),
		"webhook_url", l.WebhookURL())

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving webhook listener: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.ShutdownTimeout)
	defer cancel()

	slog.InfoContext(shutdownCtx, "webhook listener shutting down")
	if err := l.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down webhook listener: %w", err)
	}
	return nil
}
