package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/core/config"
	httpserver "github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/handler"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/handler/webhook"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/middleware"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/router"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/lemonsqueezy"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/mapper"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/metrics"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/paycontext"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/queue"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/worker"
)

const (
	rateLimiterCleanupInterval = time.Minute
	rateLimiterMaxIdle         = 10 * time.Minute
)

// source is an EventSource plus whether its failure should stop the process.
// Only the listener is fatal; without it no webhook can be recorded.
type source struct {
	worker.EventSource
	fatal bool
}

// stopper is implemented by sources that wait for their loop to exit.
type stopper interface {
	Stop()
}

type Options struct {
	// ServeHTTP starts the webhook listener. The MCP binary only needs it
	// when resources are enabled.
	ServeHTTP bool
}

// App owns the payment context buffer and every source that feeds it.
type App struct {
	Buffer   *paycontext.Buffer
	Reader   *paycontext.Reader
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Listener *httpserver.Listener

	sources  []source
	fanout   *queue.Fanout
	producer queue.Producer
	limiter  *middleware.IPRateLimiter
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	a := &App{Metrics: m, Registry: registry}

	hooks := []paycontext.PushHook{m.ObservePush}
	if cfg.Pipeline.Enabled() {
		if err := a.connectPipeline(ctx, cfg.Pipeline); err != nil {
			return nil, err
		}
		hooks = append(hooks, a.fanout.Hook)
	}

	a.Buffer = paycontext.NewBuffer(model.MaxContextEvents, hooks...)
	a.Reader = paycontext.NewReader(a.Buffer)
	eventMapper := mapper.NewLemonSqueezyMapper()

	if opts.ServeHTTP {
		engine, err := a.newRouter(ctx, cfg, eventMapper)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Listener = httpserver.NewListener(engine, httpserver.ListenerConfig{Port: cfg.Webhook.Port})
		if err := a.Listener.Listen(); err != nil {
			a.Close()
			return nil, err
		}
		a.sources = append(a.sources, source{EventSource: a.Listener, fatal: true})
		slog.InfoContext(ctx, "webhook listener ready",
			"url", a.Listener.WebhookURL(),
			"signature_verification", cfg.Webhook.VerificationEnabled())
	}

	if cfg.PollerEnabled() {
		poller := worker.NewFailedPaymentPoller(
			lemonsqueezy.NewClient(cfg.LemonSqueezy),
			a.Buffer,
			eventMapper,
			m,
			worker.FailedPaymentPollerConfig{
				Interval: cfg.Polling.Interval(),
				PageSize: cfg.Polling.PageSize,
			},
		)
		a.sources = append(a.sources, source{EventSource: poller})
		slog.InfoContext(ctx, "failed payment poller enabled", "interval", cfg.Polling.Interval().String())
	}

	if cfg.LogTailEnabled() {
		watcher := worker.NewLogTailWatcher(cfg.Webhook.LogPath, a.Buffer, eventMapper, m)
		a.sources = append(a.sources, source{EventSource: watcher})
		slog.WarnContext(ctx, "log tail watcher is deprecated, point Lemon Squeezy at the webhook listener instead",
			"path", cfg.Webhook.LogPath)
	}

	return a, nil
}

func (a *App) connectPipeline(ctx context.Context, cfg config.PipelineConfig) error {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connecting to redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.RedisStream)

	a.producer = queue.NewRedisProducer(client, cfg.RedisStream, cfg.MaxLen, slog.Default())
	a.fanout = queue.NewFanout(a.producer, 0)
	return nil
}

func (a *App) newRouter(ctx context.Context, cfg config.Config, eventMapper mapper.PaymentEventMapper) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if !cfg.Webhook.VerificationEnabled() {
		slog.WarnContext(ctx, "LEMONSQUEEZY_WEBHOOK_SECRET not set, webhook signatures will not be verified")
	}

	if cfg.Webhook.RateLimit > 0 {
		a.limiter = middleware.NewIPRateLimiter(rate.Limit(cfg.Webhook.RateLimit), cfg.Webhook.RateBurst)
	}

	engine := gin.New()

	// ClientIP keys the rate limiter, so X-Forwarded-For is only honoured from
	// configured proxies. A nil list makes gin use the socket address.
	if err := engine.SetTrustedProxies(cfg.Webhook.TrustedProxies); err != nil {
		return nil, fmt.Errorf("setting trusted proxies: %w", err)
	}

	// OTel span first so recovery and request logs carry the trace context.
	if cfg.OTel.Enabled() {
		engine.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	handlers := router.Handlers{
		Health: handler.NewHealthHandler(cfg.OTel.ServiceName),
		Webhook: webhook.NewLemonSqueezyWebhookHandler(a.Buffer, eventMapper, a.Metrics, webhook.LemonSqueezyWebhookConfig{
			Secret:       cfg.Webhook.Secret,
			MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		}),
	}
	if cfg.EnableResources {
		handlers.Context = handler.NewContextHandler(a.Reader)
	}

	router.SetupRoutes(engine, handlers, router.RouterConfig{
		AdminAPIKey: cfg.AdminAPIKey,
		RateLimiter: a.limiter,
		OnRateLimited: func() {
			a.Metrics.Rejected(metrics.ReasonRateLimited)
		},
		Gatherer: a.Registry,
	})

	return engine, nil
}

// Run starts every source and blocks until ctx is cancelled. A fatal source
// that fails cancels the rest and its error is returned. Other sources that
// fail are logged and the process keeps serving.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(a.sources))

	if a.fanout != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.fanout.Run(ctx)
		}()
	}

	if a.limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.cleanupRateLimiter(ctx)
		}()
	}

	for _, src := range a.sources {
		wg.Add(1)
		go func(src source) {
			defer wg.Done()
			err := src.Run(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			if !src.fatal {
				slog.WarnContext(ctx, "event source stopped, continuing without it", "source", src.Name(), "error", err)
				return
			}
			slog.ErrorContext(ctx, "event source stopped", "source", src.Name(), "error", err)
			errCh <- fmt.Errorf("%s: %w", src.Name(), err)
			cancel()
		}(src)
	}

	slog.InfoContext(ctx, "event sources running", "count", len(a.sources))

	<-ctx.Done()
	a.stopSources()
	wg.Wait()
	close(errCh)

	return errors.Join(drain(errCh)...)
}

// stopSources waits for background sources in reverse start order, then the fanout.
func (a *App) stopSources() {
	for i := len(a.sources) - 1; i >= 0; i-- {
		if s, ok := a.sources[i].EventSource.(stopper); ok {
			s.Stop()
		}
	}
	if a.fanout != nil {
		a.fanout.Stop()
	}
}

func (a *App) cleanupRateLimiter(ctx context.Context) {
	ticker := time.NewTicker(rateLimiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := a.limiter.Cleanup(rateLimiterMaxIdle); removed > 0 {
				slog.DebugContext(ctx, "rate limiter entries evicted", "removed", removed, "remaining", a.limiter.Size())
			}
		}
	}
}

// Close releases the pipeline connection. Call after Run returns.
func (a *App) Close() {
	if a.producer == nil {
		return
	}
	if err := a.producer.Close(); err != nil {
		slog.Error("closing event producer", "error", err)
	}
}

func drain(errCh <-chan error) []error {
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}
