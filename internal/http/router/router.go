package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/handler"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/handler/webhook"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/middleware"
)

type Handlers struct {
	Health  *handler.HealthHandler
	Webhook *webhook.LemonSqueezyWebhookHandler
	// Context is optional; the read surface is only mounted when set.
	Context *handler.ContextHandler
}

type RouterConfig struct {
	AdminAPIKey   string
	RateLimiter   *middleware.IPRateLimiter
	OnRateLimited func()
	// Gatherer serves /metrics when non-nil.
	Gatherer prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.GET("/health", h.Health.Health)

	WebhookRouter(router.Group("/webhooks"), h.Webhook, middleware.RateLimit(cfg.RateLimiter, cfg.OnRateLimited))

	if h.Context != nil && cfg.AdminAPIKey != "" {
		ContextRouter(router.Group("/context", middleware.AdminKey(cfg.AdminAPIKey)), h.Context)
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
}
