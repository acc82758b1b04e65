package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/id"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/logger"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/mapper"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/metrics"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/paycontext"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/signature"
)

const (
	SignatureHeader  = "X-Signature"
	EventNameHeader  = "X-Event-Name"
	DeliveryIDHeader = "X-Delivery-Id"

	DefaultMaxBodyBytes int64 = 1 << 20
)

type LemonSqueezyWebhookConfig struct {
	// Secret enables signature verification when non-empty.
	Secret       string
	MaxBodyBytes int64
}

type LemonSqueezyWebhookHandler struct {
	buffer  *paycontext.Buffer
	mapper  mapper.PaymentEventMapper
	metrics *metrics.Metrics
	cfg     LemonSqueezyWebhookConfig
}

func NewLemonSqueezyWebhookHandler(buffer *paycontext.Buffer, eventMapper mapper.PaymentEventMapper, m *metrics.Metrics, cfg LemonSqueezyWebhookConfig) *LemonSqueezyWebhookHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &LemonSqueezyWebhookHandler{
		buffer:  buffer,
		mapper:  eventMapper,
		metrics: m,
		cfg:     cfg,
	}
}

// HandleEvent verifies the raw body, normalizes it and records one payment event.
// Nothing is recorded unless the request is answered with 200.
func (h *LemonSqueezyWebhookHandler) HandleEvent(c *gin.Context) {
	deliveryID := id.New()
	c.Header(DeliveryIDHeader, strconv.FormatInt(deliveryID, 10))

	eventName := c.GetHeader(EventNameHeader)
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		DeliveryID: &deliveryID,
		Source:     metrics.SourceWebhook,
		Component:  "paywatch.http.webhook",
	})
	if eventName != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{EventName: &eventName})
	}

	if c.Request.ContentLength > h.cfg.MaxBodyBytes {
		h.reject(c, http.StatusRequestEntityTooLarge, metrics.ReasonTooLarge, "Payload too large")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(c, http.StatusRequestEntityTooLarge, metrics.ReasonTooLarge, "Payload too large")
			return
		}
		slog.WarnContext(ctx, "failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if h.cfg.Secret != "" && !signature.Verify(body, c.GetHeader(SignatureHeader), h.cfg.Secret) {
		slog.WarnContext(ctx, "invalid webhook signature")
		h.reject(c, http.StatusUnauthorized, metrics.ReasonSignature, "Invalid signature")
		return
	}

	payload, err := mapper.DecodeWebhook(body)
	if err != nil {
		slog.WarnContext(ctx, "invalid webhook payload", "error", err)
		h.reject(c, http.StatusBadRequest, metrics.ReasonJSON, "Invalid JSON payload")
		return
	}

	if eventName == "" {
		eventName = payload.Meta.EventName
	}

	event := h.mapper.FromWebhook(eventName, payload)
	h.buffer.Push(event)
	h.metrics.EventRecorded(metrics.SourceWebhook)

	if event.OrderID != nil {
		ctx = logger.WithLogFields(ctx, logger.LogFields{OrderID: event.OrderID})
	}
	attrs := []any{"event_name", eventName, "resource_type", payload.Data.Type, "test_mode", payload.Meta.TestMode}
	if event.CustomerEmail != nil {
		attrs = append(attrs, "customer_email", *event.CustomerEmail)
	}
	slog.InfoContext(ctx, "webhook received", attrs...)

	c.JSON(http.StatusOK, gin.H{"received": true, "event": eventName})
}

func (h *LemonSqueezyWebhookHandler) reject(c *gin.Context, status int, reason, message string) {
	h.metrics.Rejected(reason)
	c.JSON(status, gin.H{"error": message})
}
