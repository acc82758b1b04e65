package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/logger"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/lemonsqueezy"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/mapper"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/metrics"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/paycontext"
)

const PollerName = "failed_payment_poller"

// OrderLister is the upstream call the poller depends on.
type OrderLister interface {
	ListOrders(ctx context.Context, params lemonsqueezy.ListOrdersParams) ([]lemonsqueezy.Order, error)
}

type FailedPaymentPollerConfig struct {
	Interval time.Duration
	PageSize int
}

// PollResult describes one poll cycle.
type PollResult struct {
	Fetched    int
	Failed     int
	Duplicates int
	Recorded   []model.PaymentEvent
}

// FailedPaymentPoller periodically lists recent orders and records the
// failed, refunded and cancelled ones that are not already buffered.
type FailedPaymentPoller struct {
	orders  OrderLister
	buffer  *paycontext.Buffer
	mapper  mapper.PaymentEventMapper
	metrics *metrics.Metrics
	cfg     FailedPaymentPollerConfig

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewFailedPaymentPoller(
	orders OrderLister,
	buffer *paycontext.Buffer,
	eventMapper mapper.PaymentEventMapper,
	m *metrics.Metrics,
	cfg FailedPaymentPollerConfig,
) *FailedPaymentPoller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &FailedPaymentPoller{
		orders:    orders,
		buffer:    buffer,
		mapper:    eventMapper,
		metrics:   m,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (p *FailedPaymentPoller) Name() string {
	return PollerName
}

// Run polls on every tick until ctx is cancelled or Stop is called. The first
// cycle runs one interval after start. Cycle errors are logged and never end the loop.
func (p *FailedPaymentPoller) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "paywatch.worker.poller",
		Source:    metrics.SourcePoller,
	})

	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "failed payment poller started",
		"interval", p.cfg.Interval,
		"page_size", p.cfg.PageSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stopCh:
			slog.InfoContext(ctx, "failed payment poller stopping")
			return nil
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// Stop signals the poller to stop and waits for Run to return.
func (p *FailedPaymentPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.stoppedCh
}

func (p *FailedPaymentPoller) cycle(ctx context.Context) {
	var result PollResult
	err := runSafe(ctx, PollerName, func() error {
		var err error
		result, err = p.PollOnce(ctx)
		return err
	})

	switch {
	case err == nil && len(result.Recorded) > 0:
		p.metrics.PollCycle(metrics.OutcomeRecorded)
	case err == nil:
		p.metrics.PollCycle(metrics.OutcomeEmpty)
	case IsIgnored(err):
		p.metrics.PollCycle(metrics.OutcomeIgnored)
		slog.DebugContext(ctx, "poll cycle ignored", "reason", err.Error())
	default:
		p.metrics.PollCycle(metrics.OutcomeError)
		slog.ErrorContext(ctx, "poll cycle error", "error", err)
	}
}

// PollOnce runs a single poll cycle. Upstream failures and empty pages are
// returned as *IgnoredError; the buffer is untouched in both cases.
func (p *FailedPaymentPoller) PollOnce(ctx context.Context) (PollResult, error) {
	sc := logger.StartSpan(ctx, "poller.cycle", trace.WithSpanKind(trace.SpanKindInternal))
	defer sc.End()
	ctx = sc.Context()

	var result PollResult

	orders, err := p.orders.ListOrders(ctx, lemonsqueezy.ListOrdersParams{Page: 1, Size: p.cfg.PageSize})
	if err != nil {
		sc.RecordError(err)
		return result, ignored("upstream list orders failed", fmt.Errorf("listing orders: %w", err))
	}
	if len(orders) == 0 {
		return result, ignored("no orders returned", nil)
	}
	result.Fetched = len(orders)

	for _, order := range orders {
		if !mapper.IsFailedOrder(order) {
			continue
		}
		result.Failed++

		event := p.mapper.FromOrder(order)
		if !p.buffer.PushIfAbsent(event) {
			result.Duplicates++
			continue
		}

		result.Recorded = append(result.Recorded, event)
		p.metrics.EventRecorded(metrics.SourcePoller)

		eventCtx := ctx
		if event.OrderID != nil {
			eventCtx = logger.WithLogFields(ctx, logger.LogFields{OrderID: event.OrderID})
		}
		slog.InfoContext(eventCtx, "failed payment recorded",
			"status", order.Attributes.Status,
			"amount", order.Attributes.TotalFormatted)
	}

	sc.SetAttributes(
		attribute.Int("poll.fetched", result.Fetched),
		attribute.Int("poll.failed", result.Failed),
		attribute.Int("poll.recorded", len(result.Recorded)),
	)

	return result, nil
}
