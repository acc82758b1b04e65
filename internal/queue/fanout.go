package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/logger"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

const (
	defaultFanoutBuffer = 64
	publishTimeout      = 5 * time.Second
)

// Fanout forwards buffered events to a Producer off the producer's hot path.
// Push hooks enqueue without blocking; when the queue is full the event is
// dropped and logged. The context buffer is never affected.
type Fanout struct {
	producer Producer
	events   chan model.PaymentEvent

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewFanout(producer Producer, size int) *Fanout {
	if size <= 0 {
		size = defaultFanoutBuffer
	}
	return &Fanout{
		producer:  producer,
		events:    make(chan model.PaymentEvent, size),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Hook has the context buffer push hook signature.
func (f *Fanout) Hook(event model.PaymentEvent, _ int) {
	select {
	case f.events <- event.Clone():
	default:
		slog.Warn("fanout queue full, dropping payment event", "type", event.Type)
	}
}

// Run publishes queued events until ctx is cancelled or Stop is called.
func (f *Fanout) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "paywatch.queue.fanout",
	})

	defer close(f.stoppedCh)

	slog.InfoContext(ctx, "fanout started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			slog.InfoContext(ctx, "fanout stopping")
			return
		case event := <-f.events:
			f.publish(ctx, event)
		}
	}
}

// Stop signals the fanout to stop and waits for Run to return.
func (f *Fanout) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
	<-f.stoppedCh
}

func (f *Fanout) publish(ctx context.Context, event model.PaymentEvent) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := f.producer.Publish(pubCtx, event); err != nil {
		slog.ErrorContext(ctx, "fanout publish failed", "error", err, "type", event.Type)
	}
}
