package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

// Producer appends recorded payment events to an external stream.
type Producer interface {
	Publish(ctx context.Context, event model.PaymentEvent) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, maxLen int64, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

func (p *redisProducer) Publish(ctx context.Context, event model.PaymentEvent) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: EventValues(event),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish payment event: %w", err)
	}

	p.logger.DebugContext(ctx, "published payment event", "stream", p.stream, "type", event.Type)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

// EventValues flattens an event into stream fields. Absent optional fields are omitted.
func EventValues(event model.PaymentEvent) map[string]any {
	fields := map[string]any{
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
		"type":      string(event.Type),
		"message":   event.Message,
	}
	if event.OrderID != nil {
		fields["order_id"] = *event.OrderID
	}
	if event.CustomerEmail != nil {
		fields["customer_email"] = *event.CustomerEmail
	}
	if event.Status != nil {
		fields["status"] = *event.Status
	}
	if event.Amount != nil {
		fields["amount"] = *event.Amount
	}
	return fields
}
