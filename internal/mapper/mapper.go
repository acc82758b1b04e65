package mapper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/lemonsqueezy"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

var (
	ErrInvalidPayload  = errors.New("invalid webhook payload")
	ErrNotPaymentLine  = errors.New("line does not mention a payment")
	ErrEmptyLogContent = errors.New("log content has no non-blank line")
)

// PaymentEventMapper turns upstream notifications into payment events.
type PaymentEventMapper interface {
	FromWebhook(eventName string, payload WebhookPayload) model.PaymentEvent
	FromOrder(order lemonsqueezy.Order) model.PaymentEvent
	FromLogLine(line string) (model.PaymentEvent, error)
	FromLogContent(content string) (model.PaymentEvent, error)
}

type WebhookPayload struct {
	Meta WebhookMeta `json:"meta"`
	Data WebhookData `json:"data"`
}

type WebhookMeta struct {
	EventName  string         `json:"event_name"`
	TestMode   bool           `json:"test_mode"`
	CustomData map[string]any `json:"custom_data,omitempty"`
}

type WebhookData struct {
	Type       string         `json:"type"`
	ID         any            `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// DecodeWebhook parses a raw webhook body. Numbers are kept as json.Number so
// large order ids survive intact.
func DecodeWebhook(body []byte) (WebhookPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return WebhookPayload{}, ErrInvalidPayload
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var payload WebhookPayload
	if err := dec.Decode(&payload); err != nil {
		return WebhookPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return WebhookPayload{}, fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}

	return payload, nil
}

type Option func(*LemonSqueezyMapper)

// WithClock overrides the receipt clock.
func WithClock(now func() time.Time) Option {
	return func(m *LemonSqueezyMapper) {
		m.now = now
	}
}

type LemonSqueezyMapper struct {
	now func() time.Time
}

func NewLemonSqueezyMapper(opts ...Option) *LemonSqueezyMapper {
	m := &LemonSqueezyMapper{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
