package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Producers enrich the context once (component, source) and every slog call below
// them picks the fields up through TraceHandler.
type LogFields struct {
	DeliveryID *int64  // Snowflake id assigned to an inbound webhook delivery
	OrderID    *int64  // Upstream order id, when known
	EventName  *string // Upstream event name (e.g. "order_created")
	Source     string  // Producer that recorded the event: webhook, poller, logtail
	Component  string  // Component name, e.g. "paywatch.worker.poller"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.DeliveryID != nil {
		result.DeliveryID = new.DeliveryID
	}
	if new.OrderID != nil {
		result.OrderID = new.OrderID
	}
	if new.EventName != nil {
		result.EventName = new.EventName
	}
	if new.Source != "" {
		result.Source = new.Source
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Used for log lines read from untrusted files.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
