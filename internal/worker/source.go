package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// EventSource is a producer that feeds the payment context buffer.
// Run blocks until ctx is cancelled or the source is stopped.
type EventSource interface {
	Name() string
	Run(ctx context.Context) error
}

// IgnoredError marks a cycle or change that was swallowed without recording
// an event. It is never fatal to the producer loop.
type IgnoredError struct {
	Reason string
	Err    error
}

func (e *IgnoredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ignored: %s: %v", e.Reason, e.Err)
	}
	return "ignored: " + e.Reason
}

func (e *IgnoredError) Unwrap() error {
	return e.Err
}

func ignored(reason string, err error) *IgnoredError {
	return &IgnoredError{Reason: reason, Err: err}
}

// IsIgnored reports whether err is, or wraps, an *IgnoredError.
func IsIgnored(err error) bool {
	var ie *IgnoredError
	return errors.As(err, &ie)
}

// runSafe calls fn and converts a panic into an error.
func runSafe(ctx context.Context, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in event source",
				"panic", r,
				"source", name)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
