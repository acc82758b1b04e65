package paycontext

import (
	"sync"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

// PushHook observes every event that lands in the buffer. Hooks run after the
// lock is released, so they may block without stalling other producers.
type PushHook func(event model.PaymentEvent, size int)

// Buffer is the bounded, most-recent-first window of payment events shared by
// the webhook listener, the poller and the log-tail watcher.
// Index 0 is the newest event. The zero value is not usable; call NewBuffer.
type Buffer struct {
	mu       sync.RWMutex
	events   []model.PaymentEvent
	capacity int
	hooks    []PushHook
}

func NewBuffer(capacity int, hooks ...PushHook) *Buffer {
	if capacity <= 0 {
		capacity = model.MaxContextEvents
	}
	return &Buffer{
		events:   make([]model.PaymentEvent, 0, capacity),
		capacity: capacity,
		hooks:    hooks,
	}
}

// Push prepends event and truncates to capacity.
func (b *Buffer) Push(event model.PaymentEvent) {
	b.mu.Lock()
	size := b.prependLocked(event)
	b.mu.Unlock()

	b.notify(event, size)
}

// PushIfAbsent pushes event unless an event with the same order id is already
// buffered. The presence check and the push happen under one lock acquisition.
// Events without an order id are always pushed.
func (b *Buffer) PushIfAbsent(event model.PaymentEvent) bool {
	b.mu.Lock()
	if event.OrderID != nil && b.indexOfLocked(*event.OrderID) >= 0 {
		b.mu.Unlock()
		return false
	}
	size := b.prependLocked(event)
	b.mu.Unlock()

	b.notify(event, size)
	return true
}

// Snapshot returns a copy of the buffered events, newest first.
func (b *Buffer) Snapshot() []model.PaymentEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.PaymentEvent, len(b.events))
	for i, e := range b.events {
		out[i] = e.Clone()
	}
	return out
}

// FindByOrderID returns the newest buffered event for orderID.
func (b *Buffer) FindByOrderID(orderID int64) (model.PaymentEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i := b.indexOfLocked(orderID)
	if i < 0 {
		return model.PaymentEvent{}, false
	}
	return b.events[i].Clone(), true
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

func (b *Buffer) Capacity() int {
	return b.capacity
}

func (b *Buffer) prependLocked(event model.PaymentEvent) int {
	stored := event.Clone()
	if len(b.events) < b.capacity {
		b.events = append(b.events, model.PaymentEvent{})
	}
	// Shift right by one; the oldest entry falls off when full.
	copy(b.events[1:], b.events[:len(b.events)-1])
	b.events[0] = stored
	return len(b.events)
}

func (b *Buffer) indexOfLocked(orderID int64) int {
	for i := range b.events {
		if b.events[i].HasOrderID(orderID) {
			return i
		}
	}
	return -1
}

func (b *Buffer) notify(event model.PaymentEvent, size int) {
	for _, hook := range b.hooks {
		hook(event.Clone(), size)
	}
}
