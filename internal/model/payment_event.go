package model

import "time"

// MaxContextEvents is the retention window of the payment context buffer.
const MaxContextEvents = 10

// EventType tags which producer path created a PaymentEvent.
type EventType string

const (
	// EventTypeWebhook covers pushed webhooks and the legacy log-tail source.
	EventTypeWebhook       EventType = "webhook"
	EventTypeFailedPayment EventType = "failed_payment"
)

// PaymentEvent is the canonical record of one observed payment-related occurrence.
// Optional fields are pointers so "absent" and "zero" stay distinguishable on the wire.
type PaymentEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	Type          EventType `json:"type"`
	OrderID       *int64    `json:"orderId,omitempty"`
	CustomerEmail *string   `json:"customerEmail,omitempty"`
	Status        *string   `json:"status,omitempty"`
	Amount        *string   `json:"amount,omitempty"` // upstream display string, e.g. "$10.00"
	Message       string    `json:"message"`
}

// HasOrderID reports whether the event carries the given upstream order id.
func (e PaymentEvent) HasOrderID(orderID int64) bool {
	return e.OrderID != nil && *e.OrderID == orderID
}

// StatusIs reports whether the event status equals any of the given values.
func (e PaymentEvent) StatusIs(statuses ...string) bool {
	if e.Status == nil {
		return false
	}
	for _, s := range statuses {
		if *e.Status == s {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot alias the optional fields of a stored event.
func (e PaymentEvent) Clone() PaymentEvent {
	out := e
	if e.OrderID != nil {
		v := *e.OrderID
		out.OrderID = &v
	}
	if e.CustomerEmail != nil {
		v := *e.CustomerEmail
		out.CustomerEmail = &v
	}
	if e.Status != nil {
		v := *e.Status
		out.Status = &v
	}
	if e.Amount != nil {
		v := *e.Amount
		out.Amount = &v
	}
	return out
}
