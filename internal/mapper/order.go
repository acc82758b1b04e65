package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/lemonsqueezy"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

var failedOrderStatuses = map[string]struct{}{
	"refunded":  {},
	"failed":    {},
	"cancelled": {},
}

// IsFailedOrder reports whether the order's status is one the poller records.
func IsFailedOrder(order lemonsqueezy.Order) bool {
	_, ok := failedOrderStatuses[strings.ToLower(order.Attributes.Status)]
	return ok
}

// FromOrder normalizes an order returned by the upstream API on the poll path.
// The timestamp is the local receipt time; created_at is not trusted.
func (m *LemonSqueezyMapper) FromOrder(order lemonsqueezy.Order) model.PaymentEvent {
	attrs := order.Attributes
	status := strings.ToLower(attrs.Status)

	amount := attrs.TotalFormatted
	if amount == "" && attrs.Total != 0 {
		amount = strconv.FormatInt(attrs.Total, 10)
	}

	event := model.PaymentEvent{
		Timestamp: m.now(),
		Type:      model.EventTypeFailedPayment,
		OrderID:   leadingInt(order.ID),
		Message:   fmt.Sprintf("Failed payment: Order #%s - %s - %s", order.ID, status, amount),
	}
	if status != "" {
		event.Status = &status
	}
	if amount != "" {
		event.Amount = &amount
	}
	if attrs.UserEmail != "" {
		email := attrs.UserEmail
		event.CustomerEmail = &email
	}

	return event
}
