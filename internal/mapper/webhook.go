package mapper

import (
	"regexp"
	"strings"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

var wordStart = regexp.MustCompile(`\b\w`)

// FromWebhook normalizes a verified webhook delivery. eventName is the
// x-event-name header and is used only when the payload carries no
// meta.event_name. It never fails: missing attributes are left absent.
func (m *LemonSqueezyMapper) FromWebhook(eventName string, payload WebhookPayload) model.PaymentEvent {
	attrs := payload.Data.Attributes

	name := payload.Meta.EventName
	if name == "" {
		name = eventName
	}
	if name == "" {
		name = "unknown_event"
	}

	event := model.PaymentEvent{
		Timestamp: m.now(),
		Type:      model.EventTypeWebhook,
	}

	if v, ok := firstPresent(attrs, "order_id", "order_number"); ok {
		event.OrderID = leadingInt(v)
	} else if present(payload.Data.ID) {
		event.OrderID = leadingInt(payload.Data.ID)
	}

	event.CustomerEmail = optionalString(attrs, "user_email", "email")
	if status := optionalString(attrs, "status", "status_formatted"); status != nil {
		lower := strings.ToLower(*status)
		event.Status = &lower
	}
	event.Amount = optionalString(attrs, "total_formatted", "total")

	var b strings.Builder
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(ResourceTypeLabel(payload.Data.Type))
	if present(payload.Data.ID) {
		b.WriteString(" #")
		b.WriteString(stringify(payload.Data.ID))
	}
	if event.Status != nil {
		b.WriteString(" - ")
		b.WriteString(*event.Status)
	}
	if event.Amount != nil {
		b.WriteString(" - ")
		b.WriteString(*event.Amount)
	}
	if event.CustomerEmail != nil {
		b.WriteString(" (")
		b.WriteString(*event.CustomerEmail)
		b.WriteString(")")
	}
	event.Message = b.String()

	return event
}

// ResourceTypeLabel renders a JSON:API resource type for display:
// "subscription_invoices" becomes "Subscription Invoices".
func ResourceTypeLabel(resourceType string) string {
	if resourceType == "" {
		return "Resource"
	}
	spaced := strings.ReplaceAll(resourceType, "_", " ")
	return wordStart.ReplaceAllStringFunc(spaced, strings.ToUpper)
}
