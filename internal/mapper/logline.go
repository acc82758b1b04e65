package mapper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

var (
	logOrderPattern  = regexp.MustCompile(`(?i)order[_\s#]?(\d+)`)
	logEmailPattern  = regexp.MustCompile(`([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)
	logStatusPattern = regexp.MustCompile(`(?i)(paid|refunded|failed|cancelled|active|expired)`)

	paymentKeywords = []string{"order", "subscription", "payment"}
)

// LastNonBlankLine returns the last line of content that is not all whitespace.
func LastNonBlankLine(content string) (string, bool) {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if strings.TrimSpace(line) != "" {
			return line, true
		}
	}
	return "", false
}

// IsPaymentLine reports whether a log line mentions an order, subscription or payment.
// The match is case-sensitive.
func IsPaymentLine(line string) bool {
	for _, kw := range paymentKeywords {
		if strings.Contains(line, kw) {
			return true
		}
	}
	return false
}

// FromLogLine scrapes a payment event out of a free-form log line. The line
// itself becomes the message.
func (m *LemonSqueezyMapper) FromLogLine(line string) (model.PaymentEvent, error) {
	if !IsPaymentLine(line) {
		return model.PaymentEvent{}, ErrNotPaymentLine
	}

	event := model.PaymentEvent{
		Timestamp: m.now(),
		Type:      model.EventTypeWebhook,
		Message:   line,
	}

	if match := logOrderPattern.FindStringSubmatch(line); match != nil {
		if n, err := strconv.ParseInt(match[1], 10, 64); err == nil {
			event.OrderID = &n
		}
	}
	if match := logEmailPattern.FindStringSubmatch(line); match != nil {
		email := match[1]
		event.CustomerEmail = &email
	}
	if match := logStatusPattern.FindStringSubmatch(line); match != nil {
		status := strings.ToLower(match[1])
		event.Status = &status
	}

	return event, nil
}

// FromLogContent normalizes the last non-blank line of a log file.
func (m *LemonSqueezyMapper) FromLogContent(content string) (model.PaymentEvent, error) {
	line, ok := LastNonBlankLine(content)
	if !ok {
		return model.PaymentEvent{}, ErrEmptyLogContent
	}
	return m.FromLogLine(line)
}
