package paycontext

import (
	"time"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

const (
	ResourceURI         = "lemonsqueezy://payment-context"
	ResourceName        = "Current Payment Context"
	ResourceDescription = "Recent payment events, failed payments, and important updates. Automatically updated from webhooks or polling."
	ResourceMimeType    = "application/json"

	recentActivityLimit = 5
)

type Resource struct {
	LastUpdated time.Time            `json:"lastUpdated"`
	TotalEvents int                  `json:"totalEvents"`
	Events      []model.PaymentEvent `json:"events"`
	Summary     Summary              `json:"summary"`
}

type Summary struct {
	FailedPayments int      `json:"failedPayments"`
	RecentActivity []string `json:"recentActivity"`
}

// Reader is the read-only query surface over a Buffer.
type Reader struct {
	buffer *Buffer
	now    func() time.Time
}

func NewReader(buffer *Buffer) *Reader {
	return &Reader{buffer: buffer, now: time.Now}
}

// Resource builds the payment-context document from one consistent snapshot.
func (r *Reader) Resource() Resource {
	events := r.buffer.Snapshot()
	return Resource{
		LastUpdated: r.now().UTC(),
		TotalEvents: len(events),
		Events:      events,
		Summary:     summarize(events),
	}
}

// Query returns up to limit buffered events, newest first, optionally
// restricted to the given status. A limit <= 0 means no limit.
func (r *Reader) Query(status string, limit int) []model.PaymentEvent {
	events := r.buffer.Snapshot()
	out := make([]model.PaymentEvent, 0, len(events))
	for _, e := range events {
		if status != "" && !e.StatusIs(status) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func summarize(events []model.PaymentEvent) Summary {
	s := Summary{RecentActivity: make([]string, 0, recentActivityLimit)}
	for i, e := range events {
		if e.StatusIs("failed", "refunded") {
			s.FailedPayments++
		}
		if i < recentActivityLimit {
			s.RecentActivity = append(s.RecentActivity, e.Message)
		}
	}
	return s
}
