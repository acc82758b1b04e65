package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

const namespace = "paywatch"

// Event sources.
const (
	SourceWebhook = "webhook"
	SourcePoller  = "poller"
	SourceLogTail = "logtail"
)

// Webhook rejection reasons.
const (
	ReasonSignature   = "signature"
	ReasonJSON        = "json"
	ReasonTooLarge    = "too_large"
	ReasonRateLimited = "rate_limited"
)

// Poll cycle outcomes.
const (
	OutcomeRecorded = "recorded"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeIgnored  = "ignored"
)

// Metrics holds the collectors for every event producer. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	WebhookRejected *prometheus.CounterVec
	PollCycles      *prometheus.CounterVec
	LogTailIgnored  prometheus.Counter
	ContextEvents   prometheus.Gauge
}

func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		EventsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_recorded_total",
				Help:      "Payment events pushed into the context buffer",
			},
			[]string{"source"},
		),
		WebhookRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_rejected_total",
				Help:      "Webhook deliveries rejected before reaching the buffer",
			},
			[]string{"reason"},
		),
		PollCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Failed-payment poll cycles by outcome",
			},
			[]string{"outcome"},
		),
		LogTailIgnored: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logtail_ignored_total",
				Help:      "Log file changes that produced no event",
			},
		),
		ContextEvents: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "context_events",
				Help:      "Events currently held in the context buffer",
			},
		),
	}
}

func (m *Metrics) EventRecorded(source string) {
	if m == nil {
		return
	}
	m.EventsRecorded.WithLabelValues(source).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.WebhookRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) PollCycle(outcome string) {
	if m == nil {
		return
	}
	m.PollCycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LogTailSkipped() {
	if m == nil {
		return
	}
	m.LogTailIgnored.Inc()
}

// ObservePush is a context buffer push hook that tracks the buffer size.
func (m *Metrics) ObservePush(_ model.PaymentEvent, size int) {
	if m == nil {
		return
	}
	m.ContextEvents.Set(float64(size))
}
