package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the contact module.
type Metrics struct {
	// Identify calls by outcome: created, linked, merged, matched
	IdentifyOutcome *prometheus.CounterVec

	// Identify failures by domain error code
	IdentifyErrors *prometheus.CounterVec

	IdentifyDuration prometheus.Histogram

	// Primaries turned secondary by cluster merges
	PrimariesDemoted prometheus.Counter

	// Event publish failures (best effort, never fail the request)
	PublishFailures prometheus.Counter
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the contact metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IdentifyOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_identify_total",
			Help: "Total identify calls by reconciliation outcome",
		}, []string{"outcome"}),
		IdentifyErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_identify_errors_total",
			Help: "Total failed identify calls by error code",
		}, []string{"code"}),
		IdentifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contact_identify_duration_seconds",
			Help:    "Duration of identify calls including lock wait and transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PrimariesDemoted: factory.NewCounter(prometheus.CounterOpts{
			Name: "contact_primaries_demoted_total",
			Help: "Total primary contacts demoted to secondary by cluster merges",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "contact_event_publish_failures_total",
			Help: "Total contact change events that could not be published",
		}),
	}
}

// ObserveIdentify records a successful identify call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIdentify(outcome string, start time.Time) {
	if m != nil {
		m.IdentifyOutcome.WithLabelValues(outcome).Inc()
		m.IdentifyDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) IncrementError(code string) {
	if m != nil {
		m.IdentifyErrors.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) AddDemoted(n int) {
	if m != nil && n > 0 {
		m.PrimariesDemoted.Add(float64(n))
	}
}

func (m *Metrics) IncrementPublishFailure() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}
