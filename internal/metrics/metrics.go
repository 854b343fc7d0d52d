package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GateMetrics holds every collector exported on /metrics. A nil *GateMetrics
// records nothing.
type GateMetrics struct {
	// Decisions by action and reason
	DecisionsTotal  *prometheus.CounterVec
	ResolveDuration prometheus.Histogram

	// Analytics ingestion
	EventsTotal         *prometheus.CounterVec
	OverageChargedTotal *prometheus.CounterVec
	BillingErrorsTotal  prometheus.Counter

	// Failures on the decision path
	GeoLookupFailuresTotal prometheus.Counter
	StoreErrorsTotal       *prometheus.CounterVec
}

// NewGateMetrics registers the collectors with reg.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	factory := promauto.With(reg)
	return &GateMetrics{
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geo_gate_decisions_total",
				Help: "Storefront decisions by action and reason",
			},
			[]string{"action", "reason"},
		),

		ResolveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "geo_gate_resolve_duration_seconds",
				Help:    "Time spent building one storefront decision",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us, 200us, 400us...
			},
		),

		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geo_gate_analytics_events_total",
				Help: "Accepted analytics events by type",
			},
			[]string{"type"},
		),

		OverageChargedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geo_gate_overage_charged_visitors_total",
				Help: "Visitors above the plan limit that were charged",
			},
			[]string{"plan"},
		),

		BillingErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "geo_gate_billing_errors_total",
				Help: "Overage charges that failed and were released",
			},
		),

		GeoLookupFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "geo_gate_geo_lookup_failures_total",
				Help: "Country lookups that failed; the visitor was treated as unknown",
			},
		),

		StoreErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geo_gate_store_errors_total",
				Help: "Rule or usage store failures by operation",
			},
			[]string{"op"},
		),
	}
}

func (m *GateMetrics) RecordDecision(action, reason string, seconds float64) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(action, reason).Inc()
	m.ResolveDuration.Observe(seconds)
}

func (m *GateMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

func (m *GateMetrics) RecordOverage(plan string, units int64) {
	if m == nil {
		return
	}
	m.OverageChargedTotal.WithLabelValues(plan).Add(float64(units))
}

func (m *GateMetrics) RecordBillingError() {
	if m == nil {
		return
	}
	m.BillingErrorsTotal.Inc()
}

func (m *GateMetrics) RecordGeoFailure() {
	if m == nil {
		return
	}
	m.GeoLookupFailuresTotal.Inc()
}

func (m *GateMetrics) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(op).Inc()
}
