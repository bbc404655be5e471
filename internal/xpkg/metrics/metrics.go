package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the dispatch hub.
var (
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_claims_total",
			Help: "Total claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	ClaimDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_claim_duration_seconds",
			Help:    "Duration of claim operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AuditWriteFailuresTotal counts history rows that failed to write after
	// a successful claim. The claim stands; these rows need a backfill.
	AuditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_audit_write_failures_total",
			Help: "Failed delivery-history writes following a successful claim",
		},
	)

	BroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_broadcasts_total",
			Help: "Events published to the fanout exchange",
		},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_events_dropped_total",
			Help: "Inbound events dropped due to decode failures or unknown types",
		},
	)

	SessionsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_sessions",
			Help: "Currently registered push sessions by role",
		},
		[]string{"role"},
	)

	OverdueCompletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_overdue_completions_total",
			Help: "Orders auto-completed by the overdue sweeper",
		},
	)
)

// Register registers all metrics with the default registry.
func Register() {
	prometheus.MustRegister(ClaimsTotal)
	prometheus.MustRegister(ClaimDuration)
	prometheus.MustRegister(AuditWriteFailuresTotal)
	prometheus.MustRegister(BroadcastsTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(SessionsGauge)
	prometheus.MustRegister(OverdueCompletionsTotal)
}
