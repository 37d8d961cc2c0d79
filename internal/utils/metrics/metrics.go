package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus collectors for the authentication core. It
// is constructed once at startup and injected; there is no package-level
// mutable state.
type Metrics struct {
	AuthAttempts      *prometheus.CounterVec
	RateLimitDecision *prometheus.CounterVec
	AuditDegraded     prometheus.Counter
	SessionsActive    prometheus.Gauge
	ProviderExchanges *prometheus.CounterVec
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		RateLimitDecision: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limiter decisions by state.",
		}, []string{"state"}),
		AuditDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "audit_degraded_total",
			Help:      "Audit entries dropped because the audit store was unavailable or backlogged.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "authcore",
			Name:      "sessions_active",
			Help:      "Sessions issued minus sessions revoked or expired (best effort).",
		}),
		ProviderExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "provider_exchanges_total",
			Help:      "OAuth token-endpoint exchanges by provider and result.",
		}, []string{"provider", "result"}),
	}
}
