// Package metrics holds the Prometheus instruments for the trust boundary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway core.
type Metrics struct {
	LockoutsTriggered prometheus.Counter
	FailedAttempts    prometheus.Counter
	CSRFRejections    *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	BreakerFailures   *prometheus.CounterVec
	SignedRequests    prometheus.Counter
	ActiveConnections prometheus.Gauge
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		LockoutsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicgate_lockouts_triggered_total",
			Help: "Accounts locked after exceeding the failed-attempt threshold",
		}),
		FailedAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicgate_failed_login_attempts_total",
			Help: "Failed login attempts recorded by the lockout tracker",
		}),
		CSRFRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicgate_csrf_rejections_total",
			Help: "Requests rejected by the CSRF guard, by reason",
		}, []string{"reason"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "civicgate_circuit_breaker_state",
			Help: "Circuit breaker state per dependency (0=closed, 1=open)",
		}, []string{"service"}),
		BreakerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicgate_circuit_breaker_failures_total",
			Help: "Downstream call failures observed by circuit breakers",
		}, []string{"service"}),
		SignedRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicgate_signed_requests_total",
			Help: "Outbound requests carrying a gateway HMAC signature",
		}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "civicgate_active_connections",
			Help: "Inbound connections currently tracked by the shutdown coordinator",
		}),
	}
}
