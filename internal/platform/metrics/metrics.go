package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the web tier.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	GatewayRequests *prometheus.CounterVec
	GuardDecisions  *prometheus.CounterVec
	FlowTransitions *prometheus.CounterVec
	SessionsExpired prometheus.Counter
	TokenRefreshes  *prometheus.CounterVec
	gatherer        prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trid_gateway_requests_total",
			Help: "Auth backend calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trid_guard_decisions_total",
			Help: "Route guard decisions by result",
		}, []string{"decision"}),
		FlowTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trid_flow_transitions_total",
			Help: "Form flow state transitions by flow and target status",
		}, []string{"flow", "status"}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "trid_sessions_expired_total",
			Help: "Persisted sessions removed by the janitor",
		}),
		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trid_token_refreshes_total",
			Help: "Access token refresh attempts by outcome",
		}, []string{"outcome"}),
		gatherer: reg,
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveGateway counts one backend call.
func (m *Metrics) ObserveGateway(operation, outcome string) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(operation, outcome).Inc()
}

// ObserveGuard counts one guard decision.
func (m *Metrics) ObserveGuard(decision string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(decision).Inc()
}

// ObserveFlow counts one flow transition.
func (m *Metrics) ObserveFlow(flow, status string) {
	if m == nil {
		return
	}
	m.FlowTransitions.WithLabelValues(flow, status).Inc()
}

// ObserveExpired adds n janitor removals.
func (m *Metrics) ObserveExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsExpired.Add(float64(n))
}

// ObserveRefresh counts one token refresh attempt.
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}
