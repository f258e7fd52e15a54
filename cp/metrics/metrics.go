package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks consent flow transitions and the calls made to the authorization server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FlowTransitions     *prometheus.CounterVec
	OutboundRequests    *prometheus.CounterVec
	OutboundDuration    *prometheus.HistogramVec
	CredentialRefreshes *prometheus.CounterVec
}

// New registers the consent provider metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FlowTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_flow_transitions_total",
			Help: "Consent flow state transitions, by state entered",
		}, []string{"state"}),
		OutboundRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_authserver_requests_total",
			Help: "Requests sent to the authorization server, by operation and outcome",
		}, []string{"operation", "outcome"}),
		OutboundDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consent_authserver_request_duration_seconds",
			Help:    "Duration of authorization server requests, including the credential retry",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		CredentialRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_credential_refresh_total",
			Help: "Service credential refreshes, by outcome",
		}, []string{"outcome"}),
	}
}

// FlowTransition counts a consent flow entering state.
func (m *Metrics) FlowTransition(state string) {
	if m == nil {
		return
	}
	m.FlowTransitions.WithLabelValues(state).Inc()
}

// ObserveOutbound records one authorization server operation.
// Call with time.Now() taken before the operation started.
func (m *Metrics) ObserveOutbound(operation string, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.OutboundRequests.WithLabelValues(operation, outcome).Inc()
	m.OutboundDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// CredentialRefresh counts a service credential refresh attempt.
func (m *Metrics) CredentialRefresh(outcome string) {
	if m == nil {
		return
	}
	m.CredentialRefreshes.WithLabelValues(outcome).Inc()
}
