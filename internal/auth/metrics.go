package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authentication and authorization outcomes. A nil *Metrics
// records nothing.
type Metrics struct {
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	decisions     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Registration attempts by result.",
		}, []string{"result"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Permission checks by decision.",
		}, []string{"decision"}),
	}
}

const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"

	decisionAllowed = "allowed"
	decisionDenied  = "denied"
	decisionError   = "error"
)

func (m *Metrics) login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) registration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) decision(d string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d).Inc()
}
