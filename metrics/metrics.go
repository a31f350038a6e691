// Package metrics records identity core counters in Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dirauth "github.com/goliatone/go-dirauth"
)

const namespace = "dirauth"

// Collector implements dirauth.MetricsRecorder.
type Collector struct {
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	gate          *prometheus.CounterVec
}

var _ dirauth.MetricsRecorder = (*Collector)(nil)

// NewCollector registers the counters with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		gate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Authorization gate decisions by group and outcome.",
		}, []string{"group", "outcome"}),
	}

	reg.MustRegister(c.logins, c.registrations, c.gate)

	return c
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordGateDecision(group, outcome string) {
	c.gate.WithLabelValues(group, outcome).Inc()
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute mounts Handler on /metrics.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
