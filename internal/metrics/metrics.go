package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "herald"

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	emailsSent *prometheus.CounterVec
	requests   *prometheus.CounterVec
	events     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Notification emails handed to the mail channel, by template and outcome.",
		}, []string{"template", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_requests_total",
			Help:      "Subscription and cancellation operations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_events_total",
			Help:      "Publish events dispatched, by source and outcome.",
		}, []string{"source", "outcome"}),
	}

	m.registry.MustRegister(
		m.emailsSent,
		m.requests,
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) EmailSent(template string, err error) {
	if m == nil {
		return
	}
	m.emailsSent.WithLabelValues(template, outcome(err)).Inc()
}

// Request counts one service operation. Outcome is a short label such as
// "ok" or "not_subscribable".
func (m *Metrics) Request(operation, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Event(source string, err error) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(source, outcome(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) EmailsSent() *prometheus.CounterVec { return m.emailsSent }
func (m *Metrics) Requests() *prometheus.CounterVec   { return m.requests }
func (m *Metrics) Events() *prometheus.CounterVec     { return m.events }

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
