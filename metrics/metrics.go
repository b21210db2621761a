// Package metrics exposes hostwatch statistics in Prometheus format.
//
// A nil *Metrics is valid and records nothing, so components take an
// optional *Metrics without guarding every call.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vinayprograms/hostwatch/connection"
)

const namespace = "hostwatch"

// Registration outcomes for the registrations_total counter.
const (
	ResultAccepted = "accepted"
	ResultMerged   = "merged"
	ResultRejected = "rejected"
	ResultInvalid  = "invalid"
)

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	participants        *prometheus.GaugeVec
	participantsUp      prometheus.Gauge
	availabilityChanges *prometheus.CounterVec
	registrations       *prometheus.CounterVec
	reports             prometheus.Counter
	sweeps              prometheus.Counter
	retainedScrubbed    prometheus.Counter
	connectionState     prometheus.Gauge
	reconnectAttempts   prometheus.Counter
	telemetryPublished  prometheus.Counter
}

var _ connection.Observer = (*Metrics)(nil)

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		participants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants",
			Help:      "Tracked participants by origin.",
		}, []string{"kind"}),
		participantsUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_up",
			Help:      "Participants currently marked up.",
		}),
		availabilityChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_changes_total",
			Help:      "Availability values published, by new state.",
		}, []string{"state"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration messages received, by outcome.",
		}, []string{"result"}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports received from known participants.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Liveness sweeps run.",
		}),
		retainedScrubbed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retained_scrubbed_total",
			Help:      "Foreign retained availability values cleared.",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Broker connection state (0 disconnected, 1 connecting, 2 connected).",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts started by the reconnect timer.",
		}),
		telemetryPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_published_total",
			Help:      "Telemetry snapshots published by the agent.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.participants,
		m.participantsUp,
		m.availabilityChanges,
		m.registrations,
		m.reports,
		m.sweeps,
		m.retainedScrubbed,
		m.connectionState,
		m.reconnectAttempts,
		m.telemetryPublished,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetParticipants records the registry population.
func (m *Metrics) SetParticipants(static, dynamic, up int) {
	if m == nil {
		return
	}
	m.participants.WithLabelValues("static").Set(float64(static))
	m.participants.WithLabelValues("dynamic").Set(float64(dynamic))
	m.participantsUp.Set(float64(up))
}

// AvailabilityChanged counts a published availability value.
func (m *Metrics) AvailabilityChanged(up bool) {
	if m == nil {
		return
	}
	state := "down"
	if up {
		state = "up"
	}
	m.availabilityChanges.WithLabelValues(state).Inc()
}

// Registration counts a registration outcome.
func (m *Metrics) Registration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// Report counts a report from a known participant.
func (m *Metrics) Report() {
	if m == nil {
		return
	}
	m.reports.Inc()
}

// Sweep counts a liveness sweep.
func (m *Metrics) Sweep() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}

// RetainedScrubbed counts a cleared foreign availability topic.
func (m *Metrics) RetainedScrubbed() {
	if m == nil {
		return
	}
	m.retainedScrubbed.Inc()
}

// TelemetryPublished counts a published snapshot.
func (m *Metrics) TelemetryPublished() {
	if m == nil {
		return
	}
	m.telemetryPublished.Inc()
}

// ObserveState implements connection.Observer.
func (m *Metrics) ObserveState(s connection.State) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(s))
}

// ObserveReconnectAttempt implements connection.Observer.
func (m *Metrics) ObserveReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}
