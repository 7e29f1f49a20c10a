// Package metrics exposes Prometheus instrumentation for the execution
// engine. All recording methods are safe to call on a nil *Metrics so
// components can run uninstrumented.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patrol"

// Metrics holds every collector the engine and session pool report into.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive   prometheus.Gauge
	sessionsCreated  prometheus.Counter
	sessionsEvicted  prometheus.Counter
	scenariosTotal   *prometheus.CounterVec
	scenarioDuration prometheus.Histogram
	errorsTotal      *prometheus.CounterVec
	executionsTotal  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
}

// New creates a Metrics instance backed by its own registry, with the
// Go runtime and process collectors attached.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Browser sessions currently alive in the pool",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Browser sessions launched since startup",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "evicted_total",
			Help:      "Idle browser sessions closed by the sweeper",
		}),
		scenariosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Scenarios finished, by terminal status",
		}, []string{"status"}),
		scenarioDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall-clock time per scenario",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Classified scenario errors, by category",
		}, []string{"category"}),
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Executions reaching a terminal state, by status",
		}, []string{"status"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Progress events lost to full subscriber buffers",
		}),
	}

	m.registry.MustRegister(
		m.sessionsActive,
		m.sessionsCreated,
		m.sessionsEvicted,
		m.scenariosTotal,
		m.scenarioDuration,
		m.errorsTotal,
		m.executionsTotal,
		m.eventsDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SessionCreated records a freshly launched browser session.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.sessionsActive.Inc()
}

// SessionDestroyed records a session leaving the pool for any reason.
func (m *Metrics) SessionDestroyed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// SessionEvicted records an idle session closed by the sweeper. The
// caller still reports the destruction separately.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
}

// ScenarioFinished records a scenario reaching a terminal status.
func (m *Metrics) ScenarioFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.scenariosTotal.WithLabelValues(status).Inc()
	m.scenarioDuration.Observe(d.Seconds())
}

// ErrorClassified records a classified scenario error.
func (m *Metrics) ErrorClassified(category string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(category).Inc()
}

// ExecutionFinished records an execution reaching a terminal state.
func (m *Metrics) ExecutionFinished(status string) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(status).Inc()
}

// EventsDropped adds to the count of progress events lost to full
// subscriber buffers.
func (m *Metrics) EventsDropped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.eventsDropped.Add(float64(n))
}
