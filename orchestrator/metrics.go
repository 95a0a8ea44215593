package orchestrator

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for task execution.
type Metrics struct {
	tasks       *prometheus.CounterVec
	active      prometheus.Gauge
	agentRuns   *prometheus.HistogramVec
	agentErrors *prometheus.CounterVec
}

// MustNewMetrics registers the orchestrator collectors with reg. Collectors
// already registered under the same names are reused, so tests and multiple
// orchestrators can share a registry. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "orchestrator",
			Name:      "tasks_total",
			Help:      "Tasks finished, by outcome.",
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nexus",
			Subsystem: "orchestrator",
			Name:      "tasks_active",
			Help:      "Tasks currently executing.",
		}),
		agentRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nexus",
			Subsystem: "orchestrator",
			Name:      "agent_run_duration_seconds",
			Help:      "Duration of individual agent runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent", "status"}),
		agentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "orchestrator",
			Name:      "agent_failures_total",
			Help:      "Agent runs that returned an error.",
		}, []string{"agent"}),
	}
	m.tasks = register(reg, m.tasks)
	m.active = register(reg, m.active)
	m.agentRuns = register(reg, m.agentRuns)
	m.agentErrors = register(reg, m.agentErrors)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) taskFinished(outcome string) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.tasks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeAgent(name string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "completed"
	if err != nil {
		status = "failed"
		m.agentErrors.WithLabelValues(name).Inc()
	}
	m.agentRuns.WithLabelValues(name, status).Observe(d.Seconds())
}
