package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/hr-approval/internal/application/port"
)

const namespace = "hr_approval"

// Metrics holds the engine collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	instancesCreated   *prometheus.CounterVec
	instancesCompleted *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	conflicts          *prometheus.CounterVec
	sweepRuns          prometheus.Counter
	sweepExamined      prometheus.Counter
	sweepAutoApproved  prometheus.Counter
	sweepFailures      prometheus.Counter
	lastSweepConflicts prometheus.Gauge
}

// New creates the collectors and registers them with the Go runtime collector
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		instancesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_created_total",
			Help:      "Approval instances started, by entity type.",
		}, []string{"entity_type"}),
		instancesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_completed_total",
			Help:      "Approval instances that reached a terminal status.",
		}, []string{"entity_type", "status"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Step decisions recorded, by action.",
		}, []string{"action"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Writes rejected by the optimistic version check.",
		}, []string{"operation"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Auto-approval sweeps executed.",
		}),
		sweepExamined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "examined_total",
			Help:      "In-progress instances examined by sweeps.",
		}),
		sweepAutoApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "auto_approved_total",
			Help:      "Steps auto-approved by sweeps.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "failures_total",
			Help:      "Instances a sweep failed to process.",
		}),
		lastSweepConflicts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "last_conflicts",
			Help:      "Instances skipped as concurrently modified in the latest sweep.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.instancesCreated,
		m.instancesCompleted,
		m.decisions,
		m.conflicts,
		m.sweepRuns,
		m.sweepExamined,
		m.sweepAutoApproved,
		m.sweepFailures,
		m.lastSweepConflicts,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) InstanceCreated(entityType string) {
	m.instancesCreated.WithLabelValues(entityType).Inc()
}

func (m *Metrics) InstanceCompleted(entityType, status string) {
	m.instancesCompleted.WithLabelValues(entityType, status).Inc()
}

func (m *Metrics) DecisionRecorded(action string) {
	m.decisions.WithLabelValues(action).Inc()
}

func (m *Metrics) Conflict(operation string) {
	m.conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) SweepCompleted(examined, autoApproved, conflicts, failures int) {
	m.sweepRuns.Inc()
	m.sweepExamined.Add(float64(examined))
	m.sweepAutoApproved.Add(float64(autoApproved))
	m.sweepFailures.Add(float64(failures))
	m.lastSweepConflicts.Set(float64(conflicts))
}

// Verify interface compliance
var _ port.EngineMetrics = (*Metrics)(nil)
