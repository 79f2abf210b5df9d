// Package metrics holds the prometheus collectors for correlation runs.
//
// Collectors live on a private registry per Metrics value, so tests and repeated
// runs in one process never collide on the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geocorrelate"

// Metrics groups the run collectors.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal                *prometheus.CounterVec
	DistanceEvaluationsTotal *prometheus.CounterVec
	DurationSeconds          *prometheus.HistogramVec
	Points                   *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Correlation runs by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		DistanceEvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distance_evaluations_total",
			Help:      "Query-reference distance evaluations by strategy",
		}, []string{"strategy"}),
		DurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Duration of correlation stages",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"strategy", "stage"}),
		Points: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "points",
			Help:      "Points in the last run by set",
		}, []string{"set"}),
	}
	m.registry.MustRegister(m.RunsTotal, m.DistanceEvaluationsTotal, m.DurationSeconds, m.Points)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSearch records one finished search. Safe on a nil receiver.
func (m *Metrics) ObserveSearch(strategy string, queries, refs int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DistanceEvaluationsTotal.WithLabelValues(strategy).Add(float64(queries) * float64(refs))
	m.DurationSeconds.WithLabelValues(strategy, "search").Observe(elapsed.Seconds())
}

// ObserveRun records a finished correlation run. Safe on a nil receiver.
func (m *Metrics) ObserveRun(strategy string, queries, refs int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.RunsTotal.WithLabelValues(strategy, outcome).Inc()
	m.Points.WithLabelValues("query").Set(float64(queries))
	m.Points.WithLabelValues("reference").Set(float64(refs))
	if err == nil {
		m.DurationSeconds.WithLabelValues(strategy, "correlate").Observe(elapsed.Seconds())
	}
}

// WriteTextfile writes the registry in text exposition format for the node
// exporter textfile collector. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
