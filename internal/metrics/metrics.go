// Package metrics exposes engine and optimizer activity as Prometheus
// metrics.
//
// Metrics:
//
//	timetabler_operations_total{operation,status}     counter
//	timetabler_operation_duration_seconds{operation}  histogram
//	timetabler_issues_total{check,severity}           counter
//	timetabler_checks_skipped_total{check}            counter
//	timetabler_optimizer_lessons_total{outcome}       counter
//
// operation is "validate", "validate.parallel" or "check.<id>"; outcome is
// one of placed, conflict or unassigned.
package metrics

import (
	"context"
	"net/http"
	"time"
	"timetabler/internal/optimizer"
	"timetabler/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Optimizer outcome label values.
const (
	OutcomePlaced     = "placed"
	OutcomeConflict   = "conflict"
	OutcomeUnassigned = "unassigned"
)

// Collector implements core.MetricsRecorder and core.ResultRecorder on top of
// Prometheus vectors.
type Collector struct {
	operations     *prometheus.CounterVec
	durations      *prometheus.HistogramVec
	issues         *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	optimizerTotal *prometheus.CounterVec
}

// NewCollector creates the metric vectors and registers them with reg, or
// with prometheus.DefaultRegisterer when reg is nil. It panics if the names
// are already registered.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_operations_total",
			Help: "Engine operations by outcome",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timetabler_operation_duration_seconds",
			Help:    "Engine operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_issues_total",
			Help: "Issues reported by validation runs",
		}, []string{"check", "severity"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_checks_skipped_total",
			Help: "Checks skipped because their prerequisites were not met",
		}, []string{"check"}),
		optimizerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_optimizer_lessons_total",
			Help: "Lessons handled by the block optimizer by outcome",
		}, []string{"outcome"}),
	}
	reg.MustRegister(c.operations, c.durations, c.issues, c.skipped, c.optimizerTotal)
	return c
}

// Observe records one operation.
func (c *Collector) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	c.operations.WithLabelValues(operation, status).Inc()
	c.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordResult counts the issues and skipped checks of a validation run.
func (c *Collector) RecordResult(_ context.Context, result domain.ValidationResult) {
	for _, issue := range result.Issues {
		c.issues.WithLabelValues(issue.CheckID, string(issue.Severity)).Inc()
	}
	for _, id := range result.ChecksSkipped {
		c.skipped.WithLabelValues(id).Inc()
	}
}

// RecordOptimization counts the placements of an optimizer run.
func (c *Collector) RecordOptimization(res optimizer.Result) {
	conflicts := res.Conflicts()
	c.optimizerTotal.WithLabelValues(OutcomePlaced).Add(float64(len(res.Placements) - conflicts))
	c.optimizerTotal.WithLabelValues(OutcomeConflict).Add(float64(conflicts))
	c.optimizerTotal.WithLabelValues(OutcomeUnassigned).Add(float64(len(res.Unassigned)))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
