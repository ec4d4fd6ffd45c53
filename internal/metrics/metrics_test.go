package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"
	"timetabler/internal/core"
	"timetabler/internal/optimizer"
	"timetabler/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ core.MetricsRecorder = (*Collector)(nil)
	_ core.ResultRecorder  = (*Collector)(nil)
)

func TestNewCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)
	require.NotNil(t, collector)

	assert.Panics(t, func() { NewCollector(reg) }, "registering twice should panic")
}

func TestNewCollectorDefaultRegisterer(t *testing.T) {
	previous := prometheus.DefaultRegisterer
	defer func() { prometheus.DefaultRegisterer = previous }()
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg

	collector := NewCollector(nil)
	collector.Observe(context.Background(), "validate", true, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestObserve(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.Observe(context.Background(), "validate", true, 20*time.Millisecond)
	collector.Observe(context.Background(), "validate", true, 10*time.Millisecond)
	collector.Observe(context.Background(), "check.x", false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.operations.WithLabelValues("validate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.operations.WithLabelValues("check.x", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.operations.WithLabelValues("check.x", "success")))
}

func TestRecordResult(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())
	collector.RecordResult(context.Background(), domain.ValidationResult{
		Issues: []domain.Issue{
			{CheckID: "a", Severity: domain.SeverityCritical},
			{CheckID: "a", Severity: domain.SeverityCritical},
			{CheckID: "b", Severity: domain.SeverityMedium},
		},
		ChecksSkipped: []string{"c"},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.issues.WithLabelValues("a", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.issues.WithLabelValues("b", "medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.skipped.WithLabelValues("c")))
}

func TestRecordOptimization(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())
	collector.RecordOptimization(optimizer.Result{
		Placements: []optimizer.Placement{
			{LessonID: "a"},
			{LessonID: "b", Conflict: true},
			{LessonID: "c"},
		},
		Unassigned: []string{"d"},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.optimizerTotal.WithLabelValues(OutcomePlaced)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.optimizerTotal.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.optimizerTotal.WithLabelValues(OutcomeUnassigned)))
}

func TestCollectorWithEngine(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())
	engine := core.NewDefaultEngine(core.WithMetricsRecorder(collector))

	res := engine.Run(context.Background(), domain.ValidationContext{})
	require.Empty(t, res.ChecksRun)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.operations.WithLabelValues("validate", "success")))
	assert.Equal(t, len(res.ChecksSkipped), testutil.CollectAndCount(collector.skipped))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)
	collector.Observe(context.Background(), "validate", true, time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `timetabler_operations_total{operation="validate",status="success"} 1`)
}
