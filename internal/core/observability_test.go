package core

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"strings"
	"testing"
	"time"
	"timetabler/internal/checks"
	"timetabler/pkg/domain"
)

func TestNoopLogger(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("noop logger panicked: %v", r)
		}
	}()
	logger := noopLogger{}
	logger.Debug("debug", "key", "value")
	logger.Info("info", "key", "value")
	logger.Warn("warn", "key", "value")
	logger.Error("error", "key", "value")
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "timetabler_engine_metrics_") {
		t.Fatalf("unexpected generated name %q", rec.Name())
	}
	if other := NewExpvarMetricsRecorder(""); other.Name() == rec.Name() {
		t.Fatalf("generated names should be unique")
	}

	engine := NewDefaultEngine(WithMetricsRecorder(rec))
	res := engine.Run(context.Background(), domain.ValidationContext{VersionData: fullDocument()})

	snap := rec.Snapshot()
	if snap.Results[opValidate]["success"] != 1 {
		t.Fatalf("expected one successful validate, got %+v", snap.Results)
	}
	for _, def := range checks.Active() {
		if snap.Results["check."+def.ID]["success"] != 1 {
			t.Fatalf("missing observation for %s: %+v", def.ID, snap.Results)
		}
	}
	var total int64
	for _, n := range snap.Issues {
		total += n
	}
	if total != int64(len(res.Issues)) {
		t.Fatalf("issue totals %d != %d", total, len(res.Issues))
	}

	rec.Observe(context.Background(), "", true, time.Second)
	if _, ok := rec.Snapshot().Results[""]; ok {
		t.Fatalf("empty operation should be ignored")
	}

	published := expvar.Get(rec.Name())
	if published == nil {
		t.Fatalf("recorder not published")
	}
	var decoded ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(published.String()), &decoded); err != nil {
		t.Fatalf("published value is not json: %v", err)
	}
	if decoded.Results[opValidate]["success"] != 1 {
		t.Fatalf("published snapshot mismatch: %+v", decoded.Results)
	}
}

func TestExpvarRecorderCountsSkipped(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	NewDefaultEngine(WithMetricsRecorder(rec)).Run(context.Background(), domain.ValidationContext{})
	snap := rec.Snapshot()
	if len(snap.Skipped) != len(checks.Active()) {
		t.Fatalf("expected every check counted as skipped, got %+v", snap.Skipped)
	}
}

type observeOnly struct{ n int }

func (o *observeOnly) Observe(context.Context, string, bool, time.Duration) { o.n++ }

func TestMultiRecorder(t *testing.T) {
	capture := &captureMetricsRecorder{}
	plain := &observeOnly{}
	engine := NewDefaultEngine(WithMetricsRecorder(MultiRecorder(capture, nil, plain)))
	engine.Run(context.Background(), domain.ValidationContext{VersionData: fullDocument()})

	if !capture.has(opValidate, true) {
		t.Fatalf("capture recorder missed the validate observation")
	}
	if len(capture.results) != 1 {
		t.Fatalf("expected one forwarded result, got %d", len(capture.results))
	}
	if want := len(checks.Active()) + 1; plain.n != want {
		t.Fatalf("plain recorder saw %d observations, want %d", plain.n, want)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	defs := []checks.Definition{
		stubCheck("ok", emitting(1)),
		stubCheck("bad", func(context.Context, domain.ValidationContext) ([]domain.Issue, error) {
			panic("nope")
		}),
	}
	NewEngine(defs, WithTracer(tracer)).Run(context.Background(), domain.ValidationContext{})

	entries := tracer.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(entries))
	}
	byOp := make(map[string]JSONTraceEntry)
	for _, e := range entries {
		byOp[e.Operation] = e
	}
	if byOp["check.ok"].Status != "success" {
		t.Fatalf("unexpected ok span %+v", byOp["check.ok"])
	}
	if bad := byOp["check.bad"]; bad.Status != "error" || !strings.Contains(bad.Error, "nope") {
		t.Fatalf("unexpected bad span %+v", bad)
	}
	if byOp[opValidate].Status != "error" {
		t.Fatalf("run span should carry the failure, got %+v", byOp[opValidate])
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("expected 3 json lines, got %d", lines)
	}

	if len(NewJSONTracer(nil).Entries()) != 0 {
		t.Fatalf("fresh tracer should be empty")
	}
}
