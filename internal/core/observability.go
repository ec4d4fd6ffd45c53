package core

import (
	"context"
	"time"
	"timetabler/pkg/domain"
)

// Logger is the structured logging surface used by the engine. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder receives one observation per engine operation and per
// executed check.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// ResultRecorder is implemented by metrics recorders that also want the
// aggregate outcome of a validation run.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result domain.ValidationResult)
}

// Tracer starts spans around engine operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the error the operation ended with, if any.
type TraceSpan interface {
	End(err error)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// MultiRecorder fans observations out to every recorder, forwarding results
// to those that implement ResultRecorder. Nil recorders are dropped.
func MultiRecorder(recorders ...MetricsRecorder) MetricsRecorder {
	kept := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return kept
}

type multiRecorder []MetricsRecorder

func (m multiRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, duration)
	}
}

func (m multiRecorder) RecordResult(ctx context.Context, result domain.ValidationResult) {
	for _, r := range m {
		if rr, ok := r.(ResultRecorder); ok {
			rr.RecordResult(ctx, result)
		}
	}
}
