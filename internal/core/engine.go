// Package core runs the feasibility checks against a version document and
// aggregates their issues.
package core

import (
	"context"
	"fmt"
	"runtime"
	"time"
	"timetabler/internal/checks"
	"timetabler/pkg/domain"

	"golang.org/x/sync/errgroup"
)

const (
	opValidate         = "validate"
	opValidateParallel = "validate.parallel"
)

// CheckFailure is reported when a check returns an error or panics. The
// check's issues are discarded and the rest of the batch continues.
type CheckFailure struct {
	CheckID  string
	Panicked bool
	Err      error
}

func (f *CheckFailure) Error() string {
	if f.Panicked {
		return fmt.Sprintf("check %s panicked: %v", f.CheckID, f.Err)
	}
	return fmt.Sprintf("check %s failed: %v", f.CheckID, f.Err)
}

func (f *CheckFailure) Unwrap() error { return f.Err }

// Engine evaluates a fixed list of checks.
type Engine struct {
	checks      []checks.Definition
	logger      Logger
	metrics     MetricsRecorder
	tracer      Tracer
	now         func() time.Time
	parallelism int
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for check failures and run summaries.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for result timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithParallelism bounds the number of checks RunParallel executes at once.
// Values below 1 select runtime.GOMAXPROCS(0).
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// NewEngine constructs an engine over defs, evaluated in the given order.
func NewEngine(defs []checks.Definition, opts ...Option) *Engine {
	e := &Engine{
		checks:  append([]checks.Definition(nil), defs...),
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.parallelism < 1 {
		e.parallelism = runtime.GOMAXPROCS(0)
	}
	return e
}

// NewDefaultEngine builds an engine with every active check.
func NewDefaultEngine(opts ...Option) *Engine {
	return NewEngine(checks.Active(), opts...)
}

// Checks returns the definitions the engine evaluates.
func (e *Engine) Checks() []checks.Definition {
	return append([]checks.Definition(nil), e.checks...)
}

type outcome struct {
	issues []domain.Issue
	err    error
}

// Run evaluates the checks one after another.
func (e *Engine) Run(ctx context.Context, vc domain.ValidationContext) domain.ValidationResult {
	return e.run(ctx, vc, opValidate, func(ctx context.Context, vc domain.ValidationContext, runnable []checks.Definition) []outcome {
		outcomes := make([]outcome, len(runnable))
		for i, def := range runnable {
			outcomes[i] = e.execute(ctx, def, vc)
		}
		return outcomes
	})
}

// RunParallel evaluates the checks concurrently, at most parallelism at a
// time. The result is identical to Run apart from timestamps and issue ids.
func (e *Engine) RunParallel(ctx context.Context, vc domain.ValidationContext) domain.ValidationResult {
	return e.run(ctx, vc, opValidateParallel, func(ctx context.Context, vc domain.ValidationContext, runnable []checks.Definition) []outcome {
		outcomes := make([]outcome, len(runnable))
		var g errgroup.Group
		g.SetLimit(e.parallelism)
		for i, def := range runnable {
			g.Go(func() error {
				outcomes[i] = e.execute(ctx, def, vc)
				return nil
			})
		}
		_ = g.Wait()
		return outcomes
	})
}

func (e *Engine) run(ctx context.Context, vc domain.ValidationContext, op string, dispatch func(context.Context, domain.ValidationContext, []checks.Definition) []outcome) domain.ValidationResult {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, op)
	// Checks index the document in place once it is normalized.
	vc.VersionData = vc.VersionData.Normalized()

	result := domain.ValidationResult{
		Issues:        []domain.Issue{},
		ChecksRun:     []string{},
		ChecksSkipped: []string{},
		ChecksFailed:  []string{},
	}
	var runnable []checks.Definition
	for _, def := range e.checks {
		if missing := def.Prerequisites.Missing(vc); len(missing) > 0 {
			e.logger.Debug("check skipped", "check", def.ID, "missing", missing)
			result.ChecksSkipped = append(result.ChecksSkipped, def.ID)
			continue
		}
		runnable = append(runnable, def)
	}

	outcomes := dispatch(ctx, vc, runnable)
	for i, def := range runnable {
		result.ChecksRun = append(result.ChecksRun, def.ID)
		if outcomes[i].err != nil {
			result.ChecksFailed = append(result.ChecksFailed, def.ID)
			continue
		}
		result.Issues = append(result.Issues, outcomes[i].issues...)
	}
	result.Timestamp = e.now().UTC()

	var spanErr error
	if len(result.ChecksFailed) > 0 {
		spanErr = fmt.Errorf("%d checks failed", len(result.ChecksFailed))
	}
	span.End(spanErr)
	e.metrics.Observe(ctx, op, spanErr == nil, e.now().Sub(started))
	if rr, ok := e.metrics.(ResultRecorder); ok {
		rr.RecordResult(ctx, result)
	}
	e.logger.Info("validation finished",
		"version", vc.Ref().String(),
		"issues", len(result.Issues),
		"run", len(result.ChecksRun),
		"skipped", len(result.ChecksSkipped),
		"failed", len(result.ChecksFailed),
	)
	return result
}

// execute runs one check, converting errors and panics into a CheckFailure.
func (e *Engine) execute(ctx context.Context, def checks.Definition, vc domain.ValidationContext) (out outcome) {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "check."+def.ID)
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: &CheckFailure{CheckID: def.ID, Panicked: true, Err: fmt.Errorf("%v", r)}}
		}
		if out.err != nil {
			e.logger.Error("check failed", "check", def.ID, "error", out.err)
		}
		span.End(out.err)
		e.metrics.Observe(ctx, "check."+def.ID, out.err == nil, e.now().Sub(started))
	}()
	if def.Fn == nil {
		return outcome{err: &CheckFailure{CheckID: def.ID, Err: fmt.Errorf("no implementation registered")}}
	}
	issues, err := def.Fn(ctx, vc)
	if err != nil {
		return outcome{err: &CheckFailure{CheckID: def.ID, Err: err}}
	}
	return outcome{issues: issues}
}
