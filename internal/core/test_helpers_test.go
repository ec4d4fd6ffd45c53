package core

import (
	"context"
	"fmt"
	"sync"
	"time"
	"timetabler/internal/checks"
	"timetabler/pkg/domain"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu      sync.Mutex
	calls   []metricsCall
	results []domain.ValidationResult
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) RecordResult(_ context.Context, result domain.ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func stubCheck(id string, fn checks.Func) checks.Definition {
	return checks.Definition{ID: id, Name: id, Category: checks.CategoryModel, Fn: fn}
}

func emitting(n int) checks.Func {
	return func(_ context.Context, _ domain.ValidationContext) ([]domain.Issue, error) {
		out := make([]domain.Issue, n)
		for i := range out {
			out[i] = domain.Issue{ID: fmt.Sprintf("i%d", i), Details: fmt.Sprintf("issue %d", i)}
		}
		return out, nil
	}
}

func intPtr(v int) *int { return &v }

// fullDocument satisfies every prerequisite and triggers every built-in check.
func fullDocument() domain.Document {
	cycle := &domain.Cycle{Weeks: []domain.Week{{ID: "w1"}}}
	for d := 1; d <= 2; d++ {
		dayID := fmt.Sprintf("d%d", d)
		cycle.Days = append(cycle.Days, domain.Day{ID: dayID, Name: dayID, WeekID: "w1", Order: d})
		cycle.Periods = append(cycle.Periods,
			domain.Period{ID: dayID + "-1", DayID: dayID, Type: domain.PeriodLesson, Column: 1},
			domain.Period{ID: dayID + "-2", DayID: dayID, Type: domain.PeriodBreak, Column: 2},
			domain.Period{ID: dayID + "-3", DayID: dayID, Type: domain.PeriodLesson, Column: 3},
		)
	}
	return domain.Document{
		Cycle: cycle,
		Data: domain.Data{
			Subjects:    []domain.Subject{{ID: "ma", Name: "Maths"}},
			Teachers:    []domain.Teacher{{ID: "t1", Name: "Ada", SubjectAllocations: map[string]int{"ma": 1}, MaxPeriodsPerDay: intPtr(1)}},
			YearGroups:  []domain.YearGroup{{ID: "y7"}},
			Bands:       []domain.Band{{ID: "b7", YearGroupID: "y7"}},
			FormGroups:  []domain.FormGroup{{ID: "f1", Name: "7A", BandID: "b7"}},
			Departments: []domain.Department{{ID: "dep"}},
		},
		Model: domain.Model{Blocks: []domain.Block{{
			ID:               "blk",
			Title:            "Block 1",
			TotalPeriods:     3,
			FeederFormGroups: []string{"f1"},
			MetaLessons:      []domain.MetaLesson{{ID: "m1", Length: 2, MetaPeriods: []domain.MetaPeriod{{ID: "mp1"}, {ID: "mp2"}}}},
			TeachingGroups: []domain.TeachingGroup{
				{Number: 1, Classes: []domain.Class{{ID: "c1", Subject: "ma", Lessons: []domain.Lesson{
					{ID: "l1", Length: 1, MetaPeriodID: "mp1", TeacherID: "t1"},
					{ID: "l2", Length: 1, MetaPeriodID: "mp2", TeacherID: "t1"},
					{ID: "l3", Length: 1, TeacherID: "t1"},
				}}}},
				{Number: 2, Classes: []domain.Class{{ID: "c2", Subject: "ma", Lessons: []domain.Lesson{
					{ID: "l4", Length: 1, MetaPeriodID: "mp1"},
				}}}},
			},
		}}},
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
