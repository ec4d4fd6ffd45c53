package checks

import (
	"context"
	"fmt"
	"testing"
	"timetabler/pkg/domain"
)

func intPtr(v int) *int { return &v }

// weekCycle builds a cycle of n days, each with the given period types in
// column order.
func weekCycle(n int, types ...domain.PeriodType) *domain.Cycle {
	c := &domain.Cycle{Weeks: []domain.Week{{ID: "w1", Name: "Week A"}}}
	for d := 1; d <= n; d++ {
		dayID := fmt.Sprintf("d%d", d)
		c.Days = append(c.Days, domain.Day{ID: dayID, Name: fmt.Sprintf("Day %d", d), WeekID: "w1", Order: d})
		for col, typ := range types {
			c.Periods = append(c.Periods, domain.Period{
				ID:     fmt.Sprintf("%s-p%d", dayID, col+1),
				DayID:  dayID,
				Type:   typ,
				Column: col + 1,
			})
		}
	}
	return c
}

// lessons builds n single lessons for a class, optionally pinned to a meta period.
func lessons(classID string, n int, metaPeriodID string) []domain.Lesson {
	out := make([]domain.Lesson, n)
	for i := range out {
		out[i] = domain.Lesson{
			ID:           domain.LessonID(classID, i+1),
			Number:       i + 1,
			Length:       1,
			MetaPeriodID: metaPeriodID,
		}
	}
	return out
}

func class(id, subject string, ls []domain.Lesson) domain.Class {
	return domain.Class{ID: id, Title: id, Subject: subject, TotalPeriods: len(ls), Lessons: ls}
}

func ctxFor(doc domain.Document) domain.ValidationContext {
	return domain.ValidationContext{VersionData: doc, OrgID: "org", ProjectID: "proj", VersionID: "v1"}
}

func run(t *testing.T, fn Func, doc domain.Document) []domain.Issue {
	t.Helper()
	issues, err := fn(context.Background(), ctxFor(doc))
	if err != nil {
		t.Fatalf("check returned error: %v", err)
	}
	return issues
}

func dataInt(t *testing.T, issue domain.Issue, key string) int {
	t.Helper()
	v, ok := issue.Metadata.Data[key]
	if !ok {
		t.Fatalf("issue metadata missing %q: %+v", key, issue.Metadata.Data)
	}
	n, ok := v.(int)
	if !ok {
		t.Fatalf("metadata %q is %T, want int", key, v)
	}
	return n
}

func assertIssueShape(t *testing.T, issue domain.Issue, checkID string, typ domain.IssueType, sev domain.Severity) {
	t.Helper()
	if issue.CheckID != checkID {
		t.Fatalf("checkId = %q, want %q", issue.CheckID, checkID)
	}
	if issue.Type != typ || issue.Severity != sev {
		t.Fatalf("got %s/%s, want %s/%s", issue.Type, issue.Severity, typ, sev)
	}
	if len(issue.ID) != 8 {
		t.Fatalf("expected 8 character id, got %q", issue.ID)
	}
	if issue.Title == "" || issue.Details == "" || issue.Recommendation == "" {
		t.Fatalf("issue text incomplete: %+v", issue)
	}
	if issue.Timestamp.IsZero() {
		t.Fatalf("timestamp not set")
	}
}
