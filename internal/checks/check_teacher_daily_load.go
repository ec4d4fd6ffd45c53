package checks

import (
	"context"
	"fmt"
	"strings"
	"timetabler/pkg/domain"
)

// SubjectLoad is the number of pre-assigned periods a teacher has in one subject.
type SubjectLoad struct {
	SubjectID string `json:"subject_id"`
	Periods   int    `json:"periods"`
}

type teacherLoad struct {
	total     int
	bySubject map[string]int
	subjects  []string
}

// TeacherDailyLoad checks that the lessons already assigned to each capped
// teacher can be spread over the cycle without breaking the daily cap.
// Unassigned lessons are ignored.
func TeacherDailyLoad(_ context.Context, vc domain.ValidationContext) ([]domain.Issue, error) {
	r := domain.NewReader(vc.VersionData)
	days := r.DaysInCycle()

	loads := make(map[string]*teacherLoad)
	r.ForEachLesson(func(_ domain.Block, _ domain.TeachingGroup, class domain.Class, lesson domain.Lesson) {
		if lesson.TeacherID == "" {
			return
		}
		ld, ok := loads[lesson.TeacherID]
		if !ok {
			ld = &teacherLoad{bySubject: make(map[string]int)}
			loads[lesson.TeacherID] = ld
		}
		if _, seen := ld.bySubject[class.Subject]; !seen {
			ld.subjects = append(ld.subjects, class.Subject)
		}
		ld.bySubject[class.Subject] += lesson.Length
		ld.total += lesson.Length
	})

	var issues []domain.Issue
	for _, teacher := range r.Teachers() {
		limit := teacher.DailyCap()
		if limit <= 0 {
			continue
		}
		ld := loads[teacher.ID]
		if ld == nil || ld.total == 0 {
			continue
		}
		minDays := (ld.total + limit - 1) / limit
		if minDays <= days {
			continue
		}
		shortageDays := minDays - days
		excess := ld.total - limit*days

		breakdown := make([]SubjectLoad, 0, len(ld.subjects))
		parts := make([]string, 0, len(ld.subjects))
		for _, subject := range ld.subjects {
			breakdown = append(breakdown, SubjectLoad{SubjectID: subject, Periods: ld.bySubject[subject]})
			parts = append(parts, fmt.Sprintf("%s: %d", r.SubjectName(subject), ld.bySubject[subject]))
		}
		name := teacher.Name
		if name == "" {
			name = teacher.ID
		}

		issue := newIssue(TeacherDailyLoadID, domain.IssueError, domain.SeverityHigh)
		issue.Title = fmt.Sprintf("%s cannot fit assigned lessons within the daily limit", name)
		issue.Description = fmt.Sprintf("%s's assigned lessons need more days than the cycle has at %s per day.", name, plural(limit, "period", "periods"))
		issue.Details = fmt.Sprintf(
			"%s is assigned %s (%s) with a limit of %s per day, which needs at least %s; the cycle has %s. That is %s short, or %s over capacity.",
			name, plural(ld.total, "period", "periods"), strings.Join(parts, ", "), plural(limit, "period", "periods"),
			plural(minDays, "day", "days"), plural(days, "day", "days"), plural(shortageDays, "day", "days"), plural(excess, "period", "periods"),
		)
		issue.Recommendation = fmt.Sprintf(
			"Move at least %s from %s to other teachers or raise the daily limit to %d.",
			plural(excess, "period", "periods"), name, ceilDiv(ld.total, days),
		)
		issue.Action = versionAction(vc, "Review teacher", "teachers/"+teacher.ID)
		issue.Metadata.AffectedTeachers = []string{teacher.ID}
		issue.Metadata.AffectedSubjects = append([]string(nil), ld.subjects...)
		issue.Metadata.Data["teacher_id"] = teacher.ID
		issue.Metadata.Data["total_periods"] = ld.total
		issue.Metadata.Data["max_periods_per_day"] = limit
		issue.Metadata.Data["days_in_cycle"] = days
		issue.Metadata.Data["min_days_needed"] = minDays
		issue.Metadata.Data["shortage_days"] = shortageDays
		issue.Metadata.Data["excess_periods"] = excess
		issue.Metadata.Data["subject_breakdown"] = breakdown
		issues = append(issues, issue)
	}
	return issues, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
