package checks

import (
	"context"
	"fmt"
	"timetabler/pkg/domain"
)

// ClassSpacingFeasibility flags classes with more lessons than days in the
// cycle; such a class cannot be limited to one lesson per day.
func ClassSpacingFeasibility(_ context.Context, vc domain.ValidationContext) ([]domain.Issue, error) {
	r := domain.NewReader(vc.VersionData)
	days := r.DaysInCycle()

	var issues []domain.Issue
	r.ForEachClass(func(block domain.Block, _ domain.TeachingGroup, class domain.Class) {
		lessons := len(class.Lessons)
		if lessons <= days {
			return
		}
		shortage := lessons - days
		subject := r.SubjectName(class.Subject)

		issue := newIssue(ClassSpacingFeasibilityID, domain.IssueError, domain.SeverityCritical)
		issue.Title = fmt.Sprintf("%s has more lessons than days in the cycle", class.Label())
		issue.Description = fmt.Sprintf("Class %s (%s) in %s cannot be spread to one lesson per day.", class.Label(), subject, block.Label())
		issue.Details = fmt.Sprintf(
			"Class %s has %s but the cycle only has %s, so at least %s must share a day with another lesson of the same class.",
			class.Label(), plural(lessons, "lesson", "lessons"), plural(days, "day", "days"), plural(shortage, "lesson", "lessons"),
		)
		issue.Recommendation = fmt.Sprintf(
			"Reduce %s to at most %s, combine singles into doubles, or extend the cycle by %s.",
			class.Label(), plural(days, "lesson", "lessons"), plural(shortage, "day", "days"),
		)
		issue.Action = versionAction(vc, "Open block", "blocks/"+block.ID)
		issue.Metadata.AffectedBlocks = []string{block.ID}
		issue.Metadata.AffectedClasses = []string{class.ID}
		if class.Subject != "" {
			issue.Metadata.AffectedSubjects = []string{class.Subject}
		}
		issue.Metadata.Data["block_id"] = block.ID
		issue.Metadata.Data["class_id"] = class.ID
		issue.Metadata.Data["lessons"] = lessons
		issue.Metadata.Data["days_in_cycle"] = days
		issue.Metadata.Data["shortage"] = shortage
		issues = append(issues, issue)
	})
	return issues, nil
}
