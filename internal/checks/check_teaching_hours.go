package checks

import (
	"context"
	"fmt"
	"timetabler/pkg/domain"
)

// TeachingHoursAvailability compares, per subject, the lessons modelled in
// every block with the periods teachers are allocated to teach.
func TeachingHoursAvailability(_ context.Context, vc domain.ValidationContext) ([]domain.Issue, error) {
	r := domain.NewReader(vc.VersionData)

	available := make(map[string]int)
	allocated := make(map[string][]string)
	for _, t := range r.Teachers() {
		for subject, n := range t.SubjectAllocations {
			available[subject] += n
			if n > 0 {
				allocated[subject] = append(allocated[subject], t.ID)
			}
		}
	}

	// Listed subjects come first in document order, then subjects that only
	// classes reference, in the order they are first met.
	var subjects []string
	seen := make(map[string]bool)
	for _, s := range r.Subjects() {
		if s.ID != "" && !seen[s.ID] {
			seen[s.ID] = true
			subjects = append(subjects, s.ID)
		}
	}
	required := make(map[string]int)
	classes := make(map[string][]string)
	r.ForEachClass(func(_ domain.Block, _ domain.TeachingGroup, c domain.Class) {
		if c.Subject == "" {
			return
		}
		if !seen[c.Subject] {
			seen[c.Subject] = true
			subjects = append(subjects, c.Subject)
		}
		required[c.Subject] += len(c.Lessons)
		classes[c.Subject] = append(classes[c.Subject], c.ID)
	})

	var issues []domain.Issue
	for _, subjectID := range subjects {
		need, have := required[subjectID], available[subjectID]
		if need <= have {
			continue
		}
		shortfall := need - have
		name := r.SubjectName(subjectID)

		issue := newIssue(TeachingHoursAvailabilityID, domain.IssueWarning, domain.SeverityMedium)
		issue.Title = fmt.Sprintf("Insufficient teaching hours for %s", name)
		issue.Description = fmt.Sprintf("%s needs more lesson periods than its teachers are allocated.", name)
		issue.Details = fmt.Sprintf(
			"The curriculum model requires %s of %s, but teachers are only allocated %s. Shortfall: %s.",
			plural(need, "period", "periods"), name, plural(have, "period", "periods"), plural(shortfall, "period", "periods"),
		)
		issue.Recommendation = fmt.Sprintf(
			"Allocate at least %s more of %s to existing or new teachers, or reduce the number of %s lessons in the model.",
			plural(shortfall, "period", "periods"), name, name,
		)
		issue.Action = versionAction(vc, "Review teacher allocations", "teachers")
		issue.Metadata.AffectedSubjects = []string{subjectID}
		issue.Metadata.AffectedTeachers = allocated[subjectID]
		issue.Metadata.AffectedClasses = classes[subjectID]
		issue.Metadata.Data["subject_id"] = subjectID
		issue.Metadata.Data["required"] = need
		issue.Metadata.Data["available"] = have
		issue.Metadata.Data["shortfall"] = shortfall
		issues = append(issues, issue)
	}
	return issues, nil
}
