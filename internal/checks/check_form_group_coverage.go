package checks

import (
	"context"
	"fmt"
	"strings"
	"timetabler/pkg/domain"
)

// CoverageViolation records a form group whose blocks do not add up to the
// lesson periods of the cycle. Difference is allocated minus expected.
type CoverageViolation struct {
	FormGroupID   string `json:"form_group_id"`
	FormGroupName string `json:"form_group_name"`
	Allocated     int    `json:"allocated"`
	Expected      int    `json:"expected"`
	Difference    int    `json:"difference"`
}

// FormGroupPeriodCoverage reports, in a single issue, every form group whose
// feeder blocks allocate more or fewer periods than the cycle offers.
func FormGroupPeriodCoverage(_ context.Context, vc domain.ValidationContext) ([]domain.Issue, error) {
	r := domain.NewReader(vc.VersionData)
	expected := r.LessonPeriodCount()
	if expected == 0 {
		return nil, nil
	}

	allocated := make(map[string]int)
	for _, block := range r.Blocks() {
		seen := make(map[string]struct{}, len(block.FeederFormGroups))
		for _, fg := range block.FeederFormGroups {
			if _, dup := seen[fg]; dup {
				continue
			}
			seen[fg] = struct{}{}
			allocated[fg] += block.TotalPeriods
		}
	}

	var violations []CoverageViolation
	for _, fg := range r.FormGroups() {
		got := allocated[fg.ID]
		if got == expected {
			continue
		}
		name := fg.Name
		if name == "" {
			name = fg.ID
		}
		violations = append(violations, CoverageViolation{
			FormGroupID:   fg.ID,
			FormGroupName: name,
			Allocated:     got,
			Expected:      expected,
			Difference:    got - expected,
		})
	}
	if len(violations) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(violations))
	lines := make([]string, 0, len(violations))
	for _, v := range violations {
		ids = append(ids, v.FormGroupID)
		state := "over"
		if v.Difference < 0 {
			state = "under"
		}
		lines = append(lines, fmt.Sprintf("%s: %d/%d periods (%+d, %s-allocated)", v.FormGroupName, v.Allocated, v.Expected, v.Difference, state))
	}

	issue := newIssue(FormGroupPeriodCoverageID, domain.IssueWarning, domain.SeverityMedium)
	issue.Title = "Form group period allocation does not match the cycle"
	issue.Description = fmt.Sprintf("%s not allocated exactly the %s of the cycle.",
		plural(len(violations), "form group is", "form groups are"), plural(expected, "lesson period", "lesson periods"))
	issue.Details = fmt.Sprintf("Every form group should be fed by blocks totalling %s. %s.",
		plural(expected, "period", "periods"), strings.Join(lines, "; "))
	issue.Recommendation = "Adjust block period totals or feeder form groups so each form group's blocks add up to the lesson periods in the cycle."
	issue.Action = versionAction(vc, "Review blocks", "blocks")
	issue.Metadata.AffectedFormGroups = ids
	issue.Metadata.Data["expected"] = expected
	issue.Metadata.Data["violations"] = violations
	return []domain.Issue{issue}, nil
}
