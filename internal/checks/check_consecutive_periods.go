package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"timetabler/pkg/domain"
)

// LongestLessonRun returns the longest run of consecutive Lesson periods in
// periods, which must already be ordered by column. Any other period type
// ends the run.
func LongestLessonRun(periods []domain.Period) int {
	best, run := 0, 0
	for _, p := range periods {
		if p.Type != domain.PeriodLesson {
			run = 0
			continue
		}
		run++
		if run > best {
			best = run
		}
	}
	return best
}

// maxConsecutive returns the longest lesson run over all days and the days
// that achieve it.
func maxConsecutive(r *domain.Reader) (int, []string) {
	best := 0
	var bestDays []string
	for _, day := range r.CycleDays() {
		run := LongestLessonRun(r.PeriodsForDay(day.ID))
		label := day.Name
		if label == "" {
			label = day.ID
		}
		switch {
		case run > best:
			best = run
			bestDays = []string{label}
		case run == best && run > 0:
			bestDays = append(bestDays, label)
		}
	}
	return best, bestDays
}

// ConsecutivePeriodAvailability reports, per block and required length, the
// multi-period meta lessons that no day of the cycle has room for.
func ConsecutivePeriodAvailability(_ context.Context, vc domain.ValidationContext) ([]domain.Issue, error) {
	r := domain.NewReader(vc.VersionData)
	maxRun, bestDays := maxConsecutive(r)

	var issues []domain.Issue
	for _, block := range r.Blocks() {
		byLength := make(map[int][]int)
		metaIDs := make(map[int][]string)
		for i, ml := range block.MetaLessons {
			if ml.Length <= 1 || ml.Length <= maxRun {
				continue
			}
			byLength[ml.Length] = append(byLength[ml.Length], i+1)
			metaIDs[ml.Length] = append(metaIDs[ml.Length], ml.ID)
		}
		lengths := make([]int, 0, len(byLength))
		for l := range byLength {
			lengths = append(lengths, l)
		}
		sort.Ints(lengths)

		for _, length := range lengths {
			indexes := byLength[length]
			shortage := length - maxRun
			refs := make([]string, len(indexes))
			for i, idx := range indexes {
				refs[i] = fmt.Sprintf("#%d", idx)
			}
			where := "no day has any consecutive lesson periods"
			if maxRun > 0 {
				where = fmt.Sprintf("the longest run of consecutive lesson periods is %d (%s)", maxRun, strings.Join(bestDays, ", "))
			}

			issue := newIssue(ConsecutivePeriodAvailabilityID, domain.IssueError, domain.SeverityCritical)
			issue.Title = fmt.Sprintf("%s needs %d consecutive periods that the cycle cannot provide", block.Label(), length)
			issue.Description = fmt.Sprintf("%s in %s cannot be scheduled anywhere in the cycle.",
				plural(len(indexes), "meta lesson", "meta lessons"), block.Label())
			issue.Details = fmt.Sprintf(
				"Meta lessons %s of %s span %d periods, but %s. Shortage: %s.",
				strings.Join(refs, ", "), block.Label(), length, where, plural(shortage, "period", "periods"),
			)
			issue.Recommendation = fmt.Sprintf(
				"Split these meta lessons into runs of at most %d periods, or rearrange breaks so a day offers %d consecutive lesson periods.",
				maxRun, length,
			)
			issue.Action = versionAction(vc, "Open block", "blocks/"+block.ID)
			issue.Metadata.AffectedBlocks = []string{block.ID}
			issue.Metadata.AffectedMetaLessons = metaIDs[length]
			issue.Metadata.Data["block_id"] = block.ID
			issue.Metadata.Data["required_length"] = length
			issue.Metadata.Data["max_consecutive"] = maxRun
			issue.Metadata.Data["shortage"] = shortage
			issue.Metadata.Data["best_days"] = append([]string(nil), bestDays...)
			issue.Metadata.Data["meta_lesson_indexes"] = indexes
			issues = append(issues, issue)
		}
	}
	return issues, nil
}
