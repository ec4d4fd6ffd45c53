package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"timetabler/pkg/domain"
)

// ConcurrencyViolation is one meta period in which a subject runs more
// classes at once than there are teachers able to teach it.
type ConcurrencyViolation struct {
	MetaLessonIndex   int    `json:"meta_lesson_index"`
	MetaPeriodIndex   int    `json:"meta_period_index"`
	MetaPeriodID      string `json:"meta_period_id"`
	ConcurrentClasses int    `json:"concurrent_classes"`
	TeachersAvailable int    `json:"teachers_available"`
	Shortage          int    `json:"shortage"`
}

type metaPeriodGroup struct {
	id         string
	metaLesson int
	metaPeriod int
	seen       int
	subjects   []string
	classes    map[string]map[string]struct{}
}

// ConcurrentTeachersCapacity groups each block's lessons by meta period and
// reports, per block and subject, every meta period that needs more teachers
// of that subject than the school has.
func ConcurrentTeachersCapacity(_ context.Context, vc domain.ValidationContext) ([]domain.Issue, error) {
	r := domain.NewReader(vc.VersionData)

	teachersAvailable := make(map[string]int)
	for _, t := range r.Teachers() {
		for subject, n := range t.SubjectAllocations {
			if n > 0 {
				teachersAvailable[subject]++
			}
		}
	}

	var issues []domain.Issue
	for _, block := range r.Blocks() {
		groups := groupByMetaPeriod(block)

		var subjects []string
		found := make(map[string][]ConcurrencyViolation)
		for _, g := range groups {
			for _, subject := range g.subjects {
				concurrent := len(g.classes[subject])
				avail := teachersAvailable[subject]
				if concurrent <= avail {
					continue
				}
				if _, ok := found[subject]; !ok {
					subjects = append(subjects, subject)
				}
				found[subject] = append(found[subject], ConcurrencyViolation{
					MetaLessonIndex:   g.metaLesson,
					MetaPeriodIndex:   g.metaPeriod,
					MetaPeriodID:      g.id,
					ConcurrentClasses: concurrent,
					TeachersAvailable: avail,
					Shortage:          concurrent - avail,
				})
			}
		}

		for _, subject := range subjects {
			issues = append(issues, concurrencyIssue(vc, r, block, subject, teachersAvailable[subject], found[subject]))
		}
	}
	return issues, nil
}

func groupByMetaPeriod(block domain.Block) []*metaPeriodGroup {
	index := make(map[string]*metaPeriodGroup)
	var groups []*metaPeriodGroup
	for _, tg := range block.TeachingGroups {
		for _, class := range tg.Classes {
			for _, lesson := range class.Lessons {
				if lesson.MetaPeriodID == "" {
					continue
				}
				g, ok := index[lesson.MetaPeriodID]
				if !ok {
					ml, mp := domain.MetaPeriodLocation(block, lesson.MetaPeriodID)
					g = &metaPeriodGroup{
						id:         lesson.MetaPeriodID,
						metaLesson: ml,
						metaPeriod: mp,
						seen:       len(groups),
						classes:    make(map[string]map[string]struct{}),
					}
					index[lesson.MetaPeriodID] = g
					groups = append(groups, g)
				}
				if _, ok := g.classes[class.Subject]; !ok {
					g.classes[class.Subject] = make(map[string]struct{})
					g.subjects = append(g.subjects, class.Subject)
				}
				g.classes[class.Subject][class.ID] = struct{}{}
			}
		}
	}
	// Structural order first; meta periods unknown to the block keep the
	// order they were first referenced in.
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if (a.metaLesson == 0) != (b.metaLesson == 0) {
			return b.metaLesson == 0
		}
		if a.metaLesson != b.metaLesson {
			return a.metaLesson < b.metaLesson
		}
		if a.metaPeriod != b.metaPeriod {
			return a.metaPeriod < b.metaPeriod
		}
		return a.seen < b.seen
	})
	return groups
}

func concurrencyIssue(vc domain.ValidationContext, r *domain.Reader, block domain.Block, subject string, avail int, violations []ConcurrencyViolation) domain.Issue {
	name := r.SubjectName(subject)
	maxShortage := 0
	slots := make([]string, 0, len(violations))
	for _, v := range violations {
		if v.Shortage > maxShortage {
			maxShortage = v.Shortage
		}
		slots = append(slots, fmt.Sprintf("meta lesson %d period %d (%s)", v.MetaLessonIndex, v.MetaPeriodIndex, plural(v.ConcurrentClasses, "class", "classes")))
	}

	issue := newIssue(ConcurrentTeachersCapacityID, domain.IssueWarning, domain.SeverityMedium)
	issue.Title = fmt.Sprintf("Not enough %s teachers for concurrent classes in %s", name, block.Label())
	issue.Description = fmt.Sprintf("Block %s runs more %s classes at the same time than there are teachers who can teach %s.", block.Label(), name, name)
	issue.Details = fmt.Sprintf(
		"%s can be taught by %s, but %s schedules concurrent %s classes in %s: %s. Maximum shortage: %s.",
		name, plural(avail, "teacher", "teachers"), block.Label(), name,
		plural(len(violations), "meta period", "meta periods"), strings.Join(slots, "; "),
		plural(maxShortage, "teacher", "teachers"),
	)
	issue.Recommendation = fmt.Sprintf(
		"Allocate %s to at least %s, or move %s classes in %s into different meta periods.",
		name, plural(maxShortage, "more teacher", "more teachers"), name, block.Label(),
	)
	issue.Action = versionAction(vc, "Open block", "blocks/"+block.ID)
	issue.Metadata.AffectedBlocks = []string{block.ID}
	issue.Metadata.AffectedSubjects = []string{subject}
	issue.Metadata.Data["block_id"] = block.ID
	issue.Metadata.Data["subject_id"] = subject
	issue.Metadata.Data["teachers_available"] = avail
	issue.Metadata.Data["max_shortage"] = maxShortage
	issue.Metadata.Data["violations"] = violations
	return issue
}
