package optimizer

import "timetabler/pkg/domain"

// InputsFromBlock flattens a block into optimizer inputs. Lessons take their
// subject from the class and their group number from the teaching group.
func InputsFromBlock(block domain.Block) ([]LessonInput, []MetaLessonInput) {
	var lessons []LessonInput
	for _, tg := range block.TeachingGroups {
		for _, class := range tg.Classes {
			for _, lesson := range class.Lessons {
				id := lesson.ID
				if id == "" {
					id = domain.LessonID(class.ID, lesson.Number)
				}
				lessons = append(lessons, LessonInput{
					ID:       id,
					Subject:  class.Subject,
					TGNumber: tg.Number,
					Length:   lesson.Length,
				})
			}
		}
	}
	metas := make([]MetaLessonInput, 0, len(block.MetaLessons))
	for _, ml := range block.MetaLessons {
		ids := make([]string, 0, len(ml.MetaPeriods))
		for _, mp := range ml.MetaPeriods {
			ids = append(ids, mp.ID)
		}
		metas = append(metas, MetaLessonInput{ID: ml.ID, Length: ml.Length, MetaPeriods: ids})
	}
	return lessons, metas
}

// ApplyAssignments returns a copy of block with every lesson's meta period
// set from assignments. Lessons without an assignment are left unassigned.
// block itself is not modified.
func ApplyAssignments(block domain.Block, assignments map[string]string) domain.Block {
	out := block.Clone()
	for ti := range out.TeachingGroups {
		classes := out.TeachingGroups[ti].Classes
		for ci := range classes {
			lessons := classes[ci].Lessons
			for li := range lessons {
				id := lessons[li].ID
				if id == "" {
					id = domain.LessonID(classes[ci].ID, lessons[li].Number)
				}
				lessons[li].MetaPeriodID = assignments[id]
			}
		}
	}
	return out
}
