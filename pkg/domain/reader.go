package domain

import "sort"

// Reader provides read-only lookups over a normalized document. It is safe
// for concurrent use because it never mutates its indexes after construction.
type Reader struct {
	doc        Document
	subjects   map[string]Subject
	teachers   map[string]Teacher
	formGroups map[string]FormGroup
	blocks     map[string]int
	periods    map[string][]Period
}

// NewReader indexes doc. A document that has not been normalized is cloned
// and normalized first so callers may pass partially populated documents and
// keep ownership of them. A normalized document is indexed in place and must
// not be mutated while the reader is in use.
func NewReader(doc Document) *Reader {
	doc = doc.Normalized()
	r := &Reader{
		doc:        doc,
		subjects:   make(map[string]Subject, len(doc.Data.Subjects)),
		teachers:   make(map[string]Teacher, len(doc.Data.Teachers)),
		formGroups: make(map[string]FormGroup, len(doc.Data.FormGroups)),
		blocks:     make(map[string]int, len(doc.Model.Blocks)),
		periods:    make(map[string][]Period),
	}
	for _, s := range doc.Data.Subjects {
		r.subjects[s.ID] = s
	}
	for _, t := range doc.Data.Teachers {
		r.teachers[t.ID] = t
	}
	for _, fg := range doc.Data.FormGroups {
		r.formGroups[fg.ID] = fg
	}
	for i, b := range doc.Model.Blocks {
		if _, seen := r.blocks[b.ID]; !seen {
			r.blocks[b.ID] = i
		}
	}
	if doc.Cycle != nil {
		for _, p := range doc.Cycle.Periods {
			r.periods[p.DayID] = append(r.periods[p.DayID], p)
		}
		for day := range r.periods {
			ps := r.periods[day]
			sort.SliceStable(ps, func(i, j int) bool { return ps[i].Column < ps[j].Column })
		}
	}
	return r
}

// Document returns the normalized document backing the reader.
func (r *Reader) Document() Document { return r.doc }

// HasCycle reports whether the document declares a cycle at all.
func (r *Reader) HasCycle() bool { return r.doc.Cycle != nil }

// Days returns the cycle days in document order.
func (r *Reader) Days() []Day {
	if r.doc.Cycle == nil {
		return nil
	}
	return r.doc.Cycle.Days
}

// PeriodsForDay returns the day's periods ordered by column.
func (r *Reader) PeriodsForDay(dayID string) []Period {
	return r.periods[dayID]
}

// LessonPeriodCount counts the periods of type Lesson across the cycle.
func (r *Reader) LessonPeriodCount() int {
	if r.doc.Cycle == nil {
		return 0
	}
	n := 0
	for _, p := range r.doc.Cycle.Periods {
		if p.Type == PeriodLesson {
			n++
		}
	}
	return n
}

// CycleDays returns the days of the cycle in document order. Documents that
// only carry the legacy layout fall back to cycle.structure.days, and cycles
// that declare no days at all fall back to the distinct day ids their periods
// reference.
func (r *Reader) CycleDays() []Day {
	if r.doc.Cycle == nil {
		return nil
	}
	if days := r.doc.Cycle.Days; len(days) > 0 {
		return days
	}
	if s := r.doc.Cycle.Structure; s != nil && len(s.Days) > 0 {
		return s.Days
	}
	var days []Day
	seen := make(map[string]struct{})
	for _, p := range r.doc.Cycle.Periods {
		if p.DayID == "" {
			continue
		}
		if _, ok := seen[p.DayID]; ok {
			continue
		}
		seen[p.DayID] = struct{}{}
		days = append(days, Day{ID: p.DayID})
	}
	return days
}

// DaysInCycle is the single day count used by every check: the distinct
// days of CycleDays, with each day lacking an id counted on its own.
func (r *Reader) DaysInCycle() int {
	days := r.CycleDays()
	seen := make(map[string]struct{}, len(days))
	anonymous := 0
	for _, d := range days {
		if d.ID == "" {
			anonymous++
			continue
		}
		seen[d.ID] = struct{}{}
	}
	return len(seen) + anonymous
}

func (r *Reader) Subjects() []Subject { return r.doc.Data.Subjects }

func (r *Reader) Subject(id string) (Subject, bool) {
	s, ok := r.subjects[id]
	return s, ok
}

// SubjectName returns the subject name, or the id when the subject is unknown.
func (r *Reader) SubjectName(id string) string {
	if s, ok := r.subjects[id]; ok && s.Name != "" {
		return s.Name
	}
	return id
}

func (r *Reader) Teachers() []Teacher { return r.doc.Data.Teachers }

func (r *Reader) Teacher(id string) (Teacher, bool) {
	t, ok := r.teachers[id]
	return t, ok
}

func (r *Reader) FormGroups() []FormGroup { return r.doc.Data.FormGroups }

func (r *Reader) FormGroup(id string) (FormGroup, bool) {
	fg, ok := r.formGroups[id]
	return fg, ok
}

func (r *Reader) Blocks() []Block { return r.doc.Model.Blocks }

func (r *Reader) Block(id string) (Block, bool) {
	i, ok := r.blocks[id]
	if !ok {
		return Block{}, false
	}
	return r.doc.Model.Blocks[i], true
}

// ForEachClass visits every class of every teaching group of every block.
func (r *Reader) ForEachClass(fn func(block Block, group TeachingGroup, class Class)) {
	for _, b := range r.doc.Model.Blocks {
		for _, g := range b.TeachingGroups {
			for _, c := range g.Classes {
				fn(b, g, c)
			}
		}
	}
}

// ForEachLesson visits every lesson in the model.
func (r *Reader) ForEachLesson(fn func(block Block, group TeachingGroup, class Class, lesson Lesson)) {
	r.ForEachClass(func(b Block, g TeachingGroup, c Class) {
		for _, l := range c.Lessons {
			fn(b, g, c, l)
		}
	})
}

// MetaPeriodLocation returns the 1-based meta-lesson and meta-period indexes
// of a meta period within block. Both are 0 when the id is not found.
func MetaPeriodLocation(block Block, metaPeriodID string) (metaLesson, metaPeriod int) {
	for mi, ml := range block.MetaLessons {
		for pi, mp := range ml.MetaPeriods {
			if mp.ID == metaPeriodID {
				return mi + 1, pi + 1
			}
		}
	}
	return 0, 0
}
