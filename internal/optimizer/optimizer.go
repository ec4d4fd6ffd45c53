// Package optimizer assigns a block's lessons to meta periods so that
// same-subject lessons are spread as evenly as the block allows.
package optimizer

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"timetabler/internal/core"
)

// ScoreWeight separates the peak term of a candidate's score from its local
// crowding term. It must exceed any reachable local count.
const ScoreWeight = 1 << 20

// LessonInput is one lesson to place.
type LessonInput struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	TGNumber int    `json:"tg_number"`
	Length   int    `json:"length"`
}

// MetaLessonInput is a meta lesson and its ordered meta period ids.
type MetaLessonInput struct {
	ID          string   `json:"id"`
	Length      int      `json:"length"`
	MetaPeriods []string `json:"meta_periods"`
}

// Placement records where a lesson went. Conflict is set when no slot free of
// the lesson's teaching group existed and the lesson shares a meta period
// with another lesson of the same group.
type Placement struct {
	LessonID     string `json:"lesson_id"`
	MetaPeriodID string `json:"meta_period_id"`
	MetaLessonID string `json:"meta_lesson_id"`
	Conflict     bool   `json:"conflict"`
}

// Result is the outcome of one optimisation. Assignments maps lesson id to
// the meta period id the lesson starts in; lessons listed in Unassigned have
// no entry.
type Result struct {
	Assignments map[string]string `json:"assignments"`
	Placements  []Placement       `json:"placements"`
	Unassigned  []string          `json:"unassigned"`
}

// Conflicts counts placements made despite a teaching group clash.
func (r Result) Conflicts() int {
	n := 0
	for _, p := range r.Placements {
		if p.Conflict {
			n++
		}
	}
	return n
}

type settings struct {
	rng    *rand.Rand
	logger core.Logger
}

// Option customises a single Optimize call.
type Option func(*settings)

// WithRand supplies the random source for the initial shuffle and tie breaks.
func WithRand(rng *rand.Rand) Option {
	return func(s *settings) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithSeed makes the run reproducible.
func WithSeed(seed uint64) Option {
	return func(s *settings) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type slot struct {
	id         string
	metaLesson int
	subjects   map[string]int
	groups     map[int]struct{}
}

type candidate struct {
	metaLesson int
	slots      []int
}

type state struct {
	slots   []*slot
	metas   []MetaLessonInput
	peak    map[string]int
	singles []candidate
}

func newState(metaLessons []MetaLessonInput) *state {
	st := &state{metas: metaLessons, peak: make(map[string]int)}
	for mi, ml := range metaLessons {
		for _, id := range ml.MetaPeriods {
			st.slots = append(st.slots, &slot{
				id:         id,
				metaLesson: mi,
				subjects:   make(map[string]int),
				groups:     make(map[int]struct{}),
			})
			st.singles = append(st.singles, candidate{metaLesson: mi, slots: []int{len(st.slots) - 1}})
		}
	}
	return st
}

// compatible lists the slots a lesson of the given length may start in. A
// lesson longer than one period only fits a meta lesson of the same length
// and covers its first length periods.
func (st *state) compatible(length int) []candidate {
	if length <= 1 {
		return st.singles
	}
	var out []candidate
	base := 0
	for mi, ml := range st.metas {
		n := len(ml.MetaPeriods)
		if metaLength(ml) == length && n >= length {
			covered := make([]int, length)
			for i := range covered {
				covered[i] = base + i
			}
			out = append(out, candidate{metaLesson: mi, slots: covered})
		}
		base += n
	}
	return out
}

func (st *state) free(c candidate, tg int) bool {
	for _, idx := range c.slots {
		if _, taken := st.slots[idx].groups[tg]; taken {
			return false
		}
	}
	return true
}

func (st *state) score(c candidate, subject string) int {
	peak, local := st.peak[subject], 0
	for _, idx := range c.slots {
		n := st.slots[idx].subjects[subject]
		local += n
		if n+1 > peak {
			peak = n + 1
		}
	}
	return peak*ScoreWeight + local
}

func (st *state) commit(c candidate, subject string, tg int) {
	for _, idx := range c.slots {
		s := st.slots[idx]
		s.subjects[subject]++
		s.groups[tg] = struct{}{}
		if s.subjects[subject] > st.peak[subject] {
			st.peak[subject] = s.subjects[subject]
		}
	}
}

// Optimize greedily places every lesson. Lessons of the busiest subjects are
// placed first, longer lessons before shorter ones, each into the compatible
// slot that keeps the subject's peak concurrency lowest. A lesson is placed
// with a teaching group conflict only when every compatible slot already
// holds its group, and left unassigned when no slot is compatible at all.
func Optimize(lessons []LessonInput, metaLessons []MetaLessonInput, opts ...Option) Result {
	cfg := settings{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	st := newState(metaLessons)
	order := placementOrder(lessons, cfg.rng)

	placed := make([]*Placement, len(lessons))
	for _, li := range order {
		lesson := lessons[li]
		length := lessonLength(lesson)
		compatible := st.compatible(length)

		var available []candidate
		for _, c := range compatible {
			if st.free(c, lesson.TGNumber) {
				available = append(available, c)
			}
		}
		conflict := false
		if len(available) == 0 {
			if len(compatible) == 0 {
				cfg.logger.Warn("no compatible meta period for lesson",
					"lesson", lesson.ID, "subject", lesson.Subject, "length", length)
				continue
			}
			cfg.logger.Warn("placing lesson with teaching group conflict",
				"lesson", lesson.ID, "tg_number", lesson.TGNumber)
			available = compatible
			conflict = true
		}

		best, bestScore := []candidate(nil), 0
		for _, c := range available {
			s := st.score(c, lesson.Subject)
			switch {
			case best == nil || s < bestScore:
				best, bestScore = []candidate{c}, s
			case s == bestScore:
				best = append(best, c)
			}
		}
		choice := best[cfg.rng.IntN(len(best))]
		st.commit(choice, lesson.Subject, lesson.TGNumber)

		first := st.slots[choice.slots[0]]
		placed[li] = &Placement{
			LessonID:     lesson.ID,
			MetaPeriodID: first.id,
			MetaLessonID: st.metas[first.metaLesson].ID,
			Conflict:     conflict,
		}
	}

	res := Result{
		Assignments: make(map[string]string, len(lessons)),
		Placements:  make([]Placement, 0, len(lessons)),
		Unassigned:  []string{},
	}
	for i, p := range placed {
		if p == nil {
			res.Unassigned = append(res.Unassigned, lessons[i].ID)
			continue
		}
		res.Assignments[p.LessonID] = p.MetaPeriodID
		res.Placements = append(res.Placements, *p)
	}
	return res
}

// OptimizeLessonAssignments returns only the lesson to meta period mapping.
// A nil rng selects an unseeded source.
func OptimizeLessonAssignments(lessons []LessonInput, metaLessons []MetaLessonInput, rng *rand.Rand) map[string]string {
	return Optimize(lessons, metaLessons, WithRand(rng)).Assignments
}

// placementOrder shuffles the lesson indexes and then orders them by
// descending subject frequency and descending length.
func placementOrder(lessons []LessonInput, rng *rand.Rand) []int {
	freq := make(map[string]int)
	for _, l := range lessons {
		freq[l.Subject]++
	}
	order := make([]int, len(lessons))
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	sort.SliceStable(order, func(i, j int) bool {
		a, b := lessons[order[i]], lessons[order[j]]
		if freq[a.Subject] != freq[b.Subject] {
			return freq[a.Subject] > freq[b.Subject]
		}
		return lessonLength(a) > lessonLength(b)
	})
	return order
}

func lessonLength(l LessonInput) int {
	if l.Length < 1 {
		return 1
	}
	return l.Length
}

func metaLength(ml MetaLessonInput) int {
	if ml.Length < 1 {
		return 1
	}
	return ml.Length
}
