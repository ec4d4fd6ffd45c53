package domain

import (
	"encoding/json"
	"fmt"
)

// PeriodType classifies a cycle period. Only Lesson periods count towards
// teaching capacity.
type PeriodType string

const (
	PeriodRegistration PeriodType = "Registration"
	PeriodLesson       PeriodType = "Lesson"
	PeriodBreak        PeriodType = "Break"
	PeriodLunch        PeriodType = "Lunch"
	PeriodTwilight     PeriodType = "Twilight"
)

// Document is the version data a school authors for one timetable version.
// Checks and the optimizer only ever read it.
type Document struct {
	Cycle *Cycle `json:"cycle,omitempty"`
	Data  Data   `json:"data"`
	Model Model  `json:"model"`

	normalized bool
}

// Cycle describes the teaching cycle: weeks, their days and each day's periods.
type Cycle struct {
	Weeks     []Week          `json:"weeks"`
	Days      []Day           `json:"days"`
	Periods   []Period        `json:"periods"`
	Structure *CycleStructure `json:"structure,omitempty"`
}

// CycleStructure is the legacy day layout some documents still carry.
type CycleStructure struct {
	Days []Day `json:"days"`
}

type Week struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Day struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WeekID string `json:"week_id,omitempty"`
	Order  int    `json:"order,omitempty"`
}

type Period struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	DayID     string     `json:"day_id"`
	Type      PeriodType `json:"type"`
	Column    int        `json:"column"`
	StartTime string     `json:"start_time,omitempty"`
	EndTime   string     `json:"end_time,omitempty"`
}

// Data holds the school's reference data.
type Data struct {
	Subjects    []Subject    `json:"subjects"`
	Teachers    []Teacher    `json:"teachers"`
	YearGroups  []YearGroup  `json:"year_groups"`
	Bands       []Band       `json:"bands"`
	FormGroups  []FormGroup  `json:"form_groups"`
	Departments []Department `json:"departments"`
}

type Subject struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
	Color        string `json:"color,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
}

// Teacher carries the number of periods of each subject the teacher can take.
type Teacher struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	SubjectAllocations map[string]int `json:"subject_allocations"`
	MaxPeriodsPerDay   *int           `json:"max_periods_per_day,omitempty"`
}

// DailyCap returns the declared daily period limit, or 0 when none is set.
func (t Teacher) DailyCap() int {
	if t.MaxPeriodsPerDay == nil || *t.MaxPeriodsPerDay < 0 {
		return 0
	}
	return *t.MaxPeriodsPerDay
}

type YearGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Band struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	YearGroupID string `json:"year_group_id,omitempty"`
}

type FormGroup struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	BandID string `json:"band_id,omitempty"`
}

type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Model is the curriculum model: the blocks students are timetabled through.
type Model struct {
	Blocks []Block `json:"blocks"`
}

// Block is a curriculum unit shared by one or more feeder form groups.
type Block struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	TotalPeriods     int             `json:"total_periods"`
	PeriodBreakdown  string          `json:"period_breakdown,omitempty"`
	FeederFormGroups []string        `json:"feeder_form_groups"`
	YearGroup        string          `json:"year_group,omitempty"`
	MetaLessons      []MetaLesson    `json:"meta_lessons"`
	TeachingGroups   []TeachingGroup `json:"teaching_groups"`
}

// Label returns the block title, falling back to its id.
func (b Block) Label() string {
	if b.Title != "" {
		return b.Title
	}
	return b.ID
}

// MetaLesson is a slot template of a block; its meta periods are later
// pinned to real periods by the external solver.
type MetaLesson struct {
	ID          string       `json:"id"`
	Length      int          `json:"length"`
	MetaPeriods []MetaPeriod `json:"meta_periods"`
}

// Scheduled reports whether every meta period has been given a start period.
func (m MetaLesson) Scheduled() bool {
	if len(m.MetaPeriods) == 0 {
		return false
	}
	for _, mp := range m.MetaPeriods {
		if mp.StartPeriodID == "" {
			return false
		}
	}
	return true
}

type MetaPeriod struct {
	ID            string `json:"id"`
	StartPeriodID string `json:"start_period_id,omitempty"`
}

type TeachingGroup struct {
	Number  int     `json:"number"`
	Classes []Class `json:"classes"`
}

type Class struct {
	ID              string   `json:"id"`
	Title           string   `json:"title,omitempty"`
	Subject         string   `json:"subject"`
	TotalPeriods    int      `json:"total_periods"`
	PeriodBreakdown string   `json:"period_breakdown,omitempty"`
	Lessons         []Lesson `json:"lessons"`
}

// Label returns the class title, falling back to its id.
func (c Class) Label() string {
	if c.Title != "" {
		return c.Title
	}
	return c.ID
}

type Lesson struct {
	ID           string `json:"id"`
	Number       int    `json:"number"`
	Length       int    `json:"length"`
	MetaPeriodID string `json:"meta_period_id,omitempty"`
	TeacherID    string `json:"teacher_id,omitempty"`
}

// LessonID derives the stable lesson identifier used across versions.
func LessonID(classID string, number int) string {
	return fmt.Sprintf("%s-l%d", classID, number)
}

// ParseDocument decodes version data and applies Normalize.
func ParseDocument(raw []byte) (Document, error) {
	var doc Document
	if len(raw) == 0 {
		doc.Normalize()
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode version data: %w", err)
	}
	doc.Normalize()
	return doc, nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	raw, err := json.Marshal(d)
	if err != nil {
		return d
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return d
	}
	return out
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	doc := Document{Model: Model{Blocks: []Block{b}}}.Clone()
	return doc.Model.Blocks[0]
}

// Normalize replaces missing collections with empty ones and fills derived
// defaults so readers never need to guard against absent fields. The cycle
// is left nil when the document has none.
func (d *Document) Normalize() {
	if d.Cycle != nil {
		d.Cycle.normalize()
	}
	d.Data.normalize()
	d.Model.normalize()
	d.normalized = true
}

// Normalized returns d when it has already been normalized and a normalized
// deep copy otherwise, leaving d untouched.
func (d Document) Normalized() Document {
	if d.normalized {
		return d
	}
	out := d.Clone()
	out.Normalize()
	return out
}

func (c *Cycle) normalize() {
	c.Weeks = nonNil(c.Weeks)
	c.Days = nonNil(c.Days)
	c.Periods = nonNil(c.Periods)
	if c.Structure != nil {
		c.Structure.Days = nonNil(c.Structure.Days)
	}
}

func (d *Data) normalize() {
	d.Subjects = nonNil(d.Subjects)
	d.Teachers = nonNil(d.Teachers)
	d.YearGroups = nonNil(d.YearGroups)
	d.Bands = nonNil(d.Bands)
	d.FormGroups = nonNil(d.FormGroups)
	d.Departments = nonNil(d.Departments)
	for i := range d.Teachers {
		t := &d.Teachers[i]
		if t.SubjectAllocations == nil {
			t.SubjectAllocations = map[string]int{}
		}
		for subject, n := range t.SubjectAllocations {
			if n < 0 {
				t.SubjectAllocations[subject] = 0
			}
		}
	}
}

func (m *Model) normalize() {
	m.Blocks = nonNil(m.Blocks)
	for bi := range m.Blocks {
		b := &m.Blocks[bi]
		b.FeederFormGroups = nonNil(b.FeederFormGroups)
		b.MetaLessons = nonNil(b.MetaLessons)
		b.TeachingGroups = nonNil(b.TeachingGroups)
		for mi := range b.MetaLessons {
			ml := &b.MetaLessons[mi]
			if ml.Length < 1 {
				ml.Length = 1
			}
			ml.MetaPeriods = nonNil(ml.MetaPeriods)
		}
		for gi := range b.TeachingGroups {
			g := &b.TeachingGroups[gi]
			g.Classes = nonNil(g.Classes)
			for ci := range g.Classes {
				c := &g.Classes[ci]
				c.Lessons = nonNil(c.Lessons)
				for li := range c.Lessons {
					l := &c.Lessons[li]
					if l.Length < 1 {
						l.Length = 1
					}
					if l.ID == "" {
						l.ID = LessonID(c.ID, l.Number)
					}
				}
			}
		}
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
