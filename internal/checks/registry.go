// Package checks holds the feasibility checks run against a version document
// and the static catalogue describing them.
package checks

import (
	"context"
	"timetabler/pkg/domain"
)

// Category groups checks by the part of the document they reason about.
type Category string

const (
	CategoryData       Category = "data"
	CategoryModel      Category = "model"
	CategoryStaffing   Category = "staffing"
	CategoryScheduling Category = "scheduling"
)

// Func is the signature every check implements. Returning an error marks the
// check as failed; the engine then discards its issues.
type Func func(ctx context.Context, vc domain.ValidationContext) ([]domain.Issue, error)

// Prerequisites declares which document collections must be present before a
// check is worth running.
type Prerequisites struct {
	RequiresBlocks      bool
	RequiresTeachers    bool
	RequiresSubjects    bool
	RequiresYearGroups  bool
	RequiresBands       bool
	RequiresFormGroups  bool
	RequiresDepartments bool
	RequiresCycle       bool
	Custom              func(vc domain.ValidationContext) bool
}

// Missing returns the unmet prerequisites by name, in declaration order.
func (p Prerequisites) Missing(vc domain.ValidationContext) []string {
	doc := vc.VersionData
	var missing []string
	need := func(flag bool, present bool, name string) {
		if flag && !present {
			missing = append(missing, name)
		}
	}
	need(p.RequiresBlocks, len(doc.Model.Blocks) > 0, "blocks")
	need(p.RequiresTeachers, len(doc.Data.Teachers) > 0, "teachers")
	need(p.RequiresSubjects, len(doc.Data.Subjects) > 0, "subjects")
	need(p.RequiresYearGroups, len(doc.Data.YearGroups) > 0, "year_groups")
	need(p.RequiresBands, len(doc.Data.Bands) > 0, "bands")
	need(p.RequiresFormGroups, len(doc.Data.FormGroups) > 0, "form_groups")
	need(p.RequiresDepartments, len(doc.Data.Departments) > 0, "departments")
	need(p.RequiresCycle, doc.Cycle != nil, "cycle")
	if p.Custom != nil && !p.Custom(vc) {
		missing = append(missing, "custom")
	}
	return missing
}

// Names lists the declared prerequisites, "custom" last when a predicate is set.
func (p Prerequisites) Names() []string {
	names := []string{}
	flags := []struct {
		on   bool
		name string
	}{
		{p.RequiresBlocks, "blocks"},
		{p.RequiresTeachers, "teachers"},
		{p.RequiresSubjects, "subjects"},
		{p.RequiresYearGroups, "year_groups"},
		{p.RequiresBands, "bands"},
		{p.RequiresFormGroups, "form_groups"},
		{p.RequiresDepartments, "departments"},
		{p.RequiresCycle, "cycle"},
	}
	for _, f := range flags {
		if f.on {
			names = append(names, f.name)
		}
	}
	if p.Custom != nil {
		names = append(names, "custom")
	}
	return names
}

// Satisfied reports whether every declared prerequisite holds.
func (p Prerequisites) Satisfied(vc domain.ValidationContext) bool {
	return len(p.Missing(vc)) == 0
}

// Definition couples a check's metadata with its gate and implementation.
type Definition struct {
	ID            string
	Name          string
	Description   string
	Category      Category
	Prerequisites Prerequisites
	Fn            Func
}

const (
	TeachingHoursAvailabilityID     = "teaching-hours-availability"
	ConcurrentTeachersCapacityID    = "concurrent-teachers-capacity"
	FormGroupPeriodCoverageID       = "form-group-period-coverage"
	ClassSpacingFeasibilityID       = "class-spacing-feasibility"
	ConsecutivePeriodAvailabilityID = "consecutive-period-availability"
	TeacherDailyLoadID              = "teacher-daily-load"
)

func catalogue() []Definition {
	return []Definition{
		{
			ID:          TeachingHoursAvailabilityID,
			Name:        "Teaching Hours Availability",
			Description: "Compares the lessons modelled for each subject with the periods its teachers can cover.",
			Category:    CategoryModel,
			Prerequisites: Prerequisites{
				RequiresBlocks:   true,
				RequiresTeachers: true,
				RequiresSubjects: true,
			},
			Fn: TeachingHoursAvailability,
		},
		{
			ID:          ConcurrentTeachersCapacityID,
			Name:        "Concurrent Teachers Capacity",
			Description: "Checks that classes sharing a meta period never need more teachers of a subject than exist.",
			Category:    CategoryModel,
			Prerequisites: Prerequisites{
				RequiresBlocks:   true,
				RequiresTeachers: true,
				RequiresSubjects: true,
			},
			Fn: ConcurrentTeachersCapacity,
		},
		{
			ID:          FormGroupPeriodCoverageID,
			Name:        "Form Group Period Coverage",
			Description: "Checks that the blocks fed by each form group fill exactly the lesson periods of the cycle.",
			Category:    CategoryModel,
			Prerequisites: Prerequisites{
				RequiresBlocks:     true,
				RequiresFormGroups: true,
				RequiresCycle:      true,
			},
			Fn: FormGroupPeriodCoverage,
		},
		{
			ID:          ClassSpacingFeasibilityID,
			Name:        "Class Spacing Feasibility",
			Description: "Flags classes with more lessons than there are days, which rules out one lesson per day.",
			Category:    CategoryModel,
			Prerequisites: Prerequisites{
				RequiresBlocks: true,
				RequiresCycle:  true,
			},
			Fn: ClassSpacingFeasibility,
		},
		{
			ID:          ConsecutivePeriodAvailabilityID,
			Name:        "Consecutive Period Availability",
			Description: "Flags multi-period meta lessons longer than any run of consecutive lesson periods in the cycle.",
			Category:    CategoryModel,
			Prerequisites: Prerequisites{
				RequiresBlocks: true,
				RequiresCycle:  true,
			},
			Fn: ConsecutivePeriodAvailability,
		},
		{
			ID:          TeacherDailyLoadID,
			Name:        "Teacher Daily Load Distribution",
			Description: "Checks that lessons already assigned to a teacher fit within their daily period cap.",
			Category:    CategoryStaffing,
			Prerequisites: Prerequisites{
				RequiresBlocks:   true,
				RequiresTeachers: true,
				RequiresCycle:    true,
			},
			Fn: TeacherDailyLoad,
		},
	}
}

// All returns every registered check in catalogue order.
func All() []Definition {
	return catalogue()
}

// Active returns the checks enabled for execution. Every registered check is
// currently active.
func Active() []Definition {
	return All()
}

// ByID looks up a check definition.
func ByID(id string) (Definition, bool) {
	for _, def := range catalogue() {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// ByCategory returns the checks of the given category in catalogue order.
func ByCategory(category Category) []Definition {
	var out []Definition
	for _, def := range catalogue() {
		if def.Category == category {
			out = append(out, def)
		}
	}
	return out
}
