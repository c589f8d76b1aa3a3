package wizard

import (
	"fmt"
	"sort"

	"github.com/arnavshah/timetable-wizard-go/pkg/merge"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
)

// Readiness describes whether the wizard's inputs are worth sending to the solver.
// Errors block solving; warnings are passed on to the user as-is.
type Readiness struct {
	Ready           bool     `json:"ready"`
	Errors          []string `json:"errors,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	AssignmentCount int      `json:"assignment_count"`
	ConstraintCount int      `json:"constraint_count"`
	TotalPeriods    int      `json:"total_periods"`
	WeeklyCapacity  int      `json:"weekly_capacity"`
}

// Check inspects a snapshot without changing anything.
func Check(snap models.Snapshot) Readiness {
	r := Readiness{
		AssignmentCount: len(snap.Assignments),
		ConstraintCount: len(snap.Constraints),
	}
	for _, d := range snap.TimeFrame {
		r.WeeklyCapacity += d.Morning + d.Afternoon
	}

	if len(snap.Assignments) == 0 {
		r.Errors = append(r.Errors, "At least one assignment is required")
	}
	if r.WeeklyCapacity == 0 {
		r.Errors = append(r.Errors, "The time frame has no teaching periods")
	}

	byClass := map[string]int{}
	byTeacher := map[string]int{}
	classLabel := map[string]string{}
	teacherLabel := map[string]string{}
	for _, a := range snap.Assignments {
		r.TotalPeriods += a.Periods
		if a.Periods <= 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s / %s / %s has no periods", a.Teacher, a.Subject, a.Class))
		}
		ck, tk := merge.Normalize(a.Class), merge.Normalize(a.Teacher)
		byClass[ck] += a.Periods
		byTeacher[tk] += a.Periods
		if _, ok := classLabel[ck]; !ok {
			classLabel[ck] = a.Class
		}
		if _, ok := teacherLabel[tk]; !ok {
			teacherLabel[tk] = a.Teacher
		}
	}

	r.Warnings = append(r.Warnings, overloads("Class", byClass, classLabel, r.WeeklyCapacity)...)
	r.Warnings = append(r.Warnings, overloads("Teacher", byTeacher, teacherLabel, r.WeeklyCapacity)...)

	r.Ready = len(r.Errors) == 0
	return r
}

func overloads(kind string, totals map[string]int, labels map[string]string, capacity int) []string {
	if capacity == 0 {
		return nil
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		if totals[k] > capacity {
			out = append(out, fmt.Sprintf("%s %s needs %d periods but the week has %d", kind, labels[k], totals[k], capacity))
		}
	}
	return out
}
