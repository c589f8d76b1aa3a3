// Package wizard holds the state of one four-step scheduling wizard. All writes go
// through the State methods; assignment inserts always pass through merge.Merge so
// the list never holds two records with the same normalized triple.
package wizard

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/merge"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/google/uuid"
)

// Step is a wizard page.
type Step int

const (
	StepAssignments Step = iota + 1
	StepTimeFrame
	StepConstraints
	StepResult
)

func (s Step) Valid() bool { return s >= StepAssignments && s <= StepResult }

func (s Step) String() string {
	switch s {
	case StepAssignments:
		return "assignments"
	case StepTimeFrame:
		return "time_frame"
	case StepConstraints:
		return "constraints"
	case StepResult:
		return "result"
	default:
		return "invalid"
	}
}

// Solver submits the wizard's inputs and returns the opaque schedule.
type Solver interface {
	RequestSchedule(ctx context.Context, req models.SolveRequest) (json.RawMessage, error)
}

// State is the single owner of a wizard's lists. It is safe for concurrent use;
// no lock is held while a solve request is in flight.
type State struct {
	mu          sync.Mutex
	step        Step
	assignments []models.AssignmentRecord
	timeFrame   []models.TimeFrameDay
	constraints []models.Constraint
	result      json.RawMessage
}

// New returns a wizard on step 1 with an empty assignment list and the default week.
func New() *State {
	return &State{
		step:      StepAssignments,
		timeFrame: models.DefaultTimeFrame(),
	}
}

// Snapshot copies the current state.
func (s *State) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Snapshot{
		CurrentStep:    int(s.step),
		Assignments:    append([]models.AssignmentRecord{}, s.assignments...),
		TimeFrame:      append([]models.TimeFrameDay{}, s.timeFrame...),
		Constraints:    append([]models.Constraint{}, s.constraints...),
		ScheduleResult: append(json.RawMessage(nil), s.result...),
	}
}

func (s *State) CurrentStep() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// GoToStep jumps to step n. Values outside 1..4 are rejected.
func (s *State) GoToStep(n int) error {
	step := Step(n)
	if !step.Valid() {
		return errs.Validation("wizard.GoToStep", "step must be between 1 and 4, got %d", n)
	}
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
	return nil
}

// Back moves one step back. It is not available on the first and the result step.
func (s *State) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step == StepAssignments || s.step == StepResult {
		return errs.Validation("wizard.Back", "cannot go back from the %s step", s.step)
	}
	s.step--
	return nil
}

// Next advances one step. Leaving the constraints step submits the inputs to solver
// and only advances when that succeeds; on failure the wizard stays where it was
// and nothing is committed.
func (s *State) Next(ctx context.Context, solver Solver) error {
	s.mu.Lock()
	switch s.step {
	case StepResult:
		s.mu.Unlock()
		return errs.Validation("wizard.Next", "already on the result step")
	case StepConstraints:
		// handled below
	default:
		s.step++
		s.mu.Unlock()
		return nil
	}
	req := models.SolveRequest{
		Assignments: append([]models.AssignmentRecord{}, s.assignments...),
		TimeFrame:   append([]models.TimeFrameDay{}, s.timeFrame...),
		Constraints: append([]models.Constraint{}, s.constraints...),
	}
	s.mu.Unlock()

	result, err := solver.RequestSchedule(ctx, req)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.result = result
	s.step = StepResult
	s.mu.Unlock()
	return nil
}

// ResetAll restores every field to its initial value.
func (s *State) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepAssignments
	s.assignments = nil
	s.timeFrame = models.DefaultTimeFrame()
	s.constraints = nil
	s.result = nil
}

// AddAssignment merges one manually entered row. Teacher, subject and class are
// required and periods must be positive.
func (s *State) AddAssignment(row models.Row) (models.AssignmentRecord, error) {
	if err := requireRow("wizard.AddAssignment", row); err != nil {
		return models.AssignmentRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = merge.Merge(s.assignments, []models.Row{row})
	i := merge.IndexOf(s.assignments, merge.KeyOf(row.Teacher, row.Subject, row.Class))
	return s.assignments[i], nil
}

// ImportResult summarizes a batch import.
type ImportResult struct {
	Received int `json:"received"`
	Added    int `json:"added"`
	Total    int `json:"total"`
}

// ImportAssignments merges a batch of imported or extracted rows.
func (s *State) ImportAssignments(rows []models.Row) ImportResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.assignments)
	s.assignments = merge.Merge(s.assignments, rows)
	return ImportResult{
		Received: len(rows),
		Added:    len(s.assignments) - before,
		Total:    len(s.assignments),
	}
}

// UpdateAssignment rewrites the record with the given id, keeping the id. The new
// fields may not collide with another record's triple.
func (s *State) UpdateAssignment(id string, row models.Row) (models.AssignmentRecord, error) {
	const op = "wizard.UpdateAssignment"
	if err := requireRow(op, row); err != nil {
		return models.AssignmentRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.assignmentIndex(id)
	if pos < 0 {
		return models.AssignmentRecord{}, errs.NotFound(op, "assignment %s not found", id)
	}
	if other := merge.IndexOf(s.assignments, merge.KeyOf(row.Teacher, row.Subject, row.Class)); other >= 0 && other != pos {
		return models.AssignmentRecord{}, errs.Validation(op, "%s / %s / %s already exists", row.Teacher, row.Subject, row.Class)
	}

	next := append([]models.AssignmentRecord{}, s.assignments...)
	next[pos] = models.AssignmentRecord{ID: id, Teacher: row.Teacher, Subject: row.Subject, Class: row.Class, Periods: row.Periods}
	merge.SortByTeacher(next)
	s.assignments = next
	return next[s.indexIn(next, id)], nil
}

// RemoveAssignment drops the record with the given id.
func (s *State) RemoveAssignment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.assignmentIndex(id)
	if pos < 0 {
		return errs.NotFound("wizard.RemoveAssignment", "assignment %s not found", id)
	}
	next := make([]models.AssignmentRecord, 0, len(s.assignments)-1)
	next = append(next, s.assignments[:pos]...)
	s.assignments = append(next, s.assignments[pos+1:]...)
	return nil
}

// UpdateTimeFrame sets the morning or afternoon count of the day at index.
func (s *State) UpdateTimeFrame(index int, field string, value int) error {
	const op = "wizard.UpdateTimeFrame"
	if value < 0 || value > models.MaxPeriodsPerSession {
		return errs.Validation(op, "value must be between 0 and %d, got %d", models.MaxPeriodsPerSession, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.timeFrame) {
		return errs.Validation(op, "day index %d out of range", index)
	}
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "morning":
		s.timeFrame[index].Morning = value
	case "afternoon":
		s.timeFrame[index].Afternoon = value
	default:
		return errs.Validation(op, "unknown field %q", field)
	}
	return nil
}

func (s *State) ResetTimeFrame() {
	s.mu.Lock()
	s.timeFrame = models.DefaultTimeFrame()
	s.mu.Unlock()
}

// AddConstraint appends a constraint. Constraints are not de-duplicated.
func (s *State) AddConstraint(text string, priority models.Priority) (models.Constraint, error) {
	const op = "wizard.AddConstraint"
	if strings.TrimSpace(text) == "" {
		return models.Constraint{}, errs.Validation(op, "constraint text is required")
	}
	p, err := models.ParsePriority(string(priority))
	if err != nil {
		return models.Constraint{}, errs.Validation(op, "%v", err)
	}
	c := models.Constraint{ID: uuid.NewString(), Text: text, Priority: p}
	s.mu.Lock()
	s.constraints = append(s.constraints, c)
	s.mu.Unlock()
	return c, nil
}

func (s *State) RemoveConstraint(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.constraints {
		if c.ID == id {
			next := make([]models.Constraint, 0, len(s.constraints)-1)
			next = append(next, s.constraints[:i]...)
			s.constraints = append(next, s.constraints[i+1:]...)
			return nil
		}
	}
	return errs.NotFound("wizard.RemoveConstraint", "constraint %s not found", id)
}

func (s *State) SetScheduleResult(result json.RawMessage) {
	s.mu.Lock()
	s.result = append(json.RawMessage(nil), result...)
	s.mu.Unlock()
}

func (s *State) ClearScheduleResult() {
	s.mu.Lock()
	s.result = nil
	s.mu.Unlock()
}

// ScheduleResult returns the stored result and whether one is set.
func (s *State) ScheduleResult() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, false
	}
	return append(json.RawMessage(nil), s.result...), true
}

func (s *State) assignmentIndex(id string) int {
	return s.indexIn(s.assignments, id)
}

func (s *State) indexIn(list []models.AssignmentRecord, id string) int {
	for i, a := range list {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func requireRow(op string, row models.Row) error {
	var missing []string
	if strings.TrimSpace(row.Teacher) == "" {
		missing = append(missing, "teacher")
	}
	if strings.TrimSpace(row.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(row.Class) == "" {
		missing = append(missing, "class")
	}
	if len(missing) > 0 {
		return errs.Validation(op, "%s required", strings.Join(missing, ", "))
	}
	if row.Periods <= 0 {
		return errs.Validation(op, "periods must be a positive number")
	}
	return nil
}
