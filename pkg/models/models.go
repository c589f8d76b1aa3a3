package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AssignmentRecord is one teaching obligation: a teacher teaching a subject to a class
// for a number of weekly periods. ID addresses the record for edits and removal only;
// identity is the normalized (teacher, subject, class) triple.
type AssignmentRecord struct {
	ID      string `json:"id"`
	Teacher string `json:"teacher"`
	Subject string `json:"subject"`
	Class   string `json:"class"`
	Periods int    `json:"periods"`
}

// Row returns the record's fields without its id.
func (a AssignmentRecord) Row() Row {
	return Row{Teacher: a.Teacher, Subject: a.Subject, Class: a.Class, Periods: a.Periods}
}

// TimeFrameDay holds the periods available on one day of the week
type TimeFrameDay struct {
	Day       string `json:"day"`
	Morning   int    `json:"morning"`
	Afternoon int    `json:"afternoon"`
}

// MaxPeriodsPerSession bounds both the morning and the afternoon count of a day.
const MaxPeriodsPerSession = 5

// Day labels in week order; the last one is the rest day.
var WeekDays = []string{"Thứ 2", "Thứ 3", "Thứ 4", "Thứ 5", "Thứ 6", "Thứ 7", "Chủ Nhật"}

// DefaultTimeFrame returns a fresh default week: five morning periods Monday to
// Saturday, nothing on Sunday, no afternoon periods.
func DefaultTimeFrame() []TimeFrameDay {
	days := make([]TimeFrameDay, len(WeekDays))
	for i, d := range WeekDays {
		days[i] = TimeFrameDay{Day: d, Morning: MaxPeriodsPerSession}
	}
	days[len(days)-1].Morning = 0
	return days
}

// Priority tells the solver whether a constraint must hold or is only preferred.
type Priority string

const (
	PriorityHard Priority = "HARD"
	PrioritySoft Priority = "SOFT"
)

// ParsePriority accepts HARD or SOFT in any case. Empty means HARD.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(PriorityHard):
		return PriorityHard, nil
	case string(PrioritySoft):
		return PrioritySoft, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Constraint is a free-text scheduling rule
type Constraint struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Priority Priority `json:"priority"`
}

// Role of a transcript turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment is an image sent along with a user turn.
type Attachment struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mimeType"`
	Size     int    `json:"size"`
	Data     []byte `json:"-"`
}

// Message is one turn of an extraction conversation. Messages are never changed
// after they are appended to a transcript.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Data       []Row       `json:"data,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// HasData reports whether the turn carries an extracted batch.
func (m Message) HasData() bool { return len(m.Data) > 0 }

// Snapshot is a copy of a wizard's state, safe to hand out.
type Snapshot struct {
	CurrentStep    int                `json:"currentStep"`
	Assignments    []AssignmentRecord `json:"assignments"`
	TimeFrame      []TimeFrameDay     `json:"timeFrame"`
	Constraints    []Constraint       `json:"constraints"`
	ScheduleResult json.RawMessage    `json:"scheduleResult,omitempty"`
}

// SolveRequest is the body sent to the solve collaborator.
type SolveRequest struct {
	Assignments []AssignmentRecord `json:"assignments"`
	TimeFrame   []TimeFrameDay     `json:"timeFrame"`
	Constraints []Constraint       `json:"constraints"`
}
