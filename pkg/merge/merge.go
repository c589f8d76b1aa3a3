// Package merge reconciles incoming assignment rows against an existing list.
package merge

import (
	"sort"
	"strings"

	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// newID is swapped in tests that need deterministic ids.
var newID = uuid.NewString

// Merge folds incoming into current and returns a new list sorted by teacher.
//
// Rows are applied in order. A row whose normalized (teacher, subject, class)
// matches a record already in the result, including one appended earlier in the
// same call, only updates that record's periods; its id and text fields stay as
// they were. Any other row is appended with a fresh id. current is not modified.
func Merge(current []models.AssignmentRecord, incoming []models.Row) []models.AssignmentRecord {
	out := make([]models.AssignmentRecord, len(current), len(current)+len(incoming))
	copy(out, current)

	index := make(map[Key]int, cap(out))
	for i, rec := range out {
		k := KeyOf(rec.Teacher, rec.Subject, rec.Class)
		if _, dup := index[k]; !dup {
			index[k] = i
		}
	}

	for _, row := range incoming {
		k := KeyOf(row.Teacher, row.Subject, row.Class)
		if i, ok := index[k]; ok {
			out[i].Periods = row.Periods
			continue
		}
		out = append(out, models.AssignmentRecord{
			ID:      newID(),
			Teacher: row.Teacher,
			Subject: row.Subject,
			Class:   row.Class,
			Periods: row.Periods,
		})
		index[k] = len(out) - 1
	}

	SortByTeacher(out)
	return out
}

// SortByTeacher stably orders records by teacher name using Vietnamese
// collation. Case and surrounding whitespace do not affect the order, so
// names that normalize equal keep their relative positions.
func SortByTeacher(records []models.AssignmentRecord) {
	// A Collator is not safe for concurrent use.
	c := collate.New(language.Vietnamese, collate.IgnoreCase)
	sort.SliceStable(records, func(i, j int) bool {
		return c.CompareString(strings.TrimSpace(records[i].Teacher), strings.TrimSpace(records[j].Teacher)) < 0
	})
}

// IndexOf returns the position of the record with key k, or -1.
func IndexOf(records []models.AssignmentRecord, k Key) int {
	for i, rec := range records {
		if KeyOf(rec.Teacher, rec.Subject, rec.Class) == k {
			return i
		}
	}
	return -1
}
