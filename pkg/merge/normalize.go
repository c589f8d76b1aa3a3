package merge

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize returns the comparison form of s: trimmed and case-folded.
// It is only ever used as a lookup key, never stored.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}

// Key identifies an assignment regardless of id, case or surrounding whitespace.
type Key struct {
	Teacher string
	Subject string
	Class   string
}

// KeyOf builds the normalized identity triple.
func KeyOf(teacher, subject, class string) Key {
	return Key{
		Teacher: Normalize(teacher),
		Subject: Normalize(subject),
		Class:   Normalize(class),
	}
}
