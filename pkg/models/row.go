package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Row is an assignment-like row as it arrives from users, file imports or the
// extraction service. Fields are loosely typed on the wire; UnmarshalJSON coerces
// them so nothing downstream has to.
type Row struct {
	Teacher string `json:"teacher"`
	Subject string `json:"subject"`
	Class   string `json:"class"`
	Periods int    `json:"periods"`
}

// UnmarshalJSON accepts strings, numbers or null for the text fields and any of
// number, numeric string or garbage for periods (garbage becomes 0). Older
// payloads name the periods field "sessions".
func (r *Row) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.Teacher = looseText(raw["teacher"])
	r.Subject = looseText(raw["subject"])
	r.Class = looseText(raw["class"])

	p, ok := raw["periods"]
	if !ok {
		p = raw["sessions"]
	}
	r.Periods = CoercePeriods(p)
	return nil
}

func looseText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// CoercePeriods turns a raw JSON value into a weekly period count. Numbers and
// numeric strings are truncated to an integer; anything else, including
// negative or non-finite values, yields 0.
func CoercePeriods(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		return ParsePeriods(s)
	}
	return clampPeriods(f)
}

// ParsePeriods applies the same coercion to a text value.
func ParsePeriods(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return clampPeriods(f)
}

func clampPeriods(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f > math.MaxInt32 {
		return 0
	}
	return int(math.Trunc(f))
}
