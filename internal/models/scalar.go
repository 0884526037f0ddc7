package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ScalarKind discriminates the three shapes a rating/year field can take in
// the upstream feed.
type ScalarKind int

const (
	ScalarAbsent ScalarKind = iota
	ScalarNumber
	ScalarText
)

// Scalar is a JSON value that may arrive as a number, a string, or not at all.
// The feed is inconsistent about rating and year ("7.5" vs 7.5, "2019" vs
// 2019), so both fields are modelled as Scalar and coerced on demand.
type Scalar struct {
	Kind ScalarKind
	Num  float64
	Text string
}

// NumberScalar returns a numeric Scalar.
func NumberScalar(v float64) Scalar {
	return Scalar{Kind: ScalarNumber, Num: v}
}

// TextScalar returns a textual Scalar.
func TextScalar(s string) Scalar {
	return Scalar{Kind: ScalarText, Text: s}
}

// ParseScalar builds a Scalar from a stored textual form. Numeric-looking
// text becomes a number so a round trip through the database keeps the
// original JSON shape.
func ParseScalar(s string) Scalar {
	if s == "" {
		return Scalar{}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberScalar(v)
	}
	return TextScalar(s)
}

// IsAbsent reports whether the field was missing (or null) in the source.
func (s Scalar) IsAbsent() bool { return s.Kind == ScalarAbsent }

// Float64 coerces to a float. Malformed text coerces to 0 rather than
// failing; the feed contains junk like "N/A".
func (s Scalar) Float64() float64 {
	switch s.Kind {
	case ScalarNumber:
		return s.Num
	case ScalarText:
		v, err := strconv.ParseFloat(strings.TrimSpace(s.Text), 64)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}

// Int coerces to an int with the same fallback-to-zero rule as Float64.
func (s Scalar) Int() int {
	return int(s.Float64())
}

// String returns the textual form used for storage: the original text, or the
// shortest decimal representation of a number. Absent values are "".
func (s Scalar) String() string {
	switch s.Kind {
	case ScalarNumber:
		return strconv.FormatFloat(s.Num, 'f', -1, 64)
	case ScalarText:
		return s.Text
	}
	return ""
}

// MarshalJSON reproduces the upstream shape: numbers stay numbers, text stays
// text, absent values serialise as null.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case ScalarNumber:
		return json.Marshal(s.Num)
	case ScalarText:
		return json.Marshal(s.Text)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a number, a string, or null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*s = Scalar{}
		return nil
	}
	if trimmed[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = TextScalar(str)
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err != nil {
		// Unexpected shape (object/array); treat as absent rather than
		// failing the whole playlist.
		*s = Scalar{}
		return nil
	}
	*s = NumberScalar(num)
	return nil
}
