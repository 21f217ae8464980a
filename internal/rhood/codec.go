package rhood

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a field value that could not be cast to its declared
// type.
type ParseError struct {
	Target string
	Value  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot decode %q as %s", e.Value, e.Target)
}

// Price is a float the upstream serializes as either a JSON number or a
// quoted decimal string. null decodes to zero.
type Price float64

func (p *Price) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &ParseError{Target: "price", Value: s}
	}
	*p = Price(f)
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatFloat(float64(p), 'f', -1, 64))), nil
}

func (p Price) Float() float64 { return float64(p) }

// Bool accepts native booleans plus the upstream's truthy string forms.
type Bool bool

func (v *Bool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	switch s {
	case "true", "True", "t", "1":
		*v = true
	case "false", "False", "f", "0", "null", "":
		*v = false
	default:
		return &ParseError{Target: "bool", Value: s}
	}
	return nil
}

func (v Bool) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatBool(bool(v))), nil
}

// Time accepts an ISO-ish datetime string or a unix timestamp number.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		t.Time = time.Unix(int64(secs), 0).UTC()
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return &ParseError{Target: "datetime", Value: s}
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339))), nil
}

// Date accepts a YYYY-MM-DD string.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		return &ParseError{Target: "date", Value: s}
	}
	d.Time = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.Format("2006-01-02"))), nil
}

// decodeResource unmarshals raw JSON into T, wrapping failures with the
// resource name for diagnosability.
func decodeResource[T any](name string, raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &v, nil
}
