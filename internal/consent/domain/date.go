package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Date is an instant that also accepts a bare calendar date ("2024-12-15",
// interpreted as midnight UTC) when decoded from JSON. Publication dates and
// deadlines arrive in either form.
type Date struct {
	time.Time
}

const dateOnly = "2006-01-02"

// NewDate wraps t as a Date in UTC.
func NewDate(t time.Time) Date { return Date{Time: t.UTC()} }

// DatePtr is a convenience for optional deadlines.
func DatePtr(t time.Time) *Date {
	d := NewDate(t)
	return &d
}

// ParseDate parses RFC 3339 timestamps and bare dates.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return NewDate(t), nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("domain: invalid date %q", s)
	}
	return NewDate(t), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.UTC().Format(time.RFC3339Nano))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
