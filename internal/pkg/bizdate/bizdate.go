// Package bizdate resolves the business calendar date in the sales organisation's time zone.
// Quota keys and order dates are plain YYYY-MM-DD strings so each day is an independent namespace.
package bizdate

import (
	"time"

	"salesquota-backend/internal/domain"
)

type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New returns a calendar for the given IANA zone name. Unknown zones fall back to UTC.
func New(zone string) *Calendar {
	loc, err := time.LoadLocation(zone)
	if err != nil || zone == "" {
		loc = time.UTC
	}
	return &Calendar{loc: loc, now: time.Now}
}

// Fixed returns a calendar frozen at t; used by tests and replay tooling.
func Fixed(t time.Time) *Calendar {
	return &Calendar{loc: t.Location(), now: func() time.Time { return t }}
}

// Today is the current business date.
func (c *Calendar) Today() string {
	return c.now().In(c.loc).Format(domain.DateLayout)
}

// IsPast reports whether date is before today. Dates compare lexically in YYYY-MM-DD form.
func (c *Calendar) IsPast(date string) bool {
	return date < c.Today()
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Valid reports whether s is a well-formed business date.
func Valid(s string) bool {
	if len(s) != len(domain.DateLayout) {
		return false
	}
	_, err := time.Parse(domain.DateLayout, s)
	return err == nil
}
