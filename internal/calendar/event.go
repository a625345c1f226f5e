// Package calendar turns raw feed records into high-impact USD events.
package calendar

import (
	"strings"
	"time"
)

// Country is the only currency calbot watches.
const Country = "USD"

// Event is a validated high-impact USD record with its instant resolved to UTC.
// It is built once per fetch and never mutated.
type Event struct {
	Country  string
	Title    string
	Date     string // raw feed value, part of the dedup key
	Impact   string // raw feed value, for display
	Forecast string // empty when absent
	Previous string // empty when absent

	Time       time.Time // UTC
	HighImpact bool
}

const keySep = "\x1f"

// Key identifies one occurrence of an event. It uses the raw date string so a
// feed update that moves the date counts as a new occurrence.
func (e Event) Key() string {
	return strings.Join([]string{e.Country, e.Title, e.Date}, keySep)
}

// Due reports whether the event time has arrived (inclusive).
func (e Event) Due(now time.Time) bool {
	return !e.Time.After(now)
}
