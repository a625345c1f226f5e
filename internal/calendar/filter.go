package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"calbot/internal/feed"
	logx "calbot/pkg/logx"
)

var errNoDate = errors.New("empty date")

// dateLayouts are tried in order after a trailing Z has been rewritten to +00:00.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04-07:00",
}

// ParseDate parses an ISO-8601 timestamp with a zone marker and returns it in UTC.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errNoDate
	}
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "+00:00"
	}
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: %w", raw, firstErr)
}

// IsHighImpact normalizes the feed's impact encoding ("High", "high", 3).
func IsHighImpact(impact string) bool {
	switch strings.ToLower(strings.TrimSpace(impact)) {
	case "high", "3":
		return true
	default:
		return false
	}
}

// Filter keeps USD high-impact records in input order. Records that are
// missing fields or carry an unparseable date are dropped and logged at debug;
// they never abort the batch.
func Filter(raw []feed.RawEvent, log logx.Logger) []Event {
	if log.IsZero() {
		log = logx.Nop()
	}
	out := make([]Event, 0, 8)
	for i, r := range raw {
		ev, ok, reason := parse(r)
		if !ok {
			if reason != "" {
				log.Debug("calendar record dropped",
					logx.Int("index", i),
					logx.String("title", r.Title.Text),
					logx.String("reason", reason),
				)
			}
			continue
		}
		out = append(out, ev)
	}
	return out
}

// parse validates one record. A non-matching but well-formed record returns
// ok=false with an empty reason; malformed ones return the reason.
func parse(r feed.RawEvent) (Event, bool, string) {
	if r.Country.Text != Country {
		return Event{}, false, ""
	}
	if !r.Title.Present() {
		return Event{}, false, "missing title"
	}
	if !r.Impact.Present() {
		return Event{}, false, "missing impact"
	}
	if !IsHighImpact(r.Impact.Text) {
		return Event{}, false, ""
	}
	if !r.Date.Present() {
		return Event{}, false, "missing date"
	}
	at, err := ParseDate(r.Date.Text)
	if err != nil {
		return Event{}, false, err.Error()
	}

	ev := Event{
		Country:    r.Country.Text,
		Title:      strings.TrimSpace(r.Title.Text),
		Date:       r.Date.Text,
		Impact:     strings.TrimSpace(r.Impact.Text),
		Time:       at,
		HighImpact: true,
	}
	if r.Forecast.Present() {
		ev.Forecast = strings.TrimSpace(r.Forecast.Text)
	}
	if r.Previous.Present() {
		ev.Previous = strings.TrimSpace(r.Previous.Text)
	}
	return ev, true, ""
}
