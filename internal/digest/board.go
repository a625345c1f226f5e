// Package digest keeps the latest calendar snapshot and periodically sends an
// agenda of the high-impact events coming up.
package digest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"calbot/internal/calendar"
)

// Board holds the events of the most recent successful cycle. The scheduler
// writes it; the digest job reads it.
type Board struct {
	mu      sync.RWMutex
	events  []calendar.Event
	updated time.Time
}

func NewBoard() *Board { return &Board{} }

func (b *Board) Update(events []calendar.Event, at time.Time) {
	cp := append([]calendar.Event(nil), events...)
	b.mu.Lock()
	b.events = cp
	b.updated = at
	b.mu.Unlock()
}

// Updated is the time of the last Update, zero if none.
func (b *Board) Updated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// Upcoming returns events in (now, now+horizon], earliest first.
func (b *Board) Upcoming(now time.Time, horizon time.Duration) []calendar.Event {
	end := now.Add(horizon)
	b.mu.RLock()
	out := make([]calendar.Event, 0, len(b.events))
	for _, ev := range b.events {
		if ev.Time.After(now) && !ev.Time.After(end) {
			out = append(out, ev)
		}
	}
	b.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Render formats an agenda. Times are shown in loc.
func Render(events []calendar.Event, horizon time.Duration, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s high-impact agenda (next %s)", calendar.Country, shortDuration(horizon))
	for _, ev := range events {
		t := ev.Time.In(loc)
		fmt.Fprintf(&b, "\n- %s %s %s", t.Format("Mon 15:04"), t.Format("MST"), ev.Title)
		var extra []string
		if ev.Forecast != "" {
			extra = append(extra, "forecast "+ev.Forecast)
		}
		if ev.Previous != "" {
			extra = append(extra, "previous "+ev.Previous)
		}
		if len(extra) > 0 {
			b.WriteString(" (" + strings.Join(extra, ", ") + ")")
		}
	}
	return b.String()
}

func shortDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	return d.String()
}
