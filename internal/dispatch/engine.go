// Package dispatch decides which events are due, suppresses duplicates and
// hands due events to the notifier.
package dispatch

import (
	"context"
	"time"

	"calbot/internal/calendar"
	logx "calbot/pkg/logx"
)

// Notifier delivers a single event.
type Notifier interface {
	Notify(ctx context.Context, ev calendar.Event) error
}

type Result struct {
	Next       time.Time
	HasNext    bool
	Dispatched int
}

type Engine struct {
	notifier Notifier
	log      logx.Logger
	// retention is the expiry horizon. Events older than now-retention are
	// neither sent nor tracked. Zero disables it.
	retention time.Duration
}

func NewEngine(n Notifier, retention time.Duration, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{notifier: n, log: log, retention: retention}
}

// Retention returns the configured expiry horizon.
func (e *Engine) Retention() time.Duration { return e.retention }

// Process walks events in order. A due event whose key is not in sent is
// recorded first and then sent, so a failed send is never retried. Future
// events only contribute to the earliest Next.
func (e *Engine) Process(ctx context.Context, events []calendar.Event, now time.Time, sent *SentSet) Result {
	var res Result
	for _, ev := range events {
		if !ev.Due(now) {
			if !res.HasNext || ev.Time.Before(res.Next) {
				res.Next = ev.Time
				res.HasNext = true
			}
			continue
		}
		if e.expired(ev, now) {
			continue
		}
		key := ev.Key()
		if sent.Has(key) {
			continue
		}
		if e.notifier == nil {
			e.log.Warn("no notifier; due event left pending", logx.String("title", ev.Title), logx.Time("at", ev.Time))
			continue
		}
		sent.Add(key, ev.Time)
		res.Dispatched++

		if err := e.notifier.Notify(ctx, ev); err != nil {
			e.log.Warn("notification failed",
				logx.String("title", ev.Title),
				logx.Time("at", ev.Time),
				logx.Err(err),
			)
			continue
		}
		e.log.Info("notification sent", logx.String("title", ev.Title), logx.Time("at", ev.Time))
	}
	return res
}

func (e *Engine) expired(ev calendar.Event, now time.Time) bool {
	return e.retention > 0 && ev.Time.Before(now.Add(-e.retention))
}
