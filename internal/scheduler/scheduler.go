// Package scheduler owns the poll loop: fetch, filter, dispatch, then sleep
// for an interval that adapts to the next event and to feed errors.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/dispatch"
	"calbot/internal/eventbus"
	"calbot/internal/feed"
	logx "calbot/pkg/logx"

	"github.com/google/uuid"
)

type Fetcher interface {
	Fetch(ctx context.Context) ([]feed.RawEvent, error)
}

// Agenda receives the filtered events of every successful cycle.
type Agenda interface {
	Update(events []calendar.Event, at time.Time)
}

type Deps struct {
	Fetcher Fetcher
	Engine  *dispatch.Engine
	Agenda  Agenda // optional
	Bus     eventbus.Bus
	Log     logx.Logger
	Now     func() time.Time
}

// Scheduler runs cycles strictly one after another. The interval and the sent
// set are touched only by the goroutine calling Run or RunCycle.
type Scheduler struct {
	mu  sync.Mutex
	cfg Config

	d        Deps
	interval time.Duration
	sent     *dispatch.SentSet
}

func New(cfg Config, d Deps) *Scheduler {
	cfg = cfg.withDefaults()
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Scheduler{cfg: cfg, d: d, interval: cfg.Base, sent: dispatch.NewSentSet()}
}

// Apply swaps the interval bounds. They take effect at the end of the next
// cycle.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Scheduler) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Interval is the wait before the next cycle.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run loops until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.d.Log.Info("scheduler started", logx.Duration("interval", s.interval))
	for {
		s.RunCycle(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunCycle performs one fetch/filter/dispatch pass and updates the interval.
func (s *Scheduler) RunCycle(ctx context.Context) eventbus.CycleData {
	cfg := s.config()
	start := s.d.Now()
	data := eventbus.CycleData{ID: uuid.NewString()}
	log := s.d.Log.With(logx.String("cycle", data.ID))

	raw, err := s.d.Fetcher.Fetch(ctx)
	now := s.d.Now()

	var res dispatch.Result
	if err == nil {
		var n int
		res, n, err = s.process(ctx, raw, now, log)
		data.Events = n
	}

	prev := s.interval
	s.interval = nextInterval(cfg, prev, err, res, now)

	data.Outcome = feed.Kind(err)
	data.Dispatched = res.Dispatched
	data.Tracked = s.sent.Len()
	data.Interval = s.interval
	data.Duration = s.d.Now().Sub(start)
	if res.HasNext {
		data.NextEvent = res.Next
	}

	if err != nil {
		if ctx.Err() == nil {
			log.Warn("cycle failed",
				logx.String("outcome", data.Outcome),
				logx.Err(err),
				logx.Duration("interval", s.interval),
			)
		}
	} else {
		fields := []logx.Field{
			logx.Int("events", data.Events),
			logx.Int("dispatched", data.Dispatched),
			logx.Duration("interval", s.interval),
		}
		if res.HasNext {
			fields = append(fields, logx.Time("next", res.Next))
		}
		log.Debug("cycle done", fields...)
	}
	if s.interval != prev {
		log.Info("poll interval changed", logx.Duration("from", prev), logx.Duration("to", s.interval))
	}

	s.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeCycle, Data: data})
	return data
}

// process runs filter and dispatch. A panic in either is turned into an error
// so the cycle counts as failed and the loop survives.
func (s *Scheduler) process(ctx context.Context, raw []feed.RawEvent, now time.Time, log logx.Logger) (res dispatch.Result, n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("cycle panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	events := calendar.Filter(raw, log)
	if s.d.Agenda != nil {
		s.d.Agenda.Update(events, now)
	}
	res = s.d.Engine.Process(ctx, events, now, s.sent)

	if ret := s.d.Engine.Retention(); ret > 0 {
		if pruned := s.sent.Prune(now.Add(-ret)); pruned > 0 {
			log.Debug("sent keys pruned", logx.Int("pruned", pruned))
		}
	}
	return res, len(events), nil
}
