package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/eventbus"
	logx "calbot/pkg/logx"
)

type recSender struct {
	mu    sync.Mutex
	texts []string
	err   error
	block bool
}

func (r *recSender) Name() string { return "rec" }

func (r *recSender) SendText(ctx context.Context, text string) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

var cpi = calendar.Event{
	Country:  "USD",
	Title:    "CPI m/m",
	Date:     "2025-01-10T13:30:00Z",
	Impact:   "High",
	Forecast: "0.3%",
	Previous: "0.2%",
	Time:     time.Date(2025, 1, 10, 13, 30, 0, 0, time.UTC),
}

func TestFormat(t *testing.T) {
	want := "USD high-impact event\nCPI m/m\nTime: 2025-01-10 13:30 UTC\nImpact: High\nForecast: 0.3%\nPrevious: 0.2%"
	if got := Format(cpi); got != want {
		t.Fatalf("Format =\n%s\nwant\n%s", got, want)
	}

	bare := cpi
	bare.Forecast, bare.Previous = "", ""
	want = "USD high-impact event\nCPI m/m\nTime: 2025-01-10 13:30 UTC\nImpact: High"
	if got := Format(bare); got != want {
		t.Fatalf("Format without optional fields = %q", got)
	}

	onlyPrev := cpi
	onlyPrev.Forecast = ""
	want = "USD high-impact event\nCPI m/m\nTime: 2025-01-10 13:30 UTC\nImpact: High\nPrevious: 0.2%"
	if got := Format(onlyPrev); got != want {
		t.Fatalf("Format with previous only = %q", got)
	}
}

func TestNotifyPublishesAndRecordsHistory(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	snd := &recSender{}
	s := New(Config{RatePerSec: 100}, snd, logx.Nop(), bus)
	if err := s.Notify(context.Background(), cpi); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(snd.texts) != 1 || snd.texts[0] != Format(cpi) {
		t.Fatalf("texts = %q", snd.texts)
	}
	h := s.History()
	if len(h) != 1 || h[0].Key != cpi.Key() || h[0].Channel != "rec" {
		t.Fatalf("history = %+v", h)
	}
	e := <-ch
	if e.Type != eventbus.TypeNotifierSent {
		t.Fatalf("event type = %q", e.Type)
	}
}

func TestNotifyFailure(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	boom := errors.New("boom")
	s := New(Config{RatePerSec: 100}, &recSender{err: boom}, logx.Nop(), bus)
	if err := s.Notify(context.Background(), cpi); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(s.History()) != 0 {
		t.Fatal("failed send must not be recorded")
	}
	e := <-ch
	d, _ := e.Data.(eventbus.NotifyData)
	if e.Type != eventbus.TypeNotifierFailed || d.Err != "boom" {
		t.Fatalf("event = %+v", e)
	}
}

func TestSendTimeout(t *testing.T) {
	s := New(Config{RatePerSec: 100, Timeout: 20 * time.Millisecond}, &recSender{block: true}, logx.Nop(), nil)
	start := time.Now()
	err := s.Send(context.Background(), "digest")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout not applied")
	}
}

func TestNoSender(t *testing.T) {
	s := New(Config{}, nil, logx.Nop(), nil)
	if err := s.Send(context.Background(), "x"); !errors.Is(err, ErrNoSender) {
		t.Fatalf("err = %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	snd := &recSender{}
	s := New(Config{RatePerSec: 1, Timeout: 50 * time.Millisecond}, snd, logx.Nop(), nil)
	if err := s.Send(context.Background(), "a"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	// Bucket is empty; the next token is a second away, beyond the timeout.
	if err := s.Send(context.Background(), "b"); err == nil {
		t.Fatal("expected limiter to reject within timeout")
	}

	s.Apply(Config{RatePerSec: 1000, Timeout: time.Second})
	for i := 0; i < 5; i++ {
		if err := s.Send(context.Background(), "c"); err != nil {
			t.Fatalf("send after Apply: %v", err)
		}
	}
}

func TestHistoryBounded(t *testing.T) {
	s := New(Config{RatePerSec: 1000}, &recSender{}, logx.Nop(), nil)
	for i := 0; i < historyLimit+20; i++ {
		if err := s.Send(context.Background(), "x"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if n := len(s.History()); n != historyLimit {
		t.Fatalf("history len = %d", n)
	}
}
