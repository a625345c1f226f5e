package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/eventbus"
	logx "calbot/pkg/logx"
)

var now = time.Date(2025, 1, 10, 7, 0, 0, 0, time.UTC)

func ev(title string, at time.Time) calendar.Event {
	return calendar.Event{Country: "USD", Title: title, Date: at.Format(time.RFC3339), Impact: "High", Time: at, HighImpact: true}
}

type textSender struct {
	texts []string
	err   error
}

func (t *textSender) Send(_ context.Context, text string) error {
	t.texts = append(t.texts, text)
	return t.err
}

func TestUpcomingSelectsWindowInOrder(t *testing.T) {
	b := NewBoard()
	b.Update([]calendar.Event{
		ev("Tomorrow late", now.Add(30*time.Hour)),
		ev("Afternoon", now.Add(8*time.Hour)),
		ev("Past", now.Add(-time.Hour)),
		ev("Right now", now),
		ev("Morning", now.Add(90*time.Minute)),
		ev("Edge", now.Add(24*time.Hour)),
	}, now)

	got := b.Upcoming(now, 24*time.Hour)
	var titles []string
	for _, e := range got {
		titles = append(titles, e.Title)
	}
	if strings.Join(titles, ",") != "Morning,Afternoon,Edge" {
		t.Fatalf("upcoming = %v", titles)
	}
}

func TestBoardUpdateCopies(t *testing.T) {
	b := NewBoard()
	in := []calendar.Event{ev("A", now.Add(time.Hour))}
	b.Update(in, now)
	in[0].Title = "mutated"
	if got := b.Upcoming(now, time.Hour*2); got[0].Title != "A" {
		t.Fatalf("board shares caller slice: %q", got[0].Title)
	}
}

func TestRender(t *testing.T) {
	a := ev("CPI m/m", time.Date(2025, 1, 10, 13, 30, 0, 0, time.UTC))
	a.Forecast, a.Previous = "0.3%", "0.2%"
	b := ev("Fed Chair Speaks", time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC))

	got := Render([]calendar.Event{a, b}, 24*time.Hour, time.UTC)
	want := "USD high-impact agenda (next 24h)\n" +
		"- Fri 13:30 UTC CPI m/m (forecast 0.3%, previous 0.2%)\n" +
		"- Fri 18:00 UTC Fed Chair Speaks"
	if got != want {
		t.Fatalf("Render =\n%s\nwant\n%s", got, want)
	}
}

func TestRunOnce(t *testing.T) {
	board := NewBoard()
	snd := &textSender{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(2)
	defer unsub()

	s := New(Config{Enabled: true}, board, snd, logx.Nop(), bus)
	s.now = func() time.Time { return now }

	if err := s.RunOnce(context.Background()); !errors.Is(err, errNoSnapshot) {
		t.Fatalf("before first update: %v", err)
	}

	board.Update([]calendar.Event{ev("Past", now.Add(-time.Hour))}, now)
	if err := s.RunOnce(context.Background()); err != nil || len(snd.texts) != 0 {
		t.Fatalf("empty agenda: err=%v sends=%d", err, len(snd.texts))
	}

	board.Update([]calendar.Event{ev("NFP", now.Add(6*time.Hour))}, now)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(snd.texts) != 1 || !strings.Contains(snd.texts[0], "NFP") {
		t.Fatalf("texts = %q", snd.texts)
	}
	if e := <-ch; e.Type != eventbus.TypeDigestSent || e.Data != 1 {
		t.Fatalf("event = %+v", e)
	}
}

func TestApplyRejectsBadSchedule(t *testing.T) {
	s := New(Config{}, NewBoard(), &textSender{}, logx.Nop(), nil)
	if err := s.Apply(Config{Enabled: true, Schedule: "not a cron"}); err == nil {
		t.Fatal("expected parse error")
	}
	if err := s.Apply(Config{Enabled: true, Schedule: "*/5 * * * *"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Config{Enabled: true, Schedule: "0 0 1 1 *"}, NewBoard(), &textSender{}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	if err := s.Apply(Config{Enabled: true, Schedule: "0 12 * * *"}); err != nil {
		t.Fatalf("Apply while running: %v", err)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
