package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/feed"
	logx "calbot/pkg/logx"
)

type recNotifier struct {
	got []calendar.Event
	err error
}

func (r *recNotifier) Notify(_ context.Context, ev calendar.Event) error {
	r.got = append(r.got, ev)
	return r.err
}

var now = time.Date(2025, 1, 10, 13, 30, 0, 0, time.UTC)

func ev(title string, at time.Time) calendar.Event {
	return calendar.Event{
		Country:    "USD",
		Title:      title,
		Date:       at.Format(time.RFC3339),
		Impact:     "High",
		Time:       at,
		HighImpact: true,
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	n := &recNotifier{}
	e := NewEngine(n, 0, logx.Nop())
	sent := NewSentSet()
	batch := []calendar.Event{ev("A", now.Add(-time.Minute)), ev("B", now), ev("C", now.Add(time.Hour))}

	first := e.Process(context.Background(), batch, now, sent)
	second := e.Process(context.Background(), batch, now, sent)

	if first.Dispatched != 2 || second.Dispatched != 0 {
		t.Fatalf("dispatched = %d then %d", first.Dispatched, second.Dispatched)
	}
	if len(n.got) != 2 {
		t.Fatalf("notifications = %d", len(n.got))
	}
	if !first.Next.Equal(second.Next) || first.HasNext != second.HasNext {
		t.Fatalf("next changed between calls: %+v vs %+v", first, second)
	}
	if sent.Len() != 2 {
		t.Fatalf("sent = %d", sent.Len())
	}
}

func TestProcessBoundaryIsInclusive(t *testing.T) {
	n := &recNotifier{}
	res := NewEngine(n, 0, logx.Nop()).Process(context.Background(), []calendar.Event{ev("Now", now)}, now, NewSentSet())
	if res.Dispatched != 1 || res.HasNext {
		t.Fatalf("result = %+v", res)
	}
}

func TestProcessNextIsEarliestFuture(t *testing.T) {
	batch := []calendar.Event{ev("Later", now.Add(90*time.Minute)), ev("Soon", now.Add(5*time.Minute))}
	res := NewEngine(&recNotifier{}, 0, logx.Nop()).Process(context.Background(), batch, now, NewSentSet())
	if !res.HasNext || !res.Next.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("next = %v (has=%v)", res.Next, res.HasNext)
	}
	if res.Dispatched != 0 {
		t.Fatalf("dispatched = %d", res.Dispatched)
	}
}

func TestProcessNoFuture(t *testing.T) {
	res := NewEngine(&recNotifier{}, 0, logx.Nop()).Process(context.Background(), nil, now, NewSentSet())
	if res.HasNext || !res.Next.IsZero() {
		t.Fatalf("result = %+v", res)
	}
}

func TestCPIScenario(t *testing.T) {
	at := now
	r := feed.RawEvent{
		Country:  feed.V("USD"),
		Title:    feed.V("CPI m/m"),
		Date:     feed.V("2025-01-10T13:30:00Z"),
		Impact:   feed.V("High"),
		Forecast: feed.V("0.3%"),
		Previous: feed.V("0.2%"),
	}
	events := calendar.Filter([]feed.RawEvent{r}, logx.Nop())
	n := &recNotifier{}
	e := NewEngine(n, 0, logx.Nop())
	sent := NewSentSet()

	e.Process(context.Background(), events, at.Add(10*time.Second), sent)
	e.Process(context.Background(), events, at.Add(70*time.Second), sent)

	if len(n.got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.got))
	}
	got := n.got[0]
	if got.Title != "CPI m/m" || got.Forecast != "0.3%" || got.Previous != "0.2%" || !got.Time.Equal(at) {
		t.Fatalf("event = %+v", got)
	}
}

func TestMalformedRecordDoesNotBlockOthers(t *testing.T) {
	raw := []feed.RawEvent{
		{Country: feed.V("USD"), Title: feed.V("A"), Date: feed.V("2025-01-10T13:00:00Z"), Impact: feed.V("High")},
		{Country: feed.V("USD"), Title: feed.V("No date"), Impact: feed.V("High")},
		{Country: feed.V("USD"), Title: feed.V("B"), Date: feed.V("2025-01-10T13:15:00Z"), Impact: feed.V("3")},
	}
	n := &recNotifier{}
	res := NewEngine(n, 0, logx.Nop()).Process(context.Background(), calendar.Filter(raw, logx.Nop()), now, NewSentSet())
	if res.Dispatched != 2 || len(n.got) != 2 {
		t.Fatalf("dispatched = %d, notified = %d", res.Dispatched, len(n.got))
	}
}

func TestNotifierFailureStillMarksSent(t *testing.T) {
	n := &recNotifier{err: errors.New("sink down")}
	e := NewEngine(n, 0, logx.Nop())
	sent := NewSentSet()
	batch := []calendar.Event{ev("A", now)}

	e.Process(context.Background(), batch, now, sent)
	e.Process(context.Background(), batch, now.Add(time.Minute), sent)

	if len(n.got) != 1 {
		t.Fatalf("attempts = %d, want 1", len(n.got))
	}
	if !sent.Has(batch[0].Key()) {
		t.Fatal("key must be recorded despite failure")
	}
}

func TestProcessWithoutNotifierDispatchesNothing(t *testing.T) {
	sent := NewSentSet()
	batch := []calendar.Event{ev("Due", now), ev("Later", now.Add(time.Hour))}
	res := NewEngine(nil, 0, logx.Nop()).Process(context.Background(), batch, now, sent)
	if res.Dispatched != 0 || sent.Len() != 0 {
		t.Fatalf("dispatched = %d, sent = %d", res.Dispatched, sent.Len())
	}
	if !res.HasNext || !res.Next.Equal(now.Add(time.Hour)) {
		t.Fatalf("next = %v (has=%v)", res.Next, res.HasNext)
	}
}

func TestRetentionHorizon(t *testing.T) {
	n := &recNotifier{}
	e := NewEngine(n, 24*time.Hour, logx.Nop())
	sent := NewSentSet()
	old := ev("Old", now.Add(-48*time.Hour))
	recent := ev("Recent", now.Add(-time.Hour))

	res := e.Process(context.Background(), []calendar.Event{old, recent}, now, sent)
	if res.Dispatched != 1 || sent.Has(old.Key()) || !sent.Has(recent.Key()) {
		t.Fatalf("result = %+v, sent = %d", res, sent.Len())
	}

	// Pruning at the same horizon never causes a re-send.
	later := now.Add(30 * time.Hour)
	sent.Prune(later.Add(-e.Retention()))
	res = e.Process(context.Background(), []calendar.Event{old, recent}, later, sent)
	if res.Dispatched != 0 {
		t.Fatalf("re-sent after prune: %+v", res)
	}
}

func TestSentSetPrune(t *testing.T) {
	s := NewSentSet()
	s.Add("a", now.Add(-2*time.Hour))
	s.Add("b", now)
	if n := s.Prune(now.Add(-time.Hour)); n != 1 {
		t.Fatalf("pruned = %d", n)
	}
	if s.Has("a") || !s.Has("b") || s.Len() != 1 {
		t.Fatal("wrong keys pruned")
	}
}
