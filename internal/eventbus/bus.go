// Package eventbus is an in-process fanout used to decouple the poll loop
// from observers (metrics, digest, logging).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by calbot components.
const (
	TypeCycle          = "scheduler.cycle"
	TypeNotifierSent   = "notifier.sent"
	TypeNotifierFailed = "notifier.failed"
	TypeDigestSent     = "digest.sent"
	TypeConfigReloaded = "config.reloaded"
)

// Event is a small in-memory signal. Publish never blocks; a subscriber whose
// buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// CycleData is the payload of TypeCycle.
type CycleData struct {
	ID         string
	Outcome    string // feed.Kind of the fetch error, "ok" on success
	Events     int    // high-impact USD events after filtering
	Dispatched int
	Tracked    int // size of the sent set after the cycle
	Interval   time.Duration
	Duration   time.Duration
	NextEvent  time.Time // zero when nothing is upcoming
}

// NotifyData is the payload of TypeNotifierSent and TypeNotifierFailed.
type NotifyData struct {
	Channel string
	Key     string
	Title   string
	Err     string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch between snapshot and send.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Nop discards everything. Useful when a component is built without a bus.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
