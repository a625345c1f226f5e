// Package notifier formats calendar events and delivers them through a
// transport.Sender, throttled by a token bucket.
//
// Sends are synchronous: the caller blocks on the limiter and the transport,
// bounded by Config.Timeout. There are no retries; a failed send is reported
// on the event bus and returned to the caller.
package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/eventbus"
	"calbot/internal/transport"
	logx "calbot/pkg/logx"

	"golang.org/x/time/rate"
)

var ErrNoSender = errors.New("notifier: no sender configured")

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender transport.Sender
	log    logx.Logger
	bus    eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{sender: sender, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Notify formats ev and sends it.
func (s *Service) Notify(ctx context.Context, ev calendar.Event) error {
	return s.send(ctx, ev.Key(), ev.Title, Format(ev))
}

// Send delivers free-form text such as the agenda digest.
func (s *Service) Send(ctx context.Context, text string) error {
	return s.send(ctx, "", "", text)
}

func (s *Service) send(ctx context.Context, key, title, text string) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if s.sender == nil {
		return ErrNoSender
	}
	channel := s.sender.Name()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	err := lim.Wait(ctx)
	if err == nil {
		err = s.sender.SendText(ctx, text)
	}
	if err != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifierFailed, Data: eventbus.NotifyData{
			Channel: channel, Key: key, Title: title, Err: err.Error(),
		}})
		return err
	}

	s.appendHistory(HistoryItem{At: time.Now(), Channel: channel, Key: key, Text: text})
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifierSent, Data: eventbus.NotifyData{
		Channel: channel, Key: key, Title: title,
	}})
	return nil
}

// History returns the most recent successful sends, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	s.hmu.Unlock()
}

const timeLayout = "2006-01-02 15:04 UTC"

// Format renders the notification text for ev. Forecast and Previous lines
// are omitted when empty.
func Format(ev calendar.Event) string {
	var b strings.Builder
	b.WriteString(calendar.Country)
	b.WriteString(" high-impact event\n")
	b.WriteString(ev.Title)
	b.WriteString("\nTime: ")
	b.WriteString(ev.Time.UTC().Format(timeLayout))
	b.WriteString("\nImpact: ")
	b.WriteString(ev.Impact)
	if ev.Forecast != "" {
		b.WriteString("\nForecast: ")
		b.WriteString(ev.Forecast)
	}
	if ev.Previous != "" {
		b.WriteString("\nPrevious: ")
		b.WriteString(ev.Previous)
	}
	return b.String()
}
