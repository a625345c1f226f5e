package digest

import (
	"context"
	"errors"
	"sync"
	"time"

	"calbot/internal/eventbus"
	logx "calbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "0 7 * * 1-5"
	DefaultHorizon  = 24 * time.Hour
)

type Config struct {
	Enabled  bool
	Schedule string
	Location *time.Location
	Horizon  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Horizon <= 0 {
		c.Horizon = DefaultHorizon
	}
	return c
}

// Sender delivers the rendered agenda.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Service fires the digest on a cron schedule.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	runCtx context.Context

	board  *Board
	sender Sender
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time
}

func New(cfg Config, board *Board, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Service{cfg: cfg.withDefaults(), board: board, sender: sender, log: log, bus: bus, now: time.Now}
}

// Run starts the cron and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	err := s.startLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	<-ctx.Done()

	s.mu.Lock()
	old := s.c
	s.c = nil
	s.runCtx = nil
	s.mu.Unlock()
	stopCron(old)
	return ctx.Err()
}

// Apply swaps the schedule. A running cron is rebuilt.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	if cfg.Enabled {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.cfg = cfg
	if s.runCtx == nil {
		s.mu.Unlock()
		return nil
	}
	old := s.c
	s.c = nil
	err := s.startLocked()
	s.mu.Unlock()
	stopCron(old)
	return err
}

func (s *Service) startLocked() error {
	if !s.cfg.Enabled {
		s.log.Debug("digest disabled")
		return nil
	}
	c := cron.New(cron.WithLocation(s.cfg.Location))
	ctx := s.runCtx
	if _, err := c.AddFunc(s.cfg.Schedule, func() { _ = s.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("digest scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.String("tz", s.cfg.Location.String()),
		logx.Duration("horizon", s.cfg.Horizon),
	)
	return nil
}

// stopCron waits for a running job. Callers must not hold s.mu.
func stopCron(c *cron.Cron) {
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

var errNoSnapshot = errors.New("digest: no calendar snapshot yet")

// RunOnce renders and sends the agenda for the current board. Nothing is
// sent when there are no upcoming events.
func (s *Service) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if s.board.Updated().IsZero() {
		s.log.Warn("digest skipped", logx.Err(errNoSnapshot))
		return errNoSnapshot
	}
	now := s.now()
	events := s.board.Upcoming(now, cfg.Horizon)
	if len(events) == 0 {
		s.log.Debug("digest skipped, nothing upcoming", logx.Duration("horizon", cfg.Horizon))
		return nil
	}
	text := Render(events, cfg.Horizon, cfg.Location)
	if err := s.sender.Send(ctx, text); err != nil {
		s.log.Warn("digest send failed", logx.Err(err))
		return err
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDigestSent, Data: len(events)})
	s.log.Info("digest sent", logx.Int("events", len(events)))
	return nil
}
