// Package app wires calbot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"calbot/internal/digest"
	"calbot/internal/dispatch"
	"calbot/internal/eventbus"
	"calbot/internal/feed"
	"calbot/internal/metrics"
	"calbot/internal/notifier"
	"calbot/internal/scheduler"
	"calbot/internal/transport"
	logx "calbot/pkg/logx"
)

type App struct {
	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	sd   *sdNotifier

	sender  transport.Sender
	notif   *notifier.Service
	sched   *scheduler.Scheduler
	board   *digest.Board
	digest  *digest.Service
	metrics *metrics.Collector
	metSrv  *metrics.Server

	// slack is added to the announced poll interval before the watchdog
	// treats the loop as stalled.
	slack time.Duration
}

// New loads and validates configuration and builds every component. It does
// not start anything; config errors returned here are fatal.
func New(cfgm *ConfigManager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	feedCfg, err := mapFeedConfig(cfg)
	if err != nil {
		return nil, err
	}
	pollCfg, err := mapPollConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	dcfg, err := mapDigestConfig(cfg)
	if err != nil {
		return nil, err
	}
	retention, err := mapRetention(cfg)
	if err != nil {
		return nil, err
	}

	// Transports log before the logging service exists.
	bootLog := logx.NewConsole(cfg.Logging.Level)
	sender, err := buildSender(cfg, ncfg.Timeout, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), sender)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	notif := notifier.New(ncfg, sender, log.With(logx.String("comp", "notifier")), bus)

	board := digest.NewBoard()
	engine := dispatch.NewEngine(notif, retention, log.With(logx.String("comp", "dispatch")))
	sched := scheduler.New(pollCfg, scheduler.Deps{
		Fetcher: feed.NewClient(feedCfg, log.With(logx.String("comp", "feed"))),
		Engine:  engine,
		Agenda:  board,
		Bus:     bus,
		Log:     log.With(logx.String("comp", "scheduler")),
	})

	a := &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		sd:     newSDNotifier(log.With(logx.String("comp", "systemd"))),
		sender: sender,
		notif:  notif,
		sched:  sched,
		board:  board,
		digest: digest.New(dcfg, board, notif, log.With(logx.String("comp", "digest")), bus),
		slack:  watchdogSlack(feedCfg.Timeout),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector()
		addr := strings.TrimSpace(cfg.Metrics.Addr)
		if addr == "" {
			addr = "127.0.0.1:9310"
		}
		a.metSrv = metrics.NewServer(addr, a.metrics, metrics.ServerOptions{
			Pprof:   cfg.Metrics.Pprof,
			History: notif.History,
		}, log.With(logx.String("comp", "metrics")))
	}
	log.Info("calbot configured",
		logx.String("config", cfgm.Path()),
		logx.String("channel", sender.Name()),
		logx.String("feed", feedCfg.URL),
		logx.Duration("poll_base", pollCfg.Base),
		logx.Duration("poll_max", pollCfg.Max),
		logx.Duration("retention", retention),
		logx.Bool("digest", dcfg.Enabled),
		logx.Bool("metrics", cfg.Metrics.Enabled),
	)
	return a, nil
}

// Done is closed when the app context is canceled, either by the parent or
// because a supervised goroutine failed. Err then reports the failure.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first error recorded by a supervised goroutine.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx,
		WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		if _, err := mapDigestConfig(cfg); err != nil {
			return err
		}
		_, err := mapRetention(cfg)
		return err
	})

	restart := RestartPolicy{MinBackoff: time.Second, MaxBackoff: time.Minute}

	if a.metrics != nil {
		a.metrics.WatchGoroutines(a.sup)
		a.sup.Go("metrics.collector", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
		a.sup.GoRestart("metrics.server", a.metSrv.Run, restart)
	}
	a.sup.Go("eventbus.log", a.logEvents)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.GoRestart("digest", a.digest.Run, restart)
	a.sup.Go("systemd.watchdog", func(c context.Context) error { return a.sd.watchdog(c, a.bus, a.slack) })
	a.sup.GoRestart("scheduler", a.sched.Run, restart)

	a.sd.Ready()
	a.log.Info("calbot started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.sd.Stopping()
	a.log.Info("calbot stopping")

	// Goroutine failures are reported through Err; Stop only reports an
	// incomplete shutdown.
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
		if errors.Is(err, context.Canceled) || (err != nil && err == a.sup.Err()) {
			err = nil
		}
	}
	_ = a.logs.Close()
	return err
}

func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// reloadLoop applies hot-reloadable sections. Sections that rebuild clients
// (feed, transports, metrics, dedup) need a restart.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

func (a *App) apply(prev, cfg *Config) {
	sections, fields := SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, no effective changes")
		return
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(cfg))
		case "notifier":
			if ncfg, err := mapNotifierConfig(cfg); err == nil {
				a.notif.Apply(ncfg)
			}
		case "poll":
			if pcfg, err := mapPollConfig(cfg); err == nil {
				a.sched.Apply(pcfg)
			}
		case "digest":
			dcfg, err := mapDigestConfig(cfg)
			if err == nil {
				err = a.digest.Apply(dcfg)
			}
			if err != nil {
				a.log.Warn("digest config not applied", logx.Err(err))
			}
		default:
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
}
