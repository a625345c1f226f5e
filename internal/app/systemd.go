package app

import (
	"context"
	"time"

	"calbot/internal/eventbus"
	logx "calbot/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotifier reports lifecycle state to systemd. Outside a unit with
// NOTIFY_SOCKET every call is a no-op.
type sdNotifier struct {
	log    logx.Logger
	notify func(state string) (bool, error)
}

func newSDNotifier(log logx.Logger) *sdNotifier {
	return &sdNotifier{
		log:    log,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *sdNotifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent && state != daemon.SdNotifyWatchdog {
		n.log.Debug("systemd notified", logx.String("state", state))
	}
}

func (n *sdNotifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *sdNotifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// watchdogSlack covers one cycle's own work (fetch plus sends) and the
// scheduler's restart backoff on top of the sleep it announced.
func watchdogSlack(feedTimeout time.Duration) time.Duration {
	return 2*feedTimeout + time.Minute
}

// watchdog pings systemd at half the configured WatchdogSec as long as poll
// cycles keep arriving. The loop counts as stalled once no cycle has completed
// within the interval the last cycle announced plus slack. A stuck poll loop
// stops the pings and lets systemd restart the unit.
func (n *sdNotifier) watchdog(ctx context.Context, bus eventbus.Bus, slack time.Duration) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return err
	}
	return n.watchdogLoop(ctx, bus, every/2, slack, time.Now)
}

func (n *sdNotifier) watchdogLoop(ctx context.Context, bus eventbus.Bus, every, slack time.Duration, now func() time.Time) error {
	events, unsub := bus.Subscribe(8)
	defer unsub()

	last := now()
	stale := slack

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeCycle {
				continue
			}
			last = now()
			stale = slack
			if d, ok := e.Data.(eventbus.CycleData); ok && d.Interval > 0 {
				stale += d.Interval
			}
			n.send(daemon.SdNotifyWatchdog)
		case <-t.C:
			if now().Sub(last) <= stale {
				n.send(daemon.SdNotifyWatchdog)
			} else {
				n.log.Warn("poll loop stalled; withholding watchdog ping",
					logx.Duration("since_cycle", now().Sub(last)),
					logx.Duration("stale", stale),
				)
			}
		}
	}
}
