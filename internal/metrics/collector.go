// Package metrics exposes calbot activity as Prometheus metrics. Values are
// derived from the event bus so the poll loop stays unaware of them.
package metrics

import (
	"context"

	"calbot/internal/eventbus"
	"calbot/internal/runtime/supervisor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "calbot"

type Collector struct {
	reg *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	interval      prometheus.Gauge
	upcoming      prometheus.Gauge
	tracked       prometheus.Gauge
	nextEvent     prometheus.Gauge
	dispatched    prometheus.Counter
	notifications *prometheus.CounterVec
	digests       prometheus.Counter
	reloads       prometheus.Counter
}

// NewCollector registers calbot metrics plus the Go and process collectors
// on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in one fetch/filter/dispatch cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_interval_seconds",
			Help:      "Current wait between cycles",
		}),
		upcoming: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calendar_events",
			Help:      "High-impact USD events in the last successful fetch",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sent_keys",
			Help:      "Event keys currently held for deduplication",
		}),
		nextEvent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_event_timestamp_seconds",
			Help:      "Unix time of the next upcoming event, 0 when none",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Due events handed to the notifier",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification sends by channel and result",
		}, []string{"channel", "result"}),
		digests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_sent_total",
			Help:      "Agenda digests delivered",
		}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration changes applied at runtime",
		}),
	}
	c.reg.MustRegister(
		c.cycles, c.cycleDuration, c.interval, c.upcoming, c.tracked,
		c.nextEvent, c.dispatched, c.notifications, c.digests, c.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// GoroutineStats is implemented by *supervisor.Supervisor.
type GoroutineStats interface {
	Counters() supervisor.Counters
}

// WatchGoroutines exports the supervised goroutine counters. Values are read
// at scrape time. Call it once.
func (c *Collector) WatchGoroutines(src GoroutineStats) {
	c.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_supervised",
			Help:      "Supervised goroutines currently running",
		}, func() float64 { return float64(src.Counters().Active) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goroutine_panics_total",
			Help:      "Panics recovered in supervised goroutines",
		}, func() float64 { return float64(src.Counters().Panics) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goroutine_restarts_total",
			Help:      "Restarts of supervised goroutines after an error or panic",
		}, func() float64 { return float64(src.Counters().Restarts) }),
	)
}

// Observe updates metrics for one bus event. Unknown types are ignored.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeCycle:
		d, ok := e.Data.(eventbus.CycleData)
		if !ok {
			return
		}
		c.cycles.WithLabelValues(d.Outcome).Inc()
		c.cycleDuration.Observe(d.Duration.Seconds())
		c.interval.Set(d.Interval.Seconds())
		c.tracked.Set(float64(d.Tracked))
		c.dispatched.Add(float64(d.Dispatched))
		if d.Outcome == "ok" {
			c.upcoming.Set(float64(d.Events))
			if d.NextEvent.IsZero() {
				c.nextEvent.Set(0)
			} else {
				c.nextEvent.Set(float64(d.NextEvent.Unix()))
			}
		}
	case eventbus.TypeNotifierSent, eventbus.TypeNotifierFailed:
		d, _ := e.Data.(eventbus.NotifyData)
		result := "ok"
		if e.Type == eventbus.TypeNotifierFailed {
			result = "error"
		}
		c.notifications.WithLabelValues(d.Channel, result).Inc()
	case eventbus.TypeDigestSent:
		c.digests.Inc()
	case eventbus.TypeConfigReloaded:
		c.reloads.Inc()
	}
}

// Run consumes bus events until ctx is canceled.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}
