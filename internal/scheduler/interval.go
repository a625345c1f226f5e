package scheduler

import (
	"time"

	"calbot/internal/dispatch"
	"calbot/internal/feed"
)

const (
	DefaultBase = 60 * time.Second
	DefaultMax  = 15 * time.Minute
)

// Config bounds the poll interval.
type Config struct {
	Base time.Duration
	Max  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Base <= 0 {
		c.Base = DefaultBase
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.Max < c.Base {
		c.Max = c.Base
	}
	return c
}

// Step maps the distance to the next event onto a poll interval, polling
// more often as the event approaches.
func Step(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		return 15 * time.Minute
	case d > 10*time.Minute:
		return 5 * time.Minute
	case d >= time.Minute:
		return time.Minute
	default:
		return 10 * time.Second
	}
}

// nextInterval is the whole interval policy. err is the fetch error, or an
// unexpected failure in filter/dispatch; res is only read when err is nil.
func nextInterval(cfg Config, cur time.Duration, err error, res dispatch.Result, now time.Time) time.Duration {
	if err != nil {
		rl, ok := feed.AsRateLimited(err)
		if !ok {
			return cur
		}
		if rl.HasRetryAfter {
			// The server's wait wins even when it exceeds Max.
			return max(rl.RetryAfter, cfg.Base)
		}
		return min(2*cur, cfg.Max)
	}
	if !res.HasNext {
		return cfg.Max
	}
	return min(Step(res.Next.Sub(now)), cfg.Max)
}
