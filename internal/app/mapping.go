package app

import (
	"strconv"
	"strings"
	"time"

	"calbot/internal/config"
	"calbot/internal/digest"
	"calbot/internal/feed"
	"calbot/internal/notifier"
	"calbot/internal/scheduler"
	"calbot/internal/transport"
	telegram "calbot/internal/transport/telegram/adapter"
	"calbot/internal/transport/webhook"
	logx "calbot/pkg/logx"
)

const defaultRetention = 192 * time.Hour

func mapFeedConfig(cfg *Config) (feed.Config, error) {
	timeout, err := parseDurationOrDefault("feed.timeout", cfg.Feed.Timeout, 10*time.Second)
	if err != nil {
		return feed.Config{}, err
	}
	url := strings.TrimSpace(cfg.Feed.URL)
	if url == "" {
		url = config.DefaultFeedURL
	}
	return feed.Config{URL: url, Timeout: timeout, UserAgent: strings.TrimSpace(cfg.Feed.UserAgent)}, nil
}

func mapPollConfig(cfg *Config) (scheduler.Config, error) {
	base, err := parseDurationOrDefault("poll.base", cfg.Poll.Base, scheduler.DefaultBase)
	if err != nil {
		return scheduler.Config{}, err
	}
	maxD, err := parseDurationOrDefault("poll.max", cfg.Poll.Max, scheduler.DefaultMax)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Base: base, Max: maxD}, nil
}

func mapNotifierConfig(cfg *Config) (notifier.Config, error) {
	timeout, err := parseDurationOrDefault("notifier.timeout", cfg.Notifier.Timeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{RatePerSec: cfg.Notifier.RatePerSec, Timeout: timeout}, nil
}

func mapDigestConfig(cfg *Config) (digest.Config, error) {
	horizon, err := parseDurationOrDefault("digest.horizon", cfg.Digest.Horizon, digest.DefaultHorizon)
	if err != nil {
		return digest.Config{}, err
	}
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return digest.Config{}, err
		}
	}
	return digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Schedule: strings.TrimSpace(cfg.Digest.Schedule),
		Location: loc,
		Horizon:  horizon,
	}, nil
}

// mapRetention keeps an explicit zero ("0s") meaning "disabled".
func mapRetention(cfg *Config) (time.Duration, error) {
	if strings.TrimSpace(cfg.Dedup.Retention) == "" {
		return defaultRetention, nil
	}
	return config.ParseDurationField("dedup.retention", cfg.Dedup.Retention)
}

func mapLoggingConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: config.ConsoleEnabled(cfg.Logging),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

// buildSender creates the configured transports. Validate has already
// guaranteed at least one is present.
func buildSender(cfg *Config, timeout time.Duration, log logx.Logger) (transport.Sender, error) {
	var senders []transport.Sender
	if token := strings.TrimSpace(cfg.Telegram.Token); token != "" {
		chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.ChatID), 10, 64)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{
			Token:    token,
			ChatID:   chatID,
			ThreadID: cfg.Telegram.ThreadID,
			Timeout:  timeout,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		senders = append(senders, tg)
	}
	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		wh, err := webhook.New(webhook.Config{
			URL:         url,
			Destination: strings.TrimSpace(cfg.Webhook.Destination),
			Timeout:     timeout,
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, wh)
	}
	s := transport.NewMulti(senders...)
	if s == nil {
		return nil, config.ErrNoChannel
	}
	return s, nil
}
