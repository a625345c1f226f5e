package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrNoChannel = errors.New("notification channel not configured: set " +
	EnvWebhookURL + " or both " + EnvTelegramToken + " and " + EnvTelegramChatID)

// Validate checks cfg for startup and hot reload. It never mutates cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validateChannel(cfg); err != nil {
		return err
	}

	if u := strings.TrimSpace(cfg.Feed.URL); u != "" {
		if err := validateHTTPURL("feed.url", u); err != nil {
			return err
		}
	}

	durations := []struct{ path, raw string }{
		{"feed.timeout", cfg.Feed.Timeout},
		{"poll.base", cfg.Poll.Base},
		{"poll.max", cfg.Poll.Max},
		{"notifier.timeout", cfg.Notifier.Timeout},
		{"digest.horizon", cfg.Digest.Horizon},
		{"dedup.retention", cfg.Dedup.Retention},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	base, _ := ParseDurationField("poll.base", cfg.Poll.Base)
	maxD, _ := ParseDurationField("poll.max", cfg.Poll.Max)
	if base > 0 && maxD > 0 && base > maxD {
		return fmt.Errorf("poll.base (%s) must be <= poll.max (%s)", base, maxD)
	}

	if cfg.Notifier.RatePerSec < 0 {
		return fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if cfg.Logging.Chat.RatePerSec < 0 {
		return fmt.Errorf("logging.chat.rate_per_sec must be >= 0")
	}

	if cfg.Digest.Enabled {
		if s := strings.TrimSpace(cfg.Digest.Schedule); s != "" {
			if _, err := cron.ParseStandard(s); err != nil {
				return fmt.Errorf("digest.schedule: invalid %q: %w", s, err)
			}
		}
		if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("digest.timezone: invalid %q: %w", tz, err)
			}
		}
	}
	return nil
}

func validateChannel(cfg *Config) error {
	token := strings.TrimSpace(cfg.Telegram.Token)
	chat := strings.TrimSpace(cfg.Telegram.ChatID)
	hook := strings.TrimSpace(cfg.Webhook.URL)

	if token == "" && chat == "" && hook == "" {
		return ErrNoChannel
	}
	if (token == "") != (chat == "") {
		return fmt.Errorf("telegram: token and chat_id must be set together (%s, %s)", EnvTelegramToken, EnvTelegramChatID)
	}
	if chat != "" {
		if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
			return fmt.Errorf("telegram.chat_id: invalid %q: must be a numeric chat id", chat)
		}
	}
	if hook != "" {
		if err := validateHTTPURL("webhook.url", hook); err != nil {
			return err
		}
	}
	return nil
}

func validateHTTPURL(path, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", path, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: must be an absolute http(s) url", path)
	}
	return nil
}
