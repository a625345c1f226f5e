package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables. Values set here win over the config file.
const (
	EnvConfigPath         = "CALBOT_CONFIG"
	EnvFeedURL            = "CALBOT_FEED_URL"
	EnvWebhookURL         = "CALBOT_WEBHOOK_URL"
	EnvWebhookDestination = "CALBOT_WEBHOOK_DESTINATION"
	EnvTelegramToken      = "CALBOT_TELEGRAM_TOKEN"
	EnvTelegramChatID     = "CALBOT_TELEGRAM_CHAT_ID"
	EnvTelegramThreadID   = "CALBOT_TELEGRAM_THREAD_ID"
	EnvLogLevel           = "CALBOT_LOG_LEVEL"
	EnvMetricsAddr        = "CALBOT_METRICS_ADDR"
)

// LookupFunc mirrors os.LookupEnv so tests can inject an environment.
type LookupFunc func(key string) (string, bool)

// applyEnv overlays environment values onto cfg.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get(EnvFeedURL); ok {
		cfg.Feed.URL = v
	}
	if v, ok := get(EnvWebhookURL); ok {
		cfg.Webhook.URL = v
	}
	if v, ok := get(EnvWebhookDestination); ok {
		cfg.Webhook.Destination = v
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChatID); ok {
		cfg.Telegram.ChatID = v
	}
	if v, ok := get(EnvTelegramThreadID); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", EnvTelegramThreadID, v)
		}
		cfg.Telegram.ThreadID = n
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvMetricsAddr); ok {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	return nil
}
