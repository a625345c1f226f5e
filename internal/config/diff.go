package config

import (
	"strings"

	logx "calbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured fields for logging. Secrets (telegram token, webhook url) are
// never included, only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	fields := make([]logx.Field, 0, 16)

	if oldCfg.Feed != newCfg.Feed {
		changed = append(changed, "feed")
		fields = append(fields,
			logx.String("feed.timeout", newCfg.Feed.Timeout),
			logx.Bool("feed.url_custom", strings.TrimSpace(newCfg.Feed.URL) != ""),
		)
	}
	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		fields = append(fields,
			logx.String("poll.base", newCfg.Poll.Base),
			logx.String("poll.max", newCfg.Poll.Max),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		fields = append(fields,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.String("notifier.timeout", newCfg.Notifier.Timeout),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.chat_set", strings.TrimSpace(newCfg.Telegram.ChatID) != ""),
		)
	}
	if oldCfg.Webhook != newCfg.Webhook {
		changed = append(changed, "webhook")
		fields = append(fields, logx.Bool("webhook.url_set", strings.TrimSpace(newCfg.Webhook.URL) != ""))
	}
	if !sameLogging(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
	}
	if oldCfg.Digest != newCfg.Digest {
		changed = append(changed, "digest")
	}
	if oldCfg.Dedup != newCfg.Dedup {
		changed = append(changed, "dedup")
	}
	return changed, fields
}

func sameLogging(a, b LoggingConfig) bool {
	if a.Level != b.Level || a.File != b.File || a.Chat != b.Chat {
		return false
	}
	return ConsoleEnabled(a) == ConsoleEnabled(b)
}

// ConsoleEnabled reports the console flag, defaulting to true when omitted.
func ConsoleEnabled(l LoggingConfig) bool {
	return l.Console == nil || *l.Console
}
