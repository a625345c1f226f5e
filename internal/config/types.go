package config

// Config is the on-disk/env configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "15m").
// Empty strings and zero values fall back to the defaults documented on each field.
type Config struct {
	Feed     FeedConfig     `json:"feed"`
	Poll     PollConfig     `json:"poll"`
	Notifier NotifierConfig `json:"notifier"`
	Telegram TelegramConfig `json:"telegram"`
	Webhook  WebhookConfig  `json:"webhook"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Digest   DigestConfig   `json:"digest"`
	Dedup    DedupConfig    `json:"dedup"`
}

const DefaultFeedURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"

// FeedConfig controls the calendar HTTP source.
//
// Defaults:
//   - url: DefaultFeedURL
//   - timeout: "10s"
//   - user_agent: "calbot/1.0"
type FeedConfig struct {
	URL       string `json:"url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// PollConfig bounds the adaptive poll interval.
//
// Defaults: base "60s", max "15m".
type PollConfig struct {
	Base string `json:"base,omitempty"`
	Max  string `json:"max,omitempty"`
}

// NotifierConfig controls delivery throttling.
//
// Defaults: rate_per_sec 1, timeout "10s".
type NotifierConfig struct {
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// WebhookConfig posts {"destination": ..., "text": ...} to URL.
type WebhookConfig struct {
	URL         string `json:"url,omitempty"`
	Destination string `json:"destination,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingChat forwards records at or above MinLevel to the notification channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// MetricsConfig controls the optional Prometheus endpoint.
//
// Example:
//
//	"metrics": { "enabled": true, "addr": "127.0.0.1:9310" }
//
// Pprof adds /debug/pprof/ handlers to the same listener. It is refused on
// non-loopback addresses.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
}

// DigestConfig controls the optional agenda of upcoming events.
//
// Schedule is a standard 5-field cron expression evaluated in Timezone.
// Defaults: schedule "0 7 * * 1-5", timezone "UTC", horizon "24h".
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Horizon  string `json:"horizon,omitempty"`
}

// DedupConfig bounds sent-set growth.
//
// Retention defaults to "192h". "0s" keeps every key for the process lifetime.
type DedupConfig struct {
	Retention string `json:"retention,omitempty"`
}
