package notifier

import "time"

// Config controls delivery throttling.
type Config struct {
	RatePerSec int
	Timeout    time.Duration
}

type HistoryItem struct {
	At      time.Time `json:"at"`
	Channel string    `json:"channel"`
	Key     string    `json:"key,omitempty"` // empty for free-form sends
	Text    string    `json:"text"`
}

const historyLimit = 100
