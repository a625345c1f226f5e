package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	logx "calbot/pkg/logx"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "calbot/1.0"
	maxBodyBytes     = 8 << 20
)

type Config struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Client fetches calendar snapshots. It never retries; retry policy belongs to the caller.
type Client struct {
	url       string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	log       logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &Client{
		url:       strings.TrimSpace(cfg.URL),
		userAgent: ua,
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout, Transport: tr},
		log:       log,
	}
}

// Fetch downloads the current snapshot.
//
// Errors are one of *RateLimitedError, *HTTPError, *TransportError or *ParseError.
// Array elements that are not objects are skipped (logged at debug).
func (c *Client) Fetch(ctx context.Context) ([]RawEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		rl := &RateLimitedError{}
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			rl.RetryAfter, rl.HasRetryAfter = d, true
		}
		return nil, rl
	case resp.StatusCode >= 400:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &ParseError{Err: err}
	}
	if items == nil {
		// literal null
		return nil, &ParseError{Err: errors.New("body is not a JSON array")}
	}

	out := make([]RawEvent, 0, len(items))
	skipped := 0
	for i, raw := range items {
		var ev RawEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			skipped++
			c.log.Debug("feed record skipped", logx.Int("index", i), logx.Err(err))
			continue
		}
		out = append(out, ev)
	}

	c.log.Debug("feed fetched",
		logx.Int("status", resp.StatusCode),
		logx.Int("records", len(out)),
		logx.Int("skipped", skipped),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}

// parseRetryAfter accepts only a nonnegative integer number of seconds.
func parseRetryAfter(raw string) (time.Duration, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 || n > int64(math.MaxInt64/time.Second) {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
