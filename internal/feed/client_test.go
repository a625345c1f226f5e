package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "calbot/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{URL: srv.URL, Timeout: 2 * time.Second}, logx.Nop())
}

func TestFetchDecodesRecords(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != defaultUserAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"country":"USD","title":"CPI m/m","date":"2025-01-10T08:30:00-05:00","impact":"High","forecast":"0.3%","previous":"0.3%"},
			{"country":"EUR","title":"ECB Rate","date":"2025-01-10T12:15:00Z","impact":3,"forecast":null},
			7,
			{"country":"USD","title":"Claims","date":"2025-01-09T08:30:00-05:00","impact":"Low","previous":215}
		]`))
	})

	evs, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d records, want 3 (non-object skipped)", len(evs))
	}
	if evs[0].Title.Text != "CPI m/m" || !evs[0].Forecast.Present() {
		t.Fatalf("first record = %+v", evs[0])
	}
	if evs[1].Impact.Text != "3" || !evs[1].Impact.Set {
		t.Fatalf("numeric impact = %+v", evs[1].Impact)
	}
	if evs[1].Forecast.Set {
		t.Fatal("null forecast should be unset")
	}
	if evs[2].Previous.Text != "215" {
		t.Fatalf("numeric previous = %q", evs[2].Previous.Text)
	}
}

func TestFetchRateLimited(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		header    string
		wantSet   bool
		wantRetry time.Duration
	}{
		{name: "seconds", header: "120", wantSet: true, wantRetry: 120 * time.Second},
		{name: "zero", header: "0", wantSet: true, wantRetry: 0},
		{name: "missing", header: ""},
		{name: "http date", header: "Wed, 21 Oct 2015 07:28:00 GMT"},
		{name: "negative", header: "-5"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(http.StatusTooManyRequests)
			})
			_, err := c.Fetch(context.Background())
			rl, ok := AsRateLimited(err)
			if !ok {
				t.Fatalf("error = %v, want *RateLimitedError", err)
			}
			if rl.HasRetryAfter != tt.wantSet || rl.RetryAfter != tt.wantRetry {
				t.Fatalf("got %+v, want set=%v retry=%v", rl, tt.wantSet, tt.wantRetry)
			}
			if Kind(err) != "rate_limited" {
				t.Fatalf("Kind = %q", Kind(err))
			}
		})
	}
}

func TestFetchHTTPError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	_, err := c.Fetch(context.Background())
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want HTTPError 503", err)
	}
}

func TestFetchParseError(t *testing.T) {
	t.Parallel()
	for _, body := range []string{`<html>maintenance</html>`, `{"events":[]}`, `null`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		_, err := c.Fetch(context.Background())
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("body %q: error = %v, want ParseError", body, err)
		}
	}
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{URL: url, Timeout: time.Second}, logx.Nop())
	_, err := c.Fetch(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if Kind(err) != "transport_error" {
		t.Fatalf("Kind = %q", Kind(err))
	}
}

func TestFetchTimeoutIsTransportError(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewClient(Config{URL: srv.URL, Timeout: 100 * time.Millisecond}, logx.Nop())
	_, err := c.Fetch(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
}

func TestKindAndHelpers(t *testing.T) {
	t.Parallel()
	wrapped := fmt.Errorf("cycle: %w", &RateLimitedError{})
	if !IsRateLimited(wrapped) || Kind(wrapped) != "rate_limited" {
		t.Fatalf("wrapped rate limit not recognized: %v", wrapped)
	}
	if IsRateLimited(&HTTPError{StatusCode: 500}) {
		t.Fatal("http error is not rate limited")
	}
	cases := map[string]error{
		"ok":              nil,
		"http_error":      &HTTPError{StatusCode: 503},
		"transport_error": &TransportError{Err: errors.New("reset")},
		"parse_error":     &ParseError{Err: errors.New("bad")},
		"error":           errors.New("other"),
	}
	for want, err := range cases {
		if got := Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
}
