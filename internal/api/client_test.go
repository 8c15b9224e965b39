package api

import (
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("https://api.example.com/", "test-key")

	if c.baseURL != "https://api.example.com" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.apiKey != "test-key" {
		t.Errorf("apiKey = %q, want test-key", c.apiKey)
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
	}
	if c.maxRetries != DefaultMaxRetries {
		t.Errorf("maxRetries = %d, want %d", c.maxRetries, DefaultMaxRetries)
	}
	if c.retryBackoff != DefaultRetryBackoff {
		t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, DefaultRetryBackoff)
	}
	if c.maxBody != MaxResponseBytes {
		t.Errorf("maxBody = %d, want %d", c.maxBody, MaxResponseBytes)
	}
	if c.userAgent == "" || c.logger == nil {
		t.Error("user agent and logger should be set")
	}
}

func TestNewClient_Options(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	hc := &http.Client{Timeout: 10 * time.Second}

	tests := []struct {
		name  string
		opts  []ClientOption
		check func(t *testing.T, c *Client)
	}{
		{
			name: "timeout",
			opts: []ClientOption{WithTimeout(5 * time.Second)},
			check: func(t *testing.T, c *Client) {
				if c.httpClient.Timeout != 5*time.Second {
					t.Errorf("Timeout = %v, want 5s", c.httpClient.Timeout)
				}
			},
		},
		{
			name: "retries",
			opts: []ClientOption{WithRetries(5, 2*time.Second)},
			check: func(t *testing.T, c *Client) {
				if c.maxRetries != 5 || c.retryBackoff != 2*time.Second {
					t.Errorf("retries = %d/%v, want 5/2s", c.maxRetries, c.retryBackoff)
				}
			},
		},
		{
			name: "negative retries clamp to zero",
			opts: []ClientOption{WithRetries(-1, -time.Second)},
			check: func(t *testing.T, c *Client) {
				if c.maxRetries != 0 || c.retryBackoff != 0 {
					t.Errorf("retries = %d/%v, want 0/0", c.maxRetries, c.retryBackoff)
				}
			},
		},
		{
			name: "logger",
			opts: []ClientOption{WithLogger(logger)},
			check: func(t *testing.T, c *Client) {
				if c.logger != logger {
					t.Error("logger not set")
				}
			},
		},
		{
			name: "nil logger keeps default",
			opts: []ClientOption{WithLogger(nil)},
			check: func(t *testing.T, c *Client) {
				if c.logger == nil {
					t.Error("logger should not be nil")
				}
			},
		},
		{
			name: "http client",
			opts: []ClientOption{WithHTTPClient(hc)},
			check: func(t *testing.T, c *Client) {
				if c.httpClient != hc {
					t.Error("custom HTTP client not set")
				}
			},
		},
		{
			name: "user agent",
			opts: []ClientOption{WithUserAgent("probe/1")},
			check: func(t *testing.T, c *Client) {
				if c.userAgent != "probe/1" {
					t.Errorf("userAgent = %q, want probe/1", c.userAgent)
				}
			},
		},
		{
			name: "max response bytes ignores non-positive",
			opts: []ClientOption{WithMaxResponseBytes(64), WithMaxResponseBytes(0)},
			check: func(t *testing.T, c *Client) {
				if c.maxBody != 64 {
					t.Errorf("maxBody = %d, want 64", c.maxBody)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, NewClient("https://api.example.com", "", tt.opts...))
		})
	}
}
