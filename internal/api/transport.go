package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxRetryAfter bounds how long a server-supplied Retry-After can stall a call.
const maxRetryAfter = 30 * time.Second

// ErrResponseTooLarge is returned when a body exceeds the client's limit.
var ErrResponseTooLarge = errors.New("response body too large")

// APIError is a non-2xx response from the positions API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte

	// RetryAfter is the server's requested wait, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("positions api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the status is worth another attempt.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// get issues a GET and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.call(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		c.failures.Add(1)
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// call runs one logical request, retrying transient failures.
func (c *Client) call(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, query)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := c.send(req.Clone(ctx))
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			c.failures.Add(1)
			return nil, err
		}
		if !retryable(err) {
			c.failures.Add(1)
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}

		wait := c.backoff(attempt, err)
		c.retries.Add(1)
		c.logger.Debug("retrying request",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.failures.Add(1)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	c.failures.Add(1)
	return nil, fmt.Errorf("giving up after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// send performs a single round trip.
func (c *Client) send(req *http.Request) ([]byte, error) {
	c.requests.Add(1)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%s %s: %w (limit %d bytes)", req.Method, req.URL.Path, ErrResponseTooLarge, c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp, body)
	}
	return body, nil
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Body:       body,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
	var wire errorResponse
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		apiErr.Message = wire.Error.Message
	}
	return apiErr
}

// retryable reports whether err is transient: transport failures, 5xx and
// 429. The caller's own cancellation is checked before this.
func retryable(err error) bool {
	if errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return true
}

// backoff returns the wait before retry attempt+1. A Retry-After from the
// server wins over the jittered exponential schedule.
func (c *Client) backoff(attempt int, err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return min(apiErr.RetryAfter, maxRetryAfter)
	}

	base := c.retryBackoff << min(attempt, 16)
	if base <= 0 {
		return 0
	}
	// 0.5x to 1.5x
	return base/2 + time.Duration(rand.Int64N(int64(base)+1))
}

// parseRetryAfter accepts either delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
