// Package restclient executes HTTP calls against a vendor base URL with
// bounded retries, exponential backoff and rate-limit honoring. It holds no
// manufacturer knowledge and is shared by every device API client.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultRetryAfter = 60 * time.Second
)

// Sleeper pauses between attempts. It returns early with the context error
// when the context is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client issues JSON requests against a fixed base URL. Safe for concurrent
// use; the underlying http.Client pools connections.
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	sleep      Sleeper
	logger     *log.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithSleeper replaces the inter-attempt sleep, for tests.
func WithSleeper(sleep Sleeper) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("restclient: empty base url")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		sleep:      defaultSleeper,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Get issues a GET request and decodes the 2xx response body into out.
func (c *Client) Get(ctx context.Context, endpoint string, headers map[string]string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, headers, query, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any, headers map[string]string, out any) error {
	return c.do(ctx, http.MethodPost, endpoint, body, headers, nil, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body any, headers map[string]string, out any) error {
	return c.do(ctx, http.MethodPut, endpoint, body, headers, nil, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, headers map[string]string, query url.Values, out any) error {
	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if attempt < c.maxRetries {
				backoff := time.Duration(1<<uint(attempt)) * time.Second
				if c.logger != nil {
					c.logger.Printf("restclient: attempt %d failed, retrying in %s: %v", attempt+1, backoff, err)
				}
				if err := c.sleep(ctx, backoff); err != nil {
					return err
				}
				continue
			}
			break
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			drain(resp)
			if attempt < c.maxRetries {
				if c.logger != nil {
					c.logger.Printf("restclient: rate limited, retrying after %s", retryAfter)
				}
				if err := c.sleep(ctx, retryAfter); err != nil {
					return err
				}
				continue
			}
			return &RateLimitError{RetryAfter: retryAfter}

		case resp.StatusCode == http.StatusUnauthorized:
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return &AuthError{Body: string(data)}

		case resp.StatusCode >= 400:
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return &APIError{Status: resp.StatusCode, Body: string(data)}

		default:
			defer resp.Body.Close()
			if out == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)
		}
	}

	return &APIError{Err: lastErr}
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
