package restclient

import (
	"fmt"
	"time"
)

// APIError is a non-retryable API failure (4xx other than 401/429) or the
// terminal wrapper around an exhausted retry budget.
type APIError struct {
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("restclient: request failed: %v", e.Err)
	}
	return fmt.Sprintf("restclient: api error %d: %s", e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// AuthError signals a 401. The caller must refresh and re-issue at a higher
// layer; the client never retries it.
type AuthError struct {
	Body string
}

func (e *AuthError) Error() string { return "restclient: authentication failed" }

// RateLimitError signals an exhausted 429 retry budget.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("restclient: rate limit exceeded (retry after %s)", e.RetryAfter)
}
