package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnauthenticated reports that no credential is available at all.
// The caller must run the login flow before retrying.
var ErrUnauthenticated = errors.New("no credential available")

// ErrAuthExpired reports that the gateway rejected the current
// credential and a retry with a fresh one also failed or was not
// possible. The stored credential has been cleared.
var ErrAuthExpired = errors.New("authentication expired")

// RateLimitError reports a 429 from the gateway. Never retried
// internally; callers decide whether to honor RetryAfter.
type RateLimitError struct {
	// RetryAfter is the server-suggested wait, zero when the gateway
	// sent no Retry-After header.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by gateway, retry after %s", e.RetryAfter)
	}
	return "rate limited by gateway"
}

// APIError reports a non-2xx gateway response that is not an
// authentication or rate-limit condition.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}
