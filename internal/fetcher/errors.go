package fetcher

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTileNotFound means upstream confirmed the tile does not exist.
	// Distinct from throttling: the caller may move on to another source
	// without backing off.
	ErrTileNotFound = errors.New("tile not found upstream")

	// ErrFetchTimeout means the request was aborted after the source's
	// deadline.
	ErrFetchTimeout = errors.New("tile fetch timed out")
)

// RateLimitedError reports an HTTP 429. RetryAfter carries the server's
// Retry-After hint, defaulted to 60s when absent.
type RateLimitedError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Source, e.RetryAfter)
}

// BlockedError reports an HTTP 403. Unlike 429 this is a policy
// rejection: a well-behaved caller stops using this source for the rest
// of a bulk operation.
type BlockedError struct {
	Source string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s blocked the request", e.Source)
}

// UnexpectedStatusError reports any other non-200 status.
type UnexpectedStatusError struct {
	Source     string
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s returned unexpected status %d", e.Source, e.StatusCode)
}

// Reason maps a fetch error to a short label for logs and metrics.
func Reason(err error) string {
	var rateLimited *RateLimitedError
	var blocked *BlockedError
	var unexpected *UnexpectedStatusError

	switch {
	case errors.Is(err, ErrTileNotFound):
		return "not_found"
	case errors.Is(err, ErrFetchTimeout):
		return "timeout"
	case errors.As(err, &rateLimited):
		return "rate_limited"
	case errors.As(err, &blocked):
		return "blocked"
	case errors.As(err, &unexpected):
		return "unexpected_status"
	default:
		return "network"
	}
}
