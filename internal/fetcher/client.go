package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"StockCache/internal/schema"
)

// ExhaustedError is the terminal failure of an acquisition: every
// attempt came back empty, malformed, or errored. It wraps the last
// underlying cause.
type ExhaustedError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s: exhausted %d attempts: %v", e.Symbol, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

var errEmptyResult = errors.New("provider returned an empty result")

// Client wraps a Remote with a bounded retry loop. The delay between
// attempts is fixed, not exponential. A result only counts as a success
// once it survives schema normalization; a malformed batch may be a
// transient provider glitch and is retried like any other failure.
type Client struct {
	Remote     Remote
	MaxRetries int           // total attempts, not extra retries
	RetryDelay time.Duration // fixed wait between attempts
}

// NewClient creates a retrying client around remote.
func NewClient(remote Remote, maxRetries int, retryDelay time.Duration) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{Remote: remote, MaxRetries: maxRetries, RetryDelay: retryDelay}
}

// FetchDaily acquires and normalizes daily rows for [start, end].
// Cancellation is honored between attempts; an in-flight remote call
// runs to its own timeout.
func (c *Client) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]schema.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch %s abandoned: %w", symbol, ctx.Err())
			case <-time.After(c.RetryDelay):
			}
		}

		rows, err := c.Remote.FetchDaily(ctx, symbol, start, end)
		switch {
		case err != nil:
			lastErr = err
		case len(rows) == 0:
			lastErr = errEmptyResult
		default:
			records, err := schema.Normalize(rows)
			if err != nil {
				lastErr = err
				break
			}
			return records, nil
		}
		log.Printf("[WARN] fetch %s attempt %d/%d failed: %v", symbol, attempt, c.MaxRetries, lastErr)
	}
	return nil, &ExhaustedError{Symbol: symbol, Attempts: c.MaxRetries, Err: lastErr}
}
