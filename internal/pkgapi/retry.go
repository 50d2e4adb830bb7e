package pkgapi

import (
	"context"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultRetryBase  = time.Second
	defaultRetryMax   = 30 * time.Second
)

// retryable reports whether a response is worth another attempt. Status 0
// stands for a transport-level failure.
func retryable(status int) bool {
	switch status {
	case 0,
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) shouldRetry(attempt, status int) bool {
	return attempt < c.maxRetries && retryable(status)
}

// backoff doubles the delay per attempt up to the cap, with up to 20%
// jitter either way so synchronized clients spread out.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryBase << attempt
	if d > c.retryMax || d < c.retryBase {
		d = c.retryMax
	}
	spread := int64(d) / 5
	if spread > 0 {
		d += time.Duration(rand.Int63n(spread)) - time.Duration(spread/2)
	}
	return d
}

// waitRetry sleeps for the attempt's backoff or until the context ends.
func (c *Client) waitRetry(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
