package archive

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const attemptTimeout = 10 * time.Second

// retryable reports whether err is a transient gRPC failure.
func retryable(err error) bool {
	errStatus, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch errStatus.Code() {
	case codes.DeadlineExceeded, codes.Unavailable, codes.ResourceExhausted:
		return true
	}
	return false
}

// backoff grows 100ms, 200ms, 400ms...
func backoff(attempt int) time.Duration {
	return time.Duration(50*(1<<attempt)) * time.Millisecond
}

// withRetries runs op until it succeeds, fails with a non-retryable error, or
// maxRetries attempts are used. Each attempt gets its own timeout.
func (c *Client) withRetries(ctx context.Context, name string, op func(ctx context.Context) error) error {
	maxRetries := c.maxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var attempt int
	var lastErr error

	for attempt = 1; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 1 {
				c.log.WithField("attempt", attempt).Debugf("%s succeeded after retry", name)
			}
			return nil
		}

		lastErr = err
		if !retryable(err) {
			c.log.WithError(err).Debugf("%s failed with non-retryable error on attempt %d", name, attempt)
			attempt++
			break
		}

		c.log.WithError(err).Debugf("%s failed on attempt %d with retryable error, retrying", name, attempt)
		if attempt < maxRetries {
			if err := c.sleep(ctx, backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempt-1, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
