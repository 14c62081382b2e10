package netengine

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryConfig governs ExecuteWithRetry.
type RetryConfig struct {
	MaxRetries   int
	RetryDelay   time.Duration
	SuccessCodes []int // empty means "any 2xx/3xx and the resumable-416 case"
}

func (c RetryConfig) accepts(status int) bool {
	if len(c.SuccessCodes) == 0 {
		return status < 400
	}
	for _, code := range c.SuccessCodes {
		if code == status {
			return true
		}
	}
	return false
}

// ExecuteWithRetry invokes Execute, retrying on any transport error or on
// an HTTP status not in retry.SuccessCodes, sleeping retry.RetryDelay
// between attempts, until success or retry.MaxRetries is exhausted. A 416
// on a resumable request is treated as success regardless of
// SuccessCodes, matching Execute's own resumable-416 handling.
func ExecuteWithRetry(ctx context.Context, cfg RequestConfig, retry RetryConfig) (*RequestResult, error) {
	var lastErr error
	var lastResult *RequestResult

	attempts := retry.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := Execute(ctx, cfg)
		lastResult, lastErr = result, err

		if err == nil {
			if result.StatusCode == http.StatusRequestedRangeNotSatisfiable && cfg.Resumable {
				return result, nil
			}
			if retry.accepts(result.StatusCode) {
				return result, nil
			}
			lastErr = &HTTPStatusError{StatusCode: result.StatusCode}
		}

		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusRequestedRangeNotSatisfiable && cfg.Resumable {
			return result, nil
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return lastResult, ctx.Err()
			case <-time.After(retry.RetryDelay):
			}
		}
	}

	return lastResult, lastErr
}
