package embedder

import (
	"context"
	"time"

	"ragcore/internal/apperr"
)

const maxEmbedAttempts = 4

// withRetry calls fn up to maxEmbedAttempts times with capped exponential
// backoff (250ms, 500ms, 1s, ...), retrying whatever error fn returns; it
// does not tell transient network errors apart from other failures.
// After the cap it wraps the last error as apperr.ProviderUnavailable.
func withRetry(ctx context.Context, provider string, fn func() error) error {
	var lastErr error
	delay := 250 * time.Millisecond
	for attempt := 1; attempt <= maxEmbedAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxEmbedAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return apperr.Wrap(apperr.ProviderUnavailable, provider+" embedding endpoint unreachable after retries", lastErr)
}
