package vigil

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// retryProvider wraps a Provider with exponential backoff on transient
// failures. Client-side errors (4xx other than 429) are never retried.
type retryProvider struct {
	inner    Provider
	attempts int
	base     time.Duration
}

var _ Provider = (*retryProvider)(nil)

// RetryOption configures WithRetry.
type RetryOption func(*retryProvider)

// WithRetryAttempts sets the total number of attempts (default 3).
func WithRetryAttempts(n int) RetryOption {
	return func(r *retryProvider) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithRetryBase sets the base backoff delay (default 1s).
func WithRetryBase(d time.Duration) RetryOption {
	return func(r *retryProvider) {
		if d > 0 {
			r.base = d
		}
	}
}

// WithRetry wraps a provider with retry middleware.
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retryProvider{inner: p, attempts: 3, base: time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var lastErr error
	for i := 0; i < r.attempts; i++ {
		resp, err := r.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransient(err) || i == r.attempts-1 {
			break
		}
		select {
		case <-time.After(r.retryDelay(i, err)):
		case <-ctx.Done():
			return ChatResponse{}, ctx.Err()
		}
	}
	return ChatResponse{}, lastErr
}

// retryDelay is the exponential backoff for attempt i, raised to the
// server's Retry-After when that is longer.
func (r *retryProvider) retryDelay(i int, err error) time.Duration {
	delay := retryBackoff(r.base, i)
	if after := retryAfterOf(err); after > delay {
		delay = after
	}
	return delay
}

// retryBackoff is base*2^i with up to 50% jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	backoff := base << uint(i)
	jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
	return backoff + jitter
}

// isTransient reports whether the error is worth retrying: rate limits
// and server-side failures.
func isTransient(err error) bool {
	status := statusOf(err)
	return status == 429 || status >= 500
}

func statusOf(err error) int {
	var httpErr *ErrHTTP
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

func retryAfterOf(err error) time.Duration {
	var httpErr *ErrHTTP
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}
