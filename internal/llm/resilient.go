package llm

import (
	"context"
	"errors"
	"time"

	"github.com/lockboxhq/lockbox/internal/common"
	"github.com/lockboxhq/lockbox/internal/service"
)

// resilientClient wraps a provider adapter with the shared call policy:
// token-bucket rate limiting, a per-call timeout, and retry on
// transient failures. Adapters stay single-shot and policy-free.
type resilientClient struct {
	inner    Client
	limiter  *rateLimiter
	provider string
	timeout  time.Duration
	retry    service.RetryOptions
}

func newResilientClient(inner Client, cfg Config) *resilientClient {
	return &resilientClient{
		inner:    inner,
		limiter:  newRateLimiter(cfg.RateLimit),
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		retry: service.RetryOptions{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
		},
	}
}

func (c *resilientClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	var resp *Response
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		r, err := c.inner.Complete(callCtx, req)
		if err != nil {
			var perr *ProviderError
			if errors.As(err, &perr) {
				return &common.RetryableError{Err: err, Retryable: perr.Retryable()}
			}
			return &common.RetryableError{Err: err, Retryable: false}
		}
		resp = r
		return nil
	}

	if err := common.WithRetry(ctx, operation, c.retry); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close stops the rate limiter's refill goroutine.
func (c *resilientClient) Close() error {
	c.limiter.Close()
	return nil
}
