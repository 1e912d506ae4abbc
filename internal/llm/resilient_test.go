package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockboxhq/lockbox/internal/common"
)

// flakyClient fails a fixed number of times before succeeding.
type flakyClient struct {
	err      error
	failures int
	calls    int
}

func (f *flakyClient) Complete(_ context.Context, _ Request) (*Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &Response{Content: "ok", TokensUsed: 10}, nil
}

func testResilient(inner Client) *resilientClient {
	return newResilientClient(inner, Config{
		Provider:   ProviderAnthropic,
		RateLimit:  600,
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
}

func TestResilientClientRetries(t *testing.T) {
	t.Run("transient failure is retried", func(t *testing.T) {
		inner := &flakyClient{
			failures: 2,
			err:      &ProviderError{Provider: ProviderAnthropic, Kind: KindNetwork, Err: errors.New("boom")},
		}
		client := testResilient(inner)
		defer func() { _ = client.Close() }()

		resp, err := client.Complete(context.Background(), Request{Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("auth failure is not retried", func(t *testing.T) {
		inner := &flakyClient{
			failures: 10,
			err:      &ProviderError{Provider: ProviderAnthropic, Kind: KindAuth, Status: 401, Err: errors.New("bad key")},
		}
		client := testResilient(inner)
		defer func() { _ = client.Close() }()

		_, err := client.Complete(context.Background(), Request{Prompt: "x"})
		require.Error(t, err)
		assert.Equal(t, 1, inner.calls)

		var perr *ProviderError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindAuth, perr.Kind)
	})

	t.Run("schema-breaking response is not retried", func(t *testing.T) {
		inner := &flakyClient{
			failures: 10,
			err:      &ProviderError{Provider: ProviderAnthropic, Kind: KindBadResponse, Err: errors.New("garbage")},
		}
		client := testResilient(inner)
		defer func() { _ = client.Close() }()

		_, err := client.Complete(context.Background(), Request{Prompt: "x"})
		require.Error(t, err)
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("exhausted retries surface max-retries", func(t *testing.T) {
		inner := &flakyClient{
			failures: 10,
			err:      &ProviderError{Provider: ProviderAnthropic, Kind: KindTimeout, Err: errors.New("slow")},
		}
		client := testResilient(inner)
		defer func() { _ = client.Close() }()

		_, err := client.Complete(context.Background(), Request{Prompt: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrMaxRetries)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("canceled context stops the rate limiter wait", func(t *testing.T) {
		inner := &flakyClient{}
		client := newResilientClient(inner, Config{
			Provider:   ProviderAnthropic,
			RateLimit:  1,
			Timeout:    time.Second,
			MaxRetries: 1,
		})
		defer func() { _ = client.Close() }()

		// Drain the single token.
		_, err := client.Complete(context.Background(), Request{Prompt: "x"})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = client.Complete(ctx, Request{Prompt: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, inner.calls)
	})
}
