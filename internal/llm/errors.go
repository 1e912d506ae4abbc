package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind buckets provider failures for fallback decisions and logs.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindBadResponse ErrorKind = "bad_response"
)

// ProviderError is the typed failure every adapter returns. Status is
// the HTTP status when one was received, zero otherwise.
type ProviderError struct {
	Err      error
	Provider string
	Kind     ErrorKind
	Status   int
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could plausibly succeed.
// Auth failures and malformed responses will not get better on retry.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindNetwork:
		return true
	}
	return false
}

// statusError classifies a non-2xx HTTP status from a provider.
func statusError(provider string, status int, body string) *ProviderError {
	if len(body) > 200 {
		body = body[:200]
	}
	kind := KindBadResponse
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusRequestTimeout:
		kind = KindTimeout
	case status >= 500:
		kind = KindNetwork
	}
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Status:   status,
		Err:      fmt.Errorf("api error: %s", body),
	}
}

// transportError classifies a failure that happened before any HTTP
// status arrived.
func transportError(provider string, err error) *ProviderError {
	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// badResponse flags a reply the adapter could not use, such as an empty
// completion or undecodable JSON.
func badResponse(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindBadResponse, Err: err}
}
