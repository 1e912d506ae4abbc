package llm

import (
	"context"
	"time"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Defaults applied by NewClient when the config leaves a field zero.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.1
	DefaultTimeout     = 60 * time.Second
	DefaultRateLimit   = 60 // requests per minute
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
)

// Client performs a single structured completion against one provider.
// Implementations return either a response or a typed *ProviderError;
// they never panic across this boundary.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one completion call. Zero MaxTokens and Temperature fall
// back to the client's configured defaults.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is the provider's completion plus accounting metadata.
type Response struct {
	Content    string
	Model      string
	TokensUsed int64
}

// Config selects and tunes a provider client. Exactly one client is
// built per extraction run; callers must not branch on Provider
// themselves once the client exists.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string // override for tests and proxies
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int // requests per minute
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	return c
}
