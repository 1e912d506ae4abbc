package llm

import (
	"fmt"
	"strings"
)

// NewClient builds the provider client selected by cfg, wrapped with
// rate limiting, per-call timeouts, and retry. Callers that finish with
// the client should close it (it implements io.Closer) to stop the
// limiter.
func NewClient(cfg Config) (Client, error) {
	cfg = cfg.withDefaults()

	var base Client
	var err error
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		base, err = newOpenAIClient(cfg)
	case ProviderAnthropic:
		base, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	return newResilientClient(base, cfg), nil
}
