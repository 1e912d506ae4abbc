package llm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "openai",
			config: Config{Provider: "openai", APIKey: "sk-test"},
		},
		{
			name:   "anthropic",
			config: Config{Provider: "anthropic", APIKey: "sk-ant-test"},
		},
		{
			name:   "provider name is case insensitive",
			config: Config{Provider: "OpenAI", APIKey: "sk-test"},
		},
		{
			name:    "unsupported provider",
			config:  Config{Provider: "llama-at-home", APIKey: "key"},
			wantErr: "unsupported LLM provider",
		},
		{
			name:    "missing key",
			config:  Config{Provider: "anthropic"},
			wantErr: "API key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client)

			// Clients carry a rate limiter that callers can shut down.
			closer, ok := client.(io.Closer)
			require.True(t, ok)
			assert.NoError(t, closer.Close())
		})
	}
}
