// Package tools holds the three LLM-backed operations the extractor
// composes: per-message analysis, transaction clustering, and contact
// role extraction. Every tool has the same shape: resolve its prompt at
// construction, sanitize outbound text, make exactly one provider call,
// validate the response schema, and return a typed result or a typed
// failure. Nothing in here decides fallback policy; callers do.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lockboxhq/lockbox/internal/llm"
	"github.com/lockboxhq/lockbox/internal/prompt"
)

// Extraction calls run near-deterministic and bounded.
const (
	extractionTemperature = 0.1

	analysisMaxTokens   = 600
	clusteringMaxTokens = 1500
	rolesMaxTokens      = 800
)

// FailureKind separates "the provider call failed" from "the provider
// answered something we could not use".
type FailureKind string

const (
	FailureProvider FailureKind = "provider_error"
	FailureSchema   FailureKind = "schema_validation"
)

// ToolError is the typed failure every tool returns. TokensUsed is
// nonzero when the provider completed the call before the failure, so
// callers can still charge the budget.
type ToolError struct {
	Err        error
	Tool       string
	Kind       FailureKind
	TokensUsed int64
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s tool: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// tool carries what all three tools share.
type tool struct {
	client   llm.Client
	registry *prompt.Registry
	version  prompt.Version
	name     string
}

// newTool resolves the tool's prompt eagerly. An unregistered prompt is
// a configuration bug and fails construction, not Run.
func newTool(name, promptName string, client llm.Client, registry *prompt.Registry) (tool, error) {
	v, err := registry.CurrentVersion(promptName)
	if err != nil {
		return tool{}, fmt.Errorf("resolving prompt for %s tool: %w", name, err)
	}
	return tool{client: client, registry: registry, version: v, name: name}, nil
}

// complete makes the tool's single provider call.
func (t *tool) complete(ctx context.Context, userPrompt string, maxTokens int) (*llm.Response, error) {
	resp, err := t.client.Complete(ctx, llm.Request{
		System:      t.version.Content,
		Prompt:      userPrompt,
		MaxTokens:   maxTokens,
		Temperature: extractionTemperature,
	})
	if err != nil {
		return nil, &ToolError{Tool: t.name, Kind: FailureProvider, Err: err}
	}
	return resp, nil
}

// schemaFailure wraps a response that failed schema validation. The
// call itself succeeded, so the token cost is carried along.
func (t *tool) schemaFailure(resp *llm.Response, err error) *ToolError {
	return &ToolError{Tool: t.name, Kind: FailureSchema, TokensUsed: resp.TokensUsed, Err: err}
}

// recordUsage logs this invocation against the prompt version and
// returns the result id feedback can reference later. Telemetry
// failures are logged, never surfaced; they must not break detection.
func (t *tool) recordUsage(ctx context.Context) string {
	resultID := uuid.New().String()
	if err := t.registry.RecordUsage(ctx, t.version.Name, resultID, prompt.OutcomeUnknown); err != nil {
		slog.Warn("prompt usage recording failed",
			"prompt", t.version.Name,
			"result_id", resultID,
			"error", err)
	}
	return resultID
}

func validConfidence(f float64) bool {
	return f >= 0 && f <= 1
}

// snippet truncates free text for prompt digests without splitting a
// rune.
func snippet(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}
