package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lockboxhq/lockbox/internal/llm"
	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/prompt"
	"github.com/lockboxhq/lockbox/internal/sanitize"
)

// AnalysisTool classifies a single message as transaction-related or
// not and extracts the property, stage, and type when present.
type AnalysisTool struct {
	tool
}

// NewAnalysisTool fails fast if the analysis prompt is not registered.
func NewAnalysisTool(client llm.Client, registry *prompt.Registry) (*AnalysisTool, error) {
	t, err := newTool("analysis", prompt.MessageAnalysis, client, registry)
	if err != nil {
		return nil, err
	}
	return &AnalysisTool{tool: t}, nil
}

// AnalysisInput is one message to classify.
type AnalysisInput struct {
	Message model.Message
}

// AnalysisResult is the tool's typed output. ResultID keys the usage
// record so later feedback can rate this exact invocation.
type AnalysisResult struct {
	Analysis      model.LLMAnalysis
	ResultID      string
	PromptVersion string
	TokensUsed    int64
}

// analysisResponse is the schema the prompt instructs the model to
// produce.
type analysisResponse struct {
	PropertyAddress     string   `json:"propertyAddress"`
	TransactionType     string   `json:"transactionType"`
	Stage               string   `json:"stage"`
	Reasoning           string   `json:"reasoning"`
	Topics              []string `json:"topics"`
	Confidence          float64  `json:"confidence"`
	IsRealEstateRelated bool     `json:"isRealEstateRelated"`
}

// Run analyzes one message with a single provider call.
func (t *AnalysisTool) Run(ctx context.Context, input AnalysisInput) (*AnalysisResult, error) {
	resp, err := t.complete(ctx, t.buildPrompt(input.Message), analysisMaxTokens)
	if err != nil {
		return nil, err
	}

	var parsed analysisResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(resp.Content)), &parsed); err != nil {
		return nil, t.schemaFailure(resp, fmt.Errorf("undecodable analysis response: %w", err))
	}
	if !validConfidence(parsed.Confidence) {
		return nil, t.schemaFailure(resp, fmt.Errorf("confidence %v out of range", parsed.Confidence))
	}

	analysis := model.LLMAnalysis{
		PropertyAddress:     strings.TrimSpace(parsed.PropertyAddress),
		TransactionType:     coerceType(parsed.TransactionType),
		Stage:               coerceStage(parsed.Stage),
		Reasoning:           parsed.Reasoning,
		Topics:              parsed.Topics,
		Confidence:          parsed.Confidence,
		IsRealEstateRelated: parsed.IsRealEstateRelated,
	}

	return &AnalysisResult{
		Analysis:      analysis,
		ResultID:      t.recordUsage(ctx),
		PromptVersion: t.version.Semver,
		TokensUsed:    resp.TokensUsed,
	}, nil
}

func (t *AnalysisTool) buildPrompt(msg model.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	if len(msg.Recipients) > 0 {
		fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.Recipients, ", "))
	}
	if !msg.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", msg.Timestamp.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Subject: %s\n\n%s\n",
		sanitize.Sanitize(msg.Subject),
		sanitize.Sanitize(msg.Body))
	return b.String()
}

// coerceType maps a free-form model answer onto the known enum; values
// outside it read as "undetermined" rather than failing the message.
func coerceType(s string) model.TransactionType {
	t := model.TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return ""
}

func coerceStage(s string) model.Stage {
	st := model.Stage(strings.ToLower(strings.TrimSpace(s)))
	if st.Valid() {
		return st
	}
	return ""
}
