package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/prompt"
)

func analysisMessage() model.Message {
	return model.Message{
		ID:         "m1",
		Subject:    "Offer for 123 Main St",
		Sender:     "jane@example.com",
		Recipients: []string{"user@example.com"},
		Timestamp:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Body:       "We would like to offer $450,000. My SSN is 123-45-6789 for the lender forms.",
	}
}

func TestAnalysisToolRun(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		reg := testRegistry(t)
		client := &mockClient{
			content: "```json\n" + `{
				"isRealEstateRelated": true,
				"confidence": 0.91,
				"propertyAddress": "123 Main St",
				"transactionType": "purchase",
				"stage": "active",
				"topics": ["offer"],
				"reasoning": "offer language"
			}` + "\n```",
			tokens: 210,
		}
		at, err := NewAnalysisTool(client, reg)
		require.NoError(t, err)

		res, err := at.Run(ctx, AnalysisInput{Message: analysisMessage()})
		require.NoError(t, err)

		assert.True(t, res.Analysis.IsRealEstateRelated)
		assert.InDelta(t, 0.91, res.Analysis.Confidence, 1e-9)
		assert.Equal(t, "123 Main St", res.Analysis.PropertyAddress)
		assert.Equal(t, model.TypePurchase, res.Analysis.TransactionType)
		assert.Equal(t, model.StageActive, res.Analysis.Stage)
		assert.Equal(t, int64(210), res.TokensUsed)
		assert.NotEmpty(t, res.ResultID)
		assert.NotEmpty(t, res.PromptVersion)

		// Exactly one provider call, carrying the registered system
		// prompt and a bounded extraction policy.
		require.Len(t, client.requests, 1)
		req := client.requests[0]
		current, _ := reg.CurrentVersion(prompt.MessageAnalysis)
		assert.Equal(t, current.Content, req.System)
		assert.LessOrEqual(t, req.Temperature, 0.2)
		assert.Equal(t, analysisMaxTokens, req.MaxTokens)

		// Outbound text is sanitized.
		assert.NotContains(t, req.Prompt, "123-45-6789")
		assert.Contains(t, req.Prompt, "[REDACTED]")
		assert.Contains(t, req.Prompt, "Offer for 123 Main St")

		// The invocation was recorded against the prompt version.
		assert.Equal(t, 1, usageCount(t, reg, prompt.MessageAnalysis))
	})

	t.Run("provider failure is typed and records nothing", func(t *testing.T) {
		reg := testRegistry(t)
		client := &mockClient{err: errors.New("connection reset")}
		at, err := NewAnalysisTool(client, reg)
		require.NoError(t, err)

		_, err = at.Run(ctx, AnalysisInput{Message: analysisMessage()})
		var terr *ToolError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, FailureProvider, terr.Kind)
		assert.Equal(t, "analysis", terr.Tool)
		assert.Zero(t, terr.TokensUsed)
		assert.Len(t, client.requests, 1)
		assert.Zero(t, usageCount(t, reg, prompt.MessageAnalysis))
	})

	t.Run("undecodable response is a schema failure carrying cost", func(t *testing.T) {
		reg := testRegistry(t)
		client := &mockClient{content: "I think this is about a house?", tokens: 98}
		at, err := NewAnalysisTool(client, reg)
		require.NoError(t, err)

		_, err = at.Run(ctx, AnalysisInput{Message: analysisMessage()})
		var terr *ToolError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, FailureSchema, terr.Kind)
		assert.Equal(t, int64(98), terr.TokensUsed)
	})

	t.Run("confidence out of range is a schema failure", func(t *testing.T) {
		reg := testRegistry(t)
		client := &mockClient{content: `{"isRealEstateRelated":true,"confidence":1.4}`, tokens: 50}
		at, err := NewAnalysisTool(client, reg)
		require.NoError(t, err)

		_, err = at.Run(ctx, AnalysisInput{Message: analysisMessage()})
		var terr *ToolError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, FailureSchema, terr.Kind)
	})

	t.Run("unknown enum values read as undetermined", func(t *testing.T) {
		reg := testRegistry(t)
		client := &mockClient{content: `{
			"isRealEstateRelated": true,
			"confidence": 0.7,
			"transactionType": "timeshare",
			"stage": "negotiating"
		}`}
		at, err := NewAnalysisTool(client, reg)
		require.NoError(t, err)

		res, err := at.Run(ctx, AnalysisInput{Message: analysisMessage()})
		require.NoError(t, err)
		assert.Equal(t, model.TransactionType(""), res.Analysis.TransactionType)
		assert.Equal(t, model.Stage(""), res.Analysis.Stage)
	})
}
