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

// ClusteringTool groups analyzed messages into candidate transactions.
// It sees the transactions already known to exist so repeated runs
// extend them instead of proposing duplicates.
type ClusteringTool struct {
	tool
}

// NewClusteringTool fails fast if the clustering prompt is not
// registered.
func NewClusteringTool(client llm.Client, registry *prompt.Registry) (*ClusteringTool, error) {
	t, err := newTool("clustering", prompt.TransactionClustering, client, registry)
	if err != nil {
		return nil, err
	}
	return &ClusteringTool{tool: t}, nil
}

// ClusteringInput carries the related messages of one run plus any
// previously detected transactions. Callers pass related messages only.
type ClusteringInput struct {
	Messages []model.AnalyzedMessage
	Existing []model.DetectedTransaction
}

// Cluster is one proposed transaction: the DetectedTransaction shape
// minus identity, method, and roles, which the caller assigns. A
// nonempty ExistingTransactionID marks an extension of a known
// transaction instead of a new one.
type Cluster struct {
	ExistingTransactionID string
	PropertyAddress       string
	Summary               string
	Type                  model.TransactionType
	Stage                 model.Stage
	MessageIDs            []string
	Confidence            float64
}

// ClusteringResult is the tool's typed output.
type ClusteringResult struct {
	Clusters      []Cluster
	ResultID      string
	PromptVersion string
	TokensUsed    int64
}

type clusteringResponse struct {
	Transactions []struct {
		ExistingTransactionID string   `json:"existingTransactionId"`
		PropertyAddress       string   `json:"propertyAddress"`
		TransactionType       string   `json:"transactionType"`
		Stage                 string   `json:"stage"`
		Summary               string   `json:"summary"`
		Confidence            float64  `json:"confidence"`
		MessageIDs            []string `json:"messageIds"`
	} `json:"transactions"`
}

// Run proposes clusters with a single provider call. Proposed member
// ids are validated against the input set; ids the model invented are
// dropped, and a cluster left with no members is not emitted.
func (t *ClusteringTool) Run(ctx context.Context, input ClusteringInput) (*ClusteringResult, error) {
	resp, err := t.complete(ctx, t.buildPrompt(input), clusteringMaxTokens)
	if err != nil {
		return nil, err
	}

	var parsed clusteringResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(resp.Content)), &parsed); err != nil {
		return nil, t.schemaFailure(resp, fmt.Errorf("undecodable clustering response: %w", err))
	}

	known := make(map[string]bool, len(input.Messages))
	for _, m := range input.Messages {
		known[m.ID] = true
	}
	existing := make(map[string]bool, len(input.Existing))
	for _, tx := range input.Existing {
		existing[tx.ID] = true
	}

	clusters := make([]Cluster, 0, len(parsed.Transactions))
	for _, c := range parsed.Transactions {
		if !validConfidence(c.Confidence) {
			return nil, t.schemaFailure(resp, fmt.Errorf("cluster confidence %v out of range", c.Confidence))
		}

		var members []string
		seen := make(map[string]bool, len(c.MessageIDs))
		for _, id := range c.MessageIDs {
			if known[id] && !seen[id] {
				members = append(members, id)
				seen[id] = true
			}
		}
		if len(members) == 0 {
			continue
		}

		existingID := c.ExistingTransactionID
		if existingID != "" && !existing[existingID] {
			// Invented reference; treat the cluster as new.
			existingID = ""
		}

		clusters = append(clusters, Cluster{
			ExistingTransactionID: existingID,
			PropertyAddress:       strings.TrimSpace(c.PropertyAddress),
			Summary:               c.Summary,
			Type:                  coerceType(c.TransactionType),
			Stage:                 coerceStage(c.Stage),
			MessageIDs:            members,
			Confidence:            c.Confidence,
		})
	}

	return &ClusteringResult{
		Clusters:      clusters,
		ResultID:      t.recordUsage(ctx),
		PromptVersion: t.version.Semver,
		TokensUsed:    resp.TokensUsed,
	}, nil
}

func (t *ClusteringTool) buildPrompt(input ClusteringInput) string {
	var b strings.Builder

	if len(input.Existing) > 0 {
		b.WriteString("Known transactions:\n")
		for _, tx := range input.Existing {
			fmt.Fprintf(&b, "- id=%s address=%q type=%s stage=%s\n",
				tx.ID, tx.PropertyAddress, orUnknown(string(tx.Type)), orUnknown(string(tx.Stage)))
		}
		b.WriteString("\n")
	}

	b.WriteString("Messages:\n")
	for i, m := range input.Messages {
		fmt.Fprintf(&b, "%d. id=%s date=%s from=%s\n   subject: %s\n",
			i+1, m.ID, m.Timestamp.Format("2006-01-02"), m.Sender,
			sanitize.Sanitize(m.Subject))
		if addr := bestAddress(m); addr != "" {
			fmt.Fprintf(&b, "   address: %s\n", addr)
		}
		fmt.Fprintf(&b, "   excerpt: %s\n", snippet(sanitize.Sanitize(m.Body), 280))
	}
	return b.String()
}

func bestAddress(m model.AnalyzedMessage) string {
	if m.LLM != nil && m.LLM.PropertyAddress != "" {
		return m.LLM.PropertyAddress
	}
	if m.Pattern != nil && len(m.Pattern.Addresses) > 0 {
		return m.Pattern.Addresses[0]
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
