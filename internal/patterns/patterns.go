// Package patterns defines the boundary to the deterministic pattern
// matcher. The matcher itself is an external collaborator supplied by the
// caller; this package carries the interface plus the address plumbing
// shared by every implementation and by the clustering fallback.
package patterns

import (
	"context"

	"github.com/lockboxhq/lockbox/internal/model"
)

// Analyzer is the deterministic baseline every extraction run starts
// from. Implementations must not call external services.
type Analyzer interface {
	// Analyze runs pattern heuristics over a single message.
	Analyze(ctx context.Context, msg model.Message) (*model.PatternAnalysis, error)

	// GroupByProperty buckets analyzed messages by the property they
	// reference, keyed by normalized address.
	GroupByProperty(msgs []model.AnalyzedMessage) map[string][]model.AnalyzedMessage
}

// Static serves precomputed analyses keyed by message ID. It backs the
// CLI's --pattern-analyses input and test fixtures. Messages without an
// entry get a zero analysis rather than an error so the baseline stage
// never aborts a run.
type Static map[string]model.PatternAnalysis

// Analyze returns the stored analysis for msg.ID, or a zero analysis
// when none was provided.
func (s Static) Analyze(_ context.Context, msg model.Message) (*model.PatternAnalysis, error) {
	if pa, ok := s[msg.ID]; ok {
		cp := pa
		return &cp, nil
	}
	return &model.PatternAnalysis{}, nil
}

// GroupByProperty implements Analyzer using the canonical address
// grouping.
func (s Static) GroupByProperty(msgs []model.AnalyzedMessage) map[string][]model.AnalyzedMessage {
	return GroupByNormalizedAddress(msgs)
}
