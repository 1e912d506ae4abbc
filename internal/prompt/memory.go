package prompt

import (
	"context"
	"fmt"
	"sync"

	"github.com/lockboxhq/lockbox/internal/common"
)

// MemoryUsageStore keeps the usage log in memory. It is the default
// store for trial runs and tests; production wiring uses the sqlite
// implementation in internal/storage.
type MemoryUsageStore struct {
	records []UsageRecord
	mu      sync.Mutex
}

// NewMemoryUsageStore creates an empty in-memory usage log.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

func (m *MemoryUsageStore) AppendUsage(_ context.Context, rec UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryUsageStore) UpdateOutcome(_ context.Context, resultID string, outcome Outcome, feedbackScore *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].ResultID != resultID {
			continue
		}
		if m.records[i].OutcomeUpdated {
			return fmt.Errorf("result %s: %w", resultID, ErrOutcomeFinal)
		}
		m.records[i].Outcome = outcome
		m.records[i].FeedbackScore = feedbackScore
		m.records[i].OutcomeUpdated = true
		return nil
	}
	return fmt.Errorf("usage record %s: %w", resultID, common.ErrNotFound)
}

func (m *MemoryUsageStore) UsagesByPrompt(_ context.Context, name string) ([]UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []UsageRecord
	for _, rec := range m.records {
		if rec.PromptName == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryUsageStore) ResetUsages(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}
