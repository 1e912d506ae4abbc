package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lockboxhq/lockbox/internal/common"
	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/prompt"
)

type credKey struct {
	userID   string
	provider string
}

// MemoryStore keeps all three stores in process memory, with the same
// contract as SQLiteStore: missing configs are common.ErrNotFound,
// usage counters move only through AddUsage, and outcome updates
// succeed at most once. It backs tests and trial runs that should leave
// nothing on disk.
type MemoryStore struct {
	configs map[string]*model.UserConfig
	secrets map[credKey]string
	usages  []prompt.UsageRecord
	mu      sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[string]*model.UserConfig),
		secrets: make(map[credKey]string),
	}
}

// GetUserConfig returns a copy of the stored record.
func (m *MemoryStore) GetUserConfig(_ context.Context, userID string) (*model.UserConfig, error) {
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[userID]
	if !ok {
		return nil, fmt.Errorf("user config %s: %w", userID, common.ErrNotFound)
	}
	return cloneConfig(cfg), nil
}

// SaveUserConfig stores a copy of the record. As with SQLiteStore, the
// usage counters of an existing record are preserved; AddUsage is their
// sole mutation path.
func (m *MemoryStore) SaveUserConfig(_ context.Context, cfg *model.UserConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: cfg", ErrNilParameter)
	}
	if err := validateString(cfg.UserID, "cfg.UserID"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneConfig(cfg)
	if prev, ok := m.configs[cfg.UserID]; ok {
		cp.TokensUsed = prev.TokensUsed
		cp.PlatformAllowance = prev.PlatformAllowance
	}
	m.configs[cfg.UserID] = cp
	return nil
}

// AddUsage increments the period counter and optionally draws down the
// platform allowance, floored at zero.
func (m *MemoryStore) AddUsage(_ context.Context, userID string, tokens int64, fromAllowance bool) error {
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[userID]
	if !ok {
		return fmt.Errorf("user config %s: %w", userID, common.ErrNotFound)
	}
	cfg.TokensUsed += tokens
	if fromAllowance {
		cfg.PlatformAllowance -= tokens
		if cfg.PlatformAllowance < 0 {
			cfg.PlatformAllowance = 0
		}
	}
	return nil
}

// Get returns the stored secret, or "" when none is stored.
func (m *MemoryStore) Get(_ context.Context, userID, provider string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secrets[credKey{userID, provider}], nil
}

// Set stores or replaces the secret for a user and provider.
func (m *MemoryStore) Set(_ context.Context, userID, provider, key string) error {
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(provider, "provider"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[credKey{userID, provider}] = key
	return nil
}

// AppendUsage adds one record to the usage log.
func (m *MemoryStore) AppendUsage(_ context.Context, rec prompt.UsageRecord) error {
	if err := validateString(rec.ResultID, "rec.ResultID"); err != nil {
		return err
	}
	if rec.UsedAt.IsZero() {
		rec.UsedAt = time.Now().UTC()
	}
	if rec.Outcome == "" {
		rec.Outcome = prompt.OutcomeUnknown
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usages = append(m.usages, rec)
	return nil
}

// UpdateOutcome sets a record's outcome at most once.
func (m *MemoryStore) UpdateOutcome(_ context.Context, resultID string, outcome prompt.Outcome, feedbackScore *float64) error {
	if err := validateString(resultID, "resultID"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.usages {
		if m.usages[i].ResultID != resultID {
			continue
		}
		if m.usages[i].OutcomeUpdated {
			return fmt.Errorf("result %s: %w", resultID, prompt.ErrOutcomeFinal)
		}
		m.usages[i].Outcome = outcome
		m.usages[i].FeedbackScore = feedbackScore
		m.usages[i].OutcomeUpdated = true
		return nil
	}
	return fmt.Errorf("usage record %s: %w", resultID, common.ErrNotFound)
}

// UsagesByPrompt returns the log entries for one prompt in append
// order.
func (m *MemoryStore) UsagesByPrompt(_ context.Context, name string) ([]prompt.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []prompt.UsageRecord
	for _, rec := range m.usages {
		if rec.PromptName == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ResetUsages wipes the usage log.
func (m *MemoryStore) ResetUsages(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usages = nil
	return nil
}

func cloneConfig(cfg *model.UserConfig) *model.UserConfig {
	cp := *cfg
	if cfg.Models != nil {
		cp.Models = make(map[string]string, len(cfg.Models))
		for k, v := range cfg.Models {
			cp.Models[k] = v
		}
	}
	if cfg.Credentials != nil {
		cp.Credentials = make(map[string]bool, len(cfg.Credentials))
		for k, v := range cfg.Credentials {
			cp.Credentials[k] = v
		}
	}
	return &cp
}
