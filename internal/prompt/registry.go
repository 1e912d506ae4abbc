// Package prompt tracks every reusable LLM prompt as an immutable,
// content-hashed version and records each use so accuracy can be
// compared across prompt wordings. The registry is an explicitly
// constructed instance; nothing in here is process-global.
package prompt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lockboxhq/lockbox/internal/common"
)

var (
	// ErrUnknownPrompt means a prompt name was never registered. This is
	// a configuration bug; callers should fail fast rather than degrade.
	ErrUnknownPrompt = errors.New("unknown prompt")

	// ErrOutcomeFinal means a usage record's outcome was already set by
	// an earlier feedback event.
	ErrOutcomeFinal = errors.New("outcome already recorded")
)

// Outcome rates one recorded prompt use.
type Outcome string

const (
	OutcomeUnknown   Outcome = "unknown"
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

// Valid reports whether the outcome is one of the known values.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeUnknown, OutcomeCorrect, OutcomeIncorrect:
		return true
	}
	return false
}

// Version is an immutable snapshot of a prompt's text. Editing a prompt
// produces a new Version with a new hash; existing versions are never
// rewritten, which is what makes accuracy-by-version comparisons valid.
type Version struct {
	CreatedAt time.Time `json:"createdAt"`
	Name      string    `json:"name"`
	Semver    string    `json:"version"`
	Hash      string    `json:"hash"`
	Content   string    `json:"-"`
}

// UsageRecord is one append-only entry in the usage log, tying a tool
// result back to the exact prompt version that produced it.
type UsageRecord struct {
	UsedAt         time.Time `json:"usedAt"`
	ResultID       string    `json:"resultId"`
	PromptName     string    `json:"promptName"`
	Semver         string    `json:"version"`
	Hash           string    `json:"hash"`
	Outcome        Outcome   `json:"outcome"`
	FeedbackScore  *float64  `json:"feedbackScore,omitempty"`
	OutcomeUpdated bool      `json:"-"`
}

// VersionAccuracy aggregates rated usages for one prompt version.
// AccuracyRate and AverageFeedbackScore are nil, not zero, when no
// usage has been rated; reporting layers rely on that distinction.
type VersionAccuracy struct {
	Semver               string   `json:"version"`
	Hash                 string   `json:"hash"`
	TotalUsages          int      `json:"totalUsages"`
	CorrectCount         int      `json:"correctCount"`
	IncorrectCount       int      `json:"incorrectCount"`
	AccuracyRate         *float64 `json:"accuracyRate"`
	AverageFeedbackScore *float64 `json:"averageFeedbackScore"`
}

// UsageStore persists the append-only usage log. Implementations must
// enforce the update-once rule on UpdateOutcome: a record whose outcome
// was already updated returns ErrOutcomeFinal, a missing result id
// returns common.ErrNotFound.
type UsageStore interface {
	AppendUsage(ctx context.Context, rec UsageRecord) error
	UpdateOutcome(ctx context.Context, resultID string, outcome Outcome, feedbackScore *float64) error
	UsagesByPrompt(ctx context.Context, name string) ([]UsageRecord, error)
	ResetUsages(ctx context.Context) error
}

// Registry holds prompt versions in memory and usage records in a
// UsageStore. Construct one per process root and inject it; tests get
// isolated instances for free.
type Registry struct {
	store    UsageStore
	versions map[string][]Version
	names    []string
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry. A nil store falls back to an
// in-memory usage log.
func NewRegistry(store UsageStore) *Registry {
	if store == nil {
		store = NewMemoryUsageStore()
	}
	return &Registry{
		store:    store,
		versions: make(map[string][]Version),
	}
}

// Register adds a prompt version. Re-registering the current content is
// a no-op returning the existing version; changed content appends a new
// version and preserves the old ones.
func (r *Registry) Register(name, semver, content string) (Version, error) {
	if name == "" || content == "" {
		return Version{}, fmt.Errorf("prompt name and content required: %w", common.ErrInvalidConfig)
	}

	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.versions[name]; ok {
		if current := existing[len(existing)-1]; current.Hash == hash {
			return current, nil
		}
	} else {
		r.names = append(r.names, name)
	}

	v := Version{
		Name:      name,
		Semver:    semver,
		Hash:      hash,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	r.versions[name] = append(r.versions[name], v)
	return v, nil
}

// CurrentVersion returns the latest registered version of a prompt.
func (r *Registry) CurrentVersion(name string) (Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs, ok := r.versions[name]
	if !ok {
		return Version{}, fmt.Errorf("prompt %q: %w", name, ErrUnknownPrompt)
	}
	return vs[len(vs)-1], nil
}

// AllVersions returns every registered version, grouped by prompt in
// registration order, oldest version first within each prompt.
func (r *Registry) AllVersions() []Version {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Version
	for _, name := range r.names {
		out = append(out, r.versions[name]...)
	}
	return out
}

// RecordUsage appends a usage record for the current version of the
// named prompt. Pass OutcomeUnknown (or empty) when the outcome is not
// yet known; later feedback arrives through UpdateOutcome.
func (r *Registry) RecordUsage(ctx context.Context, name, resultID string, outcome Outcome) error {
	if resultID == "" {
		return fmt.Errorf("result id required: %w", common.ErrInvalidConfig)
	}
	if outcome == "" {
		outcome = OutcomeUnknown
	}
	if !outcome.Valid() {
		return fmt.Errorf("invalid outcome %q: %w", outcome, common.ErrInvalidConfig)
	}

	v, err := r.CurrentVersion(name)
	if err != nil {
		return err
	}

	return r.store.AppendUsage(ctx, UsageRecord{
		ResultID:   resultID,
		PromptName: v.Name,
		Semver:     v.Semver,
		Hash:       v.Hash,
		UsedAt:     time.Now().UTC(),
		Outcome:    outcome,
	})
}

// UpdateOutcome attaches feedback to a previously recorded usage. It
// succeeds at most once per record; a second call returns
// ErrOutcomeFinal. Only the named record changes.
func (r *Registry) UpdateOutcome(ctx context.Context, resultID string, outcome Outcome, feedbackScore *float64) error {
	if outcome != OutcomeCorrect && outcome != OutcomeIncorrect {
		return fmt.Errorf("outcome must be correct or incorrect, got %q: %w", outcome, common.ErrInvalidConfig)
	}
	if feedbackScore != nil && (*feedbackScore < 1 || *feedbackScore > 5) {
		return fmt.Errorf("feedback score must be 1-5, got %v: %w", *feedbackScore, common.ErrInvalidConfig)
	}
	return r.store.UpdateOutcome(ctx, resultID, outcome, feedbackScore)
}

// AccuracyByVersion aggregates usage outcomes per content hash for one
// prompt. Registered versions with no usages appear with zero counts;
// hashes known only from old usage records are included too.
func (r *Registry) AccuracyByVersion(ctx context.Context, name string) (map[string]VersionAccuracy, error) {
	r.mu.RLock()
	vs, known := r.versions[name]
	seed := make([]Version, len(vs))
	copy(seed, vs)
	r.mu.RUnlock()

	if !known {
		return nil, fmt.Errorf("prompt %q: %w", name, ErrUnknownPrompt)
	}

	recs, err := r.store.UsagesByPrompt(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading usages for %q: %w", name, err)
	}

	out := make(map[string]VersionAccuracy, len(seed))
	for _, v := range seed {
		out[v.Hash] = VersionAccuracy{Semver: v.Semver, Hash: v.Hash}
	}

	scoreSums := make(map[string]float64)
	scoreCounts := make(map[string]int)
	for _, rec := range recs {
		va, ok := out[rec.Hash]
		if !ok {
			va = VersionAccuracy{Semver: rec.Semver, Hash: rec.Hash}
		}
		va.TotalUsages++
		switch rec.Outcome {
		case OutcomeCorrect:
			va.CorrectCount++
		case OutcomeIncorrect:
			va.IncorrectCount++
		}
		if rec.FeedbackScore != nil {
			scoreSums[rec.Hash] += *rec.FeedbackScore
			scoreCounts[rec.Hash]++
		}
		out[rec.Hash] = va
	}

	for hash, va := range out {
		if rated := va.CorrectCount + va.IncorrectCount; rated > 0 {
			rate := float64(va.CorrectCount) / float64(rated)
			va.AccuracyRate = &rate
		}
		if n := scoreCounts[hash]; n > 0 {
			avg := scoreSums[hash] / float64(n)
			va.AverageFeedbackScore = &avg
		}
		out[hash] = va
	}
	return out, nil
}

// Reset wipes registered versions and the usage log. For tests.
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	r.versions = make(map[string][]Version)
	r.names = nil
	r.mu.Unlock()

	return r.store.ResetUsages(ctx)
}
