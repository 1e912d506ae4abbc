// Package gate decides whether a paid LLM call is currently permitted
// for a user. It owns the per-user configuration record (consent,
// credentials, budget, platform allowance) and is the single
// enforcement point every tool caller must consult before spending
// tokens.
package gate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lockboxhq/lockbox/internal/llm"
	"github.com/lockboxhq/lockbox/internal/model"
)

// Reason explains a denied Decision.
type Reason string

const (
	ReasonNoConsent          Reason = "no_consent"
	ReasonNoCredential       Reason = "no_credential"
	ReasonBudgetExceeded     Reason = "budget_exceeded"
	ReasonAllowanceExhausted Reason = "platform_allowance_exhausted"
)

// CredentialSource says whose key would fund a call.
type CredentialSource string

const (
	SourceUser     CredentialSource = "user"
	SourcePlatform CredentialSource = "platform"
)

// Decision is the outcome of CanUseLLM. Provider is the provider that
// would serve the call; Source is set only when Allowed.
type Decision struct {
	Provider string
	Reason   Reason
	Source   CredentialSource
	Allowed  bool
}

// Config tunes the gate. InitialAllowance seeds new users' platform
// allowance; PlatformKeys maps provider name to the application-funded
// API key, if any.
type Config struct {
	PlatformKeys     map[string]string
	DefaultProvider  string
	InitialAllowance int64
}

// DefaultInitialAllowance is the trial token grant for new users.
const DefaultInitialAllowance int64 = 50_000

// ConfigStore persists per-user configuration records.
type ConfigStore interface {
	// GetUserConfig returns common.ErrNotFound when no record exists.
	GetUserConfig(ctx context.Context, userID string) (*model.UserConfig, error)
	SaveUserConfig(ctx context.Context, cfg *model.UserConfig) error
	// AddUsage atomically increments the period counter and, when
	// fromAllowance is set, decrements the platform allowance floored
	// at zero.
	AddUsage(ctx context.Context, userID string, tokens int64, fromAllowance bool) error
}

// CredentialStore reads and writes provider API keys through the
// external secret backend. Get returns the decrypted key.
type CredentialStore interface {
	Get(ctx context.Context, userID, provider string) (string, error)
	Set(ctx context.Context, userID, provider, key string) error
}

// Gate evaluates entitlement and records consumption.
type Gate struct {
	store ConfigStore
	creds CredentialStore
	cfg   Config
}

var knownProviders = []string{llm.ProviderOpenAI, llm.ProviderAnthropic}

// New builds a gate. Zero config fields get safe defaults.
func New(store ConfigStore, creds CredentialStore, cfg Config) *Gate {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = llm.ProviderAnthropic
	}
	if cfg.InitialAllowance <= 0 {
		cfg.InitialAllowance = DefaultInitialAllowance
	}
	return &Gate{store: store, creds: creds, cfg: cfg}
}

// CanUseLLM reports whether a call may be made right now and which
// provider and funding source it would use. Denials carry a Reason;
// callers treat any denial as "run without LLM", never as an error.
func (g *Gate) CanUseLLM(ctx context.Context, userID string) Decision {
	return g.CanUseProvider(ctx, userID, "")
}

// CanUseProvider is CanUseLLM with an explicit provider choice,
// overriding the stored preference for this evaluation only. An empty
// provider means "whatever the user would normally get".
func (g *Gate) CanUseProvider(ctx context.Context, userID, provider string) Decision {
	cfg := g.UserConfig(ctx, userID)

	if !cfg.ConsentGranted {
		return Decision{Reason: ReasonNoConsent}
	}

	if provider == "" {
		provider = g.effectiveProvider(cfg)
	}

	if cfg.HasCredential(provider) {
		if cfg.BudgetExceeded() {
			return Decision{Provider: provider, Reason: ReasonBudgetExceeded}
		}
		return Decision{Allowed: true, Provider: provider, Source: SourceUser}
	}

	if g.platformKey(provider) != "" {
		if cfg.PlatformAllowance <= 0 {
			return Decision{Provider: provider, Reason: ReasonAllowanceExhausted}
		}
		return Decision{Allowed: true, Provider: provider, Source: SourcePlatform}
	}

	return Decision{Provider: provider, Reason: ReasonNoCredential}
}

// Credential returns the decrypted key that should fund a call to
// provider: the user's own key first, then the platform key. Store and
// decryption failures are swallowed and read as "no credential" so a
// corrupted keystore degrades to pattern-only mode instead of erroring.
func (g *Gate) Credential(ctx context.Context, userID, provider string) (string, CredentialSource, bool) {
	if key, err := g.userCredential(ctx, userID, provider); key != "" {
		return key, SourceUser, true
	} else if err != nil {
		slog.Warn("credential lookup failed, treating as absent",
			"user_id", userID,
			"provider", provider,
			"error", err)
	}

	if key := g.platformKey(provider); key != "" {
		return key, SourcePlatform, true
	}
	return "", "", false
}

// RecordUsage adds consumed tokens to the user's period counter.
// Usage funded by the platform key also draws down the allowance.
// Crossing the budget is not an error here; the next CanUseLLM reports
// budget_exceeded.
func (g *Gate) RecordUsage(ctx context.Context, userID, provider string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}

	key, _ := g.userCredential(ctx, userID, provider)
	fromAllowance := key == "" && g.platformKey(provider) != ""

	return g.store.AddUsage(ctx, userID, tokens, fromAllowance)
}

// UsageSummary is the caller-facing view of a user's consumption.
type UsageSummary struct {
	Credentials       map[string]bool `json:"credentials"`
	UserID            string          `json:"userId"`
	Provider          string          `json:"provider"`
	TokensUsed        int64           `json:"tokensUsed"`
	BudgetLimit       int64           `json:"budgetLimit"`
	PlatformAllowance int64           `json:"platformAllowance"`
	ConsentGranted    bool            `json:"consentGranted"`
}

// Usage summarizes the user's current entitlement state. Never fails.
func (g *Gate) Usage(ctx context.Context, userID string) UsageSummary {
	cfg := g.UserConfig(ctx, userID)
	return UsageSummary{
		Credentials:       cfg.Credentials,
		UserID:            cfg.UserID,
		Provider:          g.effectiveProvider(cfg),
		TokensUsed:        cfg.TokensUsed,
		BudgetLimit:       cfg.BudgetLimit,
		PlatformAllowance: cfg.PlatformAllowance,
		ConsentGranted:    cfg.ConsentGranted,
	}
}

// effectiveProvider picks the provider a call would use: the user's
// explicit preference, else the provider of their only stored key, else
// the gate default.
func (g *Gate) effectiveProvider(cfg *model.UserConfig) string {
	if cfg.PreferredProvider != "" {
		return cfg.PreferredProvider
	}
	for _, p := range knownProviders {
		if cfg.HasCredential(p) {
			return p
		}
	}
	return g.cfg.DefaultProvider
}

func (g *Gate) userCredential(ctx context.Context, userID, provider string) (string, error) {
	key, err := g.creds.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

func (g *Gate) platformKey(provider string) string {
	return g.cfg.PlatformKeys[provider]
}
