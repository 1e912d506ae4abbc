package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lockboxhq/lockbox/internal/common"
	"github.com/lockboxhq/lockbox/internal/llm"
	"github.com/lockboxhq/lockbox/internal/model"
)

// UserConfig returns the user's configuration record, creating one with
// trial defaults on first access. It never fails: store read errors are
// logged and degrade to the defaults so detection keeps working.
func (g *Gate) UserConfig(ctx context.Context, userID string) *model.UserConfig {
	cfg, err := g.store.GetUserConfig(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrNotFound):
		cfg = g.defaultConfig(userID)
		if saveErr := g.store.SaveUserConfig(ctx, cfg); saveErr != nil {
			slog.Warn("could not persist new user config",
				"user_id", userID,
				"error", saveErr)
		}
	default:
		slog.Warn("user config read failed, using defaults",
			"user_id", userID,
			"error", err)
		cfg = g.defaultConfig(userID)
	}

	// Derived presence flags. Probe errors read as "absent" so a broken
	// keystore never blocks the user.
	cfg.Credentials = make(map[string]bool, len(knownProviders))
	for _, p := range knownProviders {
		key, credErr := g.userCredential(ctx, userID, p)
		if credErr != nil {
			slog.Warn("credential probe failed, treating as absent",
				"user_id", userID,
				"provider", p,
				"error", credErr)
			continue
		}
		if key != "" {
			cfg.Credentials[p] = true
		}
	}
	return cfg
}

func (g *Gate) defaultConfig(userID string) *model.UserConfig {
	return &model.UserConfig{
		UserID:            userID,
		PlatformAllowance: g.cfg.InitialAllowance,
		AutoDetect:        true,
		RoleExtraction:    true,
	}
}

// keyFormats are the cheap syntactic checks applied before a key is
// stored. No network validation happens here.
var keyFormats = map[string]struct {
	prefix string
	minLen int
}{
	llm.ProviderOpenAI:    {prefix: "sk-", minLen: 20},
	llm.ProviderAnthropic: {prefix: "sk-ant-", minLen: 24},
}

// SetCredential validates the key's shape for the provider and writes
// it through the secret backend.
func (g *Gate) SetCredential(ctx context.Context, userID, provider, rawKey string) error {
	format, ok := keyFormats[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q: %w", provider, common.ErrInvalidConfig)
	}

	key := strings.TrimSpace(rawKey)
	if len(key) < format.minLen || !strings.HasPrefix(key, format.prefix) {
		return common.NewUserError(
			fmt.Sprintf("that does not look like a valid %s API key (expected %s...)", provider, format.prefix),
			common.ErrInvalidConfig)
	}

	if err := g.creds.Set(ctx, userID, provider, key); err != nil {
		return fmt.Errorf("storing %s credential: %w", provider, err)
	}

	slog.Info("credential stored",
		"user_id", userID,
		"provider", provider)
	return nil
}

// RecordConsent stamps the user's LLM consent flag. Consent is required
// before any provider call is permitted.
func (g *Gate) RecordConsent(ctx context.Context, userID string, granted bool) error {
	cfg := g.UserConfig(ctx, userID)
	cfg.ConsentGranted = granted
	cfg.ConsentAt = time.Now().UTC()

	if err := g.store.SaveUserConfig(ctx, cfg); err != nil {
		return fmt.Errorf("saving consent for %s: %w", userID, err)
	}

	slog.Info("consent recorded",
		"user_id", userID,
		"granted", granted)
	return nil
}

// Preferences are the user-editable settings. Nil fields are left
// unchanged; Models entries are merged per provider.
type Preferences struct {
	PreferredProvider *string
	Models            map[string]string
	BudgetLimit       *int64
	AutoDetect        *bool
	RoleExtraction    *bool
}

// SetPreferences applies an explicit preference change.
func (g *Gate) SetPreferences(ctx context.Context, userID string, p Preferences) error {
	cfg := g.UserConfig(ctx, userID)

	if p.PreferredProvider != nil {
		provider := *p.PreferredProvider
		if provider != "" {
			if _, ok := keyFormats[provider]; !ok {
				return fmt.Errorf("unknown provider %q: %w", provider, common.ErrInvalidConfig)
			}
		}
		cfg.PreferredProvider = provider
	}
	for provider, m := range p.Models {
		if _, ok := keyFormats[provider]; !ok {
			return fmt.Errorf("unknown provider %q: %w", provider, common.ErrInvalidConfig)
		}
		if cfg.Models == nil {
			cfg.Models = make(map[string]string)
		}
		cfg.Models[provider] = m
	}
	if p.BudgetLimit != nil {
		if *p.BudgetLimit < 0 {
			return fmt.Errorf("budget limit must not be negative: %w", common.ErrInvalidConfig)
		}
		cfg.BudgetLimit = *p.BudgetLimit
	}
	if p.AutoDetect != nil {
		cfg.AutoDetect = *p.AutoDetect
	}
	if p.RoleExtraction != nil {
		cfg.RoleExtraction = *p.RoleExtraction
	}

	if err := g.store.SaveUserConfig(ctx, cfg); err != nil {
		return fmt.Errorf("saving preferences for %s: %w", userID, err)
	}
	return nil
}
