package model

import "time"

// UserConfig is the per-user LLM configuration record consulted by the budget
// gate. A record is created lazily with trial defaults on first access: no
// provider credential, consent not granted, the full platform allowance, and
// both feature toggles enabled. Records are never deleted; period counters are
// reset on a billing boundary by an external job.
type UserConfig struct {
	ConsentAt         time.Time         `json:"consentAt,omitempty"`
	Models            map[string]string `json:"models,omitempty"`
	Credentials       map[string]bool   `json:"credentials,omitempty"`
	UserID            string            `json:"userId"`
	PreferredProvider string            `json:"preferredProvider"`
	TokensUsed        int64             `json:"tokensUsed"`
	BudgetLimit       int64             `json:"budgetLimit,omitempty"`
	PlatformAllowance int64             `json:"platformAllowance"`
	ConsentGranted    bool              `json:"consentGranted"`
	AutoDetect        bool              `json:"autoDetect"`
	RoleExtraction    bool              `json:"roleExtraction"`
}

// ModelFor returns the configured model for a provider, or "" when the user
// has not picked one.
func (c *UserConfig) ModelFor(provider string) string {
	if c.Models == nil {
		return ""
	}
	return c.Models[provider]
}

// HasCredential reports the derived presence flag for a provider credential.
func (c *UserConfig) HasCredential(provider string) bool {
	if c.Credentials == nil {
		return false
	}
	return c.Credentials[provider]
}

// BudgetExceeded reports whether the user's own hard budget limit has been
// reached. A zero limit means no limit.
func (c *UserConfig) BudgetExceeded() bool {
	return c.BudgetLimit > 0 && c.TokensUsed >= c.BudgetLimit
}
