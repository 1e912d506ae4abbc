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

// RoleTool assigns participant roles for the members of one cluster,
// grounded on the user's known contacts so senders map onto existing
// identities.
type RoleTool struct {
	tool
}

// NewRoleTool fails fast if the roles prompt is not registered.
func NewRoleTool(client llm.Client, registry *prompt.Registry) (*RoleTool, error) {
	t, err := newTool("roles", prompt.ContactRoles, client, registry)
	if err != nil {
		return nil, err
	}
	return &RoleTool{tool: t}, nil
}

// RoleInput is one cluster's member messages plus the user's address
// book.
type RoleInput struct {
	Messages      []model.AnalyzedMessage
	KnownContacts []model.Contact
}

// RoleResult is the tool's typed output: one assignment list for the
// cluster.
type RoleResult struct {
	Roles         []model.RoleAssignment
	ResultID      string
	PromptVersion string
	TokensUsed    int64
}

type rolesResponse struct {
	Roles []struct {
		Name       string   `json:"name"`
		Email      string   `json:"email"`
		Role       string   `json:"role"`
		Confidence float64  `json:"confidence"`
		Evidence   []string `json:"evidence"`
	} `json:"roles"`
}

// Run extracts role assignments with a single provider call. Unknown
// role names coerce to "other"; entries with no identity are dropped.
func (t *RoleTool) Run(ctx context.Context, input RoleInput) (*RoleResult, error) {
	resp, err := t.complete(ctx, t.buildPrompt(input), rolesMaxTokens)
	if err != nil {
		return nil, err
	}

	var parsed rolesResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(resp.Content)), &parsed); err != nil {
		return nil, t.schemaFailure(resp, fmt.Errorf("undecodable roles response: %w", err))
	}

	roles := make([]model.RoleAssignment, 0, len(parsed.Roles))
	for _, r := range parsed.Roles {
		if !validConfidence(r.Confidence) {
			return nil, t.schemaFailure(resp, fmt.Errorf("role confidence %v out of range", r.Confidence))
		}
		name := strings.TrimSpace(r.Name)
		email := strings.TrimSpace(r.Email)
		if name == "" && email == "" {
			continue
		}

		role := model.ContactRole(strings.ToLower(strings.TrimSpace(r.Role)))
		if !role.Valid() {
			role = model.RoleOther
		}

		roles = append(roles, model.RoleAssignment{
			Name:       name,
			Email:      email,
			Role:       role,
			Evidence:   r.Evidence,
			Confidence: r.Confidence,
		})
	}

	return &RoleResult{
		Roles:         roles,
		ResultID:      t.recordUsage(ctx),
		PromptVersion: t.version.Semver,
		TokensUsed:    resp.TokensUsed,
	}, nil
}

func (t *RoleTool) buildPrompt(input RoleInput) string {
	var b strings.Builder

	if len(input.KnownContacts) > 0 {
		b.WriteString("Known contacts:\n")
		for _, c := range input.KnownContacts {
			fmt.Fprintf(&b, "- %s", c.Name)
			if c.Email != "" {
				fmt.Fprintf(&b, " <%s>", c.Email)
			}
			if c.Phone != "" {
				fmt.Fprintf(&b, " phone=%s", c.Phone)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Transaction messages:\n")
	for i, m := range input.Messages {
		fmt.Fprintf(&b, "%d. from=%s date=%s\n   subject: %s\n   excerpt: %s\n",
			i+1, m.Sender, m.Timestamp.Format("2006-01-02"),
			sanitize.Sanitize(m.Subject),
			snippet(sanitize.Sanitize(m.Body), 280))
	}
	return b.String()
}
