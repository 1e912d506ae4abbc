package hybrid

import (
	"context"

	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/tools"
)

// roleStage attaches suggested contact roles to each detected
// transaction. It is a pure enhancement: it needs the LLM, honors the
// user's role-extraction preference, and a failure for one cluster
// leaves that transaction intact with no roles. Transactions that
// already carry roles from an earlier run keep them.
func (e *Extractor) roleStage(ctx context.Context, run *llmRun, transactions []model.DetectedTransaction, analyzed []model.AnalyzedMessage, contacts []model.Contact, opts Options) {
	if len(transactions) == 0 || !run.available() {
		return
	}
	if !run.roleExtraction {
		e.logger.Debug("role extraction disabled by user preference",
			"user_id", opts.UserID)
		return
	}

	contacts = e.resolveContacts(ctx, contacts, opts.UserID)

	byID := make(map[string]model.AnalyzedMessage, len(analyzed))
	for _, m := range analyzed {
		byID[m.ID] = m
	}

	for i := range transactions {
		if len(transactions[i].Roles) > 0 {
			continue
		}

		members := make([]model.AnalyzedMessage, 0, len(transactions[i].CommunicationIDs))
		for _, id := range transactions[i].CommunicationIDs {
			if m, ok := byID[id]; ok {
				members = append(members, m)
			}
		}
		if len(members) == 0 {
			continue
		}

		res, err := run.roles.Run(ctx, tools.RoleInput{Messages: members, KnownContacts: contacts})
		if err != nil {
			run.noteFailure(ctx, err)
			e.logger.Warn("role extraction failed, keeping transaction without roles",
				"transaction_id", transactions[i].ID,
				"error", err)
			continue
		}
		run.noteSuccess(ctx, res.TokensUsed)
		if len(res.Roles) > 0 {
			transactions[i].Roles = res.Roles
		}
	}
}

// resolveContacts prefers the caller-supplied list, then the configured
// contacts source. Lookup failures read as "no known contacts"; roles
// are still extracted, just without grounding.
func (e *Extractor) resolveContacts(ctx context.Context, contacts []model.Contact, userID string) []model.Contact {
	if len(contacts) > 0 || e.contacts == nil {
		return contacts
	}

	known, err := e.contacts.Contacts(ctx, userID)
	if err != nil {
		e.logger.Warn("contacts lookup failed",
			"user_id", userID,
			"error", err)
		return contacts
	}
	return known
}
