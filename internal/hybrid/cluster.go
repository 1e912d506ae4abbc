package hybrid

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/patterns"
	"github.com/lockboxhq/lockbox/internal/tools"
)

// clusterStage groups the related messages into candidate transactions.
// The LLM clustering tool goes first when available; any failure falls
// back to deterministic grouping by property address. Clusters only ever
// reference related messages, and a cluster with no members is never
// emitted.
func (e *Extractor) clusterStage(ctx context.Context, run *llmRun, analyzed []model.AnalyzedMessage, existing []model.DetectedTransaction) []model.DetectedTransaction {
	related := relatedOnly(analyzed)
	if len(related) == 0 {
		return nil
	}

	existingByID := make(map[string]model.DetectedTransaction, len(existing))
	for _, tx := range existing {
		existingByID[tx.ID] = tx
	}

	if run.available() {
		res, err := run.clustering.Run(ctx, tools.ClusteringInput{Messages: related, Existing: existing})
		if err != nil {
			run.noteFailure(ctx, err)
			e.logger.Warn("llm clustering failed, falling back to address grouping",
				"related_messages", len(related),
				"error", err)
		} else {
			run.noteSuccess(ctx, res.TokensUsed)
			return e.assemble(res.Clusters, related, existingByID)
		}
	}

	return e.assemble(e.fallbackClusters(related, existing), related, existingByID)
}

func relatedOnly(analyzed []model.AnalyzedMessage) []model.AnalyzedMessage {
	related := make([]model.AnalyzedMessage, 0, len(analyzed))
	for _, am := range analyzed {
		if am.IsRealEstateRelated {
			related = append(related, am)
		}
	}
	return related
}

// fallbackClusters is the deterministic clustering path: one cluster per
// normalized property address, reusing a known transaction when its
// address matches. Related messages without any extracted address cannot
// be grouped and stay unclustered.
func (e *Extractor) fallbackClusters(related []model.AnalyzedMessage, existing []model.DetectedTransaction) []tools.Cluster {
	groups := patterns.GroupByNormalizedAddress(related)
	if e.patterns != nil {
		groups = e.patterns.GroupByProperty(related)
	}

	existingByAddr := make(map[string]string, len(existing))
	for _, tx := range existing {
		key := patterns.NormalizeAddress(tx.PropertyAddress)
		if key == "" {
			continue
		}
		if _, taken := existingByAddr[key]; !taken {
			existingByAddr[key] = tx.ID
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clusters := make([]tools.Cluster, 0, len(keys))
	for _, key := range keys {
		members := groups[key]
		if len(members) == 0 {
			continue
		}

		ids := make([]string, len(members))
		var confidence float64
		for i, m := range members {
			ids[i] = m.ID
			confidence += m.Confidence
		}
		confidence /= float64(len(members))

		c := tools.Cluster{
			ExistingTransactionID: existingByAddr[key],
			MessageIDs:            ids,
			Confidence:            confidence,
		}
		if c.ExistingTransactionID == "" {
			addr := displayAddress(members)
			c.PropertyAddress = addr
			c.Summary = fmt.Sprintf("%d related messages about %s", len(members), addr)
			c.Type, c.Stage = firstTypeStage(members)
		}
		clusters = append(clusters, c)
	}
	return clusters
}

// assemble turns proposed clusters into DetectedTransactions, folding
// clusters that reference a known transaction into a copy of it.
func (e *Extractor) assemble(clusters []tools.Cluster, related []model.AnalyzedMessage, existingByID map[string]model.DetectedTransaction) []model.DetectedTransaction {
	byID := make(map[string]model.AnalyzedMessage, len(related))
	for _, m := range related {
		byID[m.ID] = m
	}

	out := make([]model.DetectedTransaction, 0, len(clusters))
	for _, c := range clusters {
		members := make([]model.AnalyzedMessage, 0, len(c.MessageIDs))
		for _, id := range c.MessageIDs {
			if m, ok := byID[id]; ok {
				members = append(members, m)
			}
		}
		if len(members) == 0 {
			continue
		}

		if prior, ok := existingByID[c.ExistingTransactionID]; ok && c.ExistingTransactionID != "" {
			out = append(out, extendTransaction(prior, c, members))
			continue
		}

		addr := strings.TrimSpace(c.PropertyAddress)
		if addr == "" {
			addr = displayAddress(members)
		}
		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = m.ID
		}
		out = append(out, model.DetectedTransaction{
			ID:               uuid.New().String(),
			PropertyAddress:  addr,
			Summary:          c.Summary,
			Type:             c.Type,
			Stage:            c.Stage,
			CommunicationIDs: ids,
			Roles:            []model.RoleAssignment{},
			Confidence:       c.Confidence,
			DateRange:        dateRangeOf(members),
		})
	}
	return out
}

// extendTransaction folds new members into a copy of a known
// transaction: ids are unioned, the date range widened, and fields the
// cluster left empty keep their prior values. The stage moves with the
// newest evidence; the address, the type, and any previously attached
// roles stay as they are.
func extendTransaction(prior model.DetectedTransaction, c tools.Cluster, members []model.AnalyzedMessage) model.DetectedTransaction {
	tx := prior

	seen := make(map[string]bool, len(prior.CommunicationIDs)+len(members))
	ids := make([]string, 0, len(prior.CommunicationIDs)+len(members))
	for _, id := range prior.CommunicationIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range members {
		if !seen[m.ID] {
			seen[m.ID] = true
			ids = append(ids, m.ID)
		}
	}
	tx.CommunicationIDs = ids

	if c.Summary != "" {
		tx.Summary = c.Summary
	}
	if tx.Type == "" {
		tx.Type = c.Type
	}
	if c.Stage != "" {
		tx.Stage = c.Stage
	}
	if c.Confidence > tx.Confidence {
		tx.Confidence = c.Confidence
	}
	if tx.Roles == nil {
		tx.Roles = []model.RoleAssignment{}
	}

	tx.DateRange = widenRange(tx.DateRange, dateRangeOf(members))
	return tx
}

func displayAddress(members []model.AnalyzedMessage) string {
	for _, m := range members {
		if addr := patterns.PropertyAddress(m); addr != "" {
			return addr
		}
	}
	return ""
}

// firstTypeStage picks the first non-empty transaction type and stage
// among the members' LLM analyses, in member order. Pattern-only members
// carry neither.
func firstTypeStage(members []model.AnalyzedMessage) (model.TransactionType, model.Stage) {
	var txType model.TransactionType
	var stage model.Stage
	for _, m := range members {
		if m.LLM == nil {
			continue
		}
		if txType == "" {
			txType = m.LLM.TransactionType
		}
		if stage == "" {
			stage = m.LLM.Stage
		}
	}
	return txType, stage
}

func dateRangeOf(members []model.AnalyzedMessage) model.DateRange {
	var dr model.DateRange
	for _, m := range members {
		if m.Timestamp.IsZero() {
			continue
		}
		if dr.Start.IsZero() || m.Timestamp.Before(dr.Start) {
			dr.Start = m.Timestamp
		}
		if dr.End.IsZero() || m.Timestamp.After(dr.End) {
			dr.End = m.Timestamp
		}
	}
	return dr
}

func widenRange(a, b model.DateRange) model.DateRange {
	out := a
	if out.Start.IsZero() || (!b.Start.IsZero() && b.Start.Before(out.Start)) {
		out.Start = b.Start
	}
	if out.End.IsZero() || (!b.End.IsZero() && b.End.After(out.End)) {
		out.End = b.End
	}
	return out
}
