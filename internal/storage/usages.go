package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lockboxhq/lockbox/internal/common"
	"github.com/lockboxhq/lockbox/internal/prompt"
)

// AppendUsage adds one record to the usage log. Records are never
// updated afterwards except through UpdateOutcome.
func (s *SQLiteStore) AppendUsage(ctx context.Context, rec prompt.UsageRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(rec.ResultID, "rec.ResultID"); err != nil {
		return err
	}

	usedAt := rec.UsedAt
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}
	outcome := rec.Outcome
	if outcome == "" {
		outcome = prompt.OutcomeUnknown
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_usages (
			result_id, prompt_name, version, hash,
			outcome, feedback_score, outcome_updated, used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ResultID, rec.PromptName, rec.Semver, rec.Hash,
		string(outcome), rec.FeedbackScore, rec.OutcomeUpdated, usedAt)
	if err != nil {
		return fmt.Errorf("failed to append usage: %w", err)
	}
	return nil
}

// UpdateOutcome sets a record's outcome at most once. The guard is the
// outcome_updated flag checked inside the UPDATE itself, so two racing
// feedback events cannot both win.
func (s *SQLiteStore) UpdateOutcome(ctx context.Context, resultID string, outcome prompt.Outcome, feedbackScore *float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(resultID, "resultID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE prompt_usages
		SET outcome = ?, feedback_score = ?, outcome_updated = 1
		WHERE result_id = ? AND outcome_updated = 0
	`, string(outcome), feedbackScore, resultID)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing updated: either the record is missing or its outcome is
	// already final.
	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM prompt_usages WHERE result_id = ?)
	`, resultID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check usage record: %w", err)
	}
	if exists {
		return fmt.Errorf("result %s: %w", resultID, prompt.ErrOutcomeFinal)
	}
	return fmt.Errorf("usage record %s: %w", resultID, common.ErrNotFound)
}

// UsagesByPrompt returns the log entries for one prompt in append
// order.
func (s *SQLiteStore) UsagesByPrompt(ctx context.Context, name string) ([]prompt.UsageRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT result_id, prompt_name, version, hash,
		       outcome, feedback_score, outcome_updated, used_at
		FROM prompt_usages
		WHERE prompt_name = ?
		ORDER BY id
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query usages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []prompt.UsageRecord
	for rows.Next() {
		var rec prompt.UsageRecord
		var outcome string
		var score sql.NullFloat64
		err := rows.Scan(
			&rec.ResultID,
			&rec.PromptName,
			&rec.Semver,
			&rec.Hash,
			&outcome,
			&score,
			&rec.OutcomeUpdated,
			&rec.UsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		rec.Outcome = prompt.Outcome(outcome)
		if score.Valid {
			v := score.Float64
			rec.FeedbackScore = &v
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ResetUsages wipes the usage log. For tests.
func (s *SQLiteStore) ResetUsages(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prompt_usages`); err != nil {
		return fmt.Errorf("failed to reset usages: %w", err)
	}
	return nil
}
