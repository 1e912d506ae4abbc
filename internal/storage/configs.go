package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lockboxhq/lockbox/internal/common"
	"github.com/lockboxhq/lockbox/internal/model"
)

// GetUserConfig retrieves a user's configuration record. Missing users
// are common.ErrNotFound; the gate reacts by creating trial defaults.
// The Credentials presence map is left nil here because the gate
// derives it from the credential store on every read.
func (s *SQLiteStore) GetUserConfig(ctx context.Context, userID string) (*model.UserConfig, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var cfg model.UserConfig
	var consentAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, preferred_provider, consent_granted, consent_at,
		       tokens_used, budget_limit, platform_allowance,
		       auto_detect, role_extraction
		FROM user_configs
		WHERE user_id = ?
	`, userID).Scan(
		&cfg.UserID,
		&cfg.PreferredProvider,
		&cfg.ConsentGranted,
		&consentAt,
		&cfg.TokensUsed,
		&cfg.BudgetLimit,
		&cfg.PlatformAllowance,
		&cfg.AutoDetect,
		&cfg.RoleExtraction,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user config %s: %w", userID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user config: %w", err)
	}
	if consentAt.Valid {
		cfg.ConsentAt = consentAt.Time
	}

	models, err := s.userModels(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg.Models = models

	return &cfg, nil
}

func (s *SQLiteStore) userModels(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, model
		FROM user_models
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var models map[string]string
	for rows.Next() {
		var provider, m string
		if err := rows.Scan(&provider, &m); err != nil {
			return nil, fmt.Errorf("failed to scan user model: %w", err)
		}
		if models == nil {
			models = make(map[string]string)
		}
		models[provider] = m
	}
	return models, rows.Err()
}

// SaveUserConfig inserts or updates the record. The usage counters
// (tokens_used, platform_allowance) are written only on first insert;
// after that AddUsage is their sole mutation path, so a preference save
// cannot roll back spend recorded concurrently.
func (s *SQLiteStore) SaveUserConfig(ctx context.Context, cfg *model.UserConfig) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("%w: cfg", ErrNilParameter)
	}
	if err := validateString(cfg.UserID, "cfg.UserID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	consentAt := sql.NullTime{Time: cfg.ConsentAt, Valid: !cfg.ConsentAt.IsZero()}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_configs (
			user_id, preferred_provider, consent_granted, consent_at,
			tokens_used, budget_limit, platform_allowance,
			auto_detect, role_extraction
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferred_provider = excluded.preferred_provider,
			consent_granted = excluded.consent_granted,
			consent_at = excluded.consent_at,
			budget_limit = excluded.budget_limit,
			auto_detect = excluded.auto_detect,
			role_extraction = excluded.role_extraction,
			updated_at = CURRENT_TIMESTAMP
	`, cfg.UserID, cfg.PreferredProvider, cfg.ConsentGranted, consentAt,
		cfg.TokensUsed, cfg.BudgetLimit, cfg.PlatformAllowance,
		cfg.AutoDetect, cfg.RoleExtraction)
	if err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_models WHERE user_id = ?
	`, cfg.UserID); err != nil {
		return fmt.Errorf("failed to clear user models: %w", err)
	}
	for provider, m := range cfg.Models {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_models (user_id, provider, model)
			VALUES (?, ?, ?)
		`, cfg.UserID, provider, m); err != nil {
			return fmt.Errorf("failed to save user model: %w", err)
		}
	}

	return tx.Commit()
}

// AddUsage atomically adds consumed tokens to the user's period counter
// and, for platform-funded calls, draws down the allowance floored at
// zero. A single UPDATE so concurrent workers cannot lose increments.
func (s *SQLiteStore) AddUsage(ctx context.Context, userID string, tokens int64, fromAllowance bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE user_configs
		SET tokens_used = tokens_used + ?,
		    platform_allowance = CASE WHEN ?
		        THEN MAX(0, platform_allowance - ?)
		        ELSE platform_allowance END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, tokens, fromAllowance, tokens, userID)
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user config %s: %w", userID, common.ErrNotFound)
	}
	return nil
}
