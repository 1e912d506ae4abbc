package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Get returns the stored secret for a user and provider, or "" when
// none is stored. Absence is not an error; the gate reads an empty key
// as "no credential". Encryption at rest is the deployment's secret
// backend concern, the table holds what that backend handed over.
func (s *SQLiteStore) Get(ctx context.Context, userID, provider string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(userID, "userID"); err != nil {
		return "", err
	}
	if err := validateString(provider, "provider"); err != nil {
		return "", err
	}

	var secret string
	err := s.db.QueryRowContext(ctx, `
		SELECT secret
		FROM credentials
		WHERE user_id = ? AND provider = ?
	`, userID, provider).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential: %w", err)
	}
	return secret, nil
}

// Set stores or replaces the secret for a user and provider.
func (s *SQLiteStore) Set(ctx context.Context, userID, provider, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(provider, "provider"); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, provider, secret)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			secret = excluded.secret,
			updated_at = CURRENT_TIMESTAMP
	`, userID, provider, key)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}
