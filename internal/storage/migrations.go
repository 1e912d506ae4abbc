package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application
// expects. A database that cannot be migrated to this version is
// unusable.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "User configuration and provider credentials",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				// Credential presence flags and usage counters live in
				// different places on purpose: counters are columns here,
				// mutated only through AddUsage; presence flags are derived
				// from the credentials table at read time and never stored.
				`CREATE TABLE IF NOT EXISTS user_configs (
					user_id TEXT PRIMARY KEY,
					preferred_provider TEXT NOT NULL DEFAULT '',
					consent_granted BOOLEAN NOT NULL DEFAULT 0,
					consent_at DATETIME,
					tokens_used INTEGER NOT NULL DEFAULT 0,
					budget_limit INTEGER NOT NULL DEFAULT 0,
					platform_allowance INTEGER NOT NULL DEFAULT 0,
					auto_detect BOOLEAN NOT NULL DEFAULT 1,
					role_extraction BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS user_models (
					user_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					model TEXT NOT NULL,
					PRIMARY KEY (user_id, provider),
					FOREIGN KEY (user_id) REFERENCES user_configs(user_id)
				)`,

				`CREATE TABLE IF NOT EXISTS credentials (
					user_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					secret TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, provider)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Append-only prompt usage log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS prompt_usages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					result_id TEXT NOT NULL,
					prompt_name TEXT NOT NULL,
					version TEXT NOT NULL,
					hash TEXT NOT NULL,
					outcome TEXT NOT NULL DEFAULT 'unknown',
					feedback_score REAL,
					outcome_updated BOOLEAN NOT NULL DEFAULT 0,
					used_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_prompt_usages_result_id ON prompt_usages(result_id)`,
				`CREATE INDEX idx_prompt_usages_prompt_name ON prompt_usages(prompt_name)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
