package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/lockboxhq/lockbox/internal/config"
	"github.com/lockboxhq/lockbox/internal/gate"
	"github.com/lockboxhq/lockbox/internal/llm"
	"github.com/lockboxhq/lockbox/internal/prompt"
	"github.com/lockboxhq/lockbox/internal/storage"
)

// initStore opens the sqlite store with proper path expansion and runs
// migrations.
func initStore(ctx context.Context) (*storage.SQLiteStore, error) {
	dbPath := config.ExpandPath(viper.GetString("database.path"))
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initGate builds the budget gate over the store, with platform keys and
// trial allowance from config.
func initGate(store *storage.SQLiteStore) *gate.Gate {
	platformKeys := make(map[string]string)
	if key := viper.GetString("llm.openai_platform_key"); key != "" {
		platformKeys[llm.ProviderOpenAI] = key
	}
	if key := viper.GetString("llm.anthropic_platform_key"); key != "" {
		platformKeys[llm.ProviderAnthropic] = key
	}

	return gate.New(store, store, gate.Config{
		PlatformKeys:     platformKeys,
		DefaultProvider:  viper.GetString("llm.default_provider"),
		InitialAllowance: viper.GetInt64("llm.initial_allowance"),
	})
}

// initRegistry builds the prompt registry over the store and loads the
// embedded catalog.
func initRegistry(store *storage.SQLiteStore) (*prompt.Registry, error) {
	registry := prompt.NewRegistry(store)
	if err := prompt.LoadCatalog(registry); err != nil {
		return nil, fmt.Errorf("failed to load prompt catalog: %w", err)
	}
	return registry, nil
}
