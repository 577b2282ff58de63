package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/gochef/internal/config"
)

// Open returns the persistent Store selected by cfg, migrated and ready.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return NewMemoryStore(), nil

	case config.StorageRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, ScopeLocal, logger)

	case config.StoragePostgres:
		st, err := NewPostgresStore(ctx, cfg.PostgresDSN, ScopeLocal, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return st, nil

	case config.StorageSQLite, "":
		path := cfg.Path
		if path == "" {
			dir, err := config.Dir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "gochef.db")
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return nil, fmt.Errorf("create state directory: %w", err)
			}
			// The database holds the bearer token.
			if err := restrictFile(path); err != nil {
				return nil, err
			}
		}
		st, err := NewSQLiteStore(path, ScopeLocal, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// restrictFile creates path if needed and makes it readable by the owner only.
func restrictFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("create database file: %w", err)
	}
	f.Close()
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restrict database file: %w", err)
	}
	return nil
}
