package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax and connection setup.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Store on a SQL table, one row per (scope, key).
// Several SQLStores may share a *sql.DB with different scopes.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	scope   string
	owns    bool
	logger  *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a
// Store for the given scope. Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath, scope string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// A :memory: database is per-connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	s := newSQLStore(db, DialectSQLite, scope, logger)
	s.owns = true
	return s, nil
}

// NewPostgresStore connects to PostgreSQL and returns a Store for the given scope.
func NewPostgresStore(ctx context.Context, dsn, scope string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := newSQLStore(db, DialectPostgres, scope, logger)
	s.owns = true
	return s, nil
}

func newSQLStore(db *sql.DB, dialect Dialect, scope string, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		scope:   scope,
		logger:  logger.With("component", "store", "dialect", string(dialect), "scope", scope),
	}
}

// WithScope returns a Store over the same database for another scope.
// Closing the returned store does not close the database.
func (s *SQLStore) WithScope(scope string) *SQLStore {
	return newSQLStore(s.db, s.dialect, scope, s.logger)
}

// Migrate creates all required tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// Close closes the underlying database connection if this store opened it.
func (s *SQLStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.logger.Debug("sql", "op", "select", "key", key)

	var value string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT value FROM client_state WHERE scope = ? AND name = ?`),
		s.scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	s.logger.Debug("sql", "op", "upsert", "key", key)

	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO client_state (scope, name, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		s.scope, key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	s.logger.Debug("sql", "op", "delete", "key", key)

	if _, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM client_state WHERE scope = ? AND name = ?`), s.scope, key,
	); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	s.logger.Debug("sql", "op", "clear")

	if _, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM client_state WHERE scope = ?`), s.scope,
	); err != nil {
		return fmt.Errorf("clear scope %s: %w", s.scope, err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
