package store

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/me/gochef/internal/config"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:", ScopeLocal, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := st.Get(ctx, "auth_token"); err != nil || ok {
		t.Fatalf("Get on empty store = ok:%v err:%v", ok, err)
	}

	if err := st.Set(ctx, "auth_token", "a.b.c"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := st.Get(ctx, "auth_token"); err != nil || !ok || v != "a.b.c" {
		t.Fatalf("Get = %q ok:%v err:%v, want a.b.c", v, ok, err)
	}

	// Overwrite.
	if err := st.Set(ctx, "auth_token", "d.e.f"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, _, _ := st.Get(ctx, "auth_token"); v != "d.e.f" {
		t.Fatalf("Get after overwrite = %q, want d.e.f", v)
	}

	if err := st.Set(ctx, "user_data", `{"username":"ann"}`); err != nil {
		t.Fatalf("Set user: %v", err)
	}
	if err := st.Delete(ctx, "auth_token"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := st.Get(ctx, "auth_token"); ok {
		t.Fatal("auth_token still present after Delete")
	}
	// Deleting a missing key is not an error.
	if err := st.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := st.Get(ctx, "user_data"); ok {
		t.Fatal("user_data still present after Clear")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Closed(t *testing.T) {
	st := NewMemoryStore()
	st.Close()
	if _, _, err := st.Get(context.Background(), "k"); err != ErrClosed {
		t.Fatalf("Get after Close err = %v, want ErrClosed", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, testSQLiteStore(t))
}

func TestSQLiteStore_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	local := testSQLiteStore(t)
	session := local.WithScope(ScopeSession)

	if err := local.Set(ctx, "k", "local"); err != nil {
		t.Fatal(err)
	}
	if err := session.Set(ctx, "k", "session"); err != nil {
		t.Fatal(err)
	}
	if err := session.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := local.Get(ctx, "k"); !ok || v != "local" {
		t.Fatalf("local value = %q ok:%v, want untouched by session Clear", v, ok)
	}
	// Closing a derived scope leaves the database usable.
	session.Close()
	if _, _, err := local.Get(ctx, "k"); err != nil {
		t.Fatalf("Get after derived Close: %v", err)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	st, err := Open(ctx, config.StorageConfig{Backend: config.StorageSQLite, Path: path}, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Set(ctx, "auth_token", "x.y.z"); err != nil {
		t.Fatal(err)
	}
	st.Close()

	st, err = Open(ctx, config.StorageConfig{Backend: config.StorageSQLite, Path: path}, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if v, ok, _ := st.Get(ctx, "auth_token"); !ok || v != "x.y.z" {
		t.Fatalf("Get after reopen = %q ok:%v", v, ok)
	}
}

func TestOpen_SQLiteFileIsOwnerOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	ctx := context.Background()
	dir := t.TempDir()
	fresh := filepath.Join(dir, "fresh.db")
	existing := filepath.Join(dir, "existing.db")
	if err := os.WriteFile(existing, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{fresh, existing} {
		st, err := Open(ctx, config.StorageConfig{Backend: config.StorageSQLite, Path: path}, testLogger())
		if err != nil {
			t.Fatalf("Open %s: %v", path, err)
		}
		if err := st.Set(ctx, "auth_token", "x.y.z"); err != nil {
			t.Fatal(err)
		}
		st.Close()

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("%s mode = %o, want 600", filepath.Base(path), perm)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	got := pg.rebind("SELECT a FROM t WHERE b = ? AND c = ?")
	if got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Errorf("rebind = %q", got)
	}
	lite := &SQLStore{dialect: DialectSQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.StorageConfig{Backend: "etcd"}, testLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("GOCHEF_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GOCHEF_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	st, err := NewPostgresStore(ctx, dsn, "test-"+t.Name(), testLogger())
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	exerciseStore(t, st)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("GOCHEF_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GOCHEF_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	exerciseStore(t, NewRedisStoreWithClient(client, "test-"+t.Name(), testLogger()))
}
