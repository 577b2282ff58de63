package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/me/gochef/internal/store"
	"github.com/me/gochef/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signToken builds an HS256 token; the client never checks the signature.
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func newTestStore() (*TokenStore, *store.MemoryStore, *store.MemoryStore) {
	local, session := store.NewMemoryStore(), store.NewMemoryStore()
	return NewTokenStore(local, session, testLogger()), local, session
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signToken(t, jwt.MapClaims{
		"sub": "42", "exp": exp.Unix(), "role": "ADMIN", "username": "ann", "banned": true, "userId": "u-42",
	})
	c, err := ParseClaims(tok)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if c.Subject != "42" || c.Role != "ADMIN" || c.Username != "ann" || !c.Banned || c.UserID != "u-42" {
		t.Errorf("claims = %+v", c)
	}
	if !c.Expiry().Equal(exp) {
		t.Errorf("Expiry = %v, want %v", c.Expiry(), exp)
	}
}

func TestParseClaims_Malformed(t *testing.T) {
	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	tests := []string{
		"",
		"abc",
		"a.b",
		"a.b.c.d",
		"h.!!!.s",
		"h." + notJSON + ".s",
	}
	for _, tok := range tests {
		if _, err := ParseClaims(tok); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("ParseClaims(%q) err = %v, want ErrMalformedToken", tok, err)
		}
	}
}

func TestTokenStore_SetTokenStripsBearer(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTestStore()

	ts.SetToken(ctx, "Bearer abc.def.ghi")
	a, _ := ts.Token(ctx)
	ts.SetToken(ctx, "abc.def.ghi")
	b, _ := ts.Token(ctx)
	if a != "abc.def.ghi" || a != b {
		t.Fatalf("stored %q and %q, want both abc.def.ghi", a, b)
	}
}

func TestTokenStore_EmptyTokenRemoves(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTestStore()
	ts.SetToken(ctx, "a.b.c")
	ts.SetToken(ctx, "Bearer ")
	if _, ok := ts.Token(ctx); ok {
		t.Fatal("empty token should remove the stored token")
	}
}

func TestTokenStore_ReadErrorIsAbsent(t *testing.T) {
	ctx := context.Background()
	ts, local, _ := newTestStore()
	ts.SetToken(ctx, "a.b.c")
	local.Close()
	if tok, ok := ts.Token(ctx); ok || tok != "" {
		t.Fatalf("Token() = %q, %v after storage failure, want absent", tok, ok)
	}
	// Writes on a broken store must not panic.
	ts.SetToken(ctx, "d.e.f")
	ts.ClearAuth(ctx)
}

func TestTokenStore_User(t *testing.T) {
	ctx := context.Background()
	ts, local, _ := newTestStore()

	if ts.User(ctx) != nil {
		t.Fatal("expected nil user on empty store")
	}
	ts.SetUser(ctx, &model.User{ID: "1", Username: "ann", Role: model.RoleAdmin})
	u := ts.User(ctx)
	if u == nil || u.Username != "ann" || !u.IsAdmin() {
		t.Fatalf("User() = %+v", u)
	}

	local.Set(ctx, KeyUser, "{not json")
	if ts.User(ctx) != nil {
		t.Fatal("malformed cached profile should read as nil")
	}
}

func TestTokenStore_ClearAuth(t *testing.T) {
	ctx := context.Background()
	ts, local, session := newTestStore()
	ts.SetToken(ctx, "a.b.c")
	ts.SetUser(ctx, &model.User{Username: "ann"})
	local.Set(ctx, "theme", "dark")
	ts.SetSessionFlag(ctx, KeyAccountBanned, "true")

	ts.ClearAuth(ctx)

	if _, ok := ts.Token(ctx); ok {
		t.Error("token survived ClearAuth")
	}
	if ts.User(ctx) != nil {
		t.Error("user survived ClearAuth")
	}
	if session.Len() != 0 {
		t.Errorf("session storage has %d keys after ClearAuth", session.Len())
	}
	if v, ok, _ := local.Get(ctx, "theme"); !ok || v != "dark" {
		t.Error("unrelated persistent keys must survive ClearAuth")
	}
}

func TestValidator_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   bool
	}{
		{"past exp", jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}, false},
		{"inside buffer", jwt.MapClaims{"exp": now.Add(20 * time.Second).Unix()}, false},
		{"exactly buffer", jwt.MapClaims{"exp": now.Add(ExpiryBuffer).Unix()}, false},
		{"beyond buffer", jwt.MapClaims{"exp": now.Add(31 * time.Second).Unix()}, true},
		{"banned", jwt.MapClaims{"exp": now.Add(time.Hour).Unix(), "banned": true}, false},
		{"no exp", jwt.MapClaims{"sub": "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, _ := newTestStore()
			v := NewValidator(ts, testLogger(), WithClock(func() time.Time { return now }))
			ts.SetToken(ctx, signToken(t, tt.claims))
			if got := v.IsValid(ctx); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidator_NoTokenInvalid(t *testing.T) {
	ts, _, _ := newTestStore()
	v := NewValidator(ts, testLogger())
	if v.IsValid(context.Background()) {
		t.Fatal("IsValid with no token should be false")
	}
	ts.SetToken(context.Background(), "garbage")
	if v.IsValid(context.Background()) {
		t.Fatal("IsValid with malformed token should be false")
	}
}

func TestValidator_CachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var decodes atomic.Int32
	countingParse := func(tok string) (*Claims, error) {
		decodes.Add(1)
		return ParseClaims(tok)
	}

	ts, _, _ := newTestStore()
	v := NewValidator(ts, testLogger(),
		WithClock(func() time.Time { return now }),
		WithParser(countingParse),
	)
	ts.SetToken(ctx, signToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}))

	if !v.IsValid(ctx) {
		t.Fatal("first check should be valid")
	}
	now = now.Add(29 * time.Second)
	if !v.IsValid(ctx) {
		t.Fatal("second check should be valid")
	}
	if n := decodes.Load(); n != 1 {
		t.Fatalf("decodes within TTL = %d, want 1", n)
	}

	now = now.Add(2 * time.Second)
	v.IsValid(ctx)
	if n := decodes.Load(); n != 2 {
		t.Fatalf("decodes after TTL = %d, want 2", n)
	}
}

func TestValidator_TokenChangeDropsCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ts, _, _ := newTestStore()
	v := NewValidator(ts, testLogger(), WithClock(func() time.Time { return now }))

	ts.SetToken(ctx, signToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}))
	if !v.IsValid(ctx) {
		t.Fatal("expected valid")
	}
	ts.SetToken(ctx, signToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()}))
	if v.IsValid(ctx) {
		t.Fatal("new expired token must not reuse cached valid result")
	}
	ts.RemoveToken(ctx)
	if v.IsValid(ctx) {
		t.Fatal("removed token must be invalid")
	}
}

func TestValidator_IsBannedAndRole(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTestStore()
	v := NewValidator(ts, testLogger())

	ts.SetToken(ctx, signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix(), "role": "admin"}))
	if v.IsBanned(ctx) {
		t.Fatal("not banned yet")
	}
	if !v.IsAdmin(ctx) {
		t.Fatal("role claim admin should make IsAdmin true")
	}

	ts.SetUser(ctx, &model.User{Username: "ann", Role: model.RoleUser, Banned: true})
	if !v.IsBanned(ctx) {
		t.Fatal("banned profile should make IsBanned true")
	}
	if v.Role(ctx) != "user" {
		t.Fatalf("Role() = %q, want profile role to win", v.Role(ctx))
	}
}
