package nav

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/me/gochef/internal/auth"
	"github.com/me/gochef/internal/events"
	"github.com/me/gochef/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGuard() (*Guard, *auth.TokenStore) {
	ts := auth.NewTokenStore(store.NewMemoryStore(), store.NewMemoryStore(), testLogger())
	return NewGuard(ts, testLogger()), ts
}

func TestGuard_LifecycleViaEvents(t *testing.T) {
	ctx := context.Background()
	g, ts := newTestGuard()
	bus := events.NewBus(testLogger())
	g.Attach(ctx, bus)

	bus.Publish(events.Event{Name: events.PrepareForLogout})
	if !g.Active() {
		t.Fatal("guard not armed by prepare-for-logout")
	}
	if v, ok := ts.SessionFlag(ctx, auth.KeyLogoutInProgress); !ok || v != "true" {
		t.Fatal("session marker not set")
	}

	// A non-logout auth event leaves the guard armed.
	bus.Publish(events.Event{Name: events.AuthStateChanged, Action: events.ActionLogin})
	if !g.Active() {
		t.Fatal("guard disarmed by login event")
	}

	bus.Publish(events.Event{Name: events.AuthStateChanged, Action: events.ActionLogout})
	if g.Active() {
		t.Fatal("guard still armed after logout event")
	}
	if _, ok := ts.SessionFlag(ctx, auth.KeyLogoutInProgress); ok {
		t.Fatal("session marker not cleared")
	}
}

func TestGuard_CleanupResetsFlag(t *testing.T) {
	ctx := context.Background()
	g, ts := newTestGuard()
	bus := events.NewBus(testLogger())
	g.Attach(ctx, bus)

	g.Arm(ctx)
	bus.Publish(events.Event{Name: events.CleanupComponents})
	if g.Active() {
		t.Fatal("cleanup-components did not reset the guard")
	}
	if _, ok := ts.SessionFlag(ctx, auth.KeyLogoutInProgress); ok {
		t.Fatal("cleanup-components left the logout marker")
	}
}

func TestGuard_InitClearsStaleMarker(t *testing.T) {
	ctx := context.Background()
	g, ts := newTestGuard()
	ts.SetSessionFlag(ctx, auth.KeyLogoutInProgress, "true")
	g.Init(ctx)
	if _, ok := ts.SessionFlag(ctx, auth.KeyLogoutInProgress); ok {
		t.Fatal("stale marker survived Init")
	}
	if g.Active() {
		t.Fatal("Init must not arm the guard")
	}
}

func TestRouter_NavigateAndHistory(t *testing.T) {
	r := NewRouter("", nil, testLogger())
	var changes [][2]string
	r.OnChange(func(from, to string) { changes = append(changes, [2]string{from, to}) })

	r.Navigate("/recipes")
	r.Replace("/recipes/42")
	r.Navigate("/favorites")
	r.Navigate("/favorites") // same route: no change

	if r.Current() != "/favorites" {
		t.Fatalf("Current = %q", r.Current())
	}
	want := []string{"/", "/recipes/42", "/favorites"}
	got := r.History()
	if len(got) != len(want) {
		t.Fatalf("History = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("History = %v, want %v", got, want)
		}
	}
	if len(changes) != 3 {
		t.Fatalf("changes = %v", changes)
	}

	if !r.Back() || r.Current() != "/recipes/42" {
		t.Fatalf("Back -> %q", r.Current())
	}
}

func TestRouter_FollowLink(t *testing.T) {
	r := NewRouter("/", nil, testLogger())
	tests := []struct {
		href string
		ok   bool
		want string
	}{
		{"/recipes?page=2", true, "/recipes?page=2"},
		{"https://example.com/x", false, "/recipes?page=2"},
		{"#top", false, "/recipes?page=2"},
		{"mailto:chef@example.com", false, "/recipes?page=2"},
	}
	for _, tt := range tests {
		if got := r.FollowLink(tt.href); got != tt.ok {
			t.Errorf("FollowLink(%q) = %v, want %v", tt.href, got, tt.ok)
		}
		if r.Current() != tt.want {
			t.Errorf("after %q Current = %q, want %q", tt.href, r.Current(), tt.want)
		}
	}
}

func TestRouter_SuppressedWhileGuardArmed(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGuard()
	r := NewRouter("/recipes", g, testLogger())
	r.Navigate("/favorites")

	calls := 0
	r.OnChange(func(string, string) { calls++ })

	g.Arm(ctx)
	if r.Navigate("/profile") || r.Replace("/profile") || r.FollowLink("/profile") || r.Back() {
		t.Fatal("navigation allowed while guard armed")
	}
	if r.Current() != "/favorites" || calls != 0 {
		t.Fatalf("route changed while armed: %q, %d calls", r.Current(), calls)
	}

	g.Disarm(ctx)
	if !r.Navigate(RouteSignIn) {
		t.Fatal("navigation still suppressed after disarm")
	}
}
