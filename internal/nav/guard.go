// Package nav holds the headless router and the guard that freezes
// navigation while a sign-out tears the session down.
package nav

import (
	"context"
	"log/slog"
	"sync"

	"github.com/me/gochef/internal/auth"
	"github.com/me/gochef/internal/events"
)

// SessionFlags is the session-scoped storage the guard marks while armed.
type SessionFlags interface {
	SetSessionFlag(ctx context.Context, key, value string)
	SessionFlag(ctx context.Context, key string) (string, bool)
	ClearSessionFlag(ctx context.Context, key string)
}

// Guard is armed between prepare-for-logout and the final logout event.
// While armed, Router suppresses every navigation so nothing renders against
// half-cleared state.
type Guard struct {
	flags  SessionFlags
	logger *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewGuard creates a disarmed Guard.
func NewGuard(flags SessionFlags, logger *slog.Logger) *Guard {
	return &Guard{flags: flags, logger: logger.With("component", "guard")}
}

// Init clears a logout marker left behind by a previous process that exited
// mid sign-out.
func (g *Guard) Init(ctx context.Context) {
	if _, ok := g.flags.SessionFlag(ctx, auth.KeyLogoutInProgress); ok {
		g.logger.Info("clearing stale logout marker")
		g.flags.ClearSessionFlag(ctx, auth.KeyLogoutInProgress)
	}
}

// Arm activates the guard and sets the session marker.
func (g *Guard) Arm(ctx context.Context) {
	g.mu.Lock()
	g.active = true
	g.mu.Unlock()
	g.flags.SetSessionFlag(ctx, auth.KeyLogoutInProgress, "true")
	g.logger.Debug("guard armed")
}

// Disarm deactivates the guard and removes the session marker.
func (g *Guard) Disarm(ctx context.Context) {
	g.mu.Lock()
	g.active = false
	g.mu.Unlock()
	g.flags.ClearSessionFlag(ctx, auth.KeyLogoutInProgress)
	g.logger.Debug("guard disarmed")
}

// Active reports whether navigation is currently suppressed.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Attach wires the guard to the bus and returns a detach func.
func (g *Guard) Attach(ctx context.Context, bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(events.PrepareForLogout, func(events.Event) { g.Arm(ctx) }),
		bus.Subscribe(events.AuthStateChanged, func(ev events.Event) {
			if ev.Action == events.ActionLogout {
				g.Disarm(ctx)
			}
		}),
		bus.Subscribe(events.CleanupComponents, func(events.Event) { g.Disarm(ctx) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
