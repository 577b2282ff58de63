// Package events is the in-process publish/subscribe bus that connects the
// response interceptors, the session controller, the navigation guard and the
// notification channel.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Name identifies an event kind.
type Name string

const (
	AuthStateChanged  Name = "auth-state-changed"
	PrepareForLogout  Name = "prepare-for-logout"
	CleanupComponents Name = "cleanup-components"
	NetworkError      Name = "network-error"
	ServerError       Name = "server-error"
	ToastMessage      Name = "toast-message"
	UserRoleChanged   Name = "user-role-changed"
)

// Actions carried by AuthStateChanged.
const (
	ActionLogin       = "login"
	ActionLogout      = "logout"
	ActionRoleChanged = "roleChanged"
)

// Reasons carried by a forced logout.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonForbidden    = "forbidden"
	ReasonExpired      = "expired"
	ReasonBanned       = "banned"
	ReasonRevoked      = "revoked"
)

// Event is a bus message. Only the fields relevant to Name are set.
type Event struct {
	Name         Name      `json:"name"`
	Action       string    `json:"action,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Source       string    `json:"source,omitempty"`
	Message      string    `json:"message,omitempty"`
	Level        string    `json:"level,omitempty"`
	PreviousRole string    `json:"previousRole,omitempty"`
	NewRole      string    `json:"newRole,omitempty"`
	Status       int       `json:"status,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	At           time.Time `json:"at"`

	// Origin is set on events re-published from another process.
	Origin string `json:"origin,omitempty"`
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id   uint64
	name Name // empty matches every event
	fn   Handler
}

// Bus dispatches events synchronously to subscribers. Handlers run on the
// publisher's goroutine, outside the bus lock, so a handler may publish or
// subscribe. A panicking handler is logged and skipped.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger.With("component", "events")}
}

// Subscribe registers fn for events named name and returns an unsubscribe func.
func (b *Bus) Subscribe(name Name, fn Handler) func() {
	return b.add(name, fn)
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Handler) func() {
	return b.add("", fn)
}

func (b *Bus) add(name Name, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every matching subscriber in subscription order.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == "" || s.name == ev.Name {
			targets = append(targets, s.fn)
		}
	}
	b.mu.RUnlock()

	b.logger.Debug("publish", "event", ev.Name, "action", ev.Action, "reason", ev.Reason, "subscribers", len(targets))
	for _, fn := range targets {
		b.deliver(fn, ev)
	}
}

func (b *Bus) deliver(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", ev.Name, "panic", fmt.Sprint(r))
		}
	}()
	fn(ev)
}
