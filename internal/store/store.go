package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is a string key/value store holding client-side state: the session
// token, the cached profile and session-scoped flags. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key in this store's scope.
	Clear(ctx context.Context) error
	Close() error
}

// Scopes partition a shared backend so persistent and session-scoped state
// never collide.
const (
	ScopeLocal   = "local"
	ScopeSession = "session"
)
