package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/me/gochef/pkg/model"
)

const (
	// TokenCacheTTL is how long a validation result is trusted for an unchanged token.
	TokenCacheTTL = 30 * time.Second
	// ExpiryBuffer treats tokens this close to exp as already expired.
	ExpiryBuffer = 30 * time.Second
)

type cachedResult struct {
	token string
	valid bool
	at    time.Time
}

// Validator decides locally whether the stored token is usable. Results are
// cached per token for TokenCacheTTL; any token mutation drops the cache.
type Validator struct {
	tokens *TokenStore
	logger *slog.Logger

	mu    sync.Mutex
	cache *cachedResult

	ttl    time.Duration
	buffer time.Duration
	now    func() time.Time
	parse  func(string) (*Claims, error)
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithParser replaces ParseClaims, for tests that count decodes.
func WithParser(parse func(string) (*Claims, error)) ValidatorOption {
	return func(v *Validator) { v.parse = parse }
}

// NewValidator creates a Validator bound to tokens.
func NewValidator(tokens *TokenStore, logger *slog.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		tokens: tokens,
		logger: logger.With("component", "validator"),
		ttl:    TokenCacheTTL,
		buffer: ExpiryBuffer,
		now:    time.Now,
		parse:  ParseClaims,
	}
	for _, opt := range opts {
		opt(v)
	}
	tokens.OnChange(v.Invalidate)
	return v
}

// IsValid reports whether a token is stored, not within ExpiryBuffer of its
// exp claim, and not marked banned. Tokens without exp are invalid.
func (v *Validator) IsValid(ctx context.Context) bool {
	tok, ok := v.tokens.Token(ctx)
	if !ok {
		v.Invalidate()
		return false
	}

	now := v.now()
	v.mu.Lock()
	if c := v.cache; c != nil && c.token == tok && now.Sub(c.at) < v.ttl {
		v.mu.Unlock()
		return c.valid
	}
	v.mu.Unlock()

	valid := v.evaluate(tok, now)

	v.mu.Lock()
	v.cache = &cachedResult{token: tok, valid: valid, at: now}
	v.mu.Unlock()
	return valid
}

func (v *Validator) evaluate(tok string, now time.Time) bool {
	claims, err := v.parse(tok)
	if err != nil {
		v.logger.Debug("token decode failed", "error", err)
		return false
	}
	exp := claims.Expiry()
	if exp.IsZero() {
		v.logger.Debug("token has no exp claim")
		return false
	}
	if !exp.After(now.Add(v.buffer)) {
		v.logger.Debug("token expired or expiring", "exp", exp)
		return false
	}
	if claims.Banned {
		v.logger.Debug("token carries banned claim")
		return false
	}
	return true
}

// Invalidate drops the cached result so the next IsValid decodes again.
func (v *Validator) Invalidate() {
	v.mu.Lock()
	v.cache = nil
	v.mu.Unlock()
}

// Claims decodes the stored token's payload.
func (v *Validator) Claims(ctx context.Context) (*Claims, bool) {
	tok, ok := v.tokens.Token(ctx)
	if !ok {
		return nil, false
	}
	c, err := v.parse(tok)
	if err != nil {
		return nil, false
	}
	return c, true
}

// IsBanned reports whether the cached profile or the token marks the account banned.
func (v *Validator) IsBanned(ctx context.Context) bool {
	if u := v.tokens.User(ctx); u != nil && u.Banned {
		return true
	}
	c, ok := v.Claims(ctx)
	return ok && c.Banned
}

// Role returns the cached profile's role, falling back to the token's role claim.
func (v *Validator) Role(ctx context.Context) string {
	if u := v.tokens.User(ctx); u != nil && u.Role != "" {
		return string(u.Role)
	}
	if c, ok := v.Claims(ctx); ok {
		return c.Role
	}
	return ""
}

// IsAdmin reports whether the current identity holds an administrative role.
func (v *Validator) IsAdmin(ctx context.Context) bool {
	return model.IsAdminRole(v.Role(ctx))
}
