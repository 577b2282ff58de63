package auth

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/me/gochef/internal/logging"
	"github.com/me/gochef/internal/store"
	"github.com/me/gochef/pkg/model"
)

// Persistent keys.
const (
	KeyToken = "auth_token"
	KeyUser  = "user_data"
)

// Session-scoped keys. They live for the process and are wiped by ClearAuth.
const (
	KeyAccountBanned    = "account_banned"
	KeyLogoutInProgress = "logout_in_progress"
	KeyFlash            = "flash_message"
)

// TokenStore holds the session token and cached profile. Storage errors never
// escape: reads degrade to "absent" and writes are logged.
type TokenStore struct {
	local   store.Store
	session store.Store
	logger  *slog.Logger

	onChange func()
}

// NewTokenStore creates a TokenStore over a persistent and a session-scoped store.
func NewTokenStore(local, session store.Store, logger *slog.Logger) *TokenStore {
	return &TokenStore{
		local:   local,
		session: session,
		logger:  logger.With("component", "tokens"),
	}
}

// OnChange registers fn to run after every token mutation.
func (s *TokenStore) OnChange(fn func()) {
	s.onChange = fn
}

func (s *TokenStore) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// SetToken stores token with any "Bearer " prefix removed. An empty token
// removes the stored one.
func (s *TokenStore) SetToken(ctx context.Context, token string) {
	token = model.StripBearer(token)
	if token == "" {
		s.RemoveToken(ctx)
		return
	}
	if err := s.local.Set(ctx, KeyToken, token); err != nil {
		s.logger.Warn("store token", "error", err)
	}
	s.logger.Debug("token stored", "token", logging.RedactToken(token))
	s.changed()
}

// Token returns the stored token and whether one is present.
func (s *TokenStore) Token(ctx context.Context) (string, bool) {
	tok, ok, err := s.local.Get(ctx, KeyToken)
	if err != nil {
		s.logger.Debug("read token", "error", err)
		return "", false
	}
	if !ok || tok == "" {
		return "", false
	}
	return tok, true
}

// RemoveToken deletes the stored token.
func (s *TokenStore) RemoveToken(ctx context.Context) {
	if err := s.local.Delete(ctx, KeyToken); err != nil {
		s.logger.Warn("remove token", "error", err)
	}
	s.changed()
}

// SetUser caches the profile. A nil user removes it.
func (s *TokenStore) SetUser(ctx context.Context, u *model.User) {
	if u == nil {
		if err := s.local.Delete(ctx, KeyUser); err != nil {
			s.logger.Warn("remove user", "error", err)
		}
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		s.logger.Warn("marshal user", "error", err)
		return
	}
	if err := s.local.Set(ctx, KeyUser, string(data)); err != nil {
		s.logger.Warn("store user", "error", err)
	}
}

// User returns the cached profile, or nil when absent or unreadable.
func (s *TokenStore) User(ctx context.Context) *model.User {
	raw, ok, err := s.local.Get(ctx, KeyUser)
	if err != nil {
		s.logger.Debug("read user", "error", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.logger.Debug("decode cached user", "error", err)
		return nil
	}
	return &u
}

// ClearAuth removes the token and profile and wipes session-scoped state.
func (s *TokenStore) ClearAuth(ctx context.Context) {
	for _, k := range []string{KeyToken, KeyUser} {
		if err := s.local.Delete(ctx, k); err != nil {
			s.logger.Warn("clear auth", "key", k, "error", err)
		}
	}
	if err := s.session.Clear(ctx); err != nil {
		s.logger.Warn("clear session storage", "error", err)
	}
	s.changed()
}

// SetSessionFlag stores a session-scoped value.
func (s *TokenStore) SetSessionFlag(ctx context.Context, key, value string) {
	if err := s.session.Set(ctx, key, value); err != nil {
		s.logger.Warn("set session flag", "key", key, "error", err)
	}
}

// SessionFlag reads a session-scoped value.
func (s *TokenStore) SessionFlag(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.session.Get(ctx, key)
	if err != nil {
		s.logger.Debug("read session flag", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

// ClearSessionFlag removes a session-scoped value.
func (s *TokenStore) ClearSessionFlag(ctx context.Context, key string) {
	if err := s.session.Delete(ctx, key); err != nil {
		s.logger.Warn("clear session flag", "key", key, "error", err)
	}
}
