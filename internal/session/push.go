package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Push message types sent by the server.
const (
	PushBanned      = "banned"
	PushRevoked     = "revoked"
	PushRoleChanged = "role-changed"
)

// PushMessage is one server-pushed session notice.
type PushMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
}

// TokenSource yields the bearer token used to authenticate the push socket.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// PushListener keeps a websocket open to the server's push endpoint while a
// token is present and hands every message to a handler.
type PushListener struct {
	url        string
	tokens     TokenSource
	dialer     *websocket.Dialer
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	idle       time.Duration
}

// PushOption configures a PushListener.
type PushOption func(*PushListener)

// WithBackoff sets the reconnect backoff bounds.
func WithBackoff(min, max time.Duration) PushOption {
	return func(p *PushListener) {
		p.minBackoff = min
		p.maxBackoff = max
	}
}

// WithIdlePoll sets how often the listener checks for a token while signed out.
func WithIdlePoll(d time.Duration) PushOption {
	return func(p *PushListener) { p.idle = d }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) PushOption {
	return func(p *PushListener) { p.dialer = d }
}

// NewPushListener creates a listener for the websocket at url.
func NewPushListener(url string, tokens TokenSource, logger *slog.Logger, opts ...PushOption) *PushListener {
	p := &PushListener{
		url:        url,
		tokens:     tokens,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger.With("component", "push"),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		idle:       time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run connects and reads until ctx is done, reconnecting with capped
// exponential backoff. handle runs on the read goroutine.
func (p *PushListener) Run(ctx context.Context, handle func(context.Context, PushMessage)) {
	backoff := p.minBackoff
	for {
		token, ok := p.tokens.Token(ctx)
		if !ok {
			if !sleep(ctx, p.idle) {
				return
			}
			continue
		}

		connected, err := p.session(ctx, token, handle)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = p.minBackoff
		}
		p.logger.Debug("push connection closed", "error", err, "retry_in", backoff)
		if !sleep(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}
}

// session dials once and reads until the connection fails. It reports
// whether the handshake succeeded.
func (p *PushListener) session(ctx context.Context, token string, handle func(context.Context, PushMessage)) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := p.dialer.DialContext(ctx, p.url, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	p.logger.Info("push connected", "url", p.url)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg PushMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return true, err
		}
		p.logger.Debug("push message", "type", msg.Type)
		handle(ctx, msg)
		if _, ok := p.tokens.Token(ctx); !ok {
			return true, nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
