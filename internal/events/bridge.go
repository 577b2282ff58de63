package events

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Conn is the subset of *nats.Conn the bridge uses.
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// DefaultBridged are the events mirrored between processes: a sign-out or
// role change in one client is seen by every other client of the same user.
var DefaultBridged = []Name{AuthStateChanged, PrepareForLogout, UserRoleChanged}

// UserFunc returns the ID of the user signed in locally, or "".
type UserFunc func() string

// Bridge mirrors selected bus events to NATS subjects
// "<prefix>.<user>.<name>" and republishes events received from other
// processes onto the local bus. Events are scoped to a user: nothing is sent
// while no user is known, and a remote event is accepted only when it names
// the user signed in here.
type Bridge struct {
	bus    *Bus
	conn   Conn
	prefix string
	user   UserFunc
	names  map[Name]bool
	origin string
	logger *slog.Logger

	mu    sync.Mutex
	sub   *nats.Subscription
	unsub func()
}

// NewBridge creates a Bridge. An empty names list bridges DefaultBridged.
func NewBridge(bus *Bus, conn Conn, prefix string, user UserFunc, names []Name, logger *slog.Logger) *Bridge {
	if len(names) == 0 {
		names = DefaultBridged
	}
	set := make(map[Name]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return &Bridge{
		bus:    bus,
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		user:   user,
		names:  set,
		origin: uuid.New().String(),
		logger: logger.With("component", "events-bridge"),
	}
}

// Origin returns this process's bridge identity.
func (b *Bridge) Origin() string {
	return b.origin
}

// Start subscribes to remote events and begins forwarding local ones.
func (b *Bridge) Start() error {
	sub, err := b.conn.Subscribe(b.prefix+".>", b.receive)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.sub = sub
	b.unsub = b.bus.SubscribeAll(b.forward)
	b.mu.Unlock()
	b.logger.Info("events bridge started", "prefix", b.prefix, "origin", b.origin)
	return nil
}

// Close stops forwarding and unsubscribes from NATS.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	if b.sub != nil {
		err := b.sub.Unsubscribe()
		b.sub = nil
		return err
	}
	return nil
}

func (b *Bridge) currentUser() string {
	if b.user == nil {
		return ""
	}
	return b.user()
}

// subjectToken makes id safe for use as one NATS subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}

func (b *Bridge) forward(ev Event) {
	if !b.names[ev.Name] || ev.Origin != "" {
		return
	}
	if ev.UserID == "" {
		ev.UserID = b.currentUser()
	}
	if ev.UserID == "" {
		b.logger.Debug("not bridging event without a user", "event", ev.Name)
		return
	}
	ev.Origin = b.origin
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("marshal event", "event", ev.Name, "error", err)
		return
	}
	subj := b.prefix + "." + subjectToken(ev.UserID) + "." + string(ev.Name)
	if err := b.conn.Publish(subj, data); err != nil {
		b.logger.Warn("publish event", "event", ev.Name, "error", err)
	}
}

func (b *Bridge) receive(msg *nats.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		b.logger.Warn("decode remote event", "subject", msg.Subject, "error", err)
		return
	}
	if ev.Origin == "" || ev.Origin == b.origin || !b.names[ev.Name] {
		return
	}
	if ev.UserID == "" || ev.UserID != b.currentUser() {
		b.logger.Debug("ignoring remote event for another user", "event", ev.Name, "origin", ev.Origin)
		return
	}
	b.logger.Debug("remote event", "event", ev.Name, "origin", ev.Origin)
	b.bus.Publish(ev)
}
