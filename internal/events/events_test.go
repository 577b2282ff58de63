package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_PublishMatchesName(t *testing.T) {
	bus := NewBus(testLogger())
	var got []Name
	bus.Subscribe(AuthStateChanged, func(ev Event) { got = append(got, ev.Name) })
	var all int
	bus.SubscribeAll(func(Event) { all++ })

	bus.Publish(Event{Name: AuthStateChanged, Action: ActionLogout})
	bus.Publish(Event{Name: NetworkError})

	if len(got) != 1 || got[0] != AuthStateChanged {
		t.Fatalf("named subscriber got %v", got)
	}
	if all != 2 {
		t.Fatalf("wildcard subscriber got %d events, want 2", all)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	n := 0
	unsub := bus.Subscribe(ServerError, func(Event) { n++ })
	bus.Publish(Event{Name: ServerError})
	unsub()
	unsub() // idempotent
	bus.Publish(Event{Name: ServerError})
	if n != 1 {
		t.Fatalf("handler ran %d times, want 1", n)
	}
}

func TestBus_PanicIsContained(t *testing.T) {
	bus := NewBus(testLogger())
	bus.Subscribe(ToastMessage, func(Event) { panic("boom") })
	delivered := false
	bus.Subscribe(ToastMessage, func(Event) { delivered = true })

	bus.Publish(Event{Name: ToastMessage, Message: "hi"})
	if !delivered {
		t.Fatal("handler after a panicking one did not run")
	}
}

func TestBus_HandlerMayPublish(t *testing.T) {
	bus := NewBus(testLogger())
	var order []Name
	bus.Subscribe(PrepareForLogout, func(Event) {
		order = append(order, PrepareForLogout)
		bus.Publish(Event{Name: CleanupComponents})
	})
	bus.Subscribe(CleanupComponents, func(Event) { order = append(order, CleanupComponents) })

	bus.Publish(Event{Name: PrepareForLogout})
	if len(order) != 2 || order[1] != CleanupComponents {
		t.Fatalf("order = %v", order)
	}
}

func TestBus_StampsTime(t *testing.T) {
	bus := NewBus(testLogger())
	var ev Event
	bus.SubscribeAll(func(e Event) { ev = e })
	bus.Publish(Event{Name: NetworkError})
	if ev.At.IsZero() {
		t.Fatal("At not stamped")
	}
}

// fakeConn is an in-memory NATS stand-in shared by several bridges.
type fakeConn struct {
	mu       sync.Mutex
	handlers []nats.MsgHandler
	sent     []string
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.mu.Lock()
	c.sent = append(c.sent, subj)
	hs := append([]nats.MsgHandler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range hs {
		h(&nats.Msg{Subject: subj, Data: data})
	}
	return nil
}

func (c *fakeConn) Subscribe(_ string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	c.handlers = append(c.handlers, cb)
	c.mu.Unlock()
	return nil, nil
}

func userIs(id string) UserFunc {
	return func() string { return id }
}

func TestBridge_MirrorsBetweenProcesses(t *testing.T) {
	conn := &fakeConn{}
	busA, busB := NewBus(testLogger()), NewBus(testLogger())
	bridgeA := NewBridge(busA, conn, "gochef.events", userIs("u1"), nil, testLogger())
	bridgeB := NewBridge(busB, conn, "gochef.events.", userIs("u1"), nil, testLogger())
	if err := bridgeA.Start(); err != nil {
		t.Fatal(err)
	}
	if err := bridgeB.Start(); err != nil {
		t.Fatal(err)
	}
	defer bridgeA.Close()
	defer bridgeB.Close()

	var gotA, gotB []Event
	busA.Subscribe(AuthStateChanged, func(ev Event) { gotA = append(gotA, ev) })
	busB.Subscribe(AuthStateChanged, func(ev Event) { gotB = append(gotB, ev) })

	busA.Publish(Event{Name: AuthStateChanged, Action: ActionLogout, Reason: ReasonRevoked})

	if len(gotA) != 1 {
		t.Fatalf("origin bus saw %d events, want 1 (no echo)", len(gotA))
	}
	if len(gotB) != 1 || gotB[0].Reason != ReasonRevoked || gotB[0].Origin != bridgeA.Origin() || gotB[0].UserID != "u1" {
		t.Fatalf("remote bus got %+v", gotB)
	}
	// B must not re-forward the remote event.
	if len(conn.sent) != 1 || conn.sent[0] != "gochef.events.u1.auth-state-changed" {
		t.Fatalf("sent subjects = %v", conn.sent)
	}
}

func TestBridge_IgnoresUnbridgedAndGarbage(t *testing.T) {
	conn := &fakeConn{}
	bus := NewBus(testLogger())
	br := NewBridge(bus, conn, "p", userIs("u1"), []Name{AuthStateChanged}, testLogger())
	br.Start()
	defer br.Close()

	bus.Publish(Event{Name: NetworkError})
	if len(conn.sent) != 0 {
		t.Fatalf("unbridged event forwarded: %v", conn.sent)
	}

	n := 0
	bus.SubscribeAll(func(Event) { n++ })
	br.receive(&nats.Msg{Subject: "p.x", Data: []byte("{oops")})
	data, _ := json.Marshal(Event{Name: NetworkError, Origin: "other", UserID: "u1"})
	br.receive(&nats.Msg{Subject: "p.network-error", Data: data})
	if n != 0 {
		t.Fatalf("bus received %d events from garbage/unbridged input", n)
	}
}

func TestBridge_ScopesEventsToUser(t *testing.T) {
	conn := &fakeConn{}
	buses := map[string]*Bus{}
	got := map[string][]Event{}
	var bridges []*Bridge
	for _, c := range []struct{ name, user string }{
		{"ann", "u1"},
		{"ann-laptop", "u1"},
		{"bob", "u2"},
		{"anonymous", ""},
	} {
		bus := NewBus(testLogger())
		br := NewBridge(bus, conn, "gochef.events", userIs(c.user), nil, testLogger())
		if err := br.Start(); err != nil {
			t.Fatal(err)
		}
		bridges = append(bridges, br)
		name := c.name
		bus.Subscribe(AuthStateChanged, func(ev Event) { got[name] = append(got[name], ev) })
		buses[name] = bus
	}
	defer func() {
		for _, br := range bridges {
			br.Close()
		}
	}()

	buses["ann"].Publish(Event{Name: AuthStateChanged, Action: ActionLogout, Reason: ReasonRevoked})

	if n := len(got["ann-laptop"]); n != 1 {
		t.Fatalf("same user's other client got %d events, want 1", n)
	}
	if n := len(got["bob"]); n != 0 {
		t.Fatalf("another user's client got %d events: %+v", n, got["bob"])
	}
	if n := len(got["anonymous"]); n != 0 {
		t.Fatalf("signed-out client got %d events", n)
	}

	// Nothing leaves a client that has no user, even when it publishes.
	before := len(conn.sent)
	buses["anonymous"].Publish(Event{Name: AuthStateChanged, Action: ActionLogout})
	if len(conn.sent) != before {
		t.Fatalf("anonymous client forwarded %v", conn.sent[before:])
	}

	// An explicit user on the event wins over the current one.
	buses["bob"].Publish(Event{Name: AuthStateChanged, Action: ActionLogout, UserID: "u1"})
	if len(got["ann"]) != 2 || len(got["ann-laptop"]) != 2 {
		t.Fatalf("stamped event not delivered to its user: ann=%d laptop=%d", len(got["ann"]), len(got["ann-laptop"]))
	}
}

func TestSubjectToken(t *testing.T) {
	tests := []struct{ in, want string }{
		{"42", "42"},
		{"a.b", "a_b"},
		{"x*y>z", "x_y_z"},
		{"with space", "with_space"},
	}
	for _, tt := range tests {
		if got := subjectToken(tt.in); got != tt.want {
			t.Errorf("subjectToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
