package toast

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/gochef/internal/events"
	"github.com/me/gochef/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeClock drives both time.Now and AfterFunc.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// last returns the most recently scheduled timer.
func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

func newTestChannel() (*Channel, *fakeClock) {
	clk := newFakeClock()
	ch := New(DefaultConfig(), testLogger(), WithClock(clk.Now), WithAfterFunc(clk.AfterFunc))
	return ch, clk
}

func TestShow_DuplicateWithinThrottle(t *testing.T) {
	ch, clk := newTestChannel()

	if _, ok := ch.Show("Saved", model.ToastSuccess, 0); !ok {
		t.Fatal("first Show suppressed")
	}
	clk.Advance(500 * time.Millisecond)
	if _, ok := ch.Show("Saved", model.ToastSuccess, 0); ok {
		t.Fatal("duplicate within 2s was not suppressed")
	}
	if n := len(ch.Visible()); n != 1 {
		t.Fatalf("visible = %d, want exactly 1", n)
	}
}

func TestShow_SameMessageDifferentType(t *testing.T) {
	ch, _ := newTestChannel()
	ch.Show("Saved", model.ToastSuccess, 0)
	if _, ok := ch.Show("Saved", model.ToastInfo, 0); !ok {
		t.Fatal("different type should not be deduplicated")
	}
}

func TestShow_AfterThrottleAndDismiss(t *testing.T) {
	ch, clk := newTestChannel()
	id, _ := ch.Show("Saved", model.ToastSuccess, 0)

	// Visible duplicate is suppressed even after the throttle window.
	clk.Advance(3 * time.Second)
	if _, ok := ch.Show("Saved", model.ToastSuccess, 0); ok {
		t.Fatal("visible duplicate should be suppressed")
	}

	ch.Dismiss(id)
	if _, ok := ch.Show("Saved", model.ToastSuccess, 0); !ok {
		t.Fatal("Show after dismiss and throttle window should succeed")
	}
}

func TestShow_EmptyMessage(t *testing.T) {
	ch, _ := newTestChannel()
	if _, ok := ch.Show("", model.ToastError, 0); ok {
		t.Fatal("empty message should be ignored")
	}
}

func TestShow_DefaultDurations(t *testing.T) {
	ch, clk := newTestChannel()
	ch.Show("ok", model.ToastSuccess, 0)
	if d := clk.last().d; d != 5*time.Second {
		t.Errorf("success duration = %s, want 5s", d)
	}
	ch.Show("bad", model.ToastError, 0)
	if d := clk.last().d; d != 8*time.Second {
		t.Errorf("error duration = %s, want 8s", d)
	}
	ch.Show("banned", model.ToastError, 15*time.Second)
	if d := clk.last().d; d != 15*time.Second {
		t.Errorf("explicit duration = %s, want 15s", d)
	}
}

func TestShow_IDAndOrder(t *testing.T) {
	ch, _ := newTestChannel()
	a, _ := ch.Show("first", model.ToastInfo, 0)
	b, _ := ch.Show("second", model.ToastInfo, 0)
	if !strings.HasPrefix(a, "toast-") || a == b {
		t.Fatalf("ids = %q, %q", a, b)
	}
	v := ch.Visible()
	if v[0].ID != b || v[1].ID != a {
		t.Fatalf("Visible not newest first: %+v", v)
	}
}

func TestTimer_AutoDismiss(t *testing.T) {
	ch, clk := newTestChannel()
	ch.Show("bye", model.ToastInfo, 0)
	clk.last().f()
	if len(ch.Visible()) != 0 {
		t.Fatal("toast not dismissed when timer fired")
	}
}

func TestHoverLeave_PreservesRemaining(t *testing.T) {
	ch, clk := newTestChannel()
	id, _ := ch.Show("hover me", model.ToastInfo, 5*time.Second)
	first := clk.last()

	clk.Advance(2 * time.Second)
	ch.Hover(id)
	if !first.stopped {
		t.Fatal("Hover did not stop the timer")
	}

	clk.Advance(time.Minute) // paused time does not count
	ch.Leave(id)
	resumed := clk.last()
	if resumed == first {
		t.Fatal("Leave did not schedule a new timer")
	}
	if resumed.d != 3*time.Second {
		t.Fatalf("remaining = %s, want 3s", resumed.d)
	}
	if len(ch.Visible()) != 1 {
		t.Fatal("toast disappeared while paused")
	}
}

func TestSweep_ForgetsOldKeys(t *testing.T) {
	ch, clk := newTestChannel()
	ch.Show("a", model.ToastInfo, 0)
	clk.Advance(61 * time.Second)
	ch.Show("b", model.ToastInfo, 0)

	ch.mu.Lock()
	_, hasA := ch.recent[key(model.ToastInfo, "a")]
	ch.mu.Unlock()
	if hasA {
		t.Fatal("stale throttle entry not swept")
	}
}

func TestSubscribe(t *testing.T) {
	ch, _ := newTestChannel()
	var calls [][]model.Toast
	unsub := ch.Subscribe(func(ts []model.Toast) { calls = append(calls, ts) })
	id, _ := ch.Show("x", model.ToastInfo, 0)
	ch.Dismiss(id)
	unsub()
	ch.Show("y", model.ToastInfo, 0)
	if len(calls) != 2 || len(calls[0]) != 1 || len(calls[1]) != 0 {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestAttach(t *testing.T) {
	ch, _ := newTestChannel()
	bus := events.NewBus(testLogger())
	detach := ch.Attach(bus)

	bus.Publish(events.Event{Name: events.NetworkError})
	bus.Publish(events.Event{Name: events.ServerError, Message: "Backend down"})
	bus.Publish(events.Event{Name: events.ToastMessage, Message: "Recipe saved", Level: "favorite"})

	v := ch.Visible()
	if len(v) != 3 {
		t.Fatalf("visible = %d, want 3", len(v))
	}
	if v[0].Type != model.ToastFavorite || v[0].Message != "Recipe saved" {
		t.Errorf("toast-message toast = %+v", v[0])
	}
	if v[1].Message != "Backend down" {
		t.Errorf("server-error toast = %+v", v[1])
	}
	if v[2].Message != NetworkMessage || v[2].Type != model.ToastError {
		t.Errorf("network-error toast = %+v", v[2])
	}

	detach()
	bus.Publish(events.Event{Name: events.ToastMessage, Message: "ignored"})
	if len(ch.Visible()) != 3 {
		t.Fatal("detached channel still receiving")
	}
}
