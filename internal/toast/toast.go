// Package toast is the user-facing notification queue. It suppresses
// duplicates and bursts, dismisses toasts on a timer that pauses while the
// user hovers, and turns bus events into toasts.
package toast

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/gochef/internal/events"
	"github.com/me/gochef/pkg/model"
)

// Messages shown for bus events that arrive without text.
const (
	NetworkMessage = "Cannot connect to the server. Please check your internet connection."
	ServerMessage  = "A server error occurred. Please try again later."
)

// Config holds notification timings.
type Config struct {
	Duration      time.Duration // default lifetime
	ErrorDuration time.Duration // default lifetime for error toasts
	Throttle      time.Duration // identical type:message within this window is dropped
	SweepAge      time.Duration // throttle entries older than this are forgotten
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Duration:      5 * time.Second,
		ErrorDuration: 8 * time.Second,
		Throttle:      2 * time.Second,
		SweepAge:      time.Minute,
	}
}

// Timer is the handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type entry struct {
	toast     model.Toast
	timer     Timer
	remaining time.Duration
	started   time.Time
	paused    bool
}

// Channel is the notification queue. It is safe for concurrent use.
type Channel struct {
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	afterFunc AfterFunc

	mu      sync.Mutex
	visible []*entry // newest first
	recent  map[string]time.Time
	subs    map[uint64]func([]model.Toast)
	nextSub uint64
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

// WithAfterFunc replaces time.AfterFunc, for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Channel) { c.afterFunc = fn }
}

// New creates a Channel.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Channel {
	c := &Channel{
		cfg:       cfg,
		logger:    logger.With("component", "toast"),
		now:       time.Now,
		afterFunc: realAfterFunc,
		recent:    make(map[string]time.Time),
		subs:      make(map[uint64]func([]model.Toast)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(typ model.ToastType, msg string) string {
	return string(typ) + ":" + msg
}

// Show queues a toast and returns its ID. It returns false when the message
// is empty, an identical toast is visible, or the same type:message was shown
// within the throttle window. A non-positive duration selects the default.
func (c *Channel) Show(message string, typ model.ToastType, duration time.Duration) (string, bool) {
	if message == "" {
		return "", false
	}
	if typ == "" {
		typ = model.ToastInfo
	}
	if duration <= 0 {
		duration = c.cfg.Duration
		if typ == model.ToastError {
			duration = c.cfg.ErrorDuration
		}
	}

	now := c.now()
	k := key(typ, message)

	c.mu.Lock()
	c.sweepLocked(now)
	for _, e := range c.visible {
		if e.toast.Type == typ && e.toast.Message == message {
			c.mu.Unlock()
			c.logger.Debug("toast suppressed (visible)", "key", k)
			return "", false
		}
	}
	if last, ok := c.recent[k]; ok && now.Sub(last) < c.cfg.Throttle {
		c.mu.Unlock()
		c.logger.Debug("toast suppressed (throttled)", "key", k)
		return "", false
	}
	c.recent[k] = now

	t := model.Toast{
		ID:        fmt.Sprintf("toast-%d-%s", now.UnixMilli(), uuid.New().String()[:8]),
		Message:   message,
		Type:      typ,
		Duration:  duration,
		CreatedAt: now,
	}
	e := &entry{toast: t, remaining: duration, started: now}
	id := t.ID
	e.timer = c.afterFunc(duration, func() { c.Dismiss(id) })
	c.visible = append([]*entry{e}, c.visible...)
	snap, subs := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(subs, snap)
	return id, true
}

// Success, Error, Warning and Info show a toast with the default duration.
func (c *Channel) Success(msg string) (string, bool) { return c.Show(msg, model.ToastSuccess, 0) }
func (c *Channel) Error(msg string) (string, bool)   { return c.Show(msg, model.ToastError, 0) }
func (c *Channel) Warning(msg string) (string, bool) { return c.Show(msg, model.ToastWarning, 0) }
func (c *Channel) Info(msg string) (string, bool)    { return c.Show(msg, model.ToastInfo, 0) }

func (c *Channel) sweepLocked(now time.Time) {
	for k, at := range c.recent {
		if now.Sub(at) > c.cfg.SweepAge {
			delete(c.recent, k)
		}
	}
}

// Dismiss removes a toast. It reports whether the toast was visible.
func (c *Channel) Dismiss(id string) bool {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	e := c.visible[idx]
	if e.timer != nil {
		e.timer.Stop()
	}
	c.visible = append(c.visible[:idx], c.visible[idx+1:]...)
	snap, subs := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(subs, snap)
	return true
}

// Hover pauses a toast's auto-dismiss timer, keeping the remaining time.
func (c *Channel) Hover(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return
	}
	e := c.visible[idx]
	if e.paused {
		return
	}
	e.timer.Stop()
	e.remaining -= c.now().Sub(e.started)
	if e.remaining < 0 {
		e.remaining = 0
	}
	e.paused = true
}

// Leave resumes a paused toast's timer with its remaining time.
func (c *Channel) Leave(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return
	}
	e := c.visible[idx]
	if !e.paused {
		return
	}
	e.paused = false
	e.started = c.now()
	e.timer = c.afterFunc(e.remaining, func() { c.Dismiss(id) })
}

// Visible returns the queued toasts, newest first.
func (c *Channel) Visible() []model.Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, _ := c.snapshotLocked()
	return snap
}

// Subscribe registers fn to receive the queue after every change.
func (c *Channel) Subscribe(fn func([]model.Toast)) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Clear dismisses every toast.
func (c *Channel) Clear() {
	c.mu.Lock()
	for _, e := range c.visible {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	c.visible = nil
	snap, subs := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(subs, snap)
}

// Attach turns network-error, server-error and toast-message events into toasts.
func (c *Channel) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(events.NetworkError, func(ev events.Event) {
			c.Show(orDefault(ev.Message, NetworkMessage), model.ToastError, 0)
		}),
		bus.Subscribe(events.ServerError, func(ev events.Event) {
			c.Show(orDefault(ev.Message, ServerMessage), model.ToastError, 0)
		}),
		bus.Subscribe(events.ToastMessage, func(ev events.Event) {
			c.Show(ev.Message, model.ToastType(ev.Level), 0)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (c *Channel) indexLocked(id string) int {
	for i, e := range c.visible {
		if e.toast.ID == id {
			return i
		}
	}
	return -1
}

func (c *Channel) snapshotLocked() ([]model.Toast, []func([]model.Toast)) {
	snap := make([]model.Toast, len(c.visible))
	for i, e := range c.visible {
		snap[i] = e.toast
	}
	subs := make([]func([]model.Toast), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return snap, subs
}

func (c *Channel) notify(subs []func([]model.Toast), snap []model.Toast) {
	for _, fn := range subs {
		fn(snap)
	}
}
