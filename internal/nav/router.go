package nav

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// Well-known routes.
const (
	RouteHome   = "/"
	RouteSignIn = "/signin"
	RouteSignUp = "/signup"
)

// ChangeFunc is called after the current route changes.
type ChangeFunc func(from, to string)

// Router tracks the current route and history. Every mutation consults the
// Guard first.
type Router struct {
	guard  *Guard
	logger *slog.Logger

	mu        sync.Mutex
	current   string
	history   []string
	listeners map[uint64]ChangeFunc
	nextID    uint64
}

// NewRouter creates a Router positioned at start.
func NewRouter(start string, guard *Guard, logger *slog.Logger) *Router {
	if start == "" {
		start = RouteHome
	}
	return &Router{
		guard:     guard,
		logger:    logger.With("component", "router"),
		current:   start,
		history:   []string{start},
		listeners: make(map[uint64]ChangeFunc),
	}
}

// Current returns the current route.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// History returns a copy of the visited routes, oldest first.
func (r *Router) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}

// OnChange registers fn and returns an unregister func.
func (r *Router) OnChange(fn ChangeFunc) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Router) suppressed(op, to string) bool {
	if r.guard != nil && r.guard.Active() {
		r.logger.Debug("navigation suppressed during logout", "op", op, "to", to)
		return true
	}
	return false
}

// Navigate pushes a new route. It reports false when suppressed.
func (r *Router) Navigate(to string) bool {
	if r.suppressed("push", to) {
		return false
	}
	r.apply(to, false)
	return true
}

// Replace swaps the current route without growing history.
func (r *Router) Replace(to string) bool {
	if r.suppressed("replace", to) {
		return false
	}
	r.apply(to, true)
	return true
}

// FollowLink handles an in-app link activation. External and empty hrefs are
// ignored.
func (r *Router) FollowLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil || u.IsAbs() || !strings.HasPrefix(u.Path, "/") {
		return false
	}
	if r.suppressed("link", href) {
		return false
	}
	r.apply(u.RequestURI(), false)
	return true
}

// Back returns to the previous route.
func (r *Router) Back() bool {
	r.mu.Lock()
	if len(r.history) < 2 {
		r.mu.Unlock()
		return false
	}
	prev := r.history[len(r.history)-2]
	r.mu.Unlock()
	if r.suppressed("back", prev) {
		return false
	}

	r.mu.Lock()
	from := r.current
	r.history = r.history[:len(r.history)-1]
	r.current = prev
	fns := r.listenersLocked()
	r.mu.Unlock()

	for _, fn := range fns {
		fn(from, prev)
	}
	return true
}

func (r *Router) apply(to string, replace bool) {
	r.mu.Lock()
	from := r.current
	if from == to {
		r.mu.Unlock()
		return
	}
	r.current = to
	if replace {
		r.history[len(r.history)-1] = to
	} else {
		r.history = append(r.history, to)
	}
	fns := r.listenersLocked()
	r.mu.Unlock()

	r.logger.Debug("route change", "from", from, "to", to)
	for _, fn := range fns {
		fn(from, to)
	}
}

func (r *Router) listenersLocked() []ChangeFunc {
	fns := make([]ChangeFunc, 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	return fns
}
