package httpclient

import (
	"context"
	"sync"
)

type pending struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// Registry tracks in-flight requests by fingerprint. At most one request per
// fingerprint is pending: adding a duplicate cancels the earlier one. It is
// shared by every dispatcher so one call cancels everything in flight.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]pending
	seq      uint64
	onChange func(n int)
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]pending)}
}

// Add registers cancel under fingerprint, cancelling any earlier request with
// ErrSuperseded. The returned release removes the entry only if it is still
// the one this call added.
func (r *Registry) Add(fingerprint string, cancel context.CancelCauseFunc) (release func()) {
	r.mu.Lock()
	prev, had := r.entries[fingerprint]
	r.seq++
	id := r.seq
	r.entries[fingerprint] = pending{id: id, cancel: cancel}
	n := len(r.entries)
	r.mu.Unlock()

	if had {
		prev.cancel(ErrSuperseded)
	}
	r.changed(n)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			cur, ok := r.entries[fingerprint]
			if ok && cur.id == id {
				delete(r.entries, fingerprint)
			}
			n := len(r.entries)
			r.mu.Unlock()
			r.changed(n)
		})
	}
}

// CancelAll cancels every pending request with cause and empties the
// registry. It returns the number cancelled.
func (r *Registry) CancelAll(cause error) int {
	r.mu.Lock()
	victims := make([]context.CancelCauseFunc, 0, len(r.entries))
	for _, p := range r.entries {
		victims = append(victims, p.cancel)
	}
	clear(r.entries)
	r.mu.Unlock()

	for _, cancel := range victims {
		cancel(cause)
	}
	r.changed(0)
	return len(victims)
}

// Len returns the number of pending requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) changed(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
