// Package api provides typed calls to the auth and recipe backends on top of
// the httpclient dispatchers.
package api

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/me/gochef/internal/httpclient"
)

// Prefix is the versioned path shared by both backends.
const Prefix = "/api/v1"

// Doer sends one request. *httpclient.Dispatcher implements it.
type Doer interface {
	Do(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

func call(ctx context.Context, d Doer, method, path string, query url.Values, in, out any) error {
	resp, err := d.Do(ctx, &httpclient.Request{Method: method, Path: Prefix + path, Query: query, Body: in})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

type cacheEntry[V any] struct {
	value V
	at    time.Time
}

// ttlCache is a small keyed cache whose entries expire after ttl.
type ttlCache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry[V]
}

func newTTLCache[V any](ttl time.Duration, now func() time.Time) *ttlCache[V] {
	return &ttlCache[V]{ttl: ttl, now: now, entries: make(map[string]cacheEntry[V])}
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.at) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[V]) put(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[V]{value: v, at: c.now()}
}

func (c *ttlCache[V]) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *ttlCache[V]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
