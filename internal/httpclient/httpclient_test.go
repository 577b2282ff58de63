package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/me/gochef/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTokens struct {
	mu      sync.Mutex
	token   string
	removed int
}

func (f *fakeTokens) Token(context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) SetToken(_ context.Context, tok string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = strings.TrimPrefix(tok, "Bearer ")
}

func (f *fakeTokens) RemoveToken(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.removed++
}

func (f *fakeTokens) get() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.removed
}

type fixedValidity bool

func (v fixedValidity) IsValid(context.Context) bool { return bool(v) }

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.evs))
	for i, ev := range r.evs {
		out[i] = string(ev.Name)
	}
	return out
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.evs) == 0 {
		return events.Event{}
	}
	return r.evs[len(r.evs)-1]
}

func newTestDispatcher(base string, tokens *fakeTokens, valid bool, pub *recorder, extra ...Option) *Dispatcher {
	ch := Chain{Tokens: tokens, Validity: fixedValidity(valid), Publisher: pub}
	opts := append(ch.Options(NewRegistry()), WithLogger(testLogger()))
	opts = append(opts, extra...)
	return New("test", StaticBase(base), opts...)
}

func TestDispatcher_SetsRequestIDAndBearer(t *testing.T) {
	var gotAuth, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get(HeaderRequestID)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "abc.def.ghi"}
	d := newTestDispatcher(srv.URL, tokens, true, &recorder{})

	var out struct {
		OK bool `json:"ok"`
	}
	if err := d.Get(context.Background(), "/api/v1/recipes", nil, &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !out.OK {
		t.Error("body not decoded")
	}
	if gotAuth != "Bearer abc.def.ghi" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotID) != 8 {
		t.Errorf("X-Request-ID = %q, want 8 chars", gotID)
	}
	if d.Registry().Len() != 0 {
		t.Errorf("registry len = %d after completion, want 0", d.Registry().Len())
	}
}

func TestDispatcher_InvalidTokenNeverTransmitted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	pub := &recorder{}
	d := newTestDispatcher(srv.URL, &fakeTokens{token: "expired.token.x"}, false, pub)

	_, err := d.Do(context.Background(), &Request{Path: "/api/v1/recipes/my-recipes"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsCancel(err) {
		t.Errorf("IsCancel = false for %v", err)
	}
	if !errors.Is(err, ErrNoValidAuth) {
		t.Errorf("err = %v, want ErrNoValidAuth", err)
	}
	if FriendlyMessage(err) != "" {
		t.Errorf("FriendlyMessage = %q, want empty for cancellation", FriendlyMessage(err))
	}
	if hits.Load() != 0 {
		t.Errorf("server hits = %d, want 0", hits.Load())
	}
	if len(pub.names()) != 0 {
		t.Errorf("events = %v, want none", pub.names())
	}
}

func TestDispatcher_PublicCallWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"token":"Bearer new.tok.en","user":{"id":"1","username":"alice"}}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	d := newTestDispatcher(srv.URL, tokens, false, &recorder{})

	if err := d.Post(context.Background(), "/api/v1/auth/signin", map[string]string{"identifier": "alice"}, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want none", gotAuth)
	}
	if tok, _ := tokens.get(); tok != "new.tok.en" {
		t.Errorf("persisted token = %q, want new.tok.en", tok)
	}
}

func TestPersistToken_BannedUserNotPersisted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"bad.tok.en","user":{"id":"1","username":"mallory","banned":true}}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	d := newTestDispatcher(srv.URL, tokens, false, &recorder{})
	if err := d.Post(context.Background(), "/api/v1/auth/signin", nil, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if tok, _ := tokens.get(); tok != "" {
		t.Errorf("token = %q, want nothing persisted", tok)
	}
}

func TestPersistToken_AuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Authorization", "Bearer rotated.tok.en")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "old.tok.en"}
	d := newTestDispatcher(srv.URL, tokens, true, &recorder{})
	if err := d.Get(context.Background(), "/api/v1/recipes", nil, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok, _ := tokens.get(); tok != "rotated.tok.en" {
		t.Errorf("token = %q, want rotated.tok.en", tok)
	}
}

func TestPersistToken_EmptyAuthorizationKeepsToken(t *testing.T) {
	for _, h := range []string{"Bearer", "Bearer ", "  "} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Authorization", h)
			w.Write([]byte(`[]`))
		}))

		tokens := &fakeTokens{token: "valid.tok.en"}
		d := newTestDispatcher(srv.URL, tokens, true, &recorder{})
		if err := d.Get(context.Background(), "/api/v1/recipes", nil, nil); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if tok, removed := tokens.get(); tok != "valid.tok.en" || removed != 0 {
			t.Errorf("header %q: token = %q, removed = %d", h, tok, removed)
		}
		srv.Close()
	}
}

func TestDispatcher_DuplicateSupersedesEarlier(t *testing.T) {
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			arrived <- struct{}{}
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	defer close(release)

	d := newTestDispatcher(srv.URL, &fakeTokens{token: "t.o.k"}, true, &recorder{})
	q := url.Values{"page": {"0"}}

	firstErr := make(chan error, 1)
	go func() {
		_, err := d.Do(context.Background(), &Request{Path: "/api/v1/recipes/feed", Query: q})
		firstErr <- err
	}()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the server")
	}

	if _, err := d.Do(context.Background(), &Request{Path: "/api/v1/recipes/feed", Query: q}); err != nil {
		t.Fatalf("second request: %v", err)
	}

	select {
	case err := <-firstErr:
		if !IsCancel(err) {
			t.Fatalf("first request err = %v, want cancellation", err)
		}
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("first request err = %v, want ErrSuperseded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first request did not finish")
	}
	if d.Registry().Len() != 0 {
		t.Errorf("registry len = %d, want 0", d.Registry().Len())
	}
}

func TestDispatcher_CancelPendingRequests(t *testing.T) {
	arrived := make(chan struct{}, 3)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	reg := NewRegistry()
	ch := Chain{Tokens: &fakeTokens{token: "t.o.k"}, Validity: fixedValidity(true), Publisher: &recorder{}}
	auth := New("auth", StaticBase(srv.URL), append(ch.Options(reg), WithLogger(testLogger()))...)
	recipe := New("recipe", StaticBase(srv.URL), append(ch.Options(reg), WithLogger(testLogger()))...)

	errs := make(chan error, 3)
	for _, p := range []string{"/api/v1/profile", "/api/v1/recipes/feed", "/api/v1/recipes/my-recipes"} {
		d := recipe
		if p == "/api/v1/profile" {
			d = auth
		}
		go func(d *Dispatcher, p string) {
			_, err := d.Do(context.Background(), &Request{Path: p})
			errs <- err
		}(d, p)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-arrived:
		case <-time.After(5 * time.Second):
			t.Fatal("requests never reached the server")
		}
	}

	if n := auth.CancelPendingRequests(); n != 3 {
		t.Errorf("cancelled = %d, want 3", n)
	}
	for i := 0; i < 3; i++ {
		err := <-errs
		if !IsCancel(err) || !errors.Is(err, ErrCancelledAll) {
			t.Errorf("err = %v, want ErrCancelledAll cancellation", err)
		}
	}
	if reg.Len() != 0 {
		t.Errorf("registry len = %d, want 0", reg.Len())
	}
}

func TestAuthFailures(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		status      int
		body        string
		wantErr     bool
		wantRemoved bool
		wantEvent   events.Name
		wantReason  string
		wantMsg     string
	}{
		{"forbidden forces logout", "GET", "/api/v1/recipes/my-recipes", 403, `{"message":"nope"}`, true, true, events.AuthStateChanged, events.ReasonForbidden, MsgForbidden},
		{"banned forbidden", "GET", "/api/v1/favorites", 403, `{"message":"Account is banned","banned":true}`, true, true, events.AuthStateChanged, events.ReasonBanned, "Account is banned"},
		{"profile forbidden keeps token", "GET", "/api/v1/profile", 403, `{}`, true, false, "", "", MsgForbidden},
		{"unauthorized forces logout", "GET", "/api/v1/recipes", 401, `{}`, true, true, events.AuthStateChanged, events.ReasonUnauthorized, MsgSessionExpired},
		{"sign-in 401 keeps session", "POST", "/api/v1/auth/signin", 401, `{}`, true, false, "", "", MsgInvalidLogin},
		{"sign-in 401 server text", "POST", "/api/v1/auth/signin", 401, `{"message":"Bad credentials"}`, true, false, "", "", "Bad credentials"},
		{"logout 403 is benign", "POST", "/api/v1/auth/logout", 403, `{}`, false, false, "", "", ""},
		{"server error", "GET", "/api/v1/recipes", 500, `{}`, true, false, events.ServerError, "", MsgServer},
		{"not found", "GET", "/api/v1/recipes/9", 404, `{}`, true, false, "", "", MsgNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tokens := &fakeTokens{token: "t.o.k"}
			pub := &recorder{}
			d := newTestDispatcher(srv.URL, tokens, true, pub)

			_, err := d.Do(context.Background(), &Request{Method: tt.method, Path: tt.path})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if StatusCode(err) != tt.status {
					t.Errorf("StatusCode = %d, want %d", StatusCode(err), tt.status)
				}
				if got := FriendlyMessage(err); got != tt.wantMsg {
					t.Errorf("FriendlyMessage = %q, want %q", got, tt.wantMsg)
				}
			}
			if _, removed := tokens.get(); (removed > 0) != tt.wantRemoved {
				t.Errorf("removed = %d, wantRemoved %v", removed, tt.wantRemoved)
			}
			if tt.wantEvent == "" {
				if names := pub.names(); len(names) != 0 {
					t.Errorf("events = %v, want none", names)
				}
				return
			}
			ev := pub.last()
			if ev.Name != tt.wantEvent {
				t.Errorf("event = %q, want %q", ev.Name, tt.wantEvent)
			}
			if tt.wantReason != "" && ev.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", ev.Reason, tt.wantReason)
			}
		})
	}
}

func TestDispatcher_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	pub := &recorder{}
	d := newTestDispatcher(base, &fakeTokens{token: "t.o.k"}, true, pub)
	_, err := d.Do(context.Background(), &Request{Path: "/api/v1/recipes"})
	if !IsNetwork(err) {
		t.Fatalf("IsNetwork = false for %v", err)
	}
	if IsCancel(err) {
		t.Error("network failure classified as cancellation")
	}
	if FriendlyMessage(err) != MsgNetwork {
		t.Errorf("FriendlyMessage = %q", FriendlyMessage(err))
	}
	if ev := pub.last(); ev.Name != events.NetworkError {
		t.Errorf("event = %q, want network-error", ev.Name)
	}
}

func TestDispatcher_TimeoutIsNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	d := newTestDispatcher(srv.URL, &fakeTokens{token: "t.o.k"}, true, &recorder{}, WithTimeout(50*time.Millisecond))
	_, err := d.Do(context.Background(), &Request{Path: "/api/v1/recipes"})
	if !IsNetwork(err) {
		t.Errorf("timeout err = %v, want network failure", err)
	}
}

func TestDispatcher_BanDetection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Your account has been suspended"}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, &fakeTokens{}, true, &recorder{})
	_, err := d.Do(context.Background(), &Request{Method: "POST", Path: "/api/v1/auth/signin"})
	if !IsBanned(err) {
		t.Errorf("IsBanned = false for %v", err)
	}
	if got := FriendlyMessage(err); got != "Your account has been suspended" {
		t.Errorf("FriendlyMessage = %q", got)
	}
}

func TestCSRF(t *testing.T) {
	var mu sync.Mutex
	got := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got[r.Method] = r.Header.Get(HeaderXSRF)
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	u, _ := url.Parse(srv.URL)
	jar.SetCookies(u, []*http.Cookie{{Name: CookieXSRF, Value: "xsrf-123", Path: "/"}})

	ch := Chain{Tokens: &fakeTokens{token: "t.o.k"}, Validity: fixedValidity(true), Publisher: &recorder{}, Jar: jar, CSRF: true}
	d := New("recipe", StaticBase(srv.URL), append(ch.Options(NewRegistry()), WithLogger(testLogger()))...)

	if err := d.Get(context.Background(), "/api/v1/recipes", nil, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := d.Post(context.Background(), "/api/v1/recipes/generate", map[string]any{"ingredients": []string{"egg"}}, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got["GET"] != "" {
		t.Errorf("GET carried XSRF header %q", got["GET"])
	}
	if got["POST"] != "xsrf-123" {
		t.Errorf("POST XSRF header = %q, want xsrf-123", got["POST"])
	}
}

func TestFingerprint(t *testing.T) {
	mk := func(method, raw string, body string) *Call {
		u, _ := url.Parse(raw)
		return &Call{Method: method, URL: u, Body: []byte(body)}
	}
	a := Fingerprint(mk("GET", "http://x/api/v1/recipes?size=10&page=0", ""))
	b := Fingerprint(mk("GET", "http://x/api/v1/recipes?page=0&size=10", ""))
	if a != b {
		t.Errorf("query order changed fingerprint: %q vs %q", a, b)
	}
	p1 := Fingerprint(mk("POST", "http://x/api/v1/recipes", `{"a":1}`))
	p2 := Fingerprint(mk("POST", "http://x/api/v1/recipes", `{"a":2}`))
	if p1 == p2 {
		t.Error("different bodies share a fingerprint")
	}
	if Fingerprint(mk("GET", "http://x/api/v1/recipes", "")) == Fingerprint(mk("DELETE", "http://x/api/v1/recipes", "")) {
		t.Error("method not part of fingerprint")
	}
	if Fingerprint(mk("GET", "http://auth:8081/api/v1/profile", "")) == Fingerprint(mk("GET", "http://recipes:8082/api/v1/profile", "")) {
		t.Error("host not part of fingerprint")
	}
}

func TestRegistry_ReleaseOnlyOwnEntry(t *testing.T) {
	r := NewRegistry()
	var firstCause error
	ctx1, cancel1 := context.WithCancelCause(context.Background())
	release1 := r.Add("GET /a", cancel1)
	_, cancel2 := context.WithCancelCause(context.Background())
	release2 := r.Add("GET /a", cancel2)

	firstCause = context.Cause(ctx1)
	if !errors.Is(firstCause, ErrSuperseded) {
		t.Errorf("first cause = %v, want ErrSuperseded", firstCause)
	}

	release1()
	if r.Len() != 1 {
		t.Errorf("stale release removed newer entry: len = %d", r.Len())
	}
	release2()
	release2()
	if r.Len() != 0 {
		t.Errorf("len = %d, want 0", r.Len())
	}
}

func TestRegistry_CancelAll(t *testing.T) {
	r := NewRegistry()
	var ctxs []context.Context
	for _, fp := range []string{"GET /a", "GET /b", "POST /c"} {
		ctx, cancel := context.WithCancelCause(context.Background())
		ctxs = append(ctxs, ctx)
		r.Add(fp, cancel)
	}
	if n := r.CancelAll(ErrCancelledAll); n != 3 {
		t.Errorf("CancelAll = %d, want 3", n)
	}
	for i, ctx := range ctxs {
		if !errors.Is(context.Cause(ctx), ErrCancelledAll) {
			t.Errorf("ctx %d cause = %v", i, context.Cause(ctx))
		}
	}
	if r.Len() != 0 {
		t.Errorf("len = %d, want 0", r.Len())
	}
}

func TestLegacyResolver(t *testing.T) {
	resolve := LegacyResolver("http://auth:8081/", "http://recipe:8082")
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/recipes/feed", "http://recipe:8082"},
		{"/api/v1/favorites/check/4", "http://recipe:8082"},
		{"/api/v1/recipes/4/comments", "http://recipe:8082"},
		{"/api/v1/profile", "http://auth:8081"},
		{"/api/v1/auth/signin", "http://auth:8081"},
	}
	for _, tt := range tests {
		if got := resolve(tt.path); got != tt.want {
			t.Errorf("resolve(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsPublic(t *testing.T) {
	tests := []struct {
		method, path string
		public       bool
		validates    bool
	}{
		{"POST", "/api/v1/auth/signin", true, false},
		{"POST", "/api/v1/auth/signup", true, false},
		{"GET", "/api/v1/public/recipes", true, false},
		{"POST", "/api/v1/users", true, false},
		{"GET", "/api/v1/users", false, true},
		{"POST", "/api/v1/auth/logout", false, true},
		{"GET", "/api/v1/profile", false, true},
		{"GET", "/api/v1/auth/check-status", true, false},
		{"GET", "/api/v1/user/check-username", true, false},
		{"POST", "/api/v1/user/update-username", false, true},
		{"POST", "/api/v1/contact/submit", true, false},
		{"GET", "/api/v1/verification/verify/abc", true, false},
		{"GET", "/api/v1/verification/status", true, false},
		{"GET", "/api/v1/admin/users", false, true},
		{"PUT", "/api/v1/admin/users/2/ban", false, true},
	}
	for _, tt := range tests {
		if got := IsPublic(tt.method, tt.path); got != tt.public {
			t.Errorf("IsPublic(%s %s) = %v, want %v", tt.method, tt.path, got, tt.public)
		}
		if got := requiresValidToken(tt.method, tt.path); got != tt.validates {
			t.Errorf("requiresValidToken(%s %s) = %v, want %v", tt.method, tt.path, got, tt.validates)
		}
	}
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/boom") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d := newTestDispatcher(srv.URL, &fakeTokens{token: "t.o.k"}, true, &recorder{}, WithMetrics(m))
	ctx := context.Background()

	d.Get(ctx, "/api/v1/recipes", nil, nil)
	d.Get(ctx, "/api/v1/recipes/boom", nil, nil)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("test", "GET", "ok")); got != 1 {
		t.Errorf("ok requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("test", "GET", "http_5xx")); got != 1 {
		t.Errorf("5xx requests = %v, want 1", got)
	}
}
