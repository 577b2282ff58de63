// Package backendtest is an in-process fake of the auth and recipe backends
// for end-to-end tests. It issues real HS256 tokens, keeps bcrypt password
// hashes and pushes session notices over a websocket, so the client is
// exercised over real HTTP.
package backendtest

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/me/gochef/pkg/model"
)

// Names shared with the client's CSRF interceptor.
const (
	CookieXSRF = "XSRF-TOKEN"
	HeaderXSRF = "X-XSRF-TOKEN"
)

// MsgAccountBanned is the message of every ban rejection.
const MsgAccountBanned = "Your account has been banned"

type tokenClaims struct {
	jwt.RegisteredClaims
	Role     string `json:"role,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Banned   bool   `json:"banned,omitempty"`
	Version  int    `json:"ver"`
}

type account struct {
	mu      sync.Mutex
	user    model.User
	hash    []byte
	version int
}

func (a *account) snapshot() model.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

func (a *account) banned() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.Banned
}

func (a *account) checkPassword(pw string) bool {
	a.mu.Lock()
	hash := a.hash
	a.mu.Unlock()
	return bcrypt.CompareHashAndPassword(hash, []byte(pw)) == nil
}

func (a *account) tokenVersion() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

type fault struct {
	delay  time.Duration
	status int
	remain int // failures left; <0 means forever
}

// Backend serves both backends' routes under /api/v1.
type Backend struct {
	router      chi.Router
	logger      *slog.Logger
	secret      []byte
	tokenTTL    time.Duration
	xsrf        string
	requireXSRF bool
	now         func() time.Time
	upgrader    websocket.Upgrader
	writeMu     sync.Mutex

	mu        sync.Mutex
	accounts  map[string]*account // by ID
	recipes   map[string]*model.Recipe
	order     []string
	favorites map[string]map[string]bool // user ID -> recipe ID
	votes     map[string]map[string]model.VoteType
	comments  map[string][]model.Comment
	contacts  []model.ContactForm
	hits      map[string]int
	requests  []string
	faults    map[string]*fault
	push      map[string]map[*websocket.Conn]bool // user ID -> conns
	nextID    int

	verifyTokens map[string]string // token -> user ID
}

// Option configures a Backend.
type Option func(*Backend)

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(b *Backend) { b.tokenTTL = d }
}

// WithXSRF makes mutating calls require the XSRF header.
func WithXSRF() Option {
	return func(b *Backend) { b.requireXSRF = true }
}

// WithClock replaces time.Now for token issue and verification.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New creates a Backend with no accounts.
func New(logger *slog.Logger, opts ...Option) *Backend {
	b := &Backend{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "backendtest"),
		secret:    []byte(uuid.NewString()),
		tokenTTL:  time.Hour,
		xsrf:      uuid.NewString(),
		now:       time.Now,
		accounts:  make(map[string]*account),
		recipes:   make(map[string]*model.Recipe),
		favorites: make(map[string]map[string]bool),
		votes:     make(map[string]map[string]model.VoteType),
		comments:  make(map[string][]model.Comment),
		hits:      make(map[string]int),
		faults:    make(map[string]*fault),
		push:      make(map[string]map[*websocket.Conn]bool),

		verifyTokens: make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.routes()
	return b
}

// NewServer starts b on an httptest server.
func NewServer(logger *slog.Logger, opts ...Option) (*Backend, *httptest.Server) {
	b := New(logger, opts...)
	return b, httptest.NewServer(b)
}

// ServeHTTP implements http.Handler.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

func (b *Backend) routes() {
	r := b.router
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(b.recordMiddleware(b.logger))
	r.Use(b.faultMiddleware)

	r.Get("/push", b.handlePush)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signin", b.handleSignIn)
		r.Post("/auth/signup", b.handleSignUp)
		r.Get("/auth/check-status", b.handleCheckStatus)
		r.Get("/user/check-username", b.handleCheckUsername)
		r.Post("/contact/submit", b.handleContact)
		r.Get("/verification/verify/{token}", b.handleVerify)
		r.Get("/verification/status", b.handleVerificationStatus)
		r.Post("/verification/resend", b.handleResendVerification)

		r.Group(func(r chi.Router) {
			r.Use(b.authMiddleware)
			r.Post("/auth/logout", b.handleLogout)
			r.Get("/profile", b.handleProfile)
			r.Post("/user/update-username", b.handleUpdateUsername)
			r.Post("/user/update-password", b.handleUpdatePassword)

			r.Group(func(r chi.Router) {
				r.Use(b.adminMiddleware)
				r.Get("/admin/users", b.handleListUsers)
				r.Put("/admin/users/{id}/role", b.handleSetRole)
				r.Put("/admin/users/{id}/ban", b.handleToggleBan)
			})

			r.Group(func(r chi.Router) {
				r.Use(b.xsrfMiddleware)
				r.Post("/recipes/generate", b.handleGenerate)
				r.Get("/recipes", b.handleListRecipes)
				r.Get("/recipes/my-recipes", b.handleMyRecipes)
				r.Get("/recipes/feed", b.handleFeed)
				r.Post("/recipes/create-meal", b.handleCreateMeal)
				r.Post("/recipes/save", b.handleSaveRecipe)
				r.Get("/recipes/{id}", b.handleGetRecipe)
				r.Put("/recipes/{id}", b.handleUpdateRecipe)
				r.Delete("/recipes/{id}", b.handleDeleteRecipe)
				r.Post("/recipes/{id}/vote", b.handleVote)
				r.Get("/recipes/{id}/comments", b.handleListComments)
				r.Post("/recipes/{id}/comments", b.handleAddComment)
				r.Put("/recipes/{id}/comments/{commentID}", b.handleUpdateComment)
				r.Delete("/recipes/{id}/comments/{commentID}", b.handleDeleteComment)

				r.Get("/favorites", b.handleListFavorites)
				r.Get("/favorites/check/{id}", b.handleCheckFavorite)
				r.Post("/favorites/{id}", b.handleToggleFavorite)
				r.Delete("/favorites/{id}", b.handleRemoveFavorite)
			})
		})
	})
}

// AddUser creates an account and returns its profile.
func (b *Backend) AddUser(username, email, password string, role model.UserRole) model.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("backendtest: hash password: %v", err))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	u := model.User{
		ID:        strconv.Itoa(b.nextID),
		Username:  username,
		Email:     email,
		Role:      role,
		Verified:  true,
		CreatedAt: b.now().UTC(),
	}
	b.accounts[u.ID] = &account{user: u, hash: hash}
	return u
}

// Ban marks username banned and pushes a notice to its open sockets.
func (b *Backend) Ban(username string) {
	acct := b.accountByName(username)
	if acct == nil {
		return
	}
	acct.mu.Lock()
	acct.user.Banned = true
	acct.mu.Unlock()
	b.notify(acct.snapshot().ID, pushMessage{Type: "banned", Message: MsgAccountBanned})
}

// Revoke invalidates every token issued to username.
func (b *Backend) Revoke(username string) {
	acct := b.accountByName(username)
	if acct == nil {
		return
	}
	acct.mu.Lock()
	acct.version++
	acct.mu.Unlock()
	b.notify(acct.snapshot().ID, pushMessage{Type: "revoked"})
}

// SetRole changes username's role.
func (b *Backend) SetRole(username string, role model.UserRole) {
	acct := b.accountByName(username)
	if acct == nil {
		return
	}
	acct.mu.Lock()
	acct.user.Role = role
	acct.mu.Unlock()
	b.notify(acct.snapshot().ID, pushMessage{Type: "role-changed", Role: string(role)})
}

// IssueToken signs a token for username that expires after ttl. A negative
// ttl yields an already expired token.
func (b *Backend) IssueToken(username string, ttl time.Duration) string {
	acct := b.accountByName(username)
	if acct == nil {
		return ""
	}
	tok, err := b.sign(acct, ttl)
	if err != nil {
		panic(fmt.Sprintf("backendtest: sign token: %v", err))
	}
	return tok
}

func (b *Backend) sign(acct *account, ttl time.Duration) (string, error) {
	u := acct.snapshot()
	now := b.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role:     string(u.Role),
		Username: u.Username,
		Email:    u.Email,
		UserID:   u.ID,
		Banned:   u.Banned,
		Version:  acct.tokenVersion(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
}

// SetDelay holds every request to path for d before answering.
func (b *Backend) SetDelay(path string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.faultLocked(path)
	f.delay = d
}

// FailNext answers the next n requests to path with status. n < 0 fails
// every request.
func (b *Backend) FailNext(path string, status, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.faultLocked(path)
	f.status = status
	f.remain = n
}

func (b *Backend) faultLocked(path string) *fault {
	f, ok := b.faults[path]
	if !ok {
		f = &fault{}
		b.faults[path] = f
	}
	return f
}

func (b *Backend) faultFor(path string) (time.Duration, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.faults[path]
	if !ok {
		return 0, 0
	}
	status := 0
	if f.status != 0 && f.remain != 0 {
		status = f.status
		if f.remain > 0 {
			f.remain--
		}
	}
	return f.delay, status
}

// Hits returns how many requests matched route, written "METHOD pattern"
// such as "GET /api/v1/profile".
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// Requests returns "METHOD path" for every request received, in arrival order.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func (b *Backend) count(route string) {
	b.mu.Lock()
	b.hits[route]++
	b.mu.Unlock()
}

func (b *Backend) arrived(r *http.Request) {
	b.mu.Lock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)
	b.mu.Unlock()
}

func (b *Backend) accountByID(id string) *account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[id]
}

// accountByName finds an account by username or email.
func (b *Backend) accountByName(ident string) *account {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.accounts {
		u := a.snapshot()
		if u.Username == ident || (u.Email != "" && u.Email == ident) {
			return a
		}
	}
	return nil
}
