// Package app assembles a gochef client from its configuration: storage,
// token handling, the HTTP dispatchers with their interceptor chains, the
// typed APIs and the session controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/me/gochef/internal/api"
	"github.com/me/gochef/internal/auth"
	"github.com/me/gochef/internal/config"
	"github.com/me/gochef/internal/events"
	"github.com/me/gochef/internal/httpclient"
	"github.com/me/gochef/internal/nav"
	"github.com/me/gochef/internal/session"
	"github.com/me/gochef/internal/store"
	"github.com/me/gochef/internal/toast"
	"github.com/me/gochef/pkg/model"
)

// App is a fully wired client.
type App struct {
	Config config.ClientConfig

	Local        store.Store
	SessionStore store.Store
	Tokens       *auth.TokenStore
	Validator    *auth.Validator
	Bus          *events.Bus
	Toasts       *toast.Channel
	Guard        *nav.Guard
	Router       *nav.Router

	Jar      http.CookieJar
	Registry *httpclient.Registry
	Metrics  *httpclient.Metrics

	// AuthHTTP, RecipeHTTP and LegacyHTTP share Registry and Jar.
	AuthHTTP   *httpclient.Dispatcher
	RecipeHTTP *httpclient.Dispatcher
	LegacyHTTP *httpclient.Dispatcher

	Auth         *api.Auth
	Recipes      *api.Recipes
	Favorites    *api.Favorites
	Comments     *api.Comments
	Admin        *api.Admin
	Contact      *api.Contact
	Verification *api.Verification
	Health       *api.Monitor
	Session      *session.Controller

	logger   *slog.Logger
	nc       *nats.Conn
	bridge   *events.Bridge
	unsubs   []func()
	mu       sync.Mutex
	started  bool
	healthOn bool
	closed   bool
}

type options struct {
	local       store.Store
	registerer  prometheus.Registerer
	sessionOpts []session.Option
	toastOpts   []toast.Option
	pushOpts    []session.PushOption
	natsConn    events.Conn
}

// Option configures New.
type Option func(*options)

// WithStore uses st as persistent storage instead of opening the configured
// backend. The App takes ownership and closes it.
func WithStore(st store.Store) Option {
	return func(o *options) { o.local = st }
}

// WithRegisterer registers metrics with reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSessionOptions passes options through to session.New.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// WithToastOptions passes options through to toast.New.
func WithToastOptions(opts ...toast.Option) Option {
	return func(o *options) { o.toastOpts = append(o.toastOpts, opts...) }
}

// WithPushOptions passes options through to the push listener.
func WithPushOptions(opts ...session.PushOption) Option {
	return func(o *options) { o.pushOpts = append(o.pushOpts, opts...) }
}

// WithEventConn bridges events over conn instead of dialing Events.NATSURL.
func WithEventConn(conn events.Conn) Option {
	return func(o *options) { o.natsConn = conn }
}

// New builds an App. Nothing runs until Start.
func New(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logger.With("component", "app")}

	local := o.local
	if local == nil {
		st, err := store.Open(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		local = st
	}
	a.Local = local
	a.SessionStore = store.NewMemoryStore()

	a.Tokens = auth.NewTokenStore(a.Local, a.SessionStore, logger)
	a.Validator = auth.NewValidator(a.Tokens, logger)
	a.Bus = events.NewBus(logger)

	tcfg := toast.DefaultConfig()
	tcfg.Duration = cfg.Toast.Duration
	tcfg.ErrorDuration = cfg.Toast.ErrorDuration
	tcfg.Throttle = cfg.Toast.Throttle
	a.Toasts = toast.New(tcfg, logger, o.toastOpts...)
	a.unsubs = append(a.unsubs, a.Toasts.Attach(a.Bus))

	a.Guard = nav.NewGuard(a.Tokens, logger)
	a.Guard.Init(ctx)
	a.unsubs = append(a.unsubs, a.Guard.Attach(context.WithoutCancel(ctx), a.Bus))
	a.Router = nav.NewRouter(nav.RouteSignIn, a.Guard, logger)

	jar, err := cookiejar.New(nil)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	a.Jar = jar

	reg := o.registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a.Registry = httpclient.NewRegistry()
	a.Metrics = httpclient.NewMetrics(reg)
	a.Metrics.Track(a.Registry)

	chain := httpclient.Chain{Tokens: a.Tokens, Validity: a.Validator, Publisher: a.Bus, Jar: a.Jar}
	base := []httpclient.Option{
		httpclient.WithTimeout(cfg.HTTP.Timeout),
		httpclient.WithMetrics(a.Metrics),
		httpclient.WithLogger(logger),
	}
	a.AuthHTTP = httpclient.New("auth", httpclient.StaticBase(cfg.AuthURL),
		append(base, chain.Options(a.Registry)...)...)

	recipeChain := chain
	recipeChain.CSRF = true
	a.RecipeHTTP = httpclient.New("recipe", httpclient.StaticBase(cfg.RecipeURL),
		append(base, recipeChain.Options(a.Registry)...)...)

	a.LegacyHTTP = httpclient.New("default", httpclient.LegacyResolver(cfg.AuthURL, cfg.RecipeURL),
		append(base, recipeChain.Options(a.Registry)...)...)

	a.Auth = api.NewAuth(a.AuthHTTP, logger, api.WithStatusTTL(cfg.Session.StatusCacheTTL))
	a.Recipes = api.NewRecipes(a.RecipeHTTP, 0, nil, logger)
	a.Favorites = api.NewFavorites(a.LegacyHTTP, a.Recipes, logger)
	a.Comments = api.NewComments(a.LegacyHTTP)
	a.Admin = api.NewAdmin(a.AuthHTTP, a.Tokens.User, logger)
	a.Contact = api.NewContact(a.AuthHTTP)
	a.Verification = api.NewVerification(a.AuthHTTP)
	a.Health = api.NewMonitor(a.AuthHTTP, api.HealthConfig{
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Health.Timeout,
	}, a.healthChanged, logger)

	sessOpts := o.sessionOpts
	if cfg.PushURL != "" {
		push := session.NewPushListener(cfg.PushURL, a.Tokens, logger, o.pushOpts...)
		sessOpts = append([]session.Option{session.WithPush(push)}, sessOpts...)
	}
	a.Session = session.New(cfg.Session, session.Deps{
		API:       a.Auth,
		Tokens:    a.Tokens,
		Validator: a.Validator,
		Pending:   a.AuthHTTP,
		Bus:       a.Bus,
		Toasts:    a.Toasts,
		Router:    a.Router,
	}, logger, sessOpts...)

	// Cached reads belong to the user who made them.
	a.unsubs = append(a.unsubs, a.Bus.Subscribe(events.AuthStateChanged, func(ev events.Event) {
		if ev.Action == events.ActionLogout || ev.Action == events.ActionLogin {
			a.Recipes.ClearCache()
			a.Auth.ForgetStatus()
		}
	}))

	if err := a.connectEvents(cfg.Events, o.natsConn, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connectEvents(cfg config.EventsConfig, conn events.Conn, logger *slog.Logger) error {
	if conn == nil {
		if cfg.NATSURL == "" {
			return nil
		}
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("gochef"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		a.nc = nc
		conn = nc
	}
	a.bridge = events.NewBridge(a.Bus, conn, cfg.SubjectPrefix, a.currentUserID, nil, logger)
	if err := a.bridge.Start(); err != nil {
		return fmt.Errorf("start events bridge: %w", err)
	}
	return nil
}

func (a *App) currentUserID() string {
	if u := a.Tokens.User(context.Background()); u != nil {
		return u.ID
	}
	return ""
}

func (a *App) healthChanged(res api.HealthResult) {
	switch res.Status {
	case api.StatusOffline:
		a.Toasts.Warning(res.Message)
	case api.StatusOnline:
		a.logger.Info("backend online")
	}
}

// Start restores a stored session, lands on the matching route and starts
// the background loops. With watchHealth set the health monitor runs too.
func (a *App) Start(ctx context.Context, watchHealth bool) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("app already started")
	}
	a.started = true
	a.healthOn = watchHealth && a.Config.Health.Interval > 0
	a.mu.Unlock()

	if !a.Session.IsAuthenticated() {
		a.Restore(ctx)
	}
	if err := a.Session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if a.healthOn {
		go func() {
			if err := a.Health.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("health monitor stopped", "error", err)
			}
		}()
	}
	return nil
}

// Restore rebuilds a stored session and lands on the home route when one
// survives.
func (a *App) Restore(ctx context.Context) bool {
	if !a.Session.Restore(ctx) {
		return false
	}
	a.Router.Replace(nav.RouteHome)
	return true
}

// User returns the signed-in user, or nil.
func (a *App) User(ctx context.Context) *model.User {
	return a.Session.User(ctx)
}

// Close stops the loops, cancels anything in flight and releases storage
// and the event bridge. It is safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	healthOn := a.healthOn
	a.mu.Unlock()

	a.Session.Stop()
	if healthOn {
		a.Health.Stop()
	}
	a.Registry.CancelAll(httpclient.ErrCancelledAll)

	var errs []error
	if a.bridge != nil {
		errs = append(errs, a.bridge.Close())
	}
	if a.nc != nil {
		a.nc.Close()
	}
	for _, u := range a.unsubs {
		u()
	}
	errs = append(errs, a.closeStores())
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	return errors.Join(a.SessionStore.Close(), a.Local.Close())
}
