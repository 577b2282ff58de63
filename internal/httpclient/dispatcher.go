// Package httpclient sends requests to the auth and recipe backends through
// ordered request and response interceptor chains, a shared pending-request
// registry, and one normalized error type.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds each request; expiry surfaces as a network failure.
	DefaultTimeout = 15 * time.Second

	maxBodyBytes = 10 << 20
	tracerName   = "github.com/me/gochef/internal/httpclient"
)

// Resolver maps a request path to the base URL it is sent to.
type Resolver func(path string) string

// StaticBase always resolves to base.
func StaticBase(base string) Resolver {
	base = strings.TrimSuffix(base, "/")
	return func(string) string { return base }
}

// LegacyResolver routes recipe and favorite paths to recipeURL and everything
// else to authURL.
func LegacyResolver(authURL, recipeURL string) Resolver {
	authURL = strings.TrimSuffix(authURL, "/")
	recipeURL = strings.TrimSuffix(recipeURL, "/")
	return func(path string) string {
		if strings.Contains(path, "/recipes") || strings.Contains(path, "/favorites") {
			return recipeURL
		}
		return authURL
	}
}

// Request describes one call. Body, when non-nil, is JSON-encoded unless
// RawBody is set.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        any
	RawBody     []byte
	ContentType string
}

// Response is a fully read reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into out. An empty body leaves out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Call is the in-flight state interceptors read and modify.
type Call struct {
	Dispatcher  string
	Method      string
	URL         *url.URL
	Header      http.Header
	Body        []byte
	RequestID   string
	Fingerprint string

	ctx     context.Context
	cancel  context.CancelCauseFunc
	release func()
}

// Context returns the call's cancellable context.
func (c *Call) Context() context.Context { return c.ctx }

// Cancel aborts the call with cause.
func (c *Call) Cancel(cause error) { c.cancel(cause) }

// OnComplete registers the registry release; it runs before the response chain.
func (c *Call) OnComplete(release func()) { c.release = release }

func (c *Call) cancelCause() error {
	if c.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(c.ctx)
	if errors.Is(cause, context.DeadlineExceeded) {
		return nil
	}
	return cause
}

func (c *Call) complete() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
}

// RequestInterceptor runs before transmission. A non-nil error aborts the call.
type RequestInterceptor func(c *Call) error

// ResponseInterceptor runs after completion. err is nil or an *Error; the
// returned error replaces it.
type ResponseInterceptor func(c *Call, resp *Response, err error) error

// Dispatcher is a configured HTTP client for one backend.
type Dispatcher struct {
	name     string
	resolve  Resolver
	headers  http.Header
	client   *http.Client
	registry *Registry
	reqChain []RequestInterceptor
	resChain []ResponseInterceptor
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.client.Timeout = t }
}

// WithJar shares a cookie jar, forwarding credentials such as the XSRF cookie.
func WithJar(jar http.CookieJar) Option {
	return func(d *Dispatcher) { d.client.Jar = jar }
}

// WithRegistry shares a pending-request registry across dispatchers.
func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// WithHeader adds a default header to every request.
func WithHeader(key, value string) Option {
	return func(d *Dispatcher) { d.headers.Set(key, value) }
}

// WithRequestInterceptor appends to the request chain.
func WithRequestInterceptor(fn RequestInterceptor) Option {
	return func(d *Dispatcher) { d.reqChain = append(d.reqChain, fn) }
}

// WithResponseInterceptor appends to the response chain.
func WithResponseInterceptor(fn ResponseInterceptor) Option {
	return func(d *Dispatcher) { d.resChain = append(d.resChain, fn) }
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l.With("component", "http", "dispatcher", d.name) }
}

// New creates a Dispatcher.
func New(name string, resolve Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		name:     name,
		resolve:  resolve,
		headers:  http.Header{"Accept": {"application/json"}},
		client:   &http.Client{Timeout: DefaultTimeout},
		registry: NewRegistry(),
		tracer:   otel.Tracer(tracerName),
		logger:   slog.Default().With("component", "http", "dispatcher", name),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the dispatcher's name.
func (d *Dispatcher) Name() string { return d.name }

// Registry returns the pending-request registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// CancelPendingRequests cancels every in-flight request in the shared
// registry, including those of other dispatchers.
func (d *Dispatcher) CancelPendingRequests() int {
	n := d.registry.CancelAll(ErrCancelledAll)
	if n > 0 {
		d.logger.Info("cancelled pending requests", "count", n)
	}
	return n
}

func (d *Dispatcher) buildURL(path string, query url.Values) (*url.URL, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		raw = d.resolve(path) + path
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// Do sends req through the interceptor chains. Non-2xx replies, transport
// failures and cancellations are returned as *Error.
func (d *Dispatcher) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	u, err := d.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body := req.RawBody
	contentType := req.ContentType
	if body == nil && req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		if contentType == "" {
			contentType = "application/json"
		}
	}

	header := d.headers.Clone()
	for k, vs := range req.Header {
		header[k] = append([]string(nil), vs...)
	}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	ctx, span := d.tracer.Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("url.path", u.Path),
			attribute.String("gochef.dispatcher", d.name),
		),
	)
	defer span.End()

	cctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c := &Call{
		Dispatcher: d.name,
		Method:     method,
		URL:        u,
		Header:     header,
		Body:       body,
		ctx:        cctx,
		cancel:     cancel,
	}

	start := time.Now()
	resp, err := d.send(c)
	c.complete()

	if err != nil {
		err = normalize(c, resp, err)
	}
	for _, fn := range d.resChain {
		err = fn(c, resp, err)
	}

	outcome := outcomeOf(resp, err)
	d.metrics.observe(d.name, method, outcome, time.Since(start).Seconds())
	span.SetAttributes(attribute.String("gochef.request_id", c.RequestID), attribute.String("gochef.outcome", outcome))
	if resp != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}

	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Cancelled {
			d.metrics.cancelled(cancelReason(e.Err))
			span.SetStatus(codes.Unset, "cancelled")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		d.logger.Debug("request failed", "request_id", c.RequestID, "method", method, "url", u.String(),
			"outcome", outcome, "duration", time.Since(start).String(), "error", err)
		return resp, err
	}

	d.logger.Debug("request", "request_id", c.RequestID, "method", method, "url", u.String(),
		"status", resp.StatusCode, "duration", time.Since(start).String())
	return resp, nil
}

// send runs the request chain and the transport. A nil response with a
// non-nil error means nothing usable came back.
func (d *Dispatcher) send(c *Call) (*Response, error) {
	for _, fn := range d.reqChain {
		if err := fn(c); err != nil {
			return nil, err
		}
	}
	if cause := c.cancelCause(); cause != nil {
		return nil, cause
	}

	var body io.Reader
	if c.Body != nil {
		body = bytes.NewReader(c.Body)
	}
	hreq, err := http.NewRequestWithContext(c.ctx, c.Method, c.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	hreq.Header = c.Header

	hresp, err := d.client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	resp := &Response{StatusCode: hresp.StatusCode, Header: hresp.Header, Body: data}
	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return resp, &StatusError{StatusCode: hresp.StatusCode}
	}
	return resp, nil
}

func outcomeOf(resp *Response, err error) string {
	var e *Error
	if err != nil && errors.As(err, &e) {
		switch {
		case e.Cancelled:
			return "cancelled"
		case e.Network:
			return "network"
		case e.Status >= 500:
			return "http_5xx"
		default:
			return "http_4xx"
		}
	}
	if err != nil {
		return "error"
	}
	if resp != nil && resp.StatusCode >= 400 {
		return "http_4xx"
	}
	return "ok"
}

func cancelReason(err error) string {
	switch {
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrCancelledAll):
		return "cancel_all"
	case errors.Is(err, ErrNoValidAuth):
		return "no_valid_auth"
	default:
		return "caller"
	}
}

// JSON sends a request with an optional JSON body and decodes the reply into out.
func (d *Dispatcher) JSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	resp, err := d.Do(ctx, &Request{Method: method, Path: path, Query: query, Body: in})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Get issues a GET and decodes the reply into out.
func (d *Dispatcher) Get(ctx context.Context, path string, query url.Values, out any) error {
	return d.JSON(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST with a JSON body and decodes the reply into out.
func (d *Dispatcher) Post(ctx context.Context, path string, in, out any) error {
	return d.JSON(ctx, http.MethodPost, path, nil, in, out)
}

// Put issues a PUT with a JSON body and decodes the reply into out.
func (d *Dispatcher) Put(ctx context.Context, path string, in, out any) error {
	return d.JSON(ctx, http.MethodPut, path, nil, in, out)
}

// Delete issues a DELETE.
func (d *Dispatcher) Delete(ctx context.Context, path string) error {
	return d.JSON(ctx, http.MethodDelete, path, nil, nil, nil)
}
