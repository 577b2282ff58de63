package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/me/gochef/internal/httpclient"
)

// HealthStatus is the reachability of the auth backend.
type HealthStatus string

const (
	StatusUnknown HealthStatus = ""
	StatusOnline  HealthStatus = "online"
	StatusOffline HealthStatus = "offline"
)

// HealthResult is one probe outcome.
type HealthResult struct {
	Status    HealthStatus
	Message   string
	CheckedAt time.Time
}

// HealthConfig holds monitor configuration.
type HealthConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultHealthConfig returns sensible defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{Interval: 30 * time.Second, Timeout: 5 * time.Second}
}

// CheckHealth probes the username-availability endpoint, which needs no
// session. A 400 still proves the server is up.
func CheckHealth(ctx context.Context, d Doer, timeout time.Duration) HealthResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{"username": {"healthcheck"}}
	_, err := d.Do(ctx, &httpclient.Request{Method: http.MethodGet, Path: Prefix + "/user/check-username", Query: q})
	res := HealthResult{CheckedAt: time.Now()}
	switch {
	case err == nil, httpclient.StatusCode(err) == http.StatusBadRequest:
		res.Status = StatusOnline
		res.Message = "Backend is online and responding"
	case httpclient.IsCancel(err):
		res.Message = "Health check cancelled"
	case httpclient.IsNetwork(err):
		res.Status = StatusOffline
		res.Message = "Cannot connect to backend server. Please check if server is running."
	default:
		code := httpclient.StatusCode(err)
		res.Status = StatusOffline
		res.Message = fmt.Sprintf("Backend error: %d %s", code, http.StatusText(code))
	}
	return res
}

// Monitor probes backend health on an interval and reports status changes.
type Monitor struct {
	d        Doer
	config   HealthConfig
	onChange func(HealthResult)
	logger   *slog.Logger

	mu   sync.Mutex
	last HealthResult

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor creates a health monitor. onChange may be nil.
func NewMonitor(d Doer, cfg HealthConfig, onChange func(HealthResult), logger *slog.Logger) *Monitor {
	return &Monitor{
		d:        d,
		config:   cfg,
		onChange: onChange,
		logger:   logger.With("component", "health"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs an immediate probe and then one per interval. It blocks until
// ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	defer close(m.doneCh)
	m.Tick(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Stop ends the loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

// Tick runs one probe, notifying onChange if the status differs from the last one.
func (m *Monitor) Tick(ctx context.Context) HealthResult {
	res := CheckHealth(ctx, m.d, m.config.Timeout)
	if res.Status == StatusUnknown {
		return res
	}

	m.mu.Lock()
	changed := res.Status != m.last.Status
	m.last = res
	m.mu.Unlock()

	if changed {
		m.logger.Info("backend status changed", "status", res.Status, "message", res.Message)
		if m.onChange != nil {
			m.onChange(res)
		}
	}
	return res
}

// Last returns the most recent probe.
func (m *Monitor) Last() HealthResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
