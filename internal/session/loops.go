package session

import (
	"context"
	"errors"
	"time"

	"github.com/me/gochef/internal/events"
)

// Start subscribes to the bus and router and launches the background
// loops: profile refresh, ban polling and, when configured, server push.
// It returns immediately; Stop tears everything down.
func (c *Controller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.baseCtx = ctx
	c.cancel = cancel
	c.mu.Unlock()

	c.unsubs = append(c.unsubs,
		c.deps.Bus.Subscribe(events.AuthStateChanged, c.handleAuthEvent),
		c.deps.Router.OnChange(c.routeChanged),
	)

	c.wg.Add(2)
	go c.refreshLoop(ctx)
	go c.banLoop(ctx)

	if c.push != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.push.Run(ctx, c.HandlePush)
		}()
	}

	c.logger.Info("session started",
		"refresh_interval", c.cfg.RefreshInterval,
		"ban_check_delay", c.cfg.BanCheckDelay,
		"ban_check_interval", c.cfg.BanCheckInterval,
		"push", c.push != nil)
	return nil
}

func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseCtx
}

// Stop ends the loops and detaches from the bus and router.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	for _, u := range c.unsubs {
		u()
	}
	c.unsubs = nil
	c.logger.Info("session stopped")
}

func (c *Controller) refreshLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil {
				c.logger.Warn("periodic refresh", "error", err)
			}
		}
	}
}

// banLoop polls once after the initial delay and then on every interval.
func (c *Controller) banLoop(ctx context.Context) {
	defer c.wg.Done()
	delay := time.NewTimer(c.cfg.BanCheckDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-delay.C:
		c.banTick(ctx)
	}

	ticker := time.NewTicker(c.cfg.BanCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.banTick(ctx)
		}
	}
}

func (c *Controller) banTick(ctx context.Context) {
	if err := c.CheckBanStatus(ctx); err != nil && !errors.Is(err, ErrBanned) {
		c.logger.Warn("ban check", "error", err)
	}
}
