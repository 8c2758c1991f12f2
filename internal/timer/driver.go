// Package timer drives the per-question countdowns. A single driver ticks
// every open session once per second; the engine decides what a tick means.
package timer

import (
	"context"
	"log/slog"
	"time"
)

// Ticker is the engine operation the driver invokes for each open session.
type Ticker interface {
	Tick(ctx context.Context, sessionID string) error
}

// SessionLister enumerates the sessions that currently have a live question.
type SessionLister interface {
	OpenSessions() []string
}

// Driver ticks every open session at a fixed interval.
type Driver struct {
	sessions SessionLister
	engine   Ticker
	interval time.Duration
	logger   *slog.Logger
}

// NewDriver creates a Driver. If interval is <= 0, it defaults to one second,
// matching the one-second countdown granularity.
func NewDriver(sessions SessionLister, engine Ticker, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = time.Second
	}
	return &Driver{
		sessions: sessions,
		engine:   engine,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run ticks open sessions until ctx is cancelled. Tick failures are logged
// and never stop the loop; the next second always comes.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce ticks every open session exactly once.
func (d *Driver) RunOnce(ctx context.Context) {
	for _, id := range d.sessions.OpenSessions() {
		if ctx.Err() != nil {
			return
		}
		if err := d.engine.Tick(ctx, id); err != nil {
			d.logger.Error("session tick failed", "session_id", id, "error", err)
		}
	}
}
