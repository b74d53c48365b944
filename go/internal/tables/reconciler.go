package tables

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTickInterval  = 250 * time.Millisecond
	DefaultAnchorRefresh = time.Second
)

// Reconciler periodically sweeps running tables so that expiry happens on the
// server even when no client sends a command.
type Reconciler struct {
	app           *App
	clock         Clock
	interval      time.Duration
	anchorRefresh time.Duration
}

// NewReconciler creates a reconciler. Non-positive durations fall back to the
// defaults.
func NewReconciler(app *App, clock Clock, interval, anchorRefresh time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if anchorRefresh <= 0 {
		anchorRefresh = DefaultAnchorRefresh
	}
	return &Reconciler{
		app:           app,
		clock:         clock,
		interval:      interval,
		anchorRefresh: anchorRefresh,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", r.interval).
		Dur("anchor_refresh", r.anchorRefresh).
		Msg("table reconciler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("table reconciler shutting down")
			return
		case <-ticker.Chan():
			r.app.Sweep(r.anchorRefresh)
		}
	}
}
