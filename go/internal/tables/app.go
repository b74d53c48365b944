package tables

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tabletimer/go/internal/models"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Snapshot is a deep copy of every table taken right after a change.
// Version increases by one with every change so observers can discard stale
// snapshots that arrive out of order.
type Snapshot struct {
	Version uint64
	TakenAt time.Time
	Tables  []models.Table
}

// Notifier receives a snapshot after every state change. It is called while
// the state lock is held so snapshots arrive in version order; implementations
// must not block.
type Notifier interface {
	BroadcastState(snapshot Snapshot)
}

type noopNotifier struct{}

func (noopNotifier) BroadcastState(Snapshot) {}

// App applies table commands and reconciliation sweeps. All mutations run
// one at a time under a single lock.
type App struct {
	mu       sync.Mutex
	registry *Registry
	clock    Clock
	notifier Notifier
	version  uint64
}

// NewApp creates a new tables App. A nil notifier discards broadcasts.
func NewApp(registry *Registry, clock Clock, notifier Notifier) *App {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &App{
		registry: registry,
		clock:    clock,
		notifier: notifier,
	}
}

// SetNotifier replaces the broadcast target. Used during wiring when the
// notifier itself needs the App.
func (a *App) SetNotifier(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n == nil {
		n = noopNotifier{}
	}
	a.notifier = n
}

// Snapshot returns the current state without changing it.
func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Version: a.version,
		TakenAt: a.now(),
		Tables:  a.registry.Snapshot(),
	}
}

// Start resumes a stopped table that still has time left.
func (a *App) Start(tableID int) error {
	return a.mutate(tableID, func(t *models.Table, now time.Time) error {
		if t.Running {
			return ErrAlreadyRunning
		}
		if t.EffectiveRemaining(now) == 0 {
			return ErrTimeExpired
		}
		t.Anchor(now)
		t.Running = true
		return nil
	})
}

// Pause freezes a running table at its effective remaining time.
func (a *App) Pause(tableID int) error {
	return a.mutate(tableID, func(t *models.Table, now time.Time) error {
		if !t.Running {
			return ErrNotRunning
		}
		t.Anchor(now)
		t.Running = false
		return nil
	})
}

// Reset starts a new epoch on one table, keeping team names.
func (a *App) Reset(tableID int) error {
	return a.mutate(tableID, func(t *models.Table, now time.Time) error {
		t.ResetKeepingNames(now)
		return nil
	})
}

// ResetAll resets every table and broadcasts once.
func (a *App) ResetAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for _, t := range a.registry.All() {
		t.ResetKeepingNames(now)
	}
	log.Debug().Int("tables", a.registry.Len()).Msg("all tables reset")
	a.publishLocked(now)
	return nil
}

// Rename sets a team's display name. Blank names are ignored.
func (a *App) Rename(tableID int, team models.Team, name string) error {
	if _, ok := models.ParseTeam(string(team)); !ok {
		return ErrInvalidTeam
	}
	normalized, ok := models.NormalizeTeamName(name)
	return a.mutate(tableID, func(t *models.Table, _ time.Time) error {
		if !ok {
			return ErrBlankName
		}
		t.Team(team).Name = normalized
		return nil
	})
}

// Goal credits a team and records the countdown time elapsed in this epoch,
// rounded down to whole seconds.
func (a *App) Goal(tableID int, team models.Team) error {
	if _, ok := models.ParseTeam(string(team)); !ok {
		return ErrInvalidTeam
	}
	return a.mutate(tableID, func(t *models.Table, now time.Time) error {
		elapsed := t.ElapsedMs(now) / 1000 * 1000
		if elapsed < 0 {
			elapsed = 0
		}
		ts := t.Team(team)
		ts.Score++
		ts.LastGoalMs = &elapsed
		return nil
	})
}

// Sweep reconciles running timers against the clock: tables that reached zero
// are stopped, and anchors older than refreshAfter are moved forward. It
// broadcasts once if anything changed and reports the number of tables touched.
func (a *App) Sweep(refreshAfter time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	changed := 0
	for _, t := range a.registry.All() {
		if !t.Running {
			continue
		}
		remaining := t.EffectiveRemaining(now)
		switch {
		case remaining == 0:
			t.Running = false
			t.RemainingMs = 0
			t.LastUpdated = now
			changed++
			log.Info().
				Int("table_id", t.ID).
				Int("score_a", t.TeamA.Score).
				Int("score_b", t.TeamB.Score).
				Msg("table timer expired")
		case now.Sub(t.LastUpdated) >= refreshAfter:
			t.RemainingMs = remaining
			t.LastUpdated = now
			changed++
		}
	}

	if changed > 0 {
		a.publishLocked(now)
	}
	return changed
}

// mutate runs fn against one table under the lock and broadcasts if fn
// reports success.
func (a *App) mutate(tableID int, fn func(t *models.Table, now time.Time) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.registry.Get(tableID)
	if !ok {
		return ErrTableNotFound
	}

	now := a.now()
	if err := fn(t, now); err != nil {
		return err
	}

	log.Debug().
		Int("table_id", t.ID).
		Bool("running", t.Running).
		Int64("remaining_ms", t.RemainingMs).
		Msg("table updated")
	a.publishLocked(now)
	return nil
}

// now reads the clock at millisecond precision. Anchors are kept in whole
// milliseconds so re-anchoring never discards a fraction of elapsed time.
func (a *App) now() time.Time {
	return a.clock.Now().Truncate(time.Millisecond)
}

func (a *App) publishLocked(now time.Time) {
	a.version++
	a.notifier.BroadcastState(Snapshot{
		Version: a.version,
		TakenAt: now,
		Tables:  a.registry.Snapshot(),
	})
}
