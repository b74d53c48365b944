package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Team identifies one side of a table.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// ParseTeam converts the wire value into a Team.
func ParseTeam(s string) (Team, bool) {
	switch Team(s) {
	case TeamA, TeamB:
		return Team(s), true
	default:
		return "", false
	}
}

const (
	// MaxTeamNameLength is the rune cap applied to a trimmed team name.
	MaxTeamNameLength = 40

	DefaultTeamAName = "Team A"
	DefaultTeamBName = "Team B"
)

// TablePhase is the observable timer state of a table.
type TablePhase string

const (
	TablePhaseStopped TablePhase = "STOPPED"
	TablePhaseRunning TablePhase = "RUNNING"
	TablePhaseExpired TablePhase = "EXPIRED"
)

// TeamState holds a team's name and the score of the current epoch.
type TeamState struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	// LastGoalMs is the countdown time elapsed, in whole seconds expressed as
	// milliseconds, at which this team last scored. Nil until the first goal.
	LastGoalMs *int64 `json:"lastGoalMs"`
}

// Table is the authoritative timer and score state of one physical table.
//
// RemainingMs is only exact as of LastUpdated. While Running, callers must use
// EffectiveRemaining to read the current value.
type Table struct {
	ID          int
	DurationMs  int64
	RemainingMs int64
	Running     bool
	LastUpdated time.Time
	TeamA       TeamState
	TeamB       TeamState
}

// NewTable creates a stopped table with a full countdown and default team names.
func NewTable(id int, duration time.Duration, now time.Time) *Table {
	ms := duration.Milliseconds()
	return &Table{
		ID:          id,
		DurationMs:  ms,
		RemainingMs: ms,
		LastUpdated: now,
		TeamA:       TeamState{Name: DefaultTeamAName},
		TeamB:       TeamState{Name: DefaultTeamBName},
	}
}

// EffectiveRemaining derives the current remaining time in milliseconds from
// the table's anchor. It never mutates the table and always returns a value in
// [0, DurationMs].
func EffectiveRemaining(t Table, now time.Time) int64 {
	remaining := t.RemainingMs
	if t.Running {
		elapsed := now.Sub(t.LastUpdated).Milliseconds()
		if elapsed > 0 {
			remaining -= elapsed
		}
	}
	if remaining < 0 {
		return 0
	}
	if remaining > t.DurationMs {
		return t.DurationMs
	}
	return remaining
}

// EffectiveRemaining is a convenience wrapper around the package function.
func (t *Table) EffectiveRemaining(now time.Time) int64 {
	return EffectiveRemaining(*t, now)
}

// Anchor fixes the effective remaining time as the new anchor at now.
func (t *Table) Anchor(now time.Time) {
	t.RemainingMs = EffectiveRemaining(*t, now)
	t.LastUpdated = now
}

// ElapsedMs returns how much of the countdown has been consumed in this epoch.
func (t *Table) ElapsedMs(now time.Time) int64 {
	return t.DurationMs - EffectiveRemaining(*t, now)
}

// Phase reports the derived timer state at now.
func (t *Table) Phase(now time.Time) TablePhase {
	if t.Running {
		return TablePhaseRunning
	}
	if EffectiveRemaining(*t, now) == 0 {
		return TablePhaseExpired
	}
	return TablePhaseStopped
}

// Team returns the state of the given side.
func (t *Table) Team(team Team) *TeamState {
	if team == TeamB {
		return &t.TeamB
	}
	return &t.TeamA
}

// ResetKeepingNames starts a new epoch: full duration, stopped, scores and
// goal marks cleared. Team names survive.
func (t *Table) ResetKeepingNames(now time.Time) {
	nameA, nameB := t.TeamA.Name, t.TeamB.Name
	t.RemainingMs = t.DurationMs
	t.Running = false
	t.LastUpdated = now
	t.TeamA = TeamState{Name: nameA}
	t.TeamB = TeamState{Name: nameB}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t *Table) Clone() Table {
	c := *t
	c.TeamA.LastGoalMs = cloneInt64(t.TeamA.LastGoalMs)
	c.TeamB.LastGoalMs = cloneInt64(t.TeamB.LastGoalMs)
	return c
}

// NormalizeTeamName trims the name and caps it at MaxTeamNameLength runes.
// The second return value is false when nothing is left after trimming.
func NormalizeTeamName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if utf8.RuneCountInString(name) > MaxTeamNameLength {
		name = string([]rune(name)[:MaxTeamNameLength])
	}
	return name, true
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
