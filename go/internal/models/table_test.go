package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

func TestNewTableDefaults(t *testing.T) {
	tbl := NewTable(2, 5*time.Minute, epoch)

	assert.Equal(t, 2, tbl.ID)
	assert.Equal(t, int64(300000), tbl.DurationMs)
	assert.Equal(t, int64(300000), tbl.RemainingMs)
	assert.False(t, tbl.Running)
	assert.Equal(t, epoch, tbl.LastUpdated)
	assert.Equal(t, DefaultTeamAName, tbl.TeamA.Name)
	assert.Equal(t, DefaultTeamBName, tbl.TeamB.Name)
	assert.Nil(t, tbl.TeamA.LastGoalMs)
	assert.Nil(t, tbl.TeamB.LastGoalMs)
}

func TestEffectiveRemainingStoppedReturnsAnchor(t *testing.T) {
	tbl := NewTable(1, 5*time.Minute, epoch)
	tbl.RemainingMs = 123456

	assert.Equal(t, int64(123456), EffectiveRemaining(*tbl, epoch.Add(time.Hour)))
}

func TestEffectiveRemainingRunning(t *testing.T) {
	tbl := NewTable(1, 5*time.Minute, epoch)
	tbl.Running = true

	assert.Equal(t, int64(300000), EffectiveRemaining(*tbl, epoch))
	assert.Equal(t, int64(288000), EffectiveRemaining(*tbl, epoch.Add(12*time.Second)))
	assert.Equal(t, int64(0), EffectiveRemaining(*tbl, epoch.Add(5*time.Minute)))
	assert.Equal(t, int64(0), EffectiveRemaining(*tbl, epoch.Add(time.Hour)))
}

func TestEffectiveRemainingNeverExceedsAnchor(t *testing.T) {
	tbl := NewTable(1, 5*time.Minute, epoch)
	tbl.Running = true
	tbl.RemainingMs = 1000

	// A clock that reads earlier than the anchor must not add time back.
	assert.Equal(t, int64(1000), EffectiveRemaining(*tbl, epoch.Add(-time.Minute)))
}

func TestEffectiveRemainingBoundedAndMonotonic(t *testing.T) {
	tbl := NewTable(1, 90*time.Second, epoch)
	tbl.Running = true
	tbl.RemainingMs = 60000

	prev := EffectiveRemaining(*tbl, epoch)
	for step := 0; step <= 200; step++ {
		now := epoch.Add(time.Duration(step) * 437 * time.Millisecond)
		got := EffectiveRemaining(*tbl, now)

		require.GreaterOrEqual(t, got, int64(0))
		require.LessOrEqual(t, got, tbl.DurationMs)
		require.LessOrEqual(t, got, prev, "remaining increased at step %d", step)
		prev = got
	}
	assert.Equal(t, int64(0), prev)
}

func TestEffectiveRemainingDoesNotMutate(t *testing.T) {
	tbl := NewTable(1, 5*time.Minute, epoch)
	tbl.Running = true

	_ = tbl.EffectiveRemaining(epoch.Add(30 * time.Second))

	assert.Equal(t, int64(300000), tbl.RemainingMs)
	assert.Equal(t, epoch, tbl.LastUpdated)
}

func TestAnchor(t *testing.T) {
	tbl := NewTable(1, 5*time.Minute, epoch)
	tbl.Running = true
	now := epoch.Add(20 * time.Second)

	tbl.Anchor(now)

	assert.Equal(t, int64(280000), tbl.RemainingMs)
	assert.Equal(t, now, tbl.LastUpdated)
	assert.True(t, tbl.Running)
}

func TestPhase(t *testing.T) {
	tbl := NewTable(1, 5*time.Minute, epoch)
	assert.Equal(t, TablePhaseStopped, tbl.Phase(epoch))

	tbl.Running = true
	assert.Equal(t, TablePhaseRunning, tbl.Phase(epoch))

	tbl.Running = false
	tbl.RemainingMs = 0
	assert.Equal(t, TablePhaseExpired, tbl.Phase(epoch))
}

func TestResetKeepingNames(t *testing.T) {
	tbl := NewTable(1, 5*time.Minute, epoch)
	goal := int64(12000)
	tbl.TeamA = TeamState{Name: "Kicker", Score: 3, LastGoalMs: &goal}
	tbl.TeamB = TeamState{Name: "Wall", Score: 1}
	tbl.Running = true
	tbl.RemainingMs = 5000

	later := epoch.Add(time.Minute)
	tbl.ResetKeepingNames(later)

	assert.Equal(t, TeamState{Name: "Kicker"}, tbl.TeamA)
	assert.Equal(t, TeamState{Name: "Wall"}, tbl.TeamB)
	assert.False(t, tbl.Running)
	assert.Equal(t, tbl.DurationMs, tbl.RemainingMs)
	assert.Equal(t, later, tbl.LastUpdated)
}

func TestCloneIsDeep(t *testing.T) {
	tbl := NewTable(1, 5*time.Minute, epoch)
	goal := int64(4000)
	tbl.TeamA.LastGoalMs = &goal

	c := tbl.Clone()
	*tbl.TeamA.LastGoalMs = 9000
	tbl.TeamA.Name = "Changed"

	require.NotNil(t, c.TeamA.LastGoalMs)
	assert.Equal(t, int64(4000), *c.TeamA.LastGoalMs)
	assert.Equal(t, DefaultTeamAName, c.TeamA.Name)
}

func TestNormalizeTeamName(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "trimmed", input: "  Blue  ", want: "Blue", wantOK: true},
		{name: "blank", input: "   ", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "capped", input: strings.Repeat("x", 55), want: strings.Repeat("x", 40), wantOK: true},
		{name: "capped by runes", input: strings.Repeat("ü", 41), want: strings.Repeat("ü", 40), wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTeamName(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTeam(t *testing.T) {
	team, ok := ParseTeam("A")
	assert.True(t, ok)
	assert.Equal(t, TeamA, team)

	team, ok = ParseTeam("B")
	assert.True(t, ok)
	assert.Equal(t, TeamB, team)

	_, ok = ParseTeam("a")
	assert.False(t, ok)
	_, ok = ParseTeam("")
	assert.False(t, ok)
}
