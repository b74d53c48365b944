package tables

import "errors"

// Commands that fail a precondition leave state untouched and return one of
// these. Callers are free to ignore them.
var (
	ErrTableNotFound  = errors.New("table not found")
	ErrInvalidTeam    = errors.New("invalid team")
	ErrAlreadyRunning = errors.New("timer already running")
	ErrNotRunning     = errors.New("timer not running")
	ErrTimeExpired    = errors.New("no time remaining")
	ErrBlankName      = errors.New("team name is blank")
)
