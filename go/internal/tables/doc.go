// Package tables owns the authoritative timer and score state of every table.
//
// Timer strategy: no counter is ticked down. Each table stores the remaining
// time as of an anchor timestamp and the current value is derived on read
// (models.EffectiveRemaining). Start and Pause move the anchor forward; the
// Reconciler stops tables that reach zero and refreshes anchors about once a
// second so observers extrapolating from a snapshot never drift far.
//
// Commands and sweeps all run under App's single lock. Commands whose
// preconditions fail change nothing and return a sentinel error; they never
// panic on client input.
package tables
