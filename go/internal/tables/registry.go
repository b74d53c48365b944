package tables

import (
	"time"

	"github.com/mcdev12/tabletimer/go/internal/models"
)

// Registry is the fixed set of tables, keyed 1..n. It does no locking of its
// own; App serializes access.
type Registry struct {
	tables []*models.Table
}

// NewRegistry creates count tables with the given countdown length.
func NewRegistry(count int, duration time.Duration, now time.Time) *Registry {
	now = now.Truncate(time.Millisecond)
	tables := make([]*models.Table, 0, count)
	for i := 1; i <= count; i++ {
		tables = append(tables, models.NewTable(i, duration, now))
	}
	return &Registry{tables: tables}
}

// Get returns the table with the given id. Absence is not an error.
func (r *Registry) Get(id int) (*models.Table, bool) {
	if id < 1 || id > len(r.tables) {
		return nil, false
	}
	return r.tables[id-1], true
}

// All returns the tables in id order.
func (r *Registry) All() []*models.Table {
	return r.tables
}

// Len returns the number of tables.
func (r *Registry) Len() int {
	return len(r.tables)
}

// Snapshot deep copies every table in id order.
func (r *Registry) Snapshot() []models.Table {
	out := make([]models.Table, len(r.tables))
	for i, t := range r.tables {
		out[i] = t.Clone()
	}
	return out
}
