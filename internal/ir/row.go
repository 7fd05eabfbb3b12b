package ir

import (
	"sort"
	"time"
)

// Row is an in-memory record loaded from (or destined for) a record store.
//
// Rows are shared by pointer: two touches of the same *Row are the same
// logical touch. Stores and workloads keep an identity map so one persisted
// record maps to one *Row.
//
// Row is not safe for concurrent mutation.
type Row struct {
	Type    string
	ID      string               // empty when never persisted or rolled back
	Values  map[string]time.Time // timestamp columns
	Refs    map[string]string    // foreign key column -> parent id
	Deleted bool

	dirty map[string]bool
}

// NewRow creates a row of the given type and id.
func NewRow(recordType, id string) *Row {
	return &Row{
		Type:   recordType,
		ID:     id,
		Values: make(map[string]time.Time),
		Refs:   make(map[string]string),
	}
}

// RecordType returns the row's record type name.
func (r *Row) RecordType() string {
	return r.Type
}

// Identity returns the primary key and whether it is set.
func (r *Row) Identity() (string, bool) {
	return r.ID, r.ID != ""
}

// IsDeleted reports whether the row was deleted.
func (r *Row) IsDeleted() bool {
	return r.Deleted
}

// SetColumn writes a timestamp column in memory and marks it dirty.
func (r *Row) SetColumn(name string, t time.Time) {
	if r.Values == nil {
		r.Values = make(map[string]time.Time)
	}
	if r.dirty == nil {
		r.dirty = make(map[string]bool)
	}
	r.Values[name] = t
	r.dirty[name] = true
}

// ClearDirty removes the dirty marker from the named columns.
func (r *Row) ClearDirty(names ...string) {
	for _, name := range names {
		delete(r.dirty, name)
	}
}

// Column returns a timestamp column value.
func (r *Row) Column(name string) (time.Time, bool) {
	t, ok := r.Values[name]
	return t, ok
}

// Ref returns the parent id stored in a foreign key column.
func (r *Row) Ref(foreignKey string) (string, bool) {
	id, ok := r.Refs[foreignKey]
	return id, ok && id != ""
}

// DirtyColumns returns the columns changed in memory since the last
// ClearDirty, sorted.
func (r *Row) DirtyColumns() []string {
	cols := make([]string, 0, len(r.dirty))
	for c := range r.dirty {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// IsDirty reports whether any column has an uncleared in-memory change.
func (r *Row) IsDirty() bool {
	return len(r.dirty) > 0
}

// ForgetIdentity clears the primary key, as happens to a new record when
// the transaction that inserted it rolls back.
func (r *Row) ForgetIdentity() {
	r.ID = ""
}
