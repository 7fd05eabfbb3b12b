package ir

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AttrKey groups pending touches.
// DefaultAttr stamps only the record type's touch columns; any other value
// names one extra column to stamp alongside them.
type AttrKey string

// DefaultAttr is the attribute key used when a touch names no column.
const DefaultAttr AttrKey = ""

// NewAttrKey normalizes a caller-supplied attribute name (NFC, trimmed).
func NewAttrKey(name string) AttrKey {
	return AttrKey(strings.TrimSpace(norm.NFC.String(name)))
}

// IsDefault reports whether the key stamps only default touch columns.
func (k AttrKey) IsDefault() bool {
	return k == DefaultAttr
}

// String returns the column name, or "<default>" for DefaultAttr.
func (k AttrKey) String() string {
	if k == DefaultAttr {
		return "<default>"
	}
	return string(k)
}

// RecordType describes a persisted record class (one table).
type RecordType struct {
	Name         string      `json:"name"`
	Table        string      `json:"table"`
	PrimaryKey   string      `json:"primary_key"`
	TouchColumns []string    `json:"touch_columns"`     // stamped by every touch
	Columns      []string    `json:"columns,omitempty"` // extra stampable columns
	BelongsTo    []BelongsTo `json:"belongs_to,omitempty"`
}

// BelongsTo links a record type to a parent record type through a foreign key.
// When Touch is set, touching the child touches the parent (cascading touch).
type BelongsTo struct {
	Type       string `json:"type"`
	ForeignKey string `json:"foreign_key"`
	Touch      bool   `json:"touch"`
}

// AllColumns returns the touch columns followed by the extra columns,
// without duplicates, in declaration order.
func (rt RecordType) AllColumns() []string {
	seen := make(map[string]bool, len(rt.TouchColumns)+len(rt.Columns))
	cols := make([]string, 0, len(rt.TouchColumns)+len(rt.Columns))
	for _, c := range append(append([]string{}, rt.TouchColumns...), rt.Columns...) {
		if seen[c] {
			continue
		}
		seen[c] = true
		cols = append(cols, c)
	}
	return cols
}

// ForeignKeys returns the foreign key columns of all belongs_to links.
func (rt RecordType) ForeignKeys() []string {
	keys := make([]string, 0, len(rt.BelongsTo))
	for _, b := range rt.BelongsTo {
		keys = append(keys, b.ForeignKey)
	}
	return keys
}

// HasColumn reports whether name is a touch column or an extra column.
func (rt RecordType) HasColumn(name string) bool {
	for _, c := range rt.AllColumns() {
		if c == name {
			return true
		}
	}
	return false
}

// Registry holds record types by name.
type Registry struct {
	types map[string]RecordType
	order []string // declaration order
}

// NewRegistry creates a registry from record types.
// Returns an error on duplicate names.
func NewRegistry(types ...RecordType) (*Registry, error) {
	r := &Registry{types: make(map[string]RecordType, len(types))}
	for _, rt := range types {
		if err := r.Add(rt); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRegistry(types ...RecordType) *Registry {
	r, err := NewRegistry(types...)
	if err != nil {
		panic(err)
	}
	return r
}

// Add registers a record type.
func (r *Registry) Add(rt RecordType) error {
	if rt.Name == "" {
		return fmt.Errorf("record type name is required")
	}
	if _, exists := r.types[rt.Name]; exists {
		return fmt.Errorf("record type %q registered twice", rt.Name)
	}
	r.types[rt.Name] = rt
	r.order = append(r.order, rt.Name)
	return nil
}

// Lookup returns the record type with the given name.
func (r *Registry) Lookup(name string) (RecordType, bool) {
	if r == nil {
		return RecordType{}, false
	}
	rt, ok := r.types[name]
	return rt, ok
}

// Types returns all record types in declaration order.
func (r *Registry) Types() []RecordType {
	if r == nil {
		return nil
	}
	out := make([]RecordType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// Names returns the sorted record type names.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
