// Package redisstore keeps touchdelay records in Redis hashes.
//
// Each record is a hash at "{<table>}:<id>" holding the primary key, the
// timestamp columns (UTC RFC 3339, microsecond precision) and foreign keys.
// The hash tag puts one table in one cluster slot, so a bulk update can
// address all of its keys from a single script.
//
// Redis has no transactions spanning the engine's flush passes; pair this
// store with engine.NoTx.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/touchdelay/internal/engine"
	"github.com/roach88/touchdelay/internal/ir"
)

// ErrNotFound is returned when a record hash does not exist.
var ErrNotFound = errors.New("not found")

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// bulkUpdateScript stamps the fields in ARGV (name, value pairs) onto every
// key in KEYS that exists, and returns how many keys it stamped. Missing
// keys are skipped so a touch never resurrects a deleted record.
const bulkUpdateScript = `
local stamped = 0
for _, key in ipairs(KEYS) do
  if redis.call('EXISTS', key) == 1 then
    for i = 1, #ARGV, 2 do
      redis.call('HSET', key, ARGV[i], ARGV[i + 1])
    end
    stamped = stamped + 1
  end
end
return stamped
`

// Store is the Redis record store.
type Store struct {
	client   Client
	registry *ir.Registry
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow sets the wall clock used for touch timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a store over client serving the record types of registry.
func New(client Client, registry *ir.Registry, opts ...Option) *Store {
	if registry == nil {
		registry = ir.MustRegistry()
	}
	s := &Store{client: client, registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the record types this store serves.
func (s *Store) Registry() *ir.Registry {
	return s.registry
}

// RecordKey returns the hash key of a record.
func RecordKey(table, id string) string {
	return fmt.Sprintf("{%s}:%s", table, id)
}

func (s *Store) recordType(name string) (ir.RecordType, error) {
	rt, ok := s.registry.Lookup(name)
	if !ok {
		return ir.RecordType{}, fmt.Errorf("unknown record type %q", name)
	}
	return rt, nil
}

// EnsureTable validates recordType. Hashes need no schema.
func (s *Store) EnsureTable(_ context.Context, recordType string) error {
	if _, err := s.recordType(recordType); err != nil {
		return fmt.Errorf("ensure table: %w", err)
	}
	return nil
}

// InsertRow writes a row hash.
func (s *Store) InsertRow(ctx context.Context, row *ir.Row) error {
	rt, err := s.recordType(row.Type)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	if row.ID == "" {
		return fmt.Errorf("insert row: %s has no id", row.Type)
	}

	fields := map[string]string{rt.PrimaryKey: row.ID}
	for col, t := range row.Values {
		fields[col] = formatTime(t)
	}
	for fk, ref := range row.Refs {
		if ref != "" {
			fields[fk] = ref
		}
	}

	if err := s.client.HSet(ctx, RecordKey(rt.Table, row.ID), fields); err != nil {
		return fmt.Errorf("insert row %s %s: %w", row.Type, row.ID, err)
	}
	return nil
}

// LoadRow reads a row hash.
// Returns an error wrapping ErrNotFound if the hash does not exist.
func (s *Store) LoadRow(ctx context.Context, recordType, id string) (*ir.Row, error) {
	rt, err := s.recordType(recordType)
	if err != nil {
		return nil, fmt.Errorf("load row: %w", err)
	}

	fields, err := s.client.HGetAll(ctx, RecordKey(rt.Table, id))
	if err != nil {
		return nil, fmt.Errorf("load row %s %s: %w", recordType, id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("load row %s %s: %w", recordType, id, ErrNotFound)
	}

	row := ir.NewRow(rt.Name, id)
	for _, fk := range rt.ForeignKeys() {
		if ref, ok := fields[fk]; ok {
			row.Refs[fk] = ref
		}
	}
	for _, col := range rt.AllColumns() {
		raw, ok := fields[col]
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("load row %s %s: column %s: %w", recordType, id, col, err)
		}
		row.Values[col] = t.UTC()
	}
	return row, nil
}

// DeleteRow removes a row hash and marks the row deleted in memory.
func (s *Store) DeleteRow(ctx context.Context, row *ir.Row) error {
	rt, err := s.recordType(row.Type)
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	if err := s.client.Del(ctx, RecordKey(rt.Table, row.ID)); err != nil {
		return fmt.Errorf("delete row %s %s: %w", row.Type, row.ID, err)
	}
	row.Deleted = true
	return nil
}

// BulkUpdate stamps values onto the records of recordType with the given
// ids in one EVAL.
//
// Implements engine.RecordStore.
func (s *Store) BulkUpdate(ctx context.Context, recordType string, ids []string, values map[string]time.Time) error {
	rt, err := s.recordType(recordType)
	if err != nil {
		return fmt.Errorf("bulk update: %w", err)
	}
	if len(ids) == 0 || len(values) == 0 {
		return nil
	}

	cols := make([]string, 0, len(values))
	for c := range values {
		if !rt.HasColumn(c) {
			return fmt.Errorf("bulk update %s: unknown column %q", recordType, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = RecordKey(rt.Table, id)
	}
	args := make([]any, 0, len(cols)*2)
	for _, c := range cols {
		args = append(args, c, formatTime(values[c]))
	}

	if _, err := s.client.Eval(ctx, bulkUpdateScript, keys, args...); err != nil {
		return fmt.Errorf("bulk update %s: redis eval: %w", recordType, err)
	}
	return nil
}

// TouchColumns returns the touch columns of recordType.
//
// Implements engine.RecordStore.
func (s *Store) TouchColumns(recordType string) []string {
	rt, ok := s.registry.Lookup(recordType)
	if !ok {
		return nil
	}
	return rt.TouchColumns
}

// CurrentTime returns the store clock in UTC at microsecond precision.
//
// Implements engine.RecordStore.
func (s *Store) CurrentTime(engine.Record) time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(timeLayout)
}

var _ engine.RecordStore = (*Store)(nil)
