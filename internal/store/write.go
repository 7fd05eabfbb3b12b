package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/touchdelay/internal/engine"
	"github.com/roach88/touchdelay/internal/ir"
)

// maxBulkIDs bounds the ids bound into one UPDATE statement, well under
// SQLite's host parameter limit.
const maxBulkIDs = 500

// recordType looks up a registered record type.
func (s *Store) recordType(name string) (ir.RecordType, error) {
	rt, ok := s.registry.Lookup(name)
	if !ok {
		return ir.RecordType{}, fmt.Errorf("unknown record type %q", name)
	}
	return rt, nil
}

// tableColumns returns every non-key column of a record table:
// touch columns, extra columns, then foreign keys.
func tableColumns(rt ir.RecordType) []string {
	seen := map[string]bool{rt.PrimaryKey: true}
	var cols []string
	for _, c := range append(rt.AllColumns(), rt.ForeignKeys()...) {
		if seen[c] {
			continue
		}
		seen[c] = true
		cols = append(cols, c)
	}
	return cols
}

// EnsureTable creates the table of a record type if it doesn't exist.
// This function is idempotent.
func (s *Store) EnsureTable(ctx context.Context, recordType string) error {
	rt, err := s.recordType(recordType)
	if err != nil {
		return fmt.Errorf("ensure table: %w", err)
	}

	defs := []string{quoteIdent(rt.PrimaryKey) + " TEXT PRIMARY KEY"}
	for _, c := range tableColumns(rt) {
		defs = append(defs, quoteIdent(c)+" TEXT")
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(rt.Table), strings.Join(defs, ", "))
	if _, err := s.conn(ctx).ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure table %s: %w", rt.Table, err)
	}
	return nil
}

// EnsureTables creates the tables of every registered record type.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, rt := range s.registry.Types() {
		if err := s.EnsureTable(ctx, rt.Name); err != nil {
			return err
		}
	}
	return nil
}

// InsertRow inserts a row with its timestamp columns and foreign keys.
// Uses ON CONFLICT DO NOTHING for idempotency - inserting an existing id
// is silently ignored.
func (s *Store) InsertRow(ctx context.Context, row *ir.Row) error {
	rt, err := s.recordType(row.Type)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	if row.ID == "" {
		return fmt.Errorf("insert row: %s has no id", row.Type)
	}

	cols := []string{rt.PrimaryKey}
	args := []any{row.ID}
	for _, c := range tableColumns(rt) {
		if t, ok := row.Values[c]; ok {
			cols = append(cols, c)
			args = append(args, formatTime(t))
		} else if ref, ok := row.Refs[c]; ok {
			cols = append(cols, c)
			args = append(args, ref)
		}
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		quoteIdent(rt.Table), strings.Join(quoted, ", "), placeholders(len(cols)),
	)
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert row %s %s: %w", row.Type, row.ID, err)
	}
	return nil
}

// DeleteRow deletes a row and marks it deleted in memory.
func (s *Store) DeleteRow(ctx context.Context, row *ir.Row) error {
	rt, err := s.recordType(row.Type)
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(rt.Table), quoteIdent(rt.PrimaryKey))
	if _, err := s.conn(ctx).ExecContext(ctx, query, row.ID); err != nil {
		return fmt.Errorf("delete row %s %s: %w", row.Type, row.ID, err)
	}
	row.Deleted = true
	return nil
}

// BulkUpdate sets every column in values on the rows of recordType with the
// given ids: one UPDATE ... WHERE pk IN (...) per 500 ids. Unknown columns
// are rejected before anything is written.
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

	sets := make([]string, len(cols))
	setArgs := make([]any, len(cols))
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = ?"
		setArgs[i] = formatTime(values[c])
	}

	q := s.conn(ctx)
	for start := 0; start < len(ids); start += maxBulkIDs {
		end := min(start+maxBulkIDs, len(ids))
		chunk := ids[start:end]

		query := fmt.Sprintf(
			"UPDATE %s SET %s WHERE %s IN (%s)",
			quoteIdent(rt.Table), strings.Join(sets, ", "), quoteIdent(rt.PrimaryKey), placeholders(len(chunk)),
		)
		args := append([]any{}, setArgs...)
		for _, id := range chunk {
			args = append(args, id)
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("bulk update %s: %w", recordType, err)
		}
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

// CurrentTime returns the store clock in UTC at microsecond precision,
// the precision timestamps are stored with.
//
// Implements engine.RecordStore.
func (s *Store) CurrentTime(engine.Record) time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// RecordFlush inserts a flush journal entry.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - entries are
// content-addressed, so a duplicate write is the same entry.
//
// Implements engine.Journal.
func (s *Store) RecordFlush(ctx context.Context, entry ir.FlushEntry) error {
	cols, err := marshalStrings(entry.Columns)
	if err != nil {
		return fmt.Errorf("record flush: %w", err)
	}
	ids, err := marshalStrings(entry.RecordIDs)
	if err != nil {
		return fmt.Errorf("record flush: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO touch_flushes
		(id, scope_id, pass, seq, attr_key, record_type, columns, record_ids, stamped_at, journal_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		entry.ID,
		entry.ScopeID,
		entry.Pass,
		entry.Seq,
		string(entry.AttrKey),
		entry.RecordType,
		cols,
		ids,
		formatTime(entry.StampedAt),
		ir.JournalVersion,
	)
	if err != nil {
		return fmt.Errorf("record flush: %w", err)
	}
	return nil
}
