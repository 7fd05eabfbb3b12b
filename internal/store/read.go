package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/touchdelay/internal/ir"
)

// ErrNotFound is returned when a row or journal entry does not exist.
var ErrNotFound = errors.New("not found")

// LoadRow reads a row by id. Unset timestamp columns and foreign keys are
// left out of Values and Refs.
//
// Returns an error wrapping ErrNotFound if the row does not exist.
func (s *Store) LoadRow(ctx context.Context, recordType, id string) (*ir.Row, error) {
	rt, err := s.recordType(recordType)
	if err != nil {
		return nil, fmt.Errorf("load row: %w", err)
	}

	cols := tableColumns(rt)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	selectList := quoteIdent(rt.PrimaryKey)
	if len(quoted) > 0 {
		selectList += ", " + strings.Join(quoted, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", selectList, quoteIdent(rt.Table), quoteIdent(rt.PrimaryKey))

	var pk string
	raw := make([]sql.NullString, len(cols))
	dest := []any{&pk}
	for i := range raw {
		dest = append(dest, &raw[i])
	}

	err = s.conn(ctx).QueryRowContext(ctx, query, id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load row %s %s: %w", recordType, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load row %s %s: %w", recordType, id, err)
	}

	fks := make(map[string]bool, len(rt.BelongsTo))
	for _, fk := range rt.ForeignKeys() {
		fks[fk] = true
	}

	row := ir.NewRow(rt.Name, pk)
	for i, c := range cols {
		if !raw[i].Valid {
			continue
		}
		if fks[c] && !rt.HasColumn(c) {
			row.Refs[c] = raw[i].String
			continue
		}
		t, err := parseTime(raw[i].String)
		if err != nil {
			return nil, fmt.Errorf("load row %s %s: column %s: %w", recordType, id, c, err)
		}
		row.Values[c] = t
	}
	return row, nil
}

// ReadFlushes returns the journal entries of one scope.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the scope has no entries.
func (s *Store) ReadFlushes(ctx context.Context, scopeID string) ([]ir.FlushEntry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, scope_id, pass, seq, attr_key, record_type, columns, record_ids, stamped_at
		FROM touch_flushes
		WHERE scope_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("query flushes: %w", err)
	}
	defer rows.Close()

	entries := []ir.FlushEntry{}
	for rows.Next() {
		entry, err := scanFlushEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flushes: %w", err)
	}

	return entries, nil
}

// ReadFlush returns one journal entry by id.
// Returns an error wrapping ErrNotFound if the entry does not exist.
func (s *Store) ReadFlush(ctx context.Context, id string) (ir.FlushEntry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, scope_id, pass, seq, attr_key, record_type, columns, record_ids, stamped_at
		FROM touch_flushes
		WHERE id = ?
	`, id)
	if err != nil {
		return ir.FlushEntry{}, fmt.Errorf("query flush: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ir.FlushEntry{}, fmt.Errorf("query flush: %w", err)
		}
		return ir.FlushEntry{}, fmt.Errorf("flush %s: %w", id, ErrNotFound)
	}
	return scanFlushEntry(rows)
}

// scanFlushEntry scans a journal row.
func scanFlushEntry(rows *sql.Rows) (ir.FlushEntry, error) {
	var (
		entry     ir.FlushEntry
		attrKey   string
		cols      string
		ids       string
		stampedAt string
	)
	if err := rows.Scan(
		&entry.ID,
		&entry.ScopeID,
		&entry.Pass,
		&entry.Seq,
		&attrKey,
		&entry.RecordType,
		&cols,
		&ids,
		&stampedAt,
	); err != nil {
		return ir.FlushEntry{}, fmt.Errorf("scan flush: %w", err)
	}

	var err error
	entry.AttrKey = ir.AttrKey(attrKey)
	if entry.Columns, err = unmarshalStrings(cols); err != nil {
		return ir.FlushEntry{}, fmt.Errorf("scan flush %s: %w", entry.ID, err)
	}
	if entry.RecordIDs, err = unmarshalStrings(ids); err != nil {
		return ir.FlushEntry{}, fmt.Errorf("scan flush %s: %w", entry.ID, err)
	}
	if entry.StampedAt, err = parseTime(stampedAt); err != nil {
		return ir.FlushEntry{}, fmt.Errorf("scan flush %s: %w", entry.ID, err)
	}
	return entry, nil
}
