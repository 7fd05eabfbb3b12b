package store

import (
	"context"
	"fmt"
)

// ScopeSummary describes one flushed scope in the journal.
type ScopeSummary struct {
	ScopeID  string
	Passes   int
	Groups   int
	FirstSeq int64
}

// GetLastSeq returns the highest journal seq number used in the store.
// Used to resume the engine's logical clock (engine.NewClockAt) when an
// existing database is reopened.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM touch_flushes
	`).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return maxSeq, nil
}

// ListScopes returns every scope with journal entries, ordered by the seq
// of its first entry.
func (s *Store) ListScopes(ctx context.Context) ([]ScopeSummary, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT scope_id, MAX(pass), COUNT(*), MIN(seq)
		FROM touch_flushes
		GROUP BY scope_id
		ORDER BY MIN(seq) ASC, scope_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	scopes := []ScopeSummary{}
	for rows.Next() {
		var sum ScopeSummary
		if err := rows.Scan(&sum.ScopeID, &sum.Passes, &sum.Groups, &sum.FirstSeq); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scopes: %w", err)
	}

	return scopes, nil
}
