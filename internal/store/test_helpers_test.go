package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/touchdelay/internal/ir"
)

// testRegistry describes a blog: comments belong to posts.
func testRegistry() *ir.Registry {
	return ir.MustRegistry(
		ir.RecordType{
			Name:         "Post",
			Table:        "posts",
			PrimaryKey:   "id",
			TouchColumns: []string{"updated_at"},
		},
		ir.RecordType{
			Name:         "Comment",
			Table:        "comments",
			PrimaryKey:   "id",
			TouchColumns: []string{"updated_at"},
			Columns:      []string{"seen_at"},
			BelongsTo:    []ir.BelongsTo{{Type: "Post", ForeignKey: "post_id", Touch: true}},
		},
	)
}

// fixedNow is the store clock used by tests.
var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

// createTestStore creates a new file-backed store with record tables.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, testRegistry(), WithNow(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureTables(context.Background()); err != nil {
		t.Fatalf("EnsureTables() failed: %v", err)
	}
	return s
}

// seedRow inserts a row and fails the test on error.
func seedRow(t *testing.T, s *Store, recordType, id string) *ir.Row {
	t.Helper()
	row := ir.NewRow(recordType, id)
	if err := s.InsertRow(context.Background(), row); err != nil {
		t.Fatalf("InsertRow(%s, %s) failed: %v", recordType, id, err)
	}
	return row
}
