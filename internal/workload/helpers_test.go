package workload

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/touchdelay/internal/engine"
	"github.com/roach88/touchdelay/internal/ir"
	"github.com/roach88/touchdelay/internal/store"
	"github.com/roach88/touchdelay/internal/testutil"
)

func blogRegistry() *ir.Registry {
	return ir.MustRegistry(
		ir.RecordType{Name: "Post", Table: "posts", PrimaryKey: "id", TouchColumns: []string{"updated_at"}},
		ir.RecordType{
			Name: "Comment", Table: "comments", PrimaryKey: "id",
			TouchColumns: []string{"updated_at"},
			Columns:      []string{"seen_at"},
			BelongsTo:    []ir.BelongsTo{{Type: "Post", ForeignKey: "post_id", Touch: true}},
		},
		ir.RecordType{
			Name: "Tag", Table: "tags", PrimaryKey: "id",
			TouchColumns: []string{"updated_at"},
			BelongsTo:    []ir.BelongsTo{{Type: "Tag", ForeignKey: "parent_id", Touch: true}},
		},
	)
}

// at returns the n-th instant of the test clock.
func at(n int) time.Time {
	return testutil.DefaultEpoch.Add(time.Duration(n) * time.Second)
}

func newSQLiteRunner(t *testing.T) (*Runner, *store.Store) {
	t.Helper()
	clock := testutil.NewDeterministicClock(time.Time{}, time.Second)
	s, err := store.Open(":memory:", blogRegistry(), store.WithNow(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	r := NewRunner(s,
		WithTxManager(s),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEngineOptions(
			engine.WithJournal(s),
			engine.WithScopeIDGenerator(testutil.NewSequentialScopeIDs("scope")),
		),
	)
	return r, s
}

func mustParse(t *testing.T, src string) *Workload {
	t.Helper()
	w, err := Parse([]byte(src))
	require.NoError(t, err)
	return w
}

func kinds(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Kind
		if len(e.IDs) > 0 {
			out[i] += " " + e.RecordType + ":" + strings.Join(e.IDs, ",")
		}
	}
	return out
}
