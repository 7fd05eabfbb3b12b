package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAtomically_CommitRunsHooks(t *testing.T) {
	s := createTestStore(t)
	seedRow(t, s, "Post", "p1")
	ctx := context.Background()

	var hooks []string
	err := s.RunAtomically(ctx, func(ctx context.Context) error {
		assert.True(t, s.HasOpenTransaction(ctx))
		s.DeferCommit(ctx, func(context.Context) { hooks = append(hooks, "committed") })
		assert.Empty(t, hooks, "hooks wait for commit")
		return s.BulkUpdate(ctx, "Post", []string{"p1"}, map[string]time.Time{"updated_at": fixedNow})
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"committed"}, hooks)
	assert.False(t, s.HasOpenTransaction(ctx))

	row, err := s.LoadRow(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.Contains(t, row.Values, "updated_at")
}

func TestRunAtomically_RollbackDropsHooksAndWrites(t *testing.T) {
	s := createTestStore(t)
	seedRow(t, s, "Post", "p1")
	ctx := context.Background()
	boom := errors.New("boom")

	hookRan := false
	err := s.RunAtomically(ctx, func(ctx context.Context) error {
		s.DeferCommit(ctx, func(context.Context) { hookRan = true })
		require.NoError(t, s.BulkUpdate(ctx, "Post", []string{"p1"}, map[string]time.Time{"updated_at": fixedNow}))
		return boom
	})
	assert.Equal(t, boom, err)
	assert.False(t, hookRan)

	row, err := s.LoadRow(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.NotContains(t, row.Values, "updated_at", "write rolled back")
}

func TestRunAtomically_NestedJoins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var order []string
	err := s.RunAtomically(ctx, func(outer context.Context) error {
		return s.RunAtomically(outer, func(inner context.Context) error {
			s.DeferCommit(inner, func(context.Context) { order = append(order, "hook") })
			order = append(order, "inner")
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"inner", "hook"}, order)
}

func TestDeferCommit_NoTransactionRunsNow(t *testing.T) {
	s := createTestStore(t)
	ran := false
	s.DeferCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
}
