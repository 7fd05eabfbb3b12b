package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/touchdelay/internal/ir"
)

func TestTouch_NoScopeAppliesImmediately(t *testing.T) {
	s := newFakeStore()
	sink := &recordingSink{}
	e := newTestEngine(t, s, WithSink(sink))
	ctx := e.Attach(context.Background())
	row := ir.NewRow("Post", "1")

	require.NoError(t, e.Touch(ctx, row))

	assert.Equal(t, 0, e.PendingCount(ctx), "never queued")
	calls := s.bulkCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"1"}, calls[0].IDs)
	assert.Equal(t, []string{"touched Post:1", "committed Post:1"}, sink.events)
}

func TestTouch_ImmediateStampsAllAttrsAtOnce(t *testing.T) {
	s := newFakeStore()
	e := newTestEngine(t, s)
	row := ir.NewRow("Post", "1")

	require.NoError(t, e.Touch(context.Background(), row, "seen_at", "read_at"))

	calls := s.bulkCalls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"updated_at", "seen_at", "read_at"}, keys(calls[0].Values))
	seen, _ := row.Column("seen_at")
	read, _ := row.Column("read_at")
	assert.Equal(t, seen, read)
}

func TestTouch_ImmediateErrorReturned(t *testing.T) {
	s := newFakeStore()
	storeErr := errors.New("locked")
	s.fail["Post"] = storeErr
	e := newTestEngine(t, s)

	err := e.Touch(context.Background(), ir.NewRow("Post", "1"))
	assert.ErrorIs(t, err, storeErr)
}

func TestTouch_DeferredNeverFails(t *testing.T) {
	s := newFakeStore()
	s.fail["Post"] = errors.New("locked")
	e := newTestEngine(t, s)

	var touchErr error
	_ = e.DelayTouching(context.Background(), func(ctx context.Context) error {
		touchErr = e.Touch(ctx, ir.NewRow("Post", "1"))
		return nil
	})
	assert.NoError(t, touchErr)
}

func TestTouch_NilRecord(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	assert.ErrorIs(t, e.Touch(context.Background(), nil), ErrNilRecord)
}

func TestTouch_SuppressorDropsTouch(t *testing.T) {
	s := newFakeStore()
	e := newTestEngine(t, s, WithSuppressor(SuppressorFunc(func(rec Record) bool {
		return rec.RecordType() == "Post"
	})))

	err := e.DelayTouching(context.Background(), func(ctx context.Context) error {
		require.NoError(t, e.Touch(ctx, ir.NewRow("Post", "1")))
		assert.Equal(t, 0, e.PendingCount(ctx))
		return e.Touch(ctx, ir.NewRow("Comment", "1"))
	})
	require.NoError(t, err)

	calls := s.bulkCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Comment", calls[0].RecordType)
}

func TestTouch_RecordOptsOut(t *testing.T) {
	s := newFakeStore()
	e := newTestEngine(t, s)

	quiet := quietRow{ir.NewRow("Post", "1")}
	require.NoError(t, e.Touch(context.Background(), quiet))
	assert.Empty(t, s.bulkCalls())
}

// recordingToucher captures immediate touches.
type recordingToucher struct {
	keys [][]ir.AttrKey
}

func (r *recordingToucher) TouchNow(_ context.Context, _ Record, keys []ir.AttrKey) error {
	r.keys = append(r.keys, keys)
	return nil
}

func TestTouch_CustomImmediateToucher(t *testing.T) {
	rt := &recordingToucher{}
	e := newTestEngine(t, newFakeStore(), WithImmediateToucher(rt))

	require.NoError(t, e.Touch(context.Background(), ir.NewRow("Post", "1")))
	require.NoError(t, e.Touch(context.Background(), ir.NewRow("Post", "1"), " seen_at ", "seen_at"))

	assert.Equal(t, [][]ir.AttrKey{
		{ir.DefaultAttr},
		{"seen_at"},
	}, rt.keys)
}

func TestAttrKeys(t *testing.T) {
	assert.Equal(t, []ir.AttrKey{ir.DefaultAttr}, attrKeys(nil))
	assert.Equal(t, []ir.AttrKey{"a", "b"}, attrKeys([]string{"a", "b", "a"}))
}
