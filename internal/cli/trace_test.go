package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMissingScopeFlag(t *testing.T) {
	_, err := execute(t, "trace", "--db", "touch.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "scope" not set`)
}

func TestTraceNonExistentDatabase(t *testing.T) {
	_, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "missing.db"), "--scope", "s1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestTraceEmptyScope(t *testing.T) {
	db := journalDB(t)

	out, err := execute(t, "trace", "--db", db, "--scope", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "No journal entries for scope: s1")

	out, err = execute(t, "--format", "json", "trace", "--db", db, "--scope", "s1")
	require.NoError(t, err)
	var result TraceResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "s1", resp.ScopeID)
	assert.Empty(t, result.Timeline)
}

func TestTraceTimeline(t *testing.T) {
	db := journalDB(t,
		flushEntry("s1", 1, 1, "Comment", "c1", "c2"),
		flushEntry("s1", 2, 2, "Post", "p1"),
		flushEntry("s2", 1, 3, "Post", "p9"),
	)

	out, err := execute(t, "trace", "--db", db, "--scope", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Scope: s1")
	assert.Contains(t, out, "  pass 1\n    [1] Comment c1,c2 <- updated_at")
	assert.Contains(t, out, "  pass 2\n    [2] Post p1 <- updated_at")
	assert.NotContains(t, out, "p9")
	assert.Contains(t, out, "Passes:  2")
	assert.Contains(t, out, "Records: 3")
	assert.NotContains(t, out, "at 2024", "stamps are verbose-only")

	out, err = execute(t, "-v", "trace", "--db", db, "--scope", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "at 2024-01-01T12:00:00Z")
}

func TestTraceTimelineJSON(t *testing.T) {
	db := journalDB(t,
		flushEntry("s1", 1, 1, "Comment", "c1"),
		flushEntry("s1", 2, 2, "Post", "p1"),
	)

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--scope", "s1")
	require.NoError(t, err)

	var result TraceResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Timeline, 2)
	assert.Equal(t, int64(1), result.Timeline[0].Seq)
	assert.Equal(t, stampedAt, result.Timeline[0].StampedAt)
	assert.Equal(t, TraceStats{Passes: 2, Groups: 2, Records: 2}, result.Stats)
}

func TestTraceDatabaseFromConfig(t *testing.T) {
	db := journalDB(t, flushEntry("s1", 1, 1, "Post", "p1"))
	cfgPath := writeFile(t, t.TempDir(), "touchdelay.yaml", "database: "+db+"\n")

	out, err := execute(t, "--config", cfgPath, "trace", "--scope", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Post p1")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "0123456789abcdef...", truncateID("0123456789abcdef0123"))
}
