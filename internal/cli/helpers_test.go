package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/touchdelay/internal/ir"
	"github.com/roach88/touchdelay/internal/store"
)

const blogSchema = `package records

record: Post: {
	table:         "posts"
	touch_columns: ["updated_at"]
}

record: Comment: {
	table:         "comments"
	touch_columns: ["updated_at"]
	columns:       ["seen_at"]
	belongs_to: [{type: "Post", foreign_key: "post_id", touch: true}]
}
`

const burstWorkload = `name: burst
seed:
  - {type: Post, id: p1}
  - {type: Comment, id: c1, refs: {post_id: p1}}
  - {type: Comment, id: c2, refs: {post_id: p1}}
steps:
  - scope:
      - touch: {type: Comment, id: c1, repeat: 3}
      - touch: {type: Comment, id: c2}
`

// writeFile writes content to dir/name, creating parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// schemaDir writes the blog schema to a fresh directory.
func schemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "blog.cue", blogSchema)
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse parses a JSON CLIResponse, decoding Data into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}

// journalDB creates a database holding entries, with ids computed from
// their content unless already set.
func journalDB(t *testing.T, entries ...ir.FlushEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "touch.db")
	st, err := store.Open(path, nil)
	require.NoError(t, err)
	defer st.Close()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = ir.MustFlushEntryID(e)
		}
		require.NoError(t, st.RecordFlush(context.Background(), e))
	}
	return path
}

var stampedAt = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// flushEntry builds a journal entry stamping updated_at.
func flushEntry(scopeID string, pass int, seq int64, recordType string, ids ...string) ir.FlushEntry {
	return ir.FlushEntry{
		ScopeID:    scopeID,
		Pass:       pass,
		Seq:        seq,
		RecordType: recordType,
		Columns:    []string{"updated_at"},
		RecordIDs:  ids,
		StampedAt:  stampedAt,
	}
}
