package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, formatter.Success(map[string]int{"record_types": 2}))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Error)
	})

	t.Run("error with details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, formatter.Error("E005", "schema directory not found", map[string]string{"dir": "./records"}))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "E005", resp.Error.Code)
		assert.Equal(t, "schema directory not found", resp.Error.Message)
		assert.NotNil(t, resp.Error.Details)
	})
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("2 record types"))
	require.NoError(t, formatter.Error("E004", "loading CUE files", map[string]string{"file": "blog.cue"}))

	out := buf.String()
	assert.Contains(t, out, "2 record types")
	assert.Contains(t, out, "Error [E004]: loading CUE files")
	assert.NotContains(t, out, "Details:", "details are verbose-only")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E004", "loading CUE files", "blog.cue"))
	assert.Contains(t, buf.String(), "Details: blog.cue")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}

	formatter.VerboseLog("loading %s", "blog.cue")
	assert.Empty(t, diag.String())

	formatter.Verbose = true
	formatter.VerboseLog("loading %s", "blog.cue")
	assert.Equal(t, "loading blog.cue\n", diag.String())
	assert.Empty(t, out.String(), "diagnostics never corrupt JSON output")

	formatter.ErrWriter = nil
	formatter.VerboseLog("fallback")
	assert.Equal(t, "fallback\n", out.String())
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)

	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "1 scenario(s) failed")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
