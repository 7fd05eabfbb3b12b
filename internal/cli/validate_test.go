package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/touchdelay/internal/compiler"
)

func TestValidateValidSchema(t *testing.T) {
	out, err := execute(t, "validate", schemaDir(t))
	require.NoError(t, err)

	assert.Contains(t, out, "\u2713 2 record type(s) valid")
	assert.Contains(t, out, "Post (posts) touches updated_at")
	assert.Contains(t, out, "Comment (comments) touches updated_at -> Post")
	assert.NotContains(t, out, "warning:")
}

func TestValidateValidSchemaJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", schemaDir(t))
	require.NoError(t, err)

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	require.Len(t, result.RecordTypes, 2)
	assert.Equal(t, "Post", result.RecordTypes[0].Name)
	assert.Equal(t, []string{"Post"}, result.RecordTypes[1].Cascades)
}

func TestValidateCycleWarning(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tags.cue", `package records

record: Tag: {
	table:         "tags"
	touch_columns: ["updated_at"]
	belongs_to: [{type: "Tag", foreign_key: "parent_id", touch: true}]
}
`)

	out, err := execute(t, "validate", dir)
	require.NoError(t, err, "cycles are warnings, not errors")
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, "Tag")
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, "validate", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), compiler.ErrCodeNotFound)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), compiler.ErrCodeNoFiles)
}

func TestValidateUnknownParent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "blog.cue", `package records

record: Comment: {
	table:         "comments"
	touch_columns: ["updated_at"]
	belongs_to: [{type: "Post", foreign_key: "post_id", touch: true}]
}
`)

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "validate", dir)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "\u2717 Validation failed")
		assert.Contains(t, out, compiler.ErrUnknownParentType)
		assert.Contains(t, out, "line ")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "validate", dir)
		require.Error(t, err)

		var result ValidationResult
		resp := decodeResponse(t, out, &result)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, compiler.ErrUnknownParentType, resp.Error.Code)
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Comment.belongs_to[0].type", result.Errors[0].Field)
		assert.Positive(t, result.Errors[0].Line)
	})
}

func TestValidateCompileError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "blog.cue", `package records

record: Post: {
	table: "posts"
}
`)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "at least one touch column is required")
}

func TestValidateUsesConfigSchemaDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "records/blog.cue", blogSchema)
	cfgPath := writeFile(t, dir, "touchdelay.yaml", "schema_dir: records\n")

	out, err := execute(t, "--config", cfgPath, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "2 record type(s) valid")
}

func TestValidateWithoutSchemaDir(t *testing.T) {
	_, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema directory")
}

func TestToValidationErrors(t *testing.T) {
	errs := toValidationErrors([]error{
		compiler.ValidationError{Field: "Post.table", Message: "table is required", Code: compiler.ErrTableEmpty},
		&compiler.LoadError{Code: compiler.ErrCodeNoRecords, Message: "no record types declared"},
		&compiler.CompileError{Field: "touch_columns", Message: "entries must be strings"},
	})

	require.Len(t, errs, 3)
	assert.Equal(t, compiler.ErrTableEmpty, errs[0].Code)
	assert.Equal(t, compiler.ErrCodeNoRecords, errs[1].Code)
	assert.Equal(t, "load", errs[1].Field)
	assert.Equal(t, ErrCodeGeneric, errs[2].Code)
	assert.Equal(t, "touch_columns", errs[2].Field)
	assert.Zero(t, errs[2].Line)
}
