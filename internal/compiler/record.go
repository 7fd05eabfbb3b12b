package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/touchdelay/internal/ir"
)

// CompileRecordType parses a CUE value into a RecordType.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the record struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`record: Post: { table: "posts", ... }`)
//	rt, err := CompileRecordType(v.LookupPath(cue.ParsePath("record.Post")))
func CompileRecordType(v cue.Value) (ir.RecordType, error) {
	var rt ir.RecordType
	if err := v.Err(); err != nil {
		return rt, formatCUEError(err)
	}
	if !v.Exists() {
		return rt, &CompileError{Field: "record", Message: "record not found", Pos: v.Pos()}
	}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rt.Name = labels[len(labels)-1].String()
	}

	var err error
	if rt.Table, err = requiredString(v, "table"); err != nil {
		return rt, err
	}

	// Primary key defaults to "id"
	rt.PrimaryKey = "id"
	if pk := v.LookupPath(cue.ParsePath("primary_key")); pk.Exists() {
		if rt.PrimaryKey, err = pk.String(); err != nil {
			return rt, formatCUEError(err)
		}
	}

	if rt.TouchColumns, err = stringList(v, "touch_columns"); err != nil {
		return rt, err
	}
	if len(rt.TouchColumns) == 0 {
		return rt, &CompileError{
			Field:   "touch_columns",
			Message: "at least one touch column is required",
			Pos:     v.Pos(),
		}
	}

	if rt.Columns, err = stringList(v, "columns"); err != nil {
		return rt, err
	}

	if rt.BelongsTo, err = parseBelongsTo(v); err != nil {
		return rt, err
	}

	return rt, nil
}

// requiredString reads a mandatory string field.
func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// stringList reads an optional list of strings.
func stringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: "entries must be strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// parseBelongsTo extracts the belongs_to links. Each entry is
// { type: "Post", foreign_key: "post_id", touch: true }; touch is optional.
func parseBelongsTo(v cue.Value) ([]ir.BelongsTo, error) {
	bv := v.LookupPath(cue.ParsePath("belongs_to"))
	if !bv.Exists() {
		return nil, nil
	}
	iter, err := bv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var links []ir.BelongsTo
	for iter.Next() {
		ev := iter.Value()
		var link ir.BelongsTo
		if link.Type, err = requiredString(ev, "type"); err != nil {
			return nil, err
		}
		if link.ForeignKey, err = requiredString(ev, "foreign_key"); err != nil {
			return nil, err
		}
		if tv := ev.LookupPath(cue.ParsePath("touch")); tv.Exists() {
			if link.Touch, err = tv.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		links = append(links, link)
	}
	return links, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
