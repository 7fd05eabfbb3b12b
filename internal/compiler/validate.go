package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/touchdelay/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// RecordType errors (E101-E112)
	ErrTableEmpty          = "E101" // table is required
	ErrNoTouchColumns      = "E102" // at least one touch column required
	ErrInvalidIdentifier   = "E103" // not a valid SQL identifier
	ErrDuplicateColumn     = "E104" // column declared twice
	ErrDuplicateName       = "E105" // duplicate record type or table name
	ErrColumnCollision     = "E106" // touch column is also the primary key or a foreign key
	ErrPrimaryKeyEmpty     = "E107" // primary key is required
	ErrUnknownParentType   = "E110" // belongs_to references an unknown record type
	ErrForeignKeyEmpty     = "E111" // belongs_to without foreign key
	ErrDuplicateForeignKey = "E112" // two links share a foreign key
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled record types against schema rules.
// Returns all errors found (does not fail-fast).
// Supports RecordType and Registry. A lone RecordType is checked without
// resolving its belongs_to targets.
func Validate(v any) []ValidationError {
	switch x := v.(type) {
	case *ir.Registry:
		return validateRegistry(x)
	case ir.RecordType:
		return validateRecordType(x)
	case *ir.RecordType:
		return validateRecordType(*x)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// validateRegistry validates every record type plus cross-type references.
func validateRegistry(reg *ir.Registry) []ValidationError {
	var errs []ValidationError
	tables := make(map[string]string)

	for _, rt := range reg.Types() {
		errs = append(errs, validateRecordType(rt)...)

		if owner, dup := tables[rt.Table]; dup && rt.Table != "" {
			errs = append(errs, ValidationError{
				Field:   rt.Name + ".table",
				Message: fmt.Sprintf("table %q already used by %s", rt.Table, owner),
				Code:    ErrDuplicateName,
			})
		}
		tables[rt.Table] = rt.Name

		for i, link := range rt.BelongsTo {
			if _, ok := reg.Lookup(link.Type); !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.belongs_to[%d].type", rt.Name, i),
					Message: fmt.Sprintf("unknown record type %q", link.Type),
					Code:    ErrUnknownParentType,
				})
			}
		}
	}

	return errs
}

// validateRecordType validates one record type in isolation.
func validateRecordType(rt ir.RecordType) []ValidationError {
	var errs []ValidationError
	field := func(name string) string { return rt.Name + "." + name }

	// E101: table is required
	if strings.TrimSpace(rt.Table) == "" {
		errs = append(errs, ValidationError{
			Field:   field("table"),
			Message: "table is required and must be non-empty",
			Code:    ErrTableEmpty,
		})
	} else if !isValidIdentifier(rt.Table) {
		errs = append(errs, invalidIdentifier(field("table"), rt.Table))
	}

	// E107: primary key is required
	if strings.TrimSpace(rt.PrimaryKey) == "" {
		errs = append(errs, ValidationError{
			Field:   field("primary_key"),
			Message: "primary key is required",
			Code:    ErrPrimaryKeyEmpty,
		})
	} else if !isValidIdentifier(rt.PrimaryKey) {
		errs = append(errs, invalidIdentifier(field("primary_key"), rt.PrimaryKey))
	}

	// E102: at least one touch column
	if len(rt.TouchColumns) == 0 {
		errs = append(errs, ValidationError{
			Field:   field("touch_columns"),
			Message: "at least one touch column is required",
			Code:    ErrNoTouchColumns,
		})
	}

	reserved := map[string]bool{rt.PrimaryKey: true}
	for _, fk := range rt.ForeignKeys() {
		reserved[fk] = true
	}

	seen := make(map[string]bool)
	check := func(list string, cols []string) {
		for i, col := range cols {
			path := fmt.Sprintf("%s[%d]", field(list), i)
			if !isValidIdentifier(col) {
				errs = append(errs, invalidIdentifier(path, col))
				continue
			}
			// E104: duplicate column
			if seen[col] {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("duplicate column %q", col),
					Code:    ErrDuplicateColumn,
				})
			}
			seen[col] = true
			// E106: timestamp column shadows a key column
			if reserved[col] {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("column %q is also a key column", col),
					Code:    ErrColumnCollision,
				})
			}
		}
	}
	check("touch_columns", rt.TouchColumns)
	check("columns", rt.Columns)

	fks := make(map[string]bool)
	for i, link := range rt.BelongsTo {
		path := fmt.Sprintf("%s[%d]", field("belongs_to"), i)
		// E111: foreign key is required
		if strings.TrimSpace(link.ForeignKey) == "" {
			errs = append(errs, ValidationError{
				Field:   path + ".foreign_key",
				Message: "foreign key is required",
				Code:    ErrForeignKeyEmpty,
			})
			continue
		}
		if !isValidIdentifier(link.ForeignKey) {
			errs = append(errs, invalidIdentifier(path+".foreign_key", link.ForeignKey))
		}
		// E112: one link per foreign key
		if fks[link.ForeignKey] {
			errs = append(errs, ValidationError{
				Field:   path + ".foreign_key",
				Message: fmt.Sprintf("foreign key %q used by two links", link.ForeignKey),
				Code:    ErrDuplicateForeignKey,
			})
		}
		fks[link.ForeignKey] = true
	}

	return errs
}

func invalidIdentifier(field, name string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("invalid identifier %q, expected [A-Za-z_][A-Za-z0-9_]*", name),
		Code:    ErrInvalidIdentifier,
	}
}

// identifierPattern matches plain SQL identifiers usable as tables or columns.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// isValidIdentifier checks if a name is a plain SQL identifier.
func isValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
