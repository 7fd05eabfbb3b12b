package cli

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/touchdelay/internal/compiler"
	"github.com/roach88/touchdelay/internal/ir"
)

// ErrCodeGeneric is the code for errors without a more specific one.
const ErrCodeGeneric = compiler.ErrCodeGeneric

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	RecordTypes []RecordTypeSummary        `json:"record_types,omitempty"`
	Warnings    []string                   `json:"warnings,omitempty"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
}

// RecordTypeSummary describes one compiled record type.
type RecordTypeSummary struct {
	Name         string   `json:"name"`
	Table        string   `json:"table"`
	TouchColumns []string `json:"touch_columns"`
	Cascades     []string `json:"cascades,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate CUE record schemas",
		Long: `Compile and validate the CUE record type declarations in a directory.

Reports coded schema errors with source lines, warns about cascading touch
cycles, and lists the record types found. Without an argument the
schema_dir of the config file is used.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if schemaDir == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		schemaDir = cfg.SchemaDir
	}
	if schemaDir == "" {
		return outputValidateError(formatter, compiler.ErrCodeNotFound, "no schema directory given", nil)
	}

	loadResult, loadErrors := compiler.Load(schemaDir)
	if len(loadErrors) > 0 {
		// Directory-level failures stop before any record is compiled.
		var loadErr *compiler.LoadError
		if len(loadErrors) == 1 && errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidationErrors(formatter, toValidationErrors(loadErrors))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, schemaDir)

	result := ValidationResult{
		Valid:       true,
		RecordTypes: summarize(loadResult.Registry),
	}
	for _, w := range loadResult.Warnings {
		result.Warnings = append(result.Warnings, w.Message)
	}

	return outputValidateSuccess(formatter, result)
}

// toValidationErrors flattens load errors into coded validation errors.
func toValidationErrors(errs []error) []compiler.ValidationError {
	out := make([]compiler.ValidationError, 0, len(errs))
	for _, err := range errs {
		var verr compiler.ValidationError
		var loadErr *compiler.LoadError
		var compileErr *compiler.CompileError
		switch {
		case errors.As(err, &verr):
			out = append(out, verr)
		case errors.As(err, &loadErr):
			out = append(out, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr.Pos),
			})
		case errors.As(err, &compileErr):
			out = append(out, compiler.ValidationError{
				Field:   compileErr.Field,
				Message: err.Error(),
				Code:    ErrCodeGeneric,
				Line:    lineOf(compileErr.Pos),
			})
		default:
			out = append(out, compiler.ValidationError{
				Field:   "schema",
				Message: err.Error(),
				Code:    ErrCodeGeneric,
			})
		}
	}
	return out
}

// lineOf extracts the line number from a CUE position.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// summarize lists the record types of reg.
func summarize(reg *ir.Registry) []RecordTypeSummary {
	types := reg.Types()
	out := make([]RecordTypeSummary, 0, len(types))
	for _, rt := range types {
		sum := RecordTypeSummary{
			Name:         rt.Name,
			Table:        rt.Table,
			TouchColumns: rt.TouchColumns,
		}
		for _, link := range rt.BelongsTo {
			if link.Touch {
				sum.Cascades = append(sum.Cascades, link.Type)
			}
		}
		out = append(out, sum)
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "\u2713 %d record type(s) valid\n", len(result.RecordTypes))
	for _, rt := range result.RecordTypes {
		line := fmt.Sprintf("  %s (%s) touches %s", rt.Name, rt.Table, strings.Join(rt.TouchColumns, ", "))
		if len(rt.Cascades) > 0 {
			line += " -> " + strings.Join(rt.Cascades, ", ")
		}
		fmt.Fprintln(w, line)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := writeJSON(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
