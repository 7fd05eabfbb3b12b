package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/touchdelay/internal/ir"
)

// Load error codes (E001-E099).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoRecords   = "E007" // No record types declared
)

// LoadResult contains the results of loading record schemas.
type LoadResult struct {
	Registry  *ir.Registry
	Warnings  []CycleWarning
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load loads, compiles and validates the CUE record schemas in dir.
// All errors are collected; the registry is nil if there are any.
func Load(dir string) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{buildError(err)}
	}

	reg, errs := CompileValue(value)
	if len(errs) > 0 {
		return nil, errs
	}
	return &LoadResult{
		Registry:  reg,
		Warnings:  AnalyzeCycles(reg),
		FileCount: len(cueFiles),
	}, nil
}

// LoadDir is Load returning only the registry, with errors joined.
func LoadDir(dir string) (*ir.Registry, error) {
	res, errs := Load(dir)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return res.Registry, nil
}

// CompileString compiles CUE source holding record declarations.
func CompileString(src string) (*ir.Registry, error) {
	value := cuecontext.New().CompileString(src, cue.Filename("schema.cue"))
	if err := value.Err(); err != nil {
		return nil, buildError(err)
	}
	reg, errs := CompileValue(value)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reg, nil
}

// CompileValue compiles every field under "record" and validates the
// resulting registry. Validation errors carry the line of their record.
func CompileValue(value cue.Value) (*ir.Registry, []error) {
	recordsVal := value.LookupPath(cue.ParsePath("record"))
	if !recordsVal.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeNoRecords, Message: "no record types declared"}}
	}
	iter, err := recordsVal.Fields()
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating records: %v", err)}}
	}

	var errs []error
	reg := ir.MustRegistry()
	positions := make(map[string]token.Pos)
	for iter.Next() {
		rt, compileErr := CompileRecordType(iter.Value())
		if compileErr != nil {
			errs = append(errs, fmt.Errorf("record.%s: %w", iter.Label(), compileErr))
			continue
		}
		positions[rt.Name] = iter.Value().Pos()
		if err := reg.Add(rt); err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Pos: iter.Value().Pos()})
		}
	}

	for _, verr := range Validate(reg) {
		name, _, _ := strings.Cut(verr.Field, ".")
		if pos, ok := positions[name]; ok && pos.IsValid() {
			verr.Line = pos.Line()
		}
		errs = append(errs, verr)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	if len(reg.Types()) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoRecords, Message: "no record types declared"}}
	}
	return reg, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// buildError converts a CUE build error to a LoadError with position info.
func buildError(err error) *LoadError {
	var compileErr *CompileError
	if errors.As(formatCUEError(err), &compileErr) {
		return &LoadError{Code: ErrCodeBuildFailed, Message: compileErr.Message, Pos: compileErr.Pos}
	}
	return &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
}
