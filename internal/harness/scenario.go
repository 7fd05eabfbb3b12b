package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/touchdelay/internal/workload"
)

// Scenario defines a touch conformance scenario.
// A scenario runs a workload against a schema and asserts on the resulting
// trace and the stored rows.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is a directory of CUE record declarations.
	// Relative paths are resolved against the scenario file location.
	Schema string `yaml:"schema,omitempty"`

	// SchemaSource is inline CUE, used instead of Schema when set.
	SchemaSource string `yaml:"schema_source,omitempty"`

	// MaxPasses overrides the flush pass limit when positive.
	MaxPasses int `yaml:"max_passes,omitempty"`

	// Workload seeds rows and runs the steps under test.
	Workload workload.Workload `yaml:"workload"`

	// ExpectError names the error the workload must stop with:
	// "step_failure", "flush_error", or a substring of the message.
	// Empty means the workload must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the final trace and stored rows.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the trace or the stored rows.
type Assertion struct {
	// Type specifies the assertion type:
	// - "bulk_update_count": count bulk updates (of RecordType, if set)
	// - "hook_count": count Hook events (of RecordType and ID, if set)
	// - "trace_order": Events appear in order
	// - "column_set" / "column_unset": a stored column has / lacks a value
	// - "column_equal": Column of ID equals OtherColumn of OtherID
	// - "pending_empty": nothing is left queued
	Type string `yaml:"type"`

	// RecordType and ID select rows or events.
	RecordType string `yaml:"record_type,omitempty"`
	ID         string `yaml:"id,omitempty"`

	// Hook is "touched" or "committed" (used by hook_count).
	Hook string `yaml:"hook,omitempty"`

	// Count is the expected number of events (used by *_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (used by trace_order), each
	// written like "bulk_update Comment:c1,c2".
	Events []string `yaml:"events,omitempty"`

	// Column is the stored column to inspect (used by column_*).
	Column string `yaml:"column,omitempty"`

	// OtherID and OtherColumn name the second column of column_equal.
	// They default to ID and Column.
	OtherID     string `yaml:"other_id,omitempty"`
	OtherColumn string `yaml:"other_column,omitempty"`
}

// Assertion type constants.
const (
	AssertBulkUpdateCount = "bulk_update_count"
	AssertHookCount       = "hook_count"
	AssertTraceOrder      = "trace_order"
	AssertColumnSet       = "column_set"
	AssertColumnUnset     = "column_unset"
	AssertColumnEqual     = "column_equal"
	AssertPendingEmpty    = "pending_empty"
)

// Error expectations with a meaning beyond substring matching.
const (
	ExpectStepFailure = "step_failure"
	ExpectFlushError  = "flush_error"
)

// LoadScenario reads and parses a scenario YAML file.
// A relative schema path is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative schema path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}
	if scenario.Schema != "" {
		if _, err := os.Stat(scenario.Schema); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: schema directory not found: %s", scenario.Schema)
		}
	}

	return scenario, nil
}

// ParseScenario decodes and validates a scenario. Unknown fields are
// rejected; the schema path is left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema != "" && s.SchemaSource != "" {
		return fmt.Errorf("schema and schema_source are mutually exclusive")
	}

	if s.MaxPasses < 0 {
		return fmt.Errorf("max_passes must be non-negative")
	}

	if s.Workload.Name == "" {
		s.Workload.Name = s.Name
	}
	if err := s.Workload.Validate(); err != nil {
		return fmt.Errorf("workload: %w", err)
	}

	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBulkUpdateCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertHookCount:
		if a.Hook != workload.EventTouched && a.Hook != workload.EventCommitted {
			return fmt.Errorf("assertions[%d]: hook must be %q or %q", index, workload.EventTouched, workload.EventCommitted)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertColumnSet, AssertColumnUnset, AssertColumnEqual:
		if a.RecordType == "" || a.ID == "" || a.Column == "" {
			return fmt.Errorf("assertions[%d]: record_type, id and column are required for %s", index, a.Type)
		}
	case AssertPendingEmpty:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
