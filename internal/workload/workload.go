// Package workload runs scripted touch workloads against a record store.
//
// A workload seeds rows, then executes steps through a delay-touching
// engine:
//
//	name: comments
//	seed:
//	  - {type: Post, id: p1}
//	  - {type: Comment, id: c1, refs: {post_id: p1}}
//	steps:
//	  - scope:
//	      - touch: {type: Comment, id: c1, repeat: 3}
//	      - touch: {type: Comment, id: c1, attrs: [seen_at]}
//
// Steps are touch, scope, no_touching, fail, delete and forget_identity.
// Rows are kept in an identity map, so every step naming Comment c1 acts on
// the same *ir.Row. Touches cascade to belongs_to parents declared with
// touch: true.
package workload

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Workload is a scripted sequence of touches.
type Workload struct {
	// Name identifies the workload in logs and traces.
	Name string `yaml:"name"`

	// Description explains what the workload exercises.
	Description string `yaml:"description,omitempty"`

	// Seed rows are inserted before the steps run.
	Seed []SeedRow `yaml:"seed,omitempty"`

	// Steps run in order; the first error stops the workload.
	Steps []Step `yaml:"steps"`
}

// SeedRow is a row inserted before the workload runs.
type SeedRow struct {
	Type   string               `yaml:"type"`
	ID     string               `yaml:"id"`
	Refs   map[string]string    `yaml:"refs,omitempty"`
	Values map[string]time.Time `yaml:"values,omitempty"`
}

// RowRef names a row of the identity map.
type RowRef struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

func (r RowRef) key() string { return r.Type + ":" + r.ID }

// String returns "Type:id".
func (r RowRef) String() string { return r.key() }

// TouchStep touches a row, optionally with extra attributes.
type TouchStep struct {
	RowRef `yaml:",inline"`

	// Attrs are extra columns to stamp; empty means the default touch.
	Attrs []string `yaml:"attrs,omitempty"`

	// Repeat touches the row this many times (default 1).
	Repeat int `yaml:"repeat,omitempty"`
}

// NoTouchingStep runs steps with touches of Types suppressed (all types
// when empty).
type NoTouchingStep struct {
	Types []string `yaml:"types,omitempty"`
	Steps []Step   `yaml:"steps"`
}

// Step is one workload instruction. Exactly one field is set.
type Step struct {
	// Touch touches a row.
	Touch *TouchStep `yaml:"touch,omitempty"`

	// Scope runs nested steps inside a delay-touching scope.
	Scope []Step `yaml:"scope,omitempty"`

	// NoTouching runs nested steps with touching disabled.
	NoTouching *NoTouchingStep `yaml:"no_touching,omitempty"`

	// Fail makes the enclosing body return an error with this message.
	Fail string `yaml:"fail,omitempty"`

	// Delete deletes a row from the store and marks it deleted.
	Delete *RowRef `yaml:"delete,omitempty"`

	// ForgetIdentity clears a row's primary key, as a rolled-back insert
	// would.
	ForgetIdentity *RowRef `yaml:"forget_identity,omitempty"`
}

// Step kinds.
const (
	KindTouch          = "touch"
	KindScope          = "scope"
	KindNoTouching     = "no_touching"
	KindFail           = "fail"
	KindDelete         = "delete"
	KindForgetIdentity = "forget_identity"
)

// Kind returns the step kind, or "" if no field is set.
func (s Step) Kind() string {
	switch {
	case s.Touch != nil:
		return KindTouch
	case s.Scope != nil:
		return KindScope
	case s.NoTouching != nil:
		return KindNoTouching
	case s.Fail != "":
		return KindFail
	case s.Delete != nil:
		return KindDelete
	case s.ForgetIdentity != nil:
		return KindForgetIdentity
	default:
		return ""
	}
}

func (s Step) kinds() int {
	n := 0
	for _, set := range []bool{
		s.Touch != nil, s.Scope != nil, s.NoTouching != nil,
		s.Fail != "", s.Delete != nil, s.ForgetIdentity != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Load reads and parses a workload YAML file.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a workload. Unknown fields are rejected.
func Parse(data []byte) (*Workload, error) {
	var w Workload
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&w); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload: %w", err)
	}
	return &w, nil
}

// Validate checks required fields and step shapes.
func (w *Workload) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, row := range w.Seed {
		ref := RowRef{Type: row.Type, ID: row.ID}
		if err := ref.validate(fmt.Sprintf("seed[%d]", i)); err != nil {
			return err
		}
		if seen[ref.key()] {
			return fmt.Errorf("seed[%d]: %s seeded twice", i, ref)
		}
		seen[ref.key()] = true
	}

	return validateSteps("steps", w.Steps)
}

func validateSteps(path string, steps []Step) error {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		switch step.kinds() {
		case 0:
			return fmt.Errorf("%s: step is empty", at)
		case 1:
		default:
			return fmt.Errorf("%s: step sets more than one of touch, scope, no_touching, fail, delete, forget_identity", at)
		}

		switch step.Kind() {
		case KindTouch:
			if err := step.Touch.RowRef.validate(at + ".touch"); err != nil {
				return err
			}
			if step.Touch.Repeat < 0 {
				return fmt.Errorf("%s.touch: repeat must be non-negative", at)
			}
		case KindScope:
			if err := validateSteps(at+".scope", step.Scope); err != nil {
				return err
			}
		case KindNoTouching:
			if err := validateSteps(at+".no_touching.steps", step.NoTouching.Steps); err != nil {
				return err
			}
		case KindDelete:
			if err := step.Delete.validate(at + ".delete"); err != nil {
				return err
			}
		case KindForgetIdentity:
			if err := step.ForgetIdentity.validate(at + ".forget_identity"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r RowRef) validate(at string) error {
	if r.Type == "" {
		return fmt.Errorf("%s: type is required", at)
	}
	if r.ID == "" {
		return fmt.Errorf("%s: id is required", at)
	}
	return nil
}
