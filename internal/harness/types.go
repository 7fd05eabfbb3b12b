package harness

import (
	"strings"

	"github.com/roach88/touchdelay/internal/workload"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion held and the error expectation was met.
	Pass bool `json:"pass"`

	// Trace contains bulk updates, hooks and rollbacks in order.
	Trace []workload.Event `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Err is the error the workload stopped with, if any.
	Err string `json:"error,omitempty"`

	// Pending and Applied are the batch sizes left after the run.
	Pending int `json:"pending"`
	Applied int `json:"applied"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []workload.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// EventLine renders an event the way trace_order assertions name it:
// "bulk_update Comment:c1,c2", "touched Post:p1" or "rollback".
func EventLine(e workload.Event) string {
	if len(e.IDs) == 0 {
		return e.Kind
	}
	return e.Kind + " " + e.RecordType + ":" + strings.Join(e.IDs, ",")
}
