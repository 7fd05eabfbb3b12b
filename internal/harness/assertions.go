package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/touchdelay/internal/ir"
	"github.com/roach88/touchdelay/internal/store"
	"github.com/roach88/touchdelay/internal/workload"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Trace    []workload.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, EventLine(event))
		}
	}

	return buf.String()
}

// assertBulkUpdateCount counts bulk updates, of one record type if set.
func assertBulkUpdateCount(trace []workload.Event, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Kind == workload.EventBulkUpdate && (a.RecordType == "" || event.RecordType == a.RecordType) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertBulkUpdateCount,
			Expected: fmt.Sprintf("%d bulk updates%s", a.Count, scopeDesc(a.RecordType, "")),
			Actual:   fmt.Sprintf("%d bulk updates", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertHookCount counts hook events of one kind, narrowed by record type
// and id when set.
func assertHookCount(trace []workload.Event, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Kind != a.Hook {
			continue
		}
		if a.RecordType != "" && event.RecordType != a.RecordType {
			continue
		}
		if a.ID != "" && (len(event.IDs) != 1 || event.IDs[0] != a.ID) {
			continue
		}
		count++
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertHookCount,
			Expected: fmt.Sprintf("%d %s hooks%s", a.Count, a.Hook, scopeDesc(a.RecordType, a.ID)),
			Actual:   fmt.Sprintf("%d %s hooks", count, a.Hook),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []workload.Event, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Events) && EventLine(event) == a.Events[next] {
			next++
		}
	}

	if next < len(a.Events) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("events in order: %v", a.Events),
			Actual:   fmt.Sprintf("missing or out of order: %s", a.Events[next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertColumn checks whether a stored column holds a value.
func assertColumn(ctx context.Context, st *store.Store, a Assertion, wantSet bool) error {
	row, err := loadRow(ctx, st, a.Type, a.RecordType, a.ID)
	if err != nil {
		return err
	}

	v, ok := row.Values[a.Column]
	switch {
	case wantSet && !ok:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s:%s.%s to be set", a.RecordType, a.ID, a.Column),
			Actual:   "no value",
		}
	case !wantSet && ok:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s:%s.%s to be unset", a.RecordType, a.ID, a.Column),
			Actual:   v.Format(time.RFC3339Nano),
		}
	}
	return nil
}

// assertColumnEqual checks that two stored columns hold the same instant.
func assertColumnEqual(ctx context.Context, st *store.Store, a Assertion) error {
	otherID := a.OtherID
	if otherID == "" {
		otherID = a.ID
	}
	otherColumn := a.OtherColumn
	if otherColumn == "" {
		otherColumn = a.Column
	}

	left, err := columnValue(ctx, st, a, a.ID, a.Column)
	if err != nil {
		return err
	}
	right, err := columnValue(ctx, st, a, otherID, otherColumn)
	if err != nil {
		return err
	}

	if !left.Equal(right) {
		return &AssertionError{
			Type: AssertColumnEqual,
			Expected: fmt.Sprintf("%s:%s.%s = %s:%s.%s",
				a.RecordType, a.ID, a.Column, a.RecordType, otherID, otherColumn),
			Actual: fmt.Sprintf("%s != %s", left.Format(time.RFC3339Nano), right.Format(time.RFC3339Nano)),
		}
	}
	return nil
}

func columnValue(ctx context.Context, st *store.Store, a Assertion, id, column string) (time.Time, error) {
	row, err := loadRow(ctx, st, a.Type, a.RecordType, id)
	if err != nil {
		return time.Time{}, err
	}
	v, ok := row.Values[column]
	if !ok {
		return time.Time{}, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s:%s.%s to be set", a.RecordType, id, column),
			Actual:   "no value",
		}
	}
	return v, nil
}

func loadRow(ctx context.Context, st *store.Store, kind, recordType, id string) (*ir.Row, error) {
	row, err := st.LoadRow(ctx, recordType, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("row %s:%s", recordType, id),
			Actual:   "row not found",
		}
	}
	if err != nil {
		return nil, &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("row %s:%s", recordType, id),
			Actual:   fmt.Sprintf("load error: %v", err),
		}
	}
	return row, nil
}

// assertPendingEmpty checks that the engine was left with nothing queued.
func assertPendingEmpty(result *Result) error {
	if result.Pending != 0 || result.Applied != 0 {
		return &AssertionError{
			Type:     AssertPendingEmpty,
			Expected: "no pending or applied touches",
			Actual:   fmt.Sprintf("%d pending, %d applied", result.Pending, result.Applied),
		}
	}
	return nil
}

func scopeDesc(recordType, id string) string {
	switch {
	case recordType != "" && id != "":
		return fmt.Sprintf(" for %s:%s", recordType, id)
	case recordType != "":
		return " for " + recordType
	default:
		return ""
	}
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for column assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertBulkUpdateCount:
			err = assertBulkUpdateCount(result.Trace, assertion)
		case AssertHookCount:
			err = assertHookCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertPendingEmpty:
			err = assertPendingEmpty(result)
		case AssertColumnSet, AssertColumnUnset, AssertColumnEqual:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires store context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertColumnSet:
				err = assertColumn(actx.Ctx, actx.Store, assertion, true)
			case AssertColumnUnset:
				err = assertColumn(actx.Ctx, actx.Store, assertion, false)
			default:
				err = assertColumnEqual(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
