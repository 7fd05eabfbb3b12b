package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/touchdelay/internal/compiler"
	"github.com/roach88/touchdelay/internal/engine"
	"github.com/roach88/touchdelay/internal/ir"
	"github.com/roach88/touchdelay/internal/store"
	"github.com/roach88/touchdelay/internal/testutil"
	"github.com/roach88/touchdelay/internal/workload"
)

// ScopeIDPrefix prefixes the scope ids of scenario runs: "scope-1",
// "scope-2", and so on.
const ScopeIDPrefix = "scope"

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Compile the record schema
// 2. Open an in-memory store on a stepping clock
// 3. Run the workload through a delay-touching engine
// 4. Check the error expectation and evaluate assertions
//
// The returned error covers setup failures only; a failing workload or
// assertion is reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine and workload logs sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	reg, err := scenario.registry()
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	clock := testutil.NewDeterministicClock(time.Time{}, time.Second)
	st, err := store.Open(":memory:", reg, store.WithNow(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	engineOpts := []engine.EngineOption{
		engine.WithJournal(st),
		engine.WithScopeIDGenerator(testutil.NewSequentialScopeIDs(ScopeIDPrefix)),
	}
	if scenario.MaxPasses > 0 {
		engineOpts = append(engineOpts, engine.WithMaxPasses(scenario.MaxPasses))
	}

	runner := workload.NewRunner(st,
		workload.WithTxManager(st),
		workload.WithLogger(logger),
		workload.WithEngineOptions(engineOpts...),
	)

	ctx := context.Background()
	w := scenario.Workload
	run, err := runner.Run(ctx, &w)
	if err != nil {
		return nil, fmt.Errorf("failed to run workload: %w", err)
	}

	result := NewResult()
	result.Trace = run.Trace
	result.Pending = run.Pending
	result.Applied = run.Applied
	if run.Err != nil {
		result.Err = run.Err.Error()
	}

	if msg := checkExpectedError(scenario.ExpectError, run.Err); msg != "" {
		result.AddError(msg)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace),
	)
	return result, nil
}

// registry compiles the scenario's schema.
func (s *Scenario) registry() (*ir.Registry, error) {
	switch {
	case s.SchemaSource != "":
		return compiler.CompileString(s.SchemaSource)
	case s.Schema != "":
		return compiler.LoadDir(s.Schema)
	default:
		return nil, errors.New("scenario has no schema")
	}
}

// checkExpectedError returns a failure message when err does not meet the
// expectation, or "" when it does.
func checkExpectedError(expect string, err error) string {
	if expect == "" {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return ""
	}

	if err == nil {
		return fmt.Sprintf("expected error %q, workload succeeded", expect)
	}

	var ok bool
	switch expect {
	case ExpectStepFailure:
		ok = workload.IsStepFailure(err)
	case ExpectFlushError:
		ok = engine.IsFlushError(err)
	default:
		ok = strings.Contains(err.Error(), expect)
	}
	if !ok {
		return fmt.Sprintf("expected error %q, got: %v", expect, err)
	}
	return ""
}
