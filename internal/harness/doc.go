// Package harness runs touch scenarios as executable contract tests.
//
// A scenario pairs a record schema with a workload and a list of
// assertions about the bulk updates and hooks the workload produced.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: comment_burst
//	description: "Repeated comment touches collapse into one update"
//	schema: ../records        # CUE directory, relative to the scenario file
//	workload:
//	  seed:
//	    - {type: Post, id: p1}
//	    - {type: Comment, id: c1, refs: {post_id: p1}}
//	  steps:
//	    - scope:
//	        - touch: {type: Comment, id: c1, repeat: 3}
//	assertions:
//	  - type: bulk_update_count
//	    record_type: Comment
//	    count: 1
//	  - type: column_set
//	    record_type: Post
//	    id: p1
//	    column: updated_at
//
// schema_source may hold inline CUE instead of a schema directory.
// expect_error names an error the workload must stop with: step_failure,
// flush_error, or any substring of the error message.
//
// # Assertion Types
//
//   - bulk_update_count: number of bulk updates, optionally for one record type
//   - hook_count: number of touched or committed hooks, optionally for one row
//   - trace_order: events appear in the given order (gaps allowed)
//   - column_set: a stored row has a value in column
//   - column_unset: a stored row has no value in column
//   - column_equal: two stored columns hold the same timestamp
//   - pending_empty: nothing is left queued once the workload ends
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite store with a
// stepping wall clock (testutil.DeterministicClock) and sequential scope
// ids, so traces are identical across runs and can be compared with golden
// files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/comment_burst.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
