package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/touchdelay/internal/workload"
)

const minimalWorkload = `
workload:
  seed:
    - {type: Post, id: p1}
  steps:
    - touch: {type: Post, id: p1}
`

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "records"), 0755))

	path := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
schema: records
`+minimalWorkload+`
assertions:
  - type: bulk_update_count
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "records"), scenario.Schema)
	assert.Equal(t, "test_scenario", scenario.Workload.Name, "workload inherits the scenario name")
	require.Len(t, scenario.Workload.Steps, 1)
	assert.Equal(t, workload.KindTouch, scenario.Workload.Steps[0].Kind())
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertBulkUpdateCount, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingSchemaDir(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: s
description: d
schema: does-not-exist
`+minimalWorkload+`
assertions:
  - type: pending_empty
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema directory not found")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "records"), 0755))

	path := writeScenario(t, t.TempDir(), `
name: s
description: d
schema: records
`+minimalWorkload+`
assertions:
  - type: pending_empty
`)

	scenario, err := LoadScenarioWithBasePath(path, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "records"), scenario.Schema)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\n" + minimalWorkload + "assertions: [{type: pending_empty}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: s\n" + minimalWorkload + "assertions: [{type: pending_empty}]\n",
			wantErr: "description is required",
		},
		{
			name: "both schema forms",
			content: "name: s\ndescription: d\nschema: x\nschema_source: 'record: {}'\n" +
				minimalWorkload + "assertions: [{type: pending_empty}]\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "negative max passes",
			content: "name: s\ndescription: d\nmax_passes: -1\n" + minimalWorkload + "assertions: [{type: pending_empty}]\n",
			wantErr: "max_passes",
		},
		{
			name:    "no steps",
			content: "name: s\ndescription: d\nworkload: {}\nassertions: [{type: pending_empty}]\n",
			wantErr: "workload: steps list is required",
		},
		{
			name:    "no assertions",
			content: "name: s\ndescription: d\n" + minimalWorkload,
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown assertion type",
			content: "name: s\ndescription: d\n" + minimalWorkload + "assertions: [{type: final_state}]\n",
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name:    "bad hook",
			content: "name: s\ndescription: d\n" + minimalWorkload + "assertions: [{type: hook_count, hook: saved}]\n",
			wantErr: "hook must be",
		},
		{
			name:    "negative count",
			content: "name: s\ndescription: d\n" + minimalWorkload + "assertions: [{type: bulk_update_count, count: -1}]\n",
			wantErr: "count must be non-negative",
		},
		{
			name:    "empty trace order",
			content: "name: s\ndescription: d\n" + minimalWorkload + "assertions: [{type: trace_order}]\n",
			wantErr: "events list is required",
		},
		{
			name:    "column without row",
			content: "name: s\ndescription: d\n" + minimalWorkload + "assertions: [{type: column_set, column: updated_at}]\n",
			wantErr: "record_type, id and column are required",
		},
		{
			name:    "unknown field",
			content: "name: s\ndescription: d\nspecs: [x]\n" + minimalWorkload + "assertions: [{type: pending_empty}]\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_ExpectErrorWithoutAssertions(t *testing.T) {
	scenario, err := ParseScenario([]byte("name: s\ndescription: d\nexpect_error: step_failure\n" + minimalWorkload))
	require.NoError(t, err)
	assert.Equal(t, ExpectStepFailure, scenario.ExpectError)
	assert.Empty(t, scenario.Assertions)
}

func TestLoadExampleScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join("testdata", "records"), scenario.Schema)
		})
	}
}
