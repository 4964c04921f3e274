package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../../testdata/scenarios"

// writeScenario writes content next to an empty definition file and
// returns the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "def.yaml"), []byte("models: []\n"), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "client_totals.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "client_totals", scenario.Name)
	assert.Equal(t, filepath.Join(scenarioDir, "../definitions/billing.cue"), scenario.Definition)
	assert.Equal(t, filepath.Join(scenarioDir, "../fixtures/billing.yaml"), scenario.Fixture)
	require.Len(t, scenario.Steps, 5)
	assert.Len(t, scenario.Assertions, 4)

	fx := scenario.Steps[2]
	assert.Equal(t, "fx", fx.Action)
	assert.Equal(t, []any{"sum", "amount"}, fx.Args)
	assert.Equal(t, 23, fx.Expect.Value)

	filtered := scenario.Steps[3]
	require.Len(t, filtered.Conditions, 1)
	assert.Equal(t, ">", filtered.Conditions[0].Op)
	assert.Equal(t, "select", stepAction(filtered))
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "unknown key"
definition: def.yaml
step:
  - report: r
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\ndefinition: def.yaml\nsteps: [{report: r}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\ndefinition: def.yaml\nsteps: [{report: r}]\n",
			wantErr: "description is required",
		},
		{
			name:    "missing definition",
			content: "name: n\ndescription: d\nsteps: [{report: r}]\n",
			wantErr: "definition is required",
		},
		{
			name:    "definition not found",
			content: "name: n\ndescription: d\ndefinition: other.cue\nsteps: [{report: r}]\n",
			wantErr: "definition file not found",
		},
		{
			name:    "fixture not found",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nfixture: seed.yaml\nsteps: [{report: r}]\n",
			wantErr: "fixture file not found",
		},
		{
			name:    "no steps",
			content: "name: n\ndescription: d\ndefinition: def.yaml\n",
			wantErr: "steps list is required",
		},
		{
			name:    "step without report",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{action: count}]\n",
			wantErr: "steps[0]: report is required",
		},
		{
			name:    "rows on count",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{report: r, action: count, expect: {rows: [{a: 1}]}}]\n",
			wantErr: "rows only apply to select",
		},
		{
			name:    "assertion without type",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{report: r}]\nassertions: [{step: 1}]\n",
			wantErr: "assertions[0]: type is required",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{report: r}]\nassertions: [{type: trace_order}]\n",
			wantErr: `unknown assertion type "trace_order"`,
		},
		{
			name:    "row_count out of range",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{report: r}]\nassertions: [{type: row_count, step: 2}]\n",
			wantErr: "step must be between 1 and 1",
		},
		{
			name:    "row_contains without row",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{report: r}]\nassertions: [{type: row_contains, step: 1}]\n",
			wantErr: "row is required",
		},
		{
			name:    "trace_contains without report",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{report: r}]\nassertions: [{type: trace_contains}]\n",
			wantErr: "report is required for trace_contains",
		},
		{
			name:    "final_state without expect",
			content: "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{report: r}]\nassertions: [{type: final_state, table: invoice}]\n",
			wantErr: "expect is required for final_state",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	path := writeScenario(t, "name: n\ndescription: d\ndefinition: def.yaml\nsteps: [{report: r}]\n")
	base := filepath.Dir(path)

	scenario, err := LoadScenarioWithBasePath(path, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "def.yaml"), scenario.Definition)
	assert.Empty(t, scenario.Fixture)
}
