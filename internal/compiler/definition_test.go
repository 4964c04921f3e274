package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	billingCUE  = "../../testdata/definitions/billing.cue"
	billingYAML = "../../testdata/definitions/billing.yaml"
)

func TestLoadFile_FormatsAgree(t *testing.T) {
	fromCUE, err := LoadFile(billingCUE)
	require.NoError(t, err)
	fromYAML, err := LoadFile(billingYAML)
	require.NoError(t, err)

	assert.Equal(t, fromYAML, fromCUE)
}

func TestLoadFile_Billing(t *testing.T) {
	def, err := LoadFile(billingCUE)
	require.NoError(t, err)

	require.Len(t, def.Models, 3)
	invoice, ok := def.Model("invoice")
	require.True(t, ok)
	assert.Equal(t, "invoice", invoice.TableName())
	assert.Equal(t, []ReferenceDef{{Field: "client_id", Model: "client", Title: true}}, invoice.References)

	transactions, ok := def.Report("transactions")
	require.True(t, ok)
	assert.Equal(t, KindUnion, transactions.Kind)
	require.Len(t, transactions.Branches, 2)
	assert.Equal(t, map[string]string{"amount": "-[]"}, transactions.Branches[0].Mapping)
	assert.Nil(t, transactions.Branches[1].Mapping)

	totals, ok := def.Report("client_totals")
	require.True(t, ok)
	require.NotNil(t, totals.GroupBy)
	assert.Equal(t, []string{"client_id"}, totals.GroupBy.Keys)
	assert.Equal(t, AggregateDef{Field: "c", Template: "count(*)", Type: "integer"}, totals.GroupBy.Aggregates[1])

	_, ok = def.Report("nope")
	assert.False(t, ok)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	testCases := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "unsupported extension",
			file:    "def.json",
			content: `{}`,
			wantErr: "unsupported definition format",
		},
		{
			name:    "unknown yaml key",
			file:    "def.yaml",
			content: "models: []\nreprots: []\n",
			wantErr: "parse definition",
		},
		{
			name:    "cue syntax error",
			file:    "def.cue",
			content: "models: [{name: \"a\"\n",
			wantErr: "def.cue",
		},
		{
			name:    "cue conflict",
			file:    "conflict.cue",
			content: "models: [{name: \"a\"}]\nmodels: [{name: \"b\"}]\n",
			wantErr: "conflicting values",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))

			_, err := LoadFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	_, err := LoadFile(filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read definition")
}

func TestParseCUE_CompileErrorPosition(t *testing.T) {
	_, err := ParseCUE("broken.cue", []byte("models: [{name: 1} & {name: \"x\"}]\n"))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.True(t, ce.Pos.IsValid())
	assert.Equal(t, "broken.cue", ce.Pos.Filename())
}

func TestParseCUE_ConditionValues(t *testing.T) {
	def, err := ParseCUE("cond.cue", []byte(`
models: [{
	name: "invoice"
	fields: [{name: "amount", type: "money"}]
	conditions: [{field: "amount", op: ">", value: 10}, {any: [{field: "amount", value: 1}, {field: "amount", value: "2"}]}]
}]
`))
	require.NoError(t, err)

	conds := def.Models[0].Conditions
	require.Len(t, conds, 2)
	assert.Equal(t, 10, conds[0].Value)
	assert.Equal(t, ">", conds[0].Op)
	require.Len(t, conds[1].Any, 2)
	assert.Equal(t, "2", conds[1].Any[1].Value)
}
