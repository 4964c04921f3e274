package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atk4/report/internal/store"
)

func runExportCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewExportCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func tableLines(out string) [][]string {
	var lines [][]string
	for _, l := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		lines = append(lines, strings.Fields(l))
	}
	return lines
}

func TestExportCommandSeed(t *testing.T) {
	out, err := runExportCommand(t, "text", billingCUE, "client_totals", "--seed", billingFixture)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"client", "client_id", "amount", "c"},
		{"Vinny", "1", "19", "2"},
		{"Zoe", "2", "4", "1"},
		{"(2", "rows)"},
	}, tableLines(out))
}

func TestExportCommandWhere(t *testing.T) {
	out, err := runExportCommand(t, "text", billingCUE, "client_balance",
		"--seed", billingFixture, "--where", "amount<0")
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"client_id", "amount"},
		{"1", "-9"},
		{"(1", "rows)"},
	}, tableLines(out))
}

func TestExportCommandDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billing.db")
	st, err := store.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.LoadFixtureFile(context.Background(), billingFixture))
	require.NoError(t, st.Close())

	out, err := runExportCommand(t, "json", billingYAML, "balance_by_name", "--db", path)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ExportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "balance_by_name", resp.Data.Report)
	assert.Equal(t, 4, resp.Data.Count)
	assert.Equal(t, []map[string]any{
		{"name": "chair purchase", "amount": -8.0},
		{"name": "full pay", "amount": 4.0},
		{"name": "prepay", "amount": 10.0},
		{"name": "table purchase", "amount": -15.0},
	}, resp.Data.Rows)
}

func TestExportCommandFields(t *testing.T) {
	out, err := runExportCommand(t, "json", billingCUE, "transactions",
		"--seed", billingFixture, "--fields", "amount")
	require.NoError(t, err)

	var resp struct {
		Data ExportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, 5, resp.Data.Count)

	var amounts []float64
	for _, row := range resp.Data.Rows {
		assert.Len(t, row, 1)
		amounts = append(amounts, row["amount"].(float64))
	}
	assert.ElementsMatch(t, []float64{-4, -15, -4, 10, 4}, amounts)
}

func TestExportCommandErrors(t *testing.T) {
	emptyDB := filepath.Join(t.TempDir(), "empty.db")

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no database", []string{billingCUE, "client_totals"}, "E001"},
		{"unknown report", []string{billingCUE, "nope", "--seed", billingFixture}, "E005"},
		{"missing fixture", []string{billingCUE, "client_totals", "--seed", "/nonexistent.yaml"}, "E009"},
		{"missing tables", []string{billingCUE, "client_totals", "--db", emptyDB}, "E009"},
		{"unknown field", []string{billingCUE, "client_totals", "--seed", billingFixture, "--fields", "nope"}, "UNKNOWN_FIELD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runExportCommand(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
