package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/atk4/report/internal/compiler"
	"github.com/atk4/report/internal/report"
)

// Scenario defines a report test scenario.
// A scenario loads a definition, seeds a database from a fixture, runs
// actions against the defined reports and checks what they return.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definition is the .cue or .yaml file declaring models and reports.
	// Relative paths are resolved against the scenario file's directory.
	Definition string `yaml:"definition"`

	// Fixture seeds the database. Without one, steps render SQL but
	// nothing is executed.
	Fixture string `yaml:"fixture,omitempty"`

	// Steps run in order, each on a freshly built report.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final database state.
	// Supported types: trace_contains, row_count, row_contains, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step runs one action against a report or model.
type Step struct {
	// Report names a report or model from the definition.
	Report string `yaml:"report"`

	// Action is select (default), count, field, fx or a write action.
	Action string `yaml:"action,omitempty"`

	// Fields restricts a select.
	Fields []string `yaml:"fields,omitempty"`

	// Args are passed to field and fx: [name] or [function, field].
	Args []any `yaml:"args,omitempty"`

	// Conditions are added to the report before the action runs.
	Conditions []compiler.ConditionDef `yaml:"conditions,omitempty"`

	// Order and Limit are applied after the conditions.
	Order []compiler.OrderDef `yaml:"order,omitempty"`
	Limit int                 `yaml:"limit,omitempty"`

	// Expect is checked against the step's outcome.
	// If nil, the step only has to succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected step outcome. Only the given parts are
// compared.
type Expect struct {
	// SQL is the exact rendered statement.
	SQL string `yaml:"sql,omitempty"`

	// Params are the bound parameters in order.
	Params []any `yaml:"params,omitempty"`

	// Rows are the exported rows of a select.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Unordered compares Rows as a multiset.
	Unordered bool `yaml:"unordered,omitempty"`

	// Value is the result of count, fx or field.
	Value any `yaml:"value,omitempty"`

	// Error is an action error code (UNKNOWN_FIELD, ...) or, for other
	// errors, a substring of the message.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final database state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step ran the action on the report
	// - "row_count": a step returned exactly Count rows
	// - "row_contains": a step returned a row matching Row
	// - "final_state": a table row matching Where has the Expect values
	Type string `yaml:"type"`

	// Report and Action identify steps (trace_contains).
	Report string `yaml:"report,omitempty"`
	Action string `yaml:"action,omitempty"`

	// Step is the 1-based step number (row_count, row_contains).
	Step int `yaml:"step,omitempty"`

	// Count is the expected number of rows (row_count).
	Count int `yaml:"count,omitempty"`

	// Row is a subset of the expected row (row_contains).
	Row map[string]any `yaml:"row,omitempty"`

	// Table is the database table (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertRowCount      = "row_count"
	AssertRowContains   = "row_contains"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Definition and fixture paths are resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving relative paths against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Definition = resolve(basePath, scenario.Definition)
	scenario.Fixture = resolve(basePath, scenario.Fixture)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Definition == "" {
		return fmt.Errorf("definition is required")
	}
	if _, err := os.Stat(s.Definition); os.IsNotExist(err) {
		return fmt.Errorf("definition file not found: %s", s.Definition)
	}
	if s.Fixture != "" {
		if _, err := os.Stat(s.Fixture); os.IsNotExist(err) {
			return fmt.Errorf("fixture file not found: %s", s.Fixture)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Report == "" {
			return fmt.Errorf("steps[%d]: report is required", i)
		}
		if step.Limit < 0 {
			return fmt.Errorf("steps[%d]: limit must be non-negative", i)
		}
		if step.Expect != nil && step.Expect.Rows != nil && stepAction(step) != report.ModeSelect {
			return fmt.Errorf("steps[%d].expect: rows only apply to select", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Steps)); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Report == "" {
			return fmt.Errorf("assertions[%d]: report is required for trace_contains", index)
		}
	case AssertRowCount, AssertRowContains:
		if a.Step < 1 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step must be between 1 and %d for %s", index, steps, a.Type)
		}
		if a.Type == AssertRowCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
		if a.Type == AssertRowContains && len(a.Row) == 0 {
			return fmt.Errorf("assertions[%d]: row is required for row_contains", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// stepAction is the step's action, defaulting to select.
func stepAction(s Step) string {
	if s.Action == "" {
		return report.ModeSelect
	}
	return s.Action
}
