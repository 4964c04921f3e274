package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/atk4/report/internal/compiler"
	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
	"github.com/atk4/report/internal/report"
	"github.com/atk4/report/internal/store"
)

// Harness is the scenario execution engine. Every step builds its report
// afresh from the catalog and runs against the same seeded store.
type Harness struct {
	catalog *compiler.Catalog
	store   *store.Store
	execute bool
	logger  *slog.Logger
}

type actioner interface {
	Action(mode string, args ...any) (*queryir.Query, error)
}

type nestedConditioner interface {
	AddNestedCondition(c model.Condition) error
}

// Run executes a test scenario with logging suppressed.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(context.Background(), scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load and validate the definition
// 2. Create a fresh in-memory database and load the fixture
// 3. Execute steps, checking each expect clause
// 4. Evaluate assertions against the trace and the database
//
// The returned error covers setup failures only; step and assertion
// failures are recorded in the result.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	catalog, err := compiler.Load(scenario.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}

	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if scenario.Fixture != "" {
		if err := st.LoadFixtureFile(ctx, scenario.Fixture); err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
	}

	h := &Harness{
		catalog: catalog,
		store:   st,
		execute: scenario.Fixture != "",
		logger:  logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.runStep(ctx, step)
		if err != nil {
			sr.Error = errorText(err)
		}
		result.AddStep(sr)
		h.logger.Debug("step completed",
			"scenario", scenario.Name,
			"step", i+1,
			"report", sr.Report,
			"action", sr.Action,
			"error", sr.Error)

		for _, msg := range checkExpect(step.Expect, sr, err) {
			result.AddError(fmt.Sprintf("step %d (%s %s): %s", i+1, sr.Report, sr.Action, msg))
		}
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) runStep(ctx context.Context, step Step) (StepResult, error) {
	sr := StepResult{Report: step.Report, Action: stepAction(step)}

	src, q, err := h.query(step)
	if err != nil {
		return sr, err
	}
	sql, params, err := h.store.Render(q)
	if err != nil {
		return sr, err
	}
	sr.SQL, sr.Params = sql, params

	if !h.execute {
		return sr, nil
	}

	switch sr.Action {
	case report.ModeSelect:
		rows, err := report.Export(ctx, h.store, src, report.ExportOptions{Fields: step.Fields})
		if err != nil {
			return sr, err
		}
		sr.Rows = rows
	case report.ModeField:
		values, err := h.store.Column(ctx, q)
		if err != nil {
			return sr, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		sr.Value = values
	default:
		v, err := h.store.One(ctx, q)
		if err != nil {
			return sr, err
		}
		sr.Value = normalize(v)
	}
	return sr, nil
}

// query builds the step's report, applies its conditions, order and limit,
// and returns the statement for its action.
func (h *Harness) query(step Step) (report.Source, *queryir.Query, error) {
	src, err := h.catalog.Build(step.Report)
	if err != nil {
		return nil, nil, err
	}

	for _, cd := range step.Conditions {
		if cd.Nested {
			n, ok := src.(nestedConditioner)
			if !ok {
				return nil, nil, fmt.Errorf("%s: nested conditions need a union report", step.Report)
			}
			err = n.AddNestedCondition(cd.Condition())
		} else {
			err = src.AddCondition(cd.Condition())
		}
		if err != nil {
			return nil, nil, err
		}
	}
	for _, o := range step.Order {
		src.SetOrder(o.Field, o.Desc)
	}
	if step.Limit > 0 {
		src.SetLimit(step.Limit, 0)
	}

	mode := stepAction(step)
	args := step.Args
	if mode == report.ModeSelect && step.Fields != nil {
		args = append([]any{step.Fields}, args...)
	}

	var q *queryir.Query
	if v, ok := src.(actioner); ok {
		q, err = v.Action(mode, args...)
	} else {
		q, err = modelAction(src, mode, args)
	}
	if err != nil {
		return nil, nil, err
	}
	return src, q, nil
}

// modelAction runs the read actions on a plain model.
func modelAction(src report.Source, mode string, args []any) (*queryir.Query, error) {
	switch mode {
	case report.ModeSelect:
		var fields []string
		if len(args) > 0 {
			fields, _ = args[0].([]string)
		}
		return src.Select(fields)
	case report.ModeCount:
		return src.Count("")
	case report.ModeField:
		if len(args) == 1 {
			if name, ok := args[0].(string); ok {
				return src.FieldQuery(name)
			}
		}
		return nil, fmt.Errorf("field expects a single field name")
	case report.ModeFx:
		if len(args) == 2 {
			fn, ok1 := args[0].(string)
			field, ok2 := args[1].(string)
			if ok1 && ok2 {
				return src.Fx(fn, field, "")
			}
		}
		return nil, fmt.Errorf("fx expects a function and a field")
	}
	return nil, fmt.Errorf("models do not support %s", mode)
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// errorText is the action error code, or the full message for other errors.
func errorText(err error) string {
	var ae *report.ActionError
	if errors.As(err, &ae) {
		return string(ae.Code)
	}
	return err.Error()
}

// checkExpect compares a step's outcome with its expect clause and returns
// one message per mismatch.
func checkExpect(expect *Expect, sr StepResult, err error) []string {
	if expect == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if expect.Error != "" {
		switch {
		case err == nil:
			return []string{fmt.Sprintf("expected error %s, got none", expect.Error)}
		case sr.Error == expect.Error || strings.Contains(err.Error(), expect.Error):
			return nil
		default:
			return []string{fmt.Sprintf("expected error %s, got %v", expect.Error, err)}
		}
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	if expect.SQL != "" && expect.SQL != sr.SQL {
		msgs = append(msgs, fmt.Sprintf("sql mismatch\n  expected: %s\n  actual:   %s", expect.SQL, sr.SQL))
	}
	if expect.Params != nil && !sameValue(expect.Params, sr.Params) {
		msgs = append(msgs, fmt.Sprintf("params mismatch: expected %v, got %v", expect.Params, sr.Params))
	}
	if expect.Rows != nil && !sameRows(expect.Rows, sr.Rows, expect.Unordered) {
		msgs = append(msgs, fmt.Sprintf("rows mismatch: expected %v, got %v", expect.Rows, sr.Rows))
	}
	if expect.Value != nil && !sameValue(expect.Value, sr.Value) {
		msgs = append(msgs, fmt.Sprintf("value mismatch: expected %v, got %v", expect.Value, sr.Value))
	}
	return msgs
}

// sameValue compares values by their canonical JSON, so 4, int64(4) and
// 4.0 are equal.
func sameValue(expected, actual any) bool {
	e, err := MarshalCanonical(expected)
	if err != nil {
		return false
	}
	a, err := MarshalCanonical(actual)
	if err != nil {
		return false
	}
	return bytes.Equal(e, a)
}

func sameRows(expected, actual []map[string]any, unordered bool) bool {
	if len(expected) != len(actual) {
		return false
	}
	if !unordered {
		return sameValue(expected, actual)
	}
	e, ok1 := canonicalRows(expected)
	a, ok2 := canonicalRows(actual)
	if !ok1 || !ok2 {
		return false
	}
	sort.Strings(e)
	sort.Strings(a)
	for i := range e {
		if e[i] != a[i] {
			return false
		}
	}
	return true
}

func canonicalRows(rows []map[string]any) ([]string, bool) {
	out := make([]string, len(rows))
	for i, row := range rows {
		b, err := MarshalCanonical(row)
		if err != nil {
			return nil, false
		}
		out[i] = string(b)
	}
	return out, true
}
