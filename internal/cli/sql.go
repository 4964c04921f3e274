package cli

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atk4/report/internal/compiler"
	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
	"github.com/atk4/report/internal/querysql"
	"github.com/atk4/report/internal/report"
)

// ValidDialects lists the dialects the sql command renders.
var ValidDialects = []string{"sqlite", "postgres"}

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Dialect string
	Action  string
	Fields  []string
	Args    []string
	Where   []string
}

// SQLResult is the rendered statement of one report action.
type SQLResult struct {
	Report string `json:"report"`
	Action string `json:"action"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <definition> <report>",
		Short: "Render the SQL statement of a report",
		Long: `Render the statement a report action would run, without a database.

Actions:
  select  all rows (--fields restricts the projection)
  count   number of rows
  field   one column (--arg <field>)
  fx      aggregate over rows (--arg <fn> --arg <field>)

Examples:
  report sql billing.cue client_totals
  report sql billing.cue transactions --action fx --arg sum --arg amount
  report sql billing.cue client_totals --where "amount>10"
  report sql billing.cue client_balance --dialect postgres --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "sqlite", "SQL dialect (sqlite|postgres)")
	cmd.Flags().StringVar(&opts.Action, "action", report.ModeSelect, "report action to render")
	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "fields to select")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "action argument (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "condition such as amount>10 (repeatable)")

	return cmd
}

func runSQL(opts *SQLOptions, path, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if !slices.Contains(ValidDialects, opts.Dialect) {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("invalid dialect %q: must be one of %v", opts.Dialect, ValidDialects), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid dialect %q", opts.Dialect))
	}

	catalog, err := openCatalog(formatter, path)
	if err != nil {
		return err
	}

	view, err := buildReport(catalog, name, opts.Where)
	if err != nil {
		return outputReportError(formatter, err, ErrCodeGeneric)
	}
	q, err := reportAction(view, opts.Action, opts.Fields, opts.Args)
	if err != nil {
		return outputReportError(formatter, err, ErrCodeGeneric)
	}

	sql, params, err := querysql.NewSQLCompiler(querysql.DialectFor(opts.Dialect)).Compile(q)
	if err != nil {
		return outputReportError(formatter, err, ErrCodeGeneric)
	}
	formatter.VerboseLog("Rendered %s %s (%d params)", name, opts.Action, len(params))

	result := SQLResult{Report: name, Action: opts.Action, SQL: sql, Params: params}
	if result.Params == nil {
		result.Params = []any{}
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, sql)
	if len(params) > 0 {
		fmt.Fprintf(formatter.Writer, "-- params: %s\n", formatParams(params))
	}
	return nil
}

// buildReport builds a fresh report and applies the --where conditions.
func buildReport(catalog *compiler.Catalog, name string, where []string) (compiler.View, error) {
	view, err := catalog.Report(name)
	if err != nil {
		return nil, err
	}
	for _, w := range where {
		c, err := ParseCondition(w)
		if err != nil {
			return nil, err
		}
		if err := view.AddCondition(c); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// reportAction asks view for the statement of one action.
func reportAction(view compiler.View, action string, fields, args []string) (*queryir.Query, error) {
	var actionArgs []any
	if action == report.ModeSelect && len(fields) > 0 {
		actionArgs = append(actionArgs, fields)
	}
	for _, a := range args {
		actionArgs = append(actionArgs, a)
	}
	return view.Action(action, actionArgs...)
}

// outputReportError reports a build, render or execution failure. Action
// errors keep their code and an unknown report name is E005; anything else
// gets fallback.
func outputReportError(formatter *OutputFormatter, err error, fallback string) error {
	code := fallback
	var actionErr *report.ActionError
	switch {
	case errors.As(err, &actionErr):
		code = string(actionErr.Code)
	case errors.Is(err, compiler.ErrUnknownName):
		code = ErrCodeNotFound
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}

// conditionOps is ordered so two-character operators match first.
var conditionOps = []string{"!=", ">=", "<=", "=", ">", "<"}

// ParseCondition parses "field<op>value". Values that parse as integers or
// floats are bound as numbers, everything else as text.
func ParseCondition(s string) (model.Condition, error) {
	for _, op := range conditionOps {
		i := strings.Index(s, op)
		if i <= 0 {
			continue
		}
		field := strings.TrimSpace(s[:i])
		raw := strings.TrimSpace(s[i+len(op):])
		if field == "" {
			break
		}
		return model.Cond(field, op, conditionValue(raw)), nil
	}
	return model.Condition{}, fmt.Errorf("invalid condition %q: want field<op>value with op one of %v", s, conditionOps)
}

func conditionValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func formatParams(params []any) string {
	parts := make([]string, len(params))
	for i, p := range params {
		if s, ok := p.(string); ok {
			parts[i] = fmt.Sprintf("%q", s)
			continue
		}
		parts[i] = formatCell(p)
	}
	return strings.Join(parts, ", ")
}
