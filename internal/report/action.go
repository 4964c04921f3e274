package report

import (
	"github.com/atk4/report/internal/queryir"
)

// Action modes understood by views.
const (
	ModeSelect = "select"
	ModeCount  = "count"
	ModeField  = "field"
	ModeFx     = "fx"
	ModeInsert = "insert"
	ModeUpdate = "update"
	ModeDelete = "delete"
)

// actionTarget is the read side shared by both views.
type actionTarget interface {
	Select(fields []string, hooks ...queryir.Hook) (*queryir.Query, error)
	Count(alias string) (*queryir.Query, error)
	FieldQuery(name string) (*queryir.Query, error)
	Fx(fn, field, alias string, wrap ...string) (*queryir.Query, error)
}

// dispatch maps an action mode and loosely typed arguments onto a view.
//
// Arguments:
//
//	select  [fields []string] [hooks ...queryir.Hook]
//	count
//	field   name string
//	fx      fn string, field string
func dispatch(view string, t actionTarget, mode string, args []any) (*queryir.Query, error) {
	switch mode {
	case ModeSelect:
		var fields []string
		var hooks []queryir.Hook
		for i, arg := range args {
			switch a := arg.(type) {
			case nil:
			case []string:
				if i != 0 {
					return nil, invalidArgument(view, mode, "field list must be the first argument")
				}
				fields = a
			case queryir.Hook:
				hooks = append(hooks, a)
			case func(*queryir.Query) error:
				hooks = append(hooks, a)
			default:
				return nil, invalidArgument(view, mode, "unexpected argument %T", arg)
			}
		}
		return t.Select(fields, hooks...)

	case ModeCount:
		return t.Count("")

	case ModeField:
		if len(args) != 1 {
			return nil, invalidArgument(view, mode, "expected a single field name, got %d arguments", len(args))
		}
		name, ok := args[0].(string)
		if !ok || name == "" {
			return nil, invalidArgument(view, mode, "field name must be a non-empty string, got %T", args[0])
		}
		return t.FieldQuery(name)

	case ModeFx:
		if len(args) != 2 {
			return nil, invalidArgument(view, mode, "expected function and field, got %d arguments", len(args))
		}
		fn, ok1 := args[0].(string)
		field, ok2 := args[1].(string)
		if !ok1 || !ok2 || fn == "" || field == "" {
			return nil, invalidArgument(view, mode, "function and field must be non-empty strings")
		}
		if !isFuncName(fn) {
			return nil, invalidArgument(view, mode, "invalid function name %q", fn)
		}
		return t.Fx(fn, field, "")

	default:
		return nil, unsupported(view, mode)
	}
}
