package model

import (
	"fmt"
	"reflect"

	"github.com/atk4/report/internal/queryir"
)

// Condition is one filter entry accumulated on a model or view.
//
// Forms:
//   - Field/Op/Value: compare a named field with a value ("amount", ">", 10)
//   - Left/Op/Value: compare an arbitrary expression with a value
//   - Expr: a boolean expression used as-is
//   - Or: a disjunction of nested conditions
//
// An empty Op means "=". A Value that is itself a queryir.Expr is used
// without typecasting or binding.
//
// Wrap templates are applied in order to the left side of a comparison: []
// is the expression so far and [name] another field, resolved by whoever
// builds the predicate. A union uses it to compare a branch field through
// the branch mapping, e.g. Wrap: []string{"-[]"}.
type Condition struct {
	Field string
	Left  queryir.Expr
	Op    string
	Value any
	Expr  queryir.Expr
	Or    []Condition
	Wrap  []string
}

// Eq is Field = value.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: "=", Value: value}
}

// Cond compares a field using op.
func Cond(field, op string, value any) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// On compares an expression using op. The value is not typecast.
func On(left queryir.Expr, op string, value any) Condition {
	return Condition{Left: left, Op: op, Value: value}
}

// Where uses a boolean expression as a condition.
func Where(e queryir.Expr) Condition {
	return Condition{Expr: e}
}

// Any matches when at least one of conds matches.
func Any(conds ...Condition) Condition {
	return Condition{Or: conds}
}

// IsDisjunction reports whether c is an Any condition.
func (c Condition) IsDisjunction() bool {
	return c.Or != nil
}

// FieldNames lists the named fields c refers to, including nested ones.
func (c Condition) FieldNames() []string {
	var names []string
	if c.Field != "" {
		names = append(names, c.Field)
	}
	for _, w := range c.Wrap {
		for _, n := range queryir.Names(w) {
			if n != c.Field {
				names = append(names, n)
			}
		}
	}
	for _, sub := range c.Or {
		names = append(names, sub.FieldNames()...)
	}
	return names
}

// Resolver maps a field name to its expression and descriptor.
type Resolver func(field string) (queryir.Expr, FieldDescriptor, error)

// BuildPredicate turns a condition into a predicate, resolving named fields
// through resolve and typecasting values by the field's declared type.
func BuildPredicate(c Condition, resolve Resolver) (queryir.Predicate, error) {
	switch {
	case c.Or != nil:
		or := queryir.Or{}
		for _, sub := range c.Or {
			p, err := BuildPredicate(sub, resolve)
			if err != nil {
				return nil, err
			}
			or.Predicates = append(or.Predicates, p)
		}
		return or, nil
	case c.Expr != nil:
		return queryir.ExprPredicate{Expr: c.Expr}, nil
	case c.Field != "":
		left, fd, err := resolve(c.Field)
		if err != nil {
			return nil, err
		}
		if left, err = wrapLeft(left, c.Wrap, resolve); err != nil {
			return nil, err
		}
		right, err := valueExpr(fd, c.Value, true)
		if err != nil {
			return nil, fmt.Errorf("condition on %q: %w", c.Field, err)
		}
		return queryir.Compare{Left: left, Op: opOrEq(c.Op), Right: right}, nil
	case c.Left != nil:
		left, err := wrapLeft(c.Left, c.Wrap, resolve)
		if err != nil {
			return nil, err
		}
		right, err := valueExpr(FieldDescriptor{}, c.Value, false)
		if err != nil {
			return nil, err
		}
		return queryir.Compare{Left: left, Op: opOrEq(c.Op), Right: right}, nil
	default:
		return nil, fmt.Errorf("empty condition")
	}
}

func wrapLeft(left queryir.Expr, wrap []string, resolve Resolver) (queryir.Expr, error) {
	for _, w := range wrap {
		if w == "" {
			continue
		}
		var lookupErr error
		t, err := queryir.Parse(w, []queryir.Expr{left}, func(name string) (queryir.Expr, bool) {
			e, _, err := resolve(name)
			if err != nil && lookupErr == nil {
				lookupErr = err
			}
			return e, err == nil
		})
		if lookupErr != nil {
			return nil, lookupErr
		}
		if err != nil {
			return nil, err
		}
		left = t
	}
	return left, nil
}

func opOrEq(op string) string {
	if op == "" {
		return "="
	}
	return op
}

// valueExpr binds v as a parameter. Slices are typecast element-wise.
func valueExpr(fd FieldDescriptor, v any, typecast bool) (queryir.Expr, error) {
	if e, ok := v.(queryir.Expr); ok {
		return e, nil
	}
	if v == nil {
		return queryir.Null{}, nil
	}
	if !typecast {
		return queryir.Param{Value: v}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			cv, err := TypecastSave(fd, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return queryir.Param{Value: out}, nil
	}

	cv, err := TypecastSave(fd, v)
	if err != nil {
		return nil, err
	}
	return queryir.Param{Value: cv}, nil
}
