package queryir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is wrapped by every error returned from Validate.
var ErrInvalidQuery = errors.New("invalid query")

// Validate checks the structural rules a renderer relies on:
//   - every statement has a table source
//   - every union has at least one branch
//   - every derived source has an alias
//   - no nil expressions in projections, groups or predicates
//
// All problems are collected before returning (does not fail-fast).
// Validate is a pure function with no side effects.
func Validate(e Expr) error {
	v := &validator{}
	v.validateExpr(e, "root")
	if len(v.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(v.problems, "; "))
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateExpr(e Expr, path string) {
	switch x := e.(type) {
	case nil:
		v.addProblem("%s: nil expression", path)
	case *Query:
		v.validateQuery(x, path)
	case Union:
		if len(x.Branches) == 0 {
			v.addProblem("%s: union without branches", path)
		}
		for i, b := range x.Branches {
			v.validateQuery(b, fmt.Sprintf("%s.branch[%d]", path, i))
		}
	case Derived:
		if x.Alias == "" {
			v.addProblem("%s: derived table without alias", path)
		}
		v.validateExpr(x.Source, path+".derived")
	case Paren:
		v.validateExpr(x.Expr, path)
	case Template:
		for _, p := range x.Parts {
			if p.Arg != nil {
				v.validateExpr(p.Arg, path)
			}
		}
	case Table:
		if x.Name == "" {
			v.addProblem("%s: table without name", path)
		}
	}
}

func (v *validator) validateQuery(q *Query, path string) {
	if q == nil {
		v.addProblem("%s: nil statement", path)
		return
	}
	if q.From == nil {
		v.addProblem("%s: statement without table source", path)
	} else {
		v.validateExpr(q.From, path+".from")
	}
	for i, f := range q.Fields {
		v.validateExpr(f.Expr, fmt.Sprintf("%s.field[%d]", path, i))
	}
	for i, g := range q.Group {
		v.validateExpr(g, fmt.Sprintf("%s.group[%d]", path, i))
	}
	for i, p := range q.Where {
		v.validatePredicate(p, fmt.Sprintf("%s.where[%d]", path, i))
	}
	for i, p := range q.Having {
		v.validatePredicate(p, fmt.Sprintf("%s.having[%d]", path, i))
	}
}

func (v *validator) validatePredicate(p Predicate, path string) {
	switch x := p.(type) {
	case nil:
		v.addProblem("%s: nil predicate", path)
	case Compare:
		v.validateExpr(x.Left, path+".left")
		if x.Op == "" {
			v.addProblem("%s: comparison without operator", path)
		}
	case Or:
		for i, sub := range x.Predicates {
			v.validatePredicate(sub, fmt.Sprintf("%s.or[%d]", path, i))
		}
	case ExprPredicate:
		v.validateExpr(x.Expr, path)
	}
}
