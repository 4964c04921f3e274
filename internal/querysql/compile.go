package querysql

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/atk4/report/internal/queryir"
)

// SQLCompiler renders queryir expressions to parameterized SQL.
//
// Rendering is a pure function of the expression tree: the same tree always
// yields the same text and the same parameter order.
// All values are parameterized (never interpolated).
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a compiler for the given dialect. A nil dialect
// means SQLite.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	if d == nil {
		d = SQLite{}
	}
	return &SQLCompiler{Dialect: d}
}

// Compile converts an expression to SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(e queryir.Expr) (string, []any, error) {
	if e == nil {
		return "", nil, fmt.Errorf("cannot compile nil expression")
	}
	if err := queryir.Validate(e); err != nil {
		return "", nil, err
	}

	r := &renderer{dialect: c.Dialect}
	if q, ok := e.(*queryir.Query); ok {
		// top-level statements are not parenthesized
		if err := r.query(q); err != nil {
			return "", nil, err
		}
	} else if err := r.expr(e); err != nil {
		return "", nil, err
	}

	return r.buf.String(), r.params, nil
}

// renderer accumulates SQL text and parameters for one Compile call.
type renderer struct {
	dialect Dialect
	buf     strings.Builder
	params  []any
}

func (r *renderer) write(s string) {
	r.buf.WriteString(s)
}

func (r *renderer) bind(v any) {
	r.params = append(r.params, v)
	r.write(r.dialect.Placeholder(len(r.params)))
}

func (r *renderer) query(q *queryir.Query) error {
	r.write("SELECT ")
	if len(q.Fields) == 0 {
		r.write("*")
	}
	for i, f := range q.Fields {
		if i > 0 {
			r.write(", ")
		}
		if err := r.expr(f.Expr); err != nil {
			return err
		}
		if f.Alias == "" {
			continue
		}
		if sameName(f.Expr, f.Alias) {
			continue
		}
		r.write(" AS " + r.dialect.QuoteIdent(f.Alias))
	}

	r.write(" FROM ")
	if err := r.source(q.From); err != nil {
		return err
	}

	if len(q.Where) > 0 {
		r.write(" WHERE ")
		if err := r.conjunction(q.Where); err != nil {
			return fmt.Errorf("compile where: %w", err)
		}
	}

	for i, g := range q.Group {
		if i == 0 {
			r.write(" GROUP BY ")
		} else {
			r.write(", ")
		}
		if err := r.expr(g); err != nil {
			return err
		}
	}

	if len(q.Having) > 0 {
		r.write(" HAVING ")
		if err := r.conjunction(q.Having); err != nil {
			return fmt.Errorf("compile having: %w", err)
		}
	}

	for i, o := range q.Order {
		if i == 0 {
			r.write(" ORDER BY ")
		} else {
			r.write(", ")
		}
		if err := r.expr(o.Expr); err != nil {
			return err
		}
		if o.Desc {
			r.write(" DESC")
		}
	}

	if q.Limit != nil {
		r.write(fmt.Sprintf(" LIMIT %d", q.Limit.Count))
		if q.Limit.Offset > 0 {
			r.write(fmt.Sprintf(" OFFSET %d", q.Limit.Offset))
		}
	}

	return nil
}

// source renders a FROM operand.
func (r *renderer) source(e queryir.Expr) error {
	switch src := e.(type) {
	case queryir.Table:
		r.write(r.dialect.QuoteIdent(src.Name))
		if src.Alias != "" && src.Alias != src.Name {
			r.write(" AS " + r.dialect.QuoteIdent(src.Alias))
		}
		return nil
	case queryir.Derived:
		return r.derived(src)
	default:
		return r.expr(e)
	}
}

func (r *renderer) derived(d queryir.Derived) error {
	r.write("(")
	var err error
	switch inner := d.Source.(type) {
	case *queryir.Query:
		err = r.query(inner)
	case queryir.Union:
		err = r.union(inner)
	default:
		err = r.expr(inner)
	}
	if err != nil {
		return err
	}
	r.write(") AS " + r.dialect.QuoteIdent(d.Alias))
	return nil
}

// union renders branches joined by UNION ALL. Branches carrying their own
// ORDER BY or LIMIT are wrapped, since compound members may not have them.
func (r *renderer) union(u queryir.Union) error {
	for i, b := range u.Branches {
		if i > 0 {
			r.write(" UNION ALL ")
		}
		if len(b.Order) > 0 || b.Limit != nil {
			r.write("SELECT * FROM (")
			if err := r.query(b); err != nil {
				return err
			}
			r.write(fmt.Sprintf(") AS %s", r.dialect.QuoteIdent(fmt.Sprintf("u%d", i))))
			continue
		}
		if err := r.query(b); err != nil {
			return fmt.Errorf("compile union branch %d: %w", i, err)
		}
	}
	return nil
}

func (r *renderer) expr(e queryir.Expr) error {
	switch x := e.(type) {
	case queryir.Raw:
		r.write(string(x))
	case queryir.Ident:
		r.write(r.dialect.QuoteIdent(string(x)))
	case queryir.Column:
		if x.Table != "" {
			r.write(r.dialect.QuoteIdent(x.Table) + ".")
		}
		r.write(r.dialect.QuoteIdent(x.Name))
	case queryir.Param:
		r.param(x.Value)
	case queryir.Null:
		r.write("NULL")
	case queryir.Paren:
		r.write("(")
		if err := r.expr(x.Expr); err != nil {
			return err
		}
		r.write(")")
	case queryir.Template:
		for _, p := range x.Parts {
			if p.Arg == nil {
				r.write(p.Text)
				continue
			}
			if err := r.expr(p.Arg); err != nil {
				return err
			}
		}
	case *queryir.Query:
		r.write("(")
		if err := r.query(x); err != nil {
			return err
		}
		r.write(")")
	case queryir.Union:
		r.write("(")
		if err := r.union(x); err != nil {
			return err
		}
		r.write(")")
	case queryir.Derived:
		return r.derived(x)
	case queryir.Table:
		return r.source(x)
	default:
		return fmt.Errorf("unsupported expression type: %T", e)
	}
	return nil
}

// param binds a value; slices (other than []byte) expand to a parenthesized list.
func (r *renderer) param(v any) {
	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		r.bind(v)
		return
	}
	r.write("(")
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			r.write(", ")
		}
		r.bind(rv.Index(i).Interface())
	}
	r.write(")")
}

func (r *renderer) conjunction(preds []queryir.Predicate) error {
	for i, p := range preds {
		if i > 0 {
			r.write(" AND ")
		}
		if err := r.predicate(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) predicate(p queryir.Predicate) error {
	switch pred := p.(type) {
	case queryir.Compare:
		return r.compare(pred)
	case queryir.Or:
		if len(pred.Predicates) == 0 {
			r.write("1 = 0")
			return nil
		}
		r.write("(")
		for i, sub := range pred.Predicates {
			if i > 0 {
				r.write(" OR ")
			}
			if err := r.predicate(sub); err != nil {
				return err
			}
		}
		r.write(")")
		return nil
	case queryir.ExprPredicate:
		return r.expr(pred.Expr)
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (r *renderer) compare(c queryir.Compare) error {
	op := strings.ToUpper(strings.TrimSpace(c.Op))
	if err := r.expr(c.Left); err != nil {
		return err
	}

	if isNullValue(c.Right) {
		switch op {
		case "=", "IS":
			r.write(" IS NULL")
			return nil
		case "!=", "<>", "IS NOT":
			r.write(" IS NOT NULL")
			return nil
		default:
			return fmt.Errorf("operator %q cannot compare with NULL", c.Op)
		}
	}

	r.write(" " + op + " ")
	return r.expr(c.Right)
}

// sameName reports whether e already renders as the column alias.
func sameName(e queryir.Expr, alias string) bool {
	switch x := e.(type) {
	case queryir.Column:
		return x.Name == alias
	case queryir.Ident:
		return string(x) == alias
	}
	return false
}

func isNullValue(e queryir.Expr) bool {
	switch x := e.(type) {
	case nil, queryir.Null:
		return true
	case queryir.Param:
		return x.Value == nil
	}
	return false
}
