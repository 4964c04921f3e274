package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atk4/report/internal/queryir"
)

// IDField is the primary key every model is created with.
const IDField = "id"

// ErrUnknownField is wrapped when a field name cannot be resolved.
var ErrUnknownField = errors.New("unknown field")

// ErrCyclicExpression is wrapped when expression fields refer to each other.
var ErrCyclicExpression = errors.New("cyclic expression")

// Model is a table-backed base model.
//
// All statement builders are pure: they read the current configuration and
// return a fresh statement. A Model is not safe for concurrent configuration.
type Model struct {
	table      string
	fields     FieldSet
	conditions []Condition
	order      []orderTerm
	limit      int
	offset     int
}

type orderTerm struct {
	field string
	desc  bool
}

// New creates a model over table with an integer "id" field.
func New(table string) *Model {
	m := &Model{table: table}
	m.AddField(IDField, WithType(TypeInteger), System())
	return m
}

// Table returns the table name.
func (m *Model) Table() string {
	return m.table
}

// AddField declares a field, replacing any field of the same name.
func (m *Model) AddField(name string, opts ...FieldOption) FieldDescriptor {
	f := NewField(name, opts...)
	m.fields.Put(f)
	return f
}

// AddExpression declares a field computed from template. Named placeholders
// refer to other fields of the model and are resolved when the field is used.
func (m *Model) AddExpression(name, template string, opts ...FieldOption) FieldDescriptor {
	return m.AddField(name, append([]FieldOption{WithExpr(template)}, opts...)...)
}

// AddComputed declares a field backed by a prebuilt expression.
func (m *Model) AddComputed(name string, e queryir.Expr, opts ...FieldOption) FieldDescriptor {
	f := NewField(name, opts...)
	f.Computed = e
	m.fields.Put(f)
	return f
}

// Field implements Schema.
func (m *Model) Field(name string) (FieldDescriptor, bool) {
	return m.fields.Field(name)
}

// Fields implements Schema.
func (m *Model) Fields() []FieldDescriptor {
	return m.fields.Fields()
}

// FieldRef returns the expression for a field: a table-qualified column, or
// the field's expression in parentheses.
func (m *Model) FieldRef(name string) (queryir.Expr, error) {
	return m.resolve(name, map[string]bool{})
}

func (m *Model) resolve(name string, visiting map[string]bool) (queryir.Expr, error) {
	f, ok := m.fields.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w %q in model %s", ErrUnknownField, name, m.table)
	}
	switch {
	case f.Computed != nil:
		return f.Computed, nil
	case f.Expr != "":
		if visiting[name] {
			return nil, fmt.Errorf("%w: field %q in model %s", ErrCyclicExpression, name, m.table)
		}
		visiting[name] = true
		defer delete(visiting, name)

		t, err := m.parse(f.Expr, nil, visiting)
		if err != nil {
			return nil, fmt.Errorf("expression field %q: %w", name, err)
		}
		return queryir.Paren{Expr: t}, nil
	default:
		return queryir.Column{Table: m.table, Name: f.Column()}, nil
	}
}

// parse resolves template placeholders against the model's fields and keeps
// the first resolution error, which a plain Lookup cannot carry.
func (m *Model) parse(template string, args []queryir.Expr, visiting map[string]bool) (queryir.Template, error) {
	var lookupErr error
	t, err := queryir.Parse(template, args, func(name string) (queryir.Expr, bool) {
		e, err := m.resolve(name, visiting)
		if err != nil && lookupErr == nil {
			lookupErr = err
		}
		return e, err == nil
	})
	if err != nil && lookupErr != nil {
		return queryir.Template{}, lookupErr
	}
	return t, err
}

// Expr builds an expression from template. Positional placeholders take args;
// named placeholders take the model's fields.
func (m *Model) Expr(template string, args ...queryir.Expr) (queryir.Expr, error) {
	return m.parse(template, args, map[string]bool{})
}

// AddCondition appends a condition. It is validated when a statement is built.
func (m *Model) AddCondition(c Condition) error {
	if c.Field != "" {
		if _, ok := m.fields.Field(c.Field); !ok {
			return fmt.Errorf("%w %q in model %s", ErrUnknownField, c.Field, m.table)
		}
	}
	m.conditions = append(m.conditions, c)
	return nil
}

// Conditions returns a copy of the accumulated conditions.
func (m *Model) Conditions() []Condition {
	return append([]Condition{}, m.conditions...)
}

// SetOrder appends an ordering term.
func (m *Model) SetOrder(field string, desc bool) {
	m.order = append(m.order, orderTerm{field: field, desc: desc})
}

// SetLimit limits selected rows. A count of 0 removes the limit.
func (m *Model) SetLimit(count, offset int) {
	m.limit, m.offset = count, offset
}

func (m *Model) resolveWithField(name string) (queryir.Expr, FieldDescriptor, error) {
	e, err := m.FieldRef(name)
	if err != nil {
		return nil, FieldDescriptor{}, err
	}
	f, _ := m.fields.Field(name)
	return e, f, nil
}

// BaseSelect returns the statement every action starts from: the table,
// conditions in WHERE, ordering and limit, with no projection.
func (m *Model) BaseSelect() (*queryir.Query, error) {
	q := queryir.Select(queryir.Table{Name: m.table})
	for _, c := range m.conditions {
		p, err := BuildPredicate(c, m.resolveWithField)
		if err != nil {
			return nil, err
		}
		q.AndWhere(p)
	}
	for _, o := range m.order {
		e, err := m.FieldRef(o.field)
		if err != nil {
			return nil, fmt.Errorf("order: %w", err)
		}
		q.OrderBy(e, o.desc)
	}
	q.SetLimit(m.limit, m.offset)
	return q, nil
}

// SelectableNames lists the fields projected by default.
func (m *Model) SelectableNames() []string {
	var names []string
	for _, f := range m.fields.Fields() {
		if f.Selectable() {
			names = append(names, f.Name)
		}
	}
	return names
}

// Select projects fields (all selectable fields when nil) over BaseSelect and
// passes the statement through hooks in order.
func (m *Model) Select(fields []string, hooks ...queryir.Hook) (*queryir.Query, error) {
	q, err := m.BaseSelect()
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = m.SelectableNames()
	}
	for _, name := range fields {
		e, err := m.FieldRef(name)
		if err != nil {
			return nil, err
		}
		q.Field(e, name)
	}
	for _, h := range hooks {
		if err := h(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Count returns "SELECT count(*) AS alias" over the filtered table.
func (m *Model) Count(alias string) (*queryir.Query, error) {
	q, err := m.BaseSelect()
	if err != nil {
		return nil, err
	}
	q.Reset(queryir.ClauseOrder).Reset(queryir.ClauseLimit)
	return q.Field(queryir.Raw("count(*)"), alias), nil
}

// FieldQuery projects a single field.
func (m *Model) FieldQuery(name string) (*queryir.Query, error) {
	return m.Select([]string{name})
}

// Fx returns "SELECT fn(field) AS alias". Each wrap template is applied to
// the field reference in order before fn; a field the model lacks is NULL.
func (m *Model) Fx(fn, field, alias string, wrap ...string) (*queryir.Query, error) {
	if !isFuncName(fn) {
		return nil, fmt.Errorf("invalid function name %q", fn)
	}
	var ref queryir.Expr = queryir.Null{}
	if _, ok := m.fields.Field(field); ok {
		var err error
		if ref, err = m.FieldRef(field); err != nil {
			return nil, err
		}
	}
	for _, w := range wrap {
		if w == "" {
			continue
		}
		wrapped, err := m.Expr(w, ref)
		if err != nil {
			return nil, err
		}
		ref = wrapped
	}
	agg, err := queryir.Parse(fn+"([])", []queryir.Expr{ref}, nil)
	if err != nil {
		return nil, err
	}

	q, err := m.BaseSelect()
	if err != nil {
		return nil, err
	}
	q.Reset(queryir.ClauseOrder).Reset(queryir.ClauseLimit)
	return q.Field(agg, alias), nil
}

// Reference is a hasOne link from a model field to another model's id.
type Reference struct {
	owner *Model
	field string
	model *Model
}

// HasOne declares field as an integer key referencing ref.
func (m *Model) HasOne(field string, ref *Model) *Reference {
	m.AddField(field, WithType(TypeInteger))
	return &Reference{owner: m, field: field, model: ref}
}

// AddTitle adds a computed field carrying the referenced model's "name",
// named after the key without its "_id" suffix. It returns the new field.
func (r *Reference) AddTitle() (FieldDescriptor, error) {
	name := strings.TrimSuffix(r.field, "_id")
	if name == r.field {
		name = r.field + "_title"
	}

	title, err := r.model.FieldRef("name")
	if err != nil {
		return FieldDescriptor{}, fmt.Errorf("reference %s: %w", r.field, err)
	}
	id, err := r.model.FieldRef(IDField)
	if err != nil {
		return FieldDescriptor{}, fmt.Errorf("reference %s: %w", r.field, err)
	}
	key, err := r.owner.FieldRef(r.field)
	if err != nil {
		return FieldDescriptor{}, err
	}

	sub := queryir.Select(queryir.Table{Name: r.model.table}).
		Field(title, "").
		AndWhere(queryir.Compare{Left: id, Op: "=", Right: key})

	fd, _ := r.model.Field("name")
	return r.owner.AddComputed(name, sub, WithType(fd.Type)), nil
}

// isFuncName reports whether fn is a bare SQL function name.
func isFuncName(fn string) bool {
	if fn == "" {
		return false
	}
	for i, c := range fn {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
