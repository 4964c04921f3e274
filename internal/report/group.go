package report

import (
	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
)

const groupViewName = "group"

// GroupView re-expresses a base source with GROUP BY and aggregate fields.
//
// Fields resolve against the base: keys and inherited fields use the base's
// own references, aggregates substitute base references into their
// templates, and expressions declared on the view combine other view fields.
// Conditions on view fields are applied in HAVING once grouping is active;
// conditions on fields only the base knows filter rows in WHERE.
type GroupView struct {
	base       Source
	alias      string
	fields     model.FieldSet
	inherited  map[string]bool
	spec       GroupSpec
	conditions []model.Condition
	order      []orderTerm
	limit      int
	offset     int
}

var _ Composable = (*GroupView)(nil)

// NewGroupView wraps base. The view starts ungrouped.
func NewGroupView(base Source) *GroupView {
	return &GroupView{
		base:      base,
		alias:     "grouped",
		inherited: make(map[string]bool),
	}
}

// Base returns the source being grouped.
func (g *GroupView) Base() Source {
	return g.base
}

// SetAlias names the derived table used when the view is nested.
func (g *GroupView) SetAlias(alias string) {
	g.alias = alias
}

// AddField declares an output field. Client-side and expression fields are
// registered as given; otherwise a same-named base field is inherited with
// opts applied on top, and anything else is a fresh untyped field.
func (g *GroupView) AddField(name string, opts ...model.FieldOption) model.FieldDescriptor {
	f := model.NewField(name, opts...)
	if !f.NeverPersist && !f.IsExpression() {
		if bf, ok := g.base.Field(name); ok {
			f = model.Merge(bf, name, opts...)
			g.fields.Put(f)
			g.inherited[name] = true
			return f
		}
	}
	g.fields.Put(f)
	delete(g.inherited, name)
	return f
}

// AddExpression declares a field computed from other view fields, e.g.
// "[s]+[amount]" over two aggregates.
func (g *GroupView) AddExpression(name, template string, opts ...model.FieldOption) model.FieldDescriptor {
	return g.AddField(name, append([]model.FieldOption{model.WithExpr(template)}, opts...)...)
}

// GroupBy sets the grouping, replacing any previous one. Keys become output
// fields; each aggregate becomes a computed field built against the base.
func (g *GroupView) GroupBy(keys []string, aggregates ...Aggregate) error {
	for _, a := range aggregates {
		if a.Field == "" || a.Template == "" {
			return invalidArgument(groupViewName, "groupBy", "aggregate needs a field and a template")
		}
	}
	g.propagateGroup(GroupSpec{Keys: keys, Aggregates: aggregates})
	return nil
}

// Spec returns a copy of the current grouping.
func (g *GroupView) Spec() GroupSpec {
	return g.spec.clone()
}

func (g *GroupView) propagateGroup(spec GroupSpec) {
	g.spec = spec.clone()
}

func (g *GroupView) schema() *effective {
	return overlay(&g.fields, g.inherited, g.spec, func(k string) (model.FieldDescriptor, bool) {
		if bf, ok := g.base.Field(k); ok {
			return bf, true
		}
		return model.NewField(k), false
	})
}

// Field implements model.Schema.
func (g *GroupView) Field(name string) (model.FieldDescriptor, bool) {
	return g.schema().fields.Field(name)
}

// Fields implements model.Schema.
func (g *GroupView) Fields() []model.FieldDescriptor {
	return g.schema().fields.Fields()
}

// scope resolves view fields inside the view's own grouped statement.
func (g *GroupView) scope() *scope {
	return &scope{
		view:   groupViewName,
		schema: g.schema(),
		spec:   g.spec,
		aggregate: func(a Aggregate) (queryir.Expr, error) {
			ref, err := ResolveField(g.base, a.Field, "")
			if err != nil {
				return nil, err
			}
			return BuildAggregate(g.base, a.Template, ref)
		},
		leaf: func(f model.FieldDescriptor) (queryir.Expr, error) {
			return g.baseRef(f.Name), nil
		},
		visiting: make(map[string]bool),
	}
}

// baseRef is the base's reference for name, or the bare name when the
// base does not know it.
func (g *GroupView) baseRef(name string) queryir.Expr {
	if _, ok := g.base.Field(name); ok {
		if e, err := g.base.FieldRef(name); err == nil {
			return e
		}
	}
	return queryir.Ident(name)
}

// FieldRef implements Source. Outside the view, fields are the columns of
// the derived table produced by BaseSelect.
func (g *GroupView) FieldRef(name string) (queryir.Expr, error) {
	if _, ok := g.Field(name); !ok {
		return nil, unknownField(groupViewName, name)
	}
	return queryir.Col(name), nil
}

// Expr implements Source.
func (g *GroupView) Expr(template string, args ...queryir.Expr) (queryir.Expr, error) {
	return parseWith(template, args, g.FieldRef)
}

// AddCondition records a condition. Named fields must exist on the view or
// on the base.
func (g *GroupView) AddCondition(c model.Condition) error {
	for _, name := range c.FieldNames() {
		if _, ok := g.Field(name); ok {
			continue
		}
		if _, ok := g.base.Field(name); ok {
			continue
		}
		return unknownField(groupViewName, name)
	}
	g.conditions = append(g.conditions, c)
	return nil
}

// SetOrder orders the grouped result.
func (g *GroupView) SetOrder(field string, desc bool) {
	g.order = append(g.order, orderTerm{field: field, desc: desc})
}

// SetLimit limits the grouped result. A count of 0 removes the limit.
func (g *GroupView) SetLimit(count, offset int) {
	g.limit, g.offset = count, offset
}

// build returns the grouped statement projecting fields, with conditions
// routed but without hooks, order or limit.
func (g *GroupView) build(s *scope, fields []string) (*queryir.Query, error) {
	q, err := g.base.BaseSelect()
	if err != nil {
		return nil, err
	}
	q.Reset(queryir.ClauseOrder).Reset(queryir.ClauseLimit)

	for _, name := range fields {
		e, err := s.ref(name)
		if err != nil {
			return nil, err
		}
		q.Field(e, name)
	}
	for _, k := range g.spec.Keys {
		q.GroupBy(g.baseRef(k))
	}
	if err := g.applyConditions(s, q); err != nil {
		return nil, err
	}
	return q, nil
}

// applyConditions places each condition in WHERE or HAVING. A condition goes
// to HAVING when the view is grouped or it touches an aggregate, unless all
// of its fields are known only to the base.
func (g *GroupView) applyConditions(s *scope, q *queryir.Query) error {
	grouped := g.spec.Active()
	for _, c := range g.conditions {
		having := false
		if len(c.FieldNames()) == 0 {
			having = grouped
		}
		for _, name := range c.FieldNames() {
			if _, ok := s.schema.fields.Field(name); ok && (grouped || s.aggregated(name)) {
				having = true
			}
		}

		p, err := model.BuildPredicate(c, func(name string) (queryir.Expr, model.FieldDescriptor, error) {
			if _, ok := s.schema.fields.Field(name); ok {
				return s.resolveWithField(name)
			}
			bf, ok := g.base.Field(name)
			if !ok {
				return nil, model.FieldDescriptor{}, unknownField(groupViewName, name)
			}
			e, err := g.base.FieldRef(name)
			return e, bf, err
		})
		if err != nil {
			return err
		}
		if having {
			q.AndHaving(p)
		} else {
			q.AndWhere(p)
		}
	}
	return nil
}

func (g *GroupView) applyOrderLimit(s *scope, q *queryir.Query) error {
	for _, o := range g.order {
		e, err := s.ref(o.field)
		if err != nil {
			return err
		}
		q.OrderBy(e, o.desc)
	}
	q.SetLimit(g.limit, g.offset)
	return nil
}

// Select returns the grouped statement. Group keys are always projected,
// even when fields leaves them out. Hooks run after conditions are applied
// and before ordering.
func (g *GroupView) Select(fields []string, hooks ...queryir.Hook) (*queryir.Query, error) {
	s := g.scope()
	if fields == nil {
		fields = s.selectable()
	}
	fields = appendMissing(append([]string(nil), fields...), g.spec.Keys...)
	if err := checkProjected(groupViewName, ModeSelect, s, fields); err != nil {
		return nil, err
	}

	q, err := g.build(s, fields)
	if err != nil {
		return nil, err
	}
	if err := applyHooks(q, hooks); err != nil {
		return nil, err
	}
	if err := g.applyOrderLimit(s, q); err != nil {
		return nil, err
	}
	return q, nil
}

// BaseSelect implements Source: the grouped result as a derived table.
func (g *GroupView) BaseSelect() (*queryir.Query, error) {
	inner, err := g.Select(nil)
	if err != nil {
		return nil, err
	}
	return queryir.Select(inner.As(g.alias)), nil
}

// Count counts groups, not rows:
//
//	SELECT count(*) FROM (SELECT 1 FROM base GROUP BY ... HAVING ...) AS "der"
func (g *GroupView) Count(alias string) (*queryir.Query, error) {
	s := g.scope()
	inner, err := g.build(s, []string{})
	if err != nil {
		return nil, err
	}
	inner.Field(queryir.Raw("1"), "")
	return queryir.Select(inner.As("der")).Field(queryir.Raw("count(*)"), alias), nil
}

// FieldQuery projects one field of the grouped result.
func (g *GroupView) FieldQuery(name string) (*queryir.Query, error) {
	s := g.scope()
	if err := checkProjected(groupViewName, ModeField, s, []string{name}); err != nil {
		return nil, err
	}
	q, err := g.build(s, []string{name})
	if err != nil {
		return nil, err
	}
	if err := g.applyOrderLimit(s, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Fx aggregates over the groups. The inner statement computes one value per
// group as "val"; the outer statement folds them:
//
//	SELECT sum("val") FROM (SELECT sum(amount) AS "val" FROM base GROUP BY ...) AS "der"
//
// Aggregate and expression fields are already per-group values, so fn is
// applied only once, outside.
func (g *GroupView) Fx(fn, field, alias string, wrap ...string) (*queryir.Query, error) {
	if !isFuncName(fn) {
		return nil, invalidArgument(groupViewName, ModeFx, "invalid function name %q", fn)
	}
	s := g.scope()
	inner, err := g.build(s, []string{})
	if err != nil {
		return nil, err
	}

	var value queryir.Expr
	outer := combiner(fn)
	f, own := s.schema.fields.Field(field)
	if own && !s.schema.inherited[field] && (f.IsExpression() || s.aggregated(field)) {
		ref, err := s.ref(field)
		if err != nil {
			return nil, err
		}
		value, err = wrapWith(ref, wrap, func(t string, arg queryir.Expr) (queryir.Expr, error) {
			return s.parse(t, []queryir.Expr{arg})
		})
		if err != nil {
			return nil, err
		}
		outer = fn
	} else {
		ref, err := ResolveField(g.base, field, "")
		if err != nil {
			return nil, err
		}
		ref, err = wrapWith(ref, wrap, func(t string, arg queryir.Expr) (queryir.Expr, error) {
			return g.base.Expr(t, arg)
		})
		if err != nil {
			return nil, err
		}
		if value, err = fnCall(fn, ref); err != nil {
			return nil, err
		}
	}
	inner.Field(value, "val")

	agg, err := fnCall(outer, queryir.Col("val"))
	if err != nil {
		return nil, err
	}
	return queryir.Select(inner.As("der")).Field(agg, alias), nil
}

// Action runs a named action. insert, update and delete always fail.
func (g *GroupView) Action(mode string, args ...any) (*queryir.Query, error) {
	return dispatch(groupViewName, g, mode, args)
}
