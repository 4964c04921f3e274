package report

import (
	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
)

const unionViewName = "union"

// Mapping translates a view field into a branch-local template, e.g.
// {"amount": "-[]"} negates the branch's amount. [] is the branch's field of
// the same name.
type Mapping map[string]string

type branch struct {
	src     Source
	mapping Mapping
}

// UnionView concatenates branches with UNION ALL and queries the result as
// one derived table.
//
// Each branch projects the view's fields through its mapping; fields a
// branch lacks become NULL. When every aggregate is a single sum, count, min
// or max call, grouping is pushed into every branch and applied again on
// top, so per-branch partial aggregates are folded into the final result.
// Any other aggregate is computed once on top over the raw branch rows.
type UnionView struct {
	alias      string
	branches   []branch
	fields     model.FieldSet
	spec       GroupSpec
	conditions []model.Condition
	order      []orderTerm
	limit      int
	offset     int
}

var _ Composable = (*UnionView)(nil)

// NewUnionView creates an empty union aliased "derivedTable".
func NewUnionView() *UnionView {
	return &UnionView{alias: "derivedTable"}
}

// SetAlias renames the derived table.
func (u *UnionView) SetAlias(alias string) {
	u.alias = alias
}

// AddNestedModel appends a branch and returns it for further configuration.
// Branch order is the order of the UNION ALL members. The view takes
// ownership of src. A nested view receives the current grouping, if any.
func (u *UnionView) AddNestedModel(src Source, mapping Mapping) Source {
	m := make(Mapping, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	if c, ok := src.(Composable); ok && u.spec.Active() {
		c.propagateGroup(u.spec)
	}
	u.branches = append(u.branches, branch{src: src, mapping: m})
	return src
}

// Branches returns the nested sources in order.
func (u *UnionView) Branches() []Source {
	out := make([]Source, len(u.branches))
	for i, b := range u.branches {
		out[i] = b.src
	}
	return out
}

// AddField declares an output field of the union.
func (u *UnionView) AddField(name string, opts ...model.FieldOption) model.FieldDescriptor {
	f := model.NewField(name, opts...)
	u.fields.Put(f)
	return f
}

// AddExpression declares a field computed on top of the union from other
// view fields. Its dependencies are pushed into the branches instead.
func (u *UnionView) AddExpression(name, template string, opts ...model.FieldOption) model.FieldDescriptor {
	return u.AddField(name, append([]model.FieldOption{model.WithExpr(template)}, opts...)...)
}

// GroupBy sets the grouping, replacing any previous one, and propagates it
// to every nested view.
func (u *UnionView) GroupBy(keys []string, aggregates ...Aggregate) error {
	for _, a := range aggregates {
		if a.Field == "" || a.Template == "" {
			return invalidArgument(unionViewName, "groupBy", "aggregate needs a field and a template")
		}
	}
	u.propagateGroup(GroupSpec{Keys: keys, Aggregates: aggregates})
	return nil
}

// Spec returns a copy of the current grouping.
func (u *UnionView) Spec() GroupSpec {
	return u.spec.clone()
}

// propagateGroup installs spec here and in every nested view below.
func (u *UnionView) propagateGroup(spec GroupSpec) {
	u.spec = spec.clone()
	for _, b := range u.branches {
		if c, ok := b.src.(Composable); ok {
			c.propagateGroup(u.spec)
		}
	}
}

func (u *UnionView) schema() *effective {
	return overlay(&u.fields, nil, u.spec, func(k string) (model.FieldDescriptor, bool) {
		return model.NewField(k), false
	})
}

// Field implements model.Schema.
func (u *UnionView) Field(name string) (model.FieldDescriptor, bool) {
	return u.schema().fields.Field(name)
}

// Fields implements model.Schema.
func (u *UnionView) Fields() []model.FieldDescriptor {
	return u.schema().fields.Fields()
}

// folded reports whether branches group and aggregate themselves. It holds
// when every aggregate can be combined from partial results.
func (u *UnionView) folded() bool {
	for _, a := range u.spec.Aggregates {
		if _, ok := foldable(a.Template); !ok {
			return false
		}
	}
	return true
}

// scope resolves view fields over the derived table. Aggregates fold the
// per-branch partial results held in the column of the same name, or run
// their whole template over the raw rows when branches are not folded.
func (u *UnionView) scope() *scope {
	folded := u.folded()
	return &scope{
		view:   unionViewName,
		schema: u.schema(),
		spec:   u.spec,
		aggregate: func(a Aggregate) (queryir.Expr, error) {
			if folded {
				return fold(unionViewName, a, queryir.Col(a.Field))
			}
			return parseWith(a.Template, []queryir.Expr{queryir.Col(a.Field)}, func(n string) (queryir.Expr, error) {
				return queryir.Col(n), nil
			})
		},
		leaf: func(f model.FieldDescriptor) (queryir.Expr, error) {
			return queryir.Col(f.Name), nil
		},
		visiting: make(map[string]bool),
	}
}

// FieldRef implements Source.
func (u *UnionView) FieldRef(name string) (queryir.Expr, error) {
	if _, ok := u.Field(name); !ok {
		return nil, unknownField(unionViewName, name)
	}
	return queryir.Col(name), nil
}

// Expr implements Source.
func (u *UnionView) Expr(template string, args ...queryir.Expr) (queryir.Expr, error) {
	return parseWith(template, args, u.FieldRef)
}

// FieldExpr resolves field on one branch through template. A field the
// branch lacks is NULL.
func (u *UnionView) FieldExpr(src Source, field, template string) (queryir.Expr, error) {
	return ResolveField(src, field, template)
}

// branchField is the projection of a view field in branch b, including
// the view's aggregate when one is declared for the field and branches are
// folded.
func (u *UnionView) branchField(b branch, name string, folded bool) (queryir.Expr, error) {
	ref, err := ResolveField(b.src, name, b.mapping[name])
	if err != nil {
		return nil, err
	}
	a, ok := u.spec.Aggregate(name)
	if !ok {
		return ref, nil
	}
	_, nested := b.src.(Composable)
	if !folded {
		if nested {
			return nil, invalidArgument(unionViewName, "", "aggregate %q (%s) cannot be computed over a nested view's grouped rows", a.Field, a.Template)
		}
		return ref, nil
	}
	if nested {
		// the nested view already aggregated this column
		return fold(unionViewName, a, ref)
	}
	return parseWith(a.Template, []queryir.Expr{ref}, func(n string) (queryir.Expr, error) {
		return ResolveField(b.src, n, b.mapping[n])
	})
}

func (u *UnionView) branchGroupRef(b branch, key string) (queryir.Expr, error) {
	if t := b.mapping[key]; t != "" {
		return ResolveField(b.src, key, t)
	}
	if _, ok := b.src.Field(key); ok {
		return b.src.FieldRef(key)
	}
	return queryir.Ident(key), nil
}

// pushdown lists the fields the branches must project for fields, in order.
// Fields the view does not own, client-side fields and join-only fields are
// skipped; plain expressions are replaced by the fields they use. Unfolded
// aggregates also need every branch field their template names.
func (u *UnionView) pushdown(s *scope, fields []string, folded bool) []string {
	var out []string
	seen := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		f, ok := s.schema.fields.Field(name)
		if ok && !f.Selectable() {
			return
		}
		if a, agg := u.spec.Aggregate(name); agg {
			out = append(out, name)
			if folded {
				return
			}
			for _, dep := range queryir.Names(a.Template) {
				if _, own := s.schema.fields.Field(dep); own {
					visit(dep)
				} else if !seen[dep] {
					seen[dep] = true
					out = append(out, dep)
				}
			}
			return
		}
		if !ok {
			return
		}
		if f.IsExpression() {
			for _, dep := range queryir.Names(f.Expr) {
				visit(dep)
			}
			return
		}
		out = append(out, name)
	}
	for _, name := range fields {
		visit(name)
	}
	return out
}

// SubQuery returns the UNION ALL of every branch projecting fields, as a
// derived table. With folded grouping each branch is grouped by the keys.
func (u *UnionView) SubQuery(fields []string) (queryir.Derived, error) {
	return u.subQuery(u.scope(), fields)
}

func (u *UnionView) subQuery(s *scope, fields []string) (queryir.Derived, error) {
	if len(u.branches) == 0 {
		return queryir.Derived{}, invalidArgument(unionViewName, "", "union has no nested models")
	}
	folded := u.folded()
	names := u.pushdown(s, fields, folded)

	union := queryir.Union{}
	for _, b := range u.branches {
		q, err := b.src.BaseSelect()
		if err != nil {
			return queryir.Derived{}, err
		}
		for _, name := range names {
			e, err := u.branchField(b, name, folded)
			if err != nil {
				return queryir.Derived{}, err
			}
			q.Field(e, name)
		}
		if !folded {
			union.Branches = append(union.Branches, q)
			continue
		}
		for _, k := range u.spec.Keys {
			e, err := u.branchGroupRef(b, k)
			if err != nil {
				return queryir.Derived{}, err
			}
			q.GroupBy(e)
		}
		union.Branches = append(union.Branches, q)
	}
	return queryir.Derived{Source: union, Alias: u.alias}, nil
}

// SubAction runs an action on every branch and unions the results:
//
//	fx     fn, field   branch aggregate, through the branch mapping
//	count              branch row count
//	field  name        branch projection of one field
//	select [fields]    branch select
func (u *UnionView) SubAction(mode string, args ...any) (queryir.Derived, error) {
	return u.subAction(mode, "", args)
}

func (u *UnionView) subAction(mode, alias string, args []any) (queryir.Derived, error) {
	if len(u.branches) == 0 {
		return queryir.Derived{}, invalidArgument(unionViewName, mode, "union has no nested models")
	}
	str := func(i int) (string, error) {
		if i >= len(args) {
			return "", invalidArgument(unionViewName, mode, "missing argument %d", i)
		}
		v, ok := args[i].(string)
		if !ok || v == "" {
			return "", invalidArgument(unionViewName, mode, "argument %d must be a non-empty string", i)
		}
		return v, nil
	}

	union := queryir.Union{}
	for _, b := range u.branches {
		var q *queryir.Query
		var err error
		switch mode {
		case ModeFx:
			fn, ferr := str(0)
			if ferr != nil {
				return queryir.Derived{}, ferr
			}
			field, ferr := str(1)
			if ferr != nil {
				return queryir.Derived{}, ferr
			}
			q, err = b.src.Fx(fn, field, alias, b.mapping[field])
		case ModeCount:
			q, err = b.src.Count(alias)
		case ModeField:
			name, ferr := str(0)
			if ferr != nil {
				return queryir.Derived{}, ferr
			}
			q, err = b.src.FieldQuery(name)
		case ModeSelect:
			var fields []string
			if len(args) > 0 {
				f, ok := args[0].([]string)
				if !ok {
					return queryir.Derived{}, invalidArgument(unionViewName, mode, "field list must be []string, got %T", args[0])
				}
				fields = f
			}
			q, err = b.src.Select(fields)
		default:
			return queryir.Derived{}, unsupported(unionViewName, mode)
		}
		if err != nil {
			return queryir.Derived{}, err
		}
		union.Branches = append(union.Branches, q)
	}
	return queryir.Derived{Source: union, Alias: u.alias}, nil
}

// AddCondition applies a condition on top of the union when the view owns
// every field it names; otherwise it is pushed into the branches.
func (u *UnionView) AddCondition(c model.Condition) error {
	names := c.FieldNames()
	owned := true
	for _, name := range names {
		if _, ok := u.Field(name); !ok {
			owned = false
		}
	}
	if owned {
		u.conditions = append(u.conditions, c)
		return nil
	}
	if c.Field == "" {
		// a disjunction mixing view and branch fields cannot be split
		for _, name := range names {
			if _, ok := u.Field(name); !ok {
				return unknownField(unionViewName, name)
			}
		}
	}
	return u.AddNestedCondition(c)
}

// AddNestedCondition pushes a condition into every branch. A mapped field
// is compared through its mapping template, resolved by the branch itself so
// that nested views filter on their own fields; a branch lacking the field
// is skipped.
func (u *UnionView) AddNestedCondition(c model.Condition) error {
	for _, b := range u.branches {
		bc, ok, err := u.translate(b, c)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := b.src.AddCondition(bc); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnionView) translate(b branch, c model.Condition) (model.Condition, bool, error) {
	switch {
	case c.Or != nil:
		out := model.Condition{Or: make([]model.Condition, 0, len(c.Or))}
		for _, sub := range c.Or {
			bc, ok, err := u.translate(b, sub)
			if err != nil || !ok {
				return model.Condition{}, ok, err
			}
			out.Or = append(out.Or, bc)
		}
		return out, true, nil
	case c.Field == "":
		return c, true, nil
	}

	_, has := b.src.Field(c.Field)
	t := b.mapping[c.Field]
	if t == "" {
		return c, has, nil
	}

	fd, ok := u.Field(c.Field)
	if !ok {
		fd, _ = b.src.Field(c.Field)
	}
	value := c.Value
	if _, isExpr := value.(queryir.Expr); !isExpr {
		var err error
		if value, err = model.TypecastSave(fd, value); err != nil {
			return model.Condition{}, false, err
		}
	}
	wrap := append([]string{t}, c.Wrap...)
	if has {
		return model.Condition{Field: c.Field, Op: c.Op, Value: value, Wrap: wrap}, true, nil
	}
	// the mapping alone produces the branch value, e.g. "[total]"
	return model.Condition{Left: queryir.Null{}, Op: c.Op, Value: value, Wrap: wrap}, true, nil
}

// SetOrder orders the union result.
func (u *UnionView) SetOrder(field string, desc bool) {
	u.order = append(u.order, orderTerm{field: field, desc: desc})
}

// SetLimit limits the union result. A count of 0 removes the limit.
func (u *UnionView) SetLimit(count, offset int) {
	u.limit, u.offset = count, offset
}

// build returns the statement over the derived table projecting fields,
// grouped and filtered, without hooks, order or limit.
func (u *UnionView) build(s *scope, fields []string) (*queryir.Query, error) {
	needed := appendMissing(append([]string(nil), fields...), u.spec.Keys...)
	for _, c := range u.conditions {
		needed = appendMissing(needed, c.FieldNames()...)
	}
	for _, o := range u.order {
		needed = appendMissing(needed, o.field)
	}
	sub, err := u.subQuery(s, needed)
	if err != nil {
		return nil, err
	}

	q := queryir.Select(sub)
	for _, name := range fields {
		e, err := s.ref(name)
		if err != nil {
			return nil, err
		}
		q.Field(e, name)
	}
	for _, k := range u.spec.Keys {
		q.GroupBy(queryir.Col(k))
	}

	grouped := u.spec.Active()
	for _, c := range u.conditions {
		having := grouped
		for _, name := range c.FieldNames() {
			if s.aggregated(name) {
				having = true
			}
		}
		p, err := model.BuildPredicate(c, s.resolveWithField)
		if err != nil {
			return nil, err
		}
		if having {
			q.AndHaving(p)
		} else {
			q.AndWhere(p)
		}
	}
	return q, nil
}

func (u *UnionView) applyOrderLimit(s *scope, q *queryir.Query) error {
	for _, o := range u.order {
		e, err := s.ref(o.field)
		if err != nil {
			return err
		}
		q.OrderBy(e, o.desc)
	}
	q.SetLimit(u.limit, u.offset)
	return nil
}

// Select returns the statement over the union. Group keys are always
// projected when grouping is active.
func (u *UnionView) Select(fields []string, hooks ...queryir.Hook) (*queryir.Query, error) {
	s := u.scope()
	if fields == nil {
		fields = s.selectable()
	}
	fields = appendMissing(append([]string(nil), fields...), u.spec.Keys...)
	if err := checkProjected(unionViewName, ModeSelect, s, fields); err != nil {
		return nil, err
	}

	q, err := u.build(s, fields)
	if err != nil {
		return nil, err
	}
	if err := applyHooks(q, hooks); err != nil {
		return nil, err
	}
	if err := u.applyOrderLimit(s, q); err != nil {
		return nil, err
	}
	return q, nil
}

// BaseSelect implements Source: the full union result as a derived table.
func (u *UnionView) BaseSelect() (*queryir.Query, error) {
	inner, err := u.Select(nil)
	if err != nil {
		return nil, err
	}
	return queryir.Select(inner.As(u.alias)), nil
}

// Count returns the number of result rows. Without grouping or top-level
// conditions it sums per-branch counts:
//
//	SELECT sum("cnt") FROM (SELECT count(*) AS "cnt" FROM a UNION ALL ...) AS "derivedTable"
func (u *UnionView) Count(alias string) (*queryir.Query, error) {
	if !u.spec.Active() && len(u.conditions) == 0 {
		sub, err := u.subAction(ModeCount, "cnt", nil)
		if err != nil {
			return nil, err
		}
		return queryir.Select(sub).Field(queryir.MustParse("sum([])", queryir.Col("cnt")), alias), nil
	}

	inner, err := u.Select(nil)
	if err != nil {
		return nil, err
	}
	inner.Reset(queryir.ClauseOrder).Reset(queryir.ClauseLimit)
	return queryir.Select(inner.As("der")).Field(queryir.Raw("count(*)"), alias), nil
}

// FieldQuery projects one field over the union.
func (u *UnionView) FieldQuery(name string) (*queryir.Query, error) {
	s := u.scope()
	if err := checkProjected(unionViewName, ModeField, s, []string{name}); err != nil {
		return nil, err
	}
	q, err := u.build(s, []string{name})
	if err != nil {
		return nil, err
	}
	if err := u.applyOrderLimit(s, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Fx computes fn over field. When fn can be folded from partial results and
// nothing is filtered or grouped on top, each branch aggregates its own rows
// as "val" and the union folds them:
//
//	SELECT sum("val") FROM (SELECT sum(-"invoice"."amount") AS "val" FROM "invoice" UNION ALL ...) AS "derivedTable"
//
// Otherwise fn runs once over the selected union rows.
func (u *UnionView) Fx(fn, field, alias string, wrap ...string) (*queryir.Query, error) {
	if !isFuncName(fn) {
		return nil, invalidArgument(unionViewName, ModeFx, "invalid function name %q", fn)
	}
	s := u.scope()
	f, owned := s.schema.fields.Field(field)
	if !u.spec.Active() && len(u.conditions) == 0 && decomposable(fn) && !(owned && f.IsExpression()) {
		union := queryir.Union{}
		for _, b := range u.branches {
			q, err := b.src.Fx(fn, field, "val", append([]string{b.mapping[field]}, wrap...)...)
			if err != nil {
				return nil, err
			}
			union.Branches = append(union.Branches, q)
		}
		if len(union.Branches) == 0 {
			return nil, invalidArgument(unionViewName, ModeFx, "union has no nested models")
		}
		agg, err := fnCall(combiner(fn), queryir.Col("val"))
		if err != nil {
			return nil, err
		}
		return queryir.Select(queryir.Derived{Source: union, Alias: u.alias}).Field(agg, alias), nil
	}

	if !owned {
		return nil, unknownField(unionViewName, field)
	}
	inner, err := u.Select([]string{field})
	if err != nil {
		return nil, err
	}
	inner.Reset(queryir.ClauseOrder)
	value, err := wrapWith(queryir.Col(field), wrap, func(t string, arg queryir.Expr) (queryir.Expr, error) {
		return parseWith(t, []queryir.Expr{arg}, func(n string) (queryir.Expr, error) {
			return nil, unknownField(unionViewName, n)
		})
	})
	if err != nil {
		return nil, err
	}
	agg, err := fnCall(fn, value)
	if err != nil {
		return nil, err
	}
	return queryir.Select(inner.As("der")).Field(agg, alias), nil
}

// Action runs a named action. insert, update and delete always fail.
func (u *UnionView) Action(mode string, args ...any) (*queryir.Query, error) {
	return dispatch(unionViewName, u, mode, args)
}
