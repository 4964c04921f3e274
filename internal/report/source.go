package report

import (
	"strings"

	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
)

// Source is what a view needs from the model underneath it. *model.Model,
// *GroupView and *UnionView all implement it, so views nest freely.
type Source interface {
	model.Schema

	// FieldRef returns an expression usable inside the source's own statements.
	FieldRef(name string) (queryir.Expr, error)

	// Expr builds a template expression; named placeholders are the source's fields.
	Expr(template string, args ...queryir.Expr) (queryir.Expr, error)

	AddCondition(c model.Condition) error
	SetOrder(field string, desc bool)
	SetLimit(count, offset int)

	// BaseSelect is the filtered statement with no projection.
	BaseSelect() (*queryir.Query, error)
	Select(fields []string, hooks ...queryir.Hook) (*queryir.Query, error)
	Count(alias string) (*queryir.Query, error)
	FieldQuery(name string) (*queryir.Query, error)
	Fx(fn, field, alias string, wrap ...string) (*queryir.Query, error)
}

// Composable is a Source that can receive a parent's grouping so nested
// views group consistently at every level.
type Composable interface {
	Source
	propagateGroup(spec GroupSpec)
}

// Aggregate declares a computed output field. Template placeholders: []
// is the base field of the same name, [name] any base field.
type Aggregate struct {
	Field    string
	Template string
	Type     string
}

// GroupSpec is the grouping of a view: ordered keys and ordered aggregates.
type GroupSpec struct {
	Keys       []string
	Aggregates []Aggregate
}

// Active reports whether the spec groups or aggregates anything.
func (s GroupSpec) Active() bool {
	return len(s.Keys) > 0 || len(s.Aggregates) > 0
}

// IsKey reports whether name is a group key.
func (s GroupSpec) IsKey(name string) bool {
	for _, k := range s.Keys {
		if k == name {
			return true
		}
	}
	return false
}

// Aggregate returns the aggregate declared for name.
func (s GroupSpec) Aggregate(name string) (Aggregate, bool) {
	for _, a := range s.Aggregates {
		if a.Field == name {
			return a, true
		}
	}
	return Aggregate{}, false
}

func (s GroupSpec) clone() GroupSpec {
	return GroupSpec{
		Keys:       append([]string(nil), s.Keys...),
		Aggregates: append([]Aggregate(nil), s.Aggregates...),
	}
}

// ResolveField resolves name on src. A field src lacks becomes NULL so that
// branches with different schemas can still be unioned. A non-empty template
// wraps the result, e.g. "-[]" negates it.
func ResolveField(src Source, name, template string) (queryir.Expr, error) {
	var ref queryir.Expr = queryir.Null{}
	if _, ok := src.Field(name); ok {
		var err error
		if ref, err = src.FieldRef(name); err != nil {
			return nil, err
		}
	}
	if template == "" {
		return ref, nil
	}
	return src.Expr(template, ref)
}

// BuildAggregate substitutes ref into template using src's expression
// builder. A nil ref is NULL.
func BuildAggregate(src Source, template string, ref queryir.Expr) (queryir.Expr, error) {
	return src.Expr(template, ref)
}

// combiner returns the function that merges partial results of fn.
func combiner(fn string) string {
	switch strings.ToLower(fn) {
	case "count":
		return "sum"
	default:
		return fn
	}
}

// decomposable reports whether fn can be computed from partial results.
func decomposable(fn string) bool {
	switch strings.ToLower(fn) {
	case "sum", "count", "min", "max":
		return true
	}
	return false
}

// leadingFunc extracts "sum" from "sum([amount])"; "" when the template
// does not start with a function call.
func leadingFunc(template string) string {
	t := strings.TrimSpace(template)
	i := 0
	for i < len(t) && (t[i] == '_' || t[i] >= 'a' && t[i] <= 'z' || t[i] >= 'A' && t[i] <= 'Z') {
		i++
	}
	if i == 0 || i >= len(t) || t[i] != '(' {
		return ""
	}
	return strings.ToLower(t[:i])
}

// foldable returns the function of a template that is one call of a
// decomposable aggregate over the whole expression, such as "sum([])" or
// "count(*)". Partial results of such a template can be combined;
// "round(sum([]), 2)", "0+sum([])" or "sum(distinct [])" cannot.
func foldable(template string) (string, bool) {
	fn := leadingFunc(template)
	if !decomposable(fn) {
		return "", false
	}
	t := strings.TrimSpace(template)
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(t[len(fn)+1:])), "distinct") {
		return "", false
	}
	depth := 0
	quoted := false
	for i := len(fn); i < len(t); i++ {
		switch c := t[i]; {
		case c == '\'':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return fn, i == len(t)-1
			}
		}
	}
	return "", false
}

// fold combines partial results of a held in col.
func fold(view string, a Aggregate, col queryir.Expr) (queryir.Expr, error) {
	fn, ok := foldable(a.Template)
	if !ok {
		return nil, invalidArgument(view, "", "aggregate %q (%s) cannot be combined from partial results", a.Field, a.Template)
	}
	return fnCall(combiner(fn), col)
}

// isFuncName reports whether fn is a bare SQL function name.
func isFuncName(fn string) bool {
	if fn == "" {
		return false
	}
	for i := 0; i < len(fn); i++ {
		c := fn[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func fnCall(fn string, arg queryir.Expr) (queryir.Expr, error) {
	return queryir.Parse(fn+"([])", []queryir.Expr{arg}, nil)
}

type orderTerm struct {
	field string
	desc  bool
}

// effective is a view's schema at build time: declared fields with the
// group spec laid over them.
type effective struct {
	fields    model.FieldSet
	inherited map[string]bool
}

// overlay builds the effective schema. Declared fields keep their order and
// aggregates replace them in place; undeclared keys follow, then undeclared
// aggregates. keyField describes an undeclared key and whether it is
// inherited from a base.
func overlay(declared *model.FieldSet, inherited map[string]bool, spec GroupSpec, keyField func(string) (model.FieldDescriptor, bool)) *effective {
	e := &effective{inherited: make(map[string]bool)}
	for _, f := range declared.Fields() {
		if a, ok := spec.Aggregate(f.Name); ok {
			e.fields.Put(aggregateField(a))
			continue
		}
		e.fields.Put(f)
		if inherited[f.Name] {
			e.inherited[f.Name] = true
		}
	}
	for _, k := range spec.Keys {
		if _, ok := e.fields.Field(k); ok {
			continue
		}
		f, inh := keyField(k)
		e.fields.Put(f)
		if inh {
			e.inherited[k] = true
		}
	}
	for _, a := range spec.Aggregates {
		if _, ok := e.fields.Field(a.Field); !ok {
			e.fields.Put(aggregateField(a))
		}
	}
	return e
}

func aggregateField(a Aggregate) model.FieldDescriptor {
	return model.NewField(a.Field, model.WithType(a.Type), model.WithExpr(a.Template))
}

// scope resolves a view's field names into expressions for one statement
// build.
type scope struct {
	view      string
	schema    *effective
	spec      GroupSpec
	aggregate func(a Aggregate) (queryir.Expr, error)
	leaf      func(f model.FieldDescriptor) (queryir.Expr, error)
	visiting  map[string]bool
}

func (s *scope) ref(name string) (queryir.Expr, error) {
	f, ok := s.schema.fields.Field(name)
	if !ok {
		return nil, unknownField(s.view, name)
	}
	if a, ok := s.spec.Aggregate(name); ok {
		return s.aggregate(a)
	}
	if s.schema.inherited[name] {
		return s.leaf(f)
	}
	if f.Computed != nil {
		return f.Computed, nil
	}
	if f.Expr != "" {
		if s.visiting[name] {
			return nil, invalidArgument(s.view, "", "expression field %q refers to itself", name)
		}
		s.visiting[name] = true
		defer delete(s.visiting, name)

		t, err := s.parse(f.Expr, nil)
		if err != nil {
			return nil, err
		}
		return queryir.Paren{Expr: t}, nil
	}
	return s.leaf(f)
}

func (s *scope) parse(template string, args []queryir.Expr) (queryir.Expr, error) {
	return parseWith(template, args, s.ref)
}

func (s *scope) resolveWithField(name string) (queryir.Expr, model.FieldDescriptor, error) {
	e, err := s.ref(name)
	if err != nil {
		return nil, model.FieldDescriptor{}, err
	}
	f, _ := s.schema.fields.Field(name)
	return e, f, nil
}

// aggregated reports whether name is an aggregate or an own expression that
// depends on one. Such fields can only be filtered in HAVING.
func (s *scope) aggregated(name string) bool {
	return s.aggregatedSeen(name, map[string]bool{})
}

func (s *scope) aggregatedSeen(name string, seen map[string]bool) bool {
	if _, ok := s.spec.Aggregate(name); ok {
		return true
	}
	f, ok := s.schema.fields.Field(name)
	if !ok || s.schema.inherited[name] || f.Expr == "" || seen[name] {
		return false
	}
	seen[name] = true
	for _, dep := range queryir.Names(f.Expr) {
		if s.aggregatedSeen(dep, seen) {
			return true
		}
	}
	return false
}

// selectable lists the fields projected by default.
func (s *scope) selectable() []string {
	var names []string
	for _, f := range s.schema.fields.Fields() {
		if f.Selectable() {
			names = append(names, f.Name)
		}
	}
	return names
}

// checkProjected rejects fields the view does not define and fields that
// are never stored, such as client-side or join-only fields.
func checkProjected(view, mode string, s *scope, fields []string) error {
	for _, name := range fields {
		f, ok := s.schema.fields.Field(name)
		if !ok {
			return unknownField(view, name)
		}
		if !f.Selectable() {
			return invalidArgument(view, mode, "field %q is not stored and cannot be selected", name)
		}
	}
	return nil
}

// appendMissing appends the names from extra not already in names.
func appendMissing(names []string, extra ...string) []string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range extra {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

func applyHooks(q *queryir.Query, hooks []queryir.Hook) error {
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if err := h(q); err != nil {
			return err
		}
	}
	return nil
}

// parseWith parses template with named placeholders resolved by ref.
func parseWith(template string, args []queryir.Expr, ref func(string) (queryir.Expr, error)) (queryir.Expr, error) {
	var lookupErr error
	t, err := queryir.Parse(template, args, func(name string) (queryir.Expr, bool) {
		e, err := ref(name)
		if err != nil && lookupErr == nil {
			lookupErr = err
		}
		return e, err == nil
	})
	if err != nil && lookupErr != nil {
		return nil, lookupErr
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// wrapWith applies each non-empty wrap template to e in order.
func wrapWith(e queryir.Expr, wrap []string, build func(template string, arg queryir.Expr) (queryir.Expr, error)) (queryir.Expr, error) {
	for _, w := range wrap {
		if w == "" {
			continue
		}
		wrapped, err := build(w, e)
		if err != nil {
			return nil, err
		}
		e = wrapped
	}
	return e, nil
}
