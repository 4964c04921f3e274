package compiler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
	"github.com/atk4/report/internal/report"
)

// ErrUnknownName is wrapped when a catalog is asked for a name the
// definition does not declare.
var ErrUnknownName = errors.New("unknown model or report")

// View is a built report: a source that also answers named actions.
type View interface {
	report.Source
	Action(mode string, args ...any) (*queryir.Query, error)
}

// ValidationErrors is every problem Validate found in a definition.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid definition: %s", strings.Join(msgs, "; "))
}

// Catalog builds models and reports from a validated definition.
type Catalog struct {
	def *Definition
}

// NewCatalog validates def and returns a catalog over it. The error is a
// ValidationErrors when validation fails.
func NewCatalog(def *Definition) (*Catalog, error) {
	if errs := Validate(def); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &Catalog{def: def}, nil
}

// Load reads, validates and catalogs a definition file.
func Load(path string) (*Catalog, error) {
	def, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(def)
}

// Definition returns the underlying definition.
func (c *Catalog) Definition() *Definition {
	return c.def
}

// Reports lists report names in sorted order.
func (c *Catalog) Reports() []string {
	names := make([]string, 0, len(c.def.Reports))
	for _, r := range c.def.Reports {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// Build returns a fresh model or report named name.
func (c *Catalog) Build(name string) (report.Source, error) {
	if md, ok := c.def.Model(name); ok {
		m, err := c.buildModel(md, true)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	if rd, ok := c.def.Report(name); ok {
		return c.buildReport(rd)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownName, name)
}

// Report returns a fresh report named name.
func (c *Catalog) Report(name string) (View, error) {
	rd, ok := c.def.Report(name)
	if !ok {
		return nil, fmt.Errorf("%w: report %q", ErrUnknownName, name)
	}
	return c.buildReport(rd)
}

// buildModel creates the model. Referenced models are built without their
// own references, which is all a title needs.
func (c *Catalog) buildModel(md ModelDef, withRefs bool) (*model.Model, error) {
	m := model.New(md.TableName())
	for _, f := range md.Fields {
		if f.Expr != "" {
			m.AddExpression(f.Name, f.Expr, fieldOptions(f)...)
			continue
		}
		m.AddField(f.Name, fieldOptions(f)...)
	}

	if withRefs {
		for _, ref := range md.References {
			target, ok := c.def.Model(ref.Model)
			if !ok {
				return nil, fmt.Errorf("model %s: %w: %q", md.Name, ErrUnknownName, ref.Model)
			}
			refModel, err := c.buildModel(target, false)
			if err != nil {
				return nil, err
			}
			r := m.HasOne(ref.Field, refModel)
			if ref.Title {
				if _, err := r.AddTitle(); err != nil {
					return nil, fmt.Errorf("model %s: %w", md.Name, err)
				}
			}
		}
	}

	for _, cd := range md.Conditions {
		if err := m.AddCondition(cd.Condition()); err != nil {
			return nil, fmt.Errorf("model %s: %w", md.Name, err)
		}
	}
	return m, nil
}

func (c *Catalog) buildReport(rd ReportDef) (View, error) {
	switch rd.Kind {
	case KindGroup:
		g, err := c.buildGroup(rd)
		if err != nil {
			return nil, err
		}
		return g, nil
	case KindUnion:
		u, err := c.buildUnion(rd)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("report %s: unknown kind %q", rd.Name, rd.Kind)
	}
}

func (c *Catalog) buildGroup(rd ReportDef) (*report.GroupView, error) {
	base, err := c.Build(rd.Source)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", rd.Name, err)
	}

	g := report.NewGroupView(base)
	for _, f := range rd.Fields {
		if f.Expr != "" {
			g.AddExpression(f.Name, f.Expr, fieldOptions(f)...)
			continue
		}
		g.AddField(f.Name, fieldOptions(f)...)
	}
	if rd.GroupBy != nil {
		if err := g.GroupBy(rd.GroupBy.Keys, aggregates(rd.GroupBy)...); err != nil {
			return nil, fmt.Errorf("report %s: %w", rd.Name, err)
		}
	}
	for _, cd := range rd.Conditions {
		if err := g.AddCondition(cd.Condition()); err != nil {
			return nil, fmt.Errorf("report %s: %w", rd.Name, err)
		}
	}
	configure(g, rd)
	return g, nil
}

func (c *Catalog) buildUnion(rd ReportDef) (*report.UnionView, error) {
	u := report.NewUnionView()
	for _, b := range rd.Branches {
		src, err := c.Build(b.Source)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", rd.Name, err)
		}
		u.AddNestedModel(src, report.Mapping(b.Mapping))
	}
	for _, f := range rd.Fields {
		if f.Expr != "" {
			u.AddExpression(f.Name, f.Expr, fieldOptions(f)...)
			continue
		}
		u.AddField(f.Name, fieldOptions(f)...)
	}
	if rd.GroupBy != nil {
		if err := u.GroupBy(rd.GroupBy.Keys, aggregates(rd.GroupBy)...); err != nil {
			return nil, fmt.Errorf("report %s: %w", rd.Name, err)
		}
	}
	for _, cd := range rd.Conditions {
		var err error
		if cd.Nested {
			err = u.AddNestedCondition(cd.Condition())
		} else {
			err = u.AddCondition(cd.Condition())
		}
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", rd.Name, err)
		}
	}
	configure(u, rd)
	return u, nil
}

func configure(src report.Source, rd ReportDef) {
	for _, o := range rd.Order {
		src.SetOrder(o.Field, o.Desc)
	}
	if rd.Limit > 0 {
		src.SetLimit(rd.Limit, rd.Offset)
	}
}

// fieldOptions converts a field definition. Empty settings add no option,
// so inherited field properties survive.
func fieldOptions(f FieldDef) []model.FieldOption {
	var opts []model.FieldOption
	if f.Type != "" {
		opts = append(opts, model.WithType(f.Type))
	}
	if f.Actual != "" {
		opts = append(opts, model.WithActual(f.Actual))
	}
	if f.NeverPersist {
		opts = append(opts, model.NeverPersist())
	}
	if f.System {
		opts = append(opts, model.System())
	}
	return opts
}

func aggregates(g *GroupDef) []report.Aggregate {
	out := make([]report.Aggregate, len(g.Aggregates))
	for i, a := range g.Aggregates {
		out[i] = report.Aggregate{Field: a.Field, Template: a.Template, Type: a.Type}
	}
	return out
}

// Condition converts the definition into a model condition.
func (cd ConditionDef) Condition() model.Condition {
	if len(cd.Any) > 0 {
		subs := make([]model.Condition, len(cd.Any))
		for i, sub := range cd.Any {
			subs[i] = sub.Condition()
		}
		return model.Any(subs...)
	}
	return model.Cond(cd.Field, cd.Op, cd.Value)
}
