package compiler

import (
	"fmt"
	"strings"

	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
)

// Validation error codes (E200-E299)
const (
	// Model errors (E201-E209)
	ErrModelNameEmpty    = "E201" // model name is required
	ErrDuplicateName     = "E202" // duplicate model, report or field name
	ErrInvalidFieldType  = "E203" // unknown field type
	ErrUnknownModel      = "E204" // reference to an undefined model
	ErrFieldNameEmpty    = "E205" // field name is required
	ErrInvalidExpression = "E206" // malformed expression template

	// Report errors (E210-E219)
	ErrReportNameEmpty    = "E210" // report name is required
	ErrInvalidKind        = "E211" // kind must be group or union
	ErrUnknownSource      = "E212" // source is neither a model nor a report
	ErrMissingSource      = "E213" // group without source or union without branches
	ErrInvalidAggregate   = "E214" // aggregate without field or template
	ErrInvalidCondition   = "E215" // condition without field or alternatives
	ErrSourceCycle        = "E216" // reports depend on each other
	ErrInvalidLimit       = "E217" // negative limit or offset
	ErrUnexpectedBranches = "E218" // group with branches or union with a single source
)

var fieldTypes = map[string]bool{
	"":                true,
	model.TypeString:  true,
	model.TypeInteger: true,
	model.TypeFloat:   true,
	model.TypeMoney:   true,
	model.TypeBoolean: true,
}

// ValidationError represents a definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a definition.
// Returns all errors found (does not fail-fast).
func Validate(def *Definition) []ValidationError {
	v := &validator{names: make(map[string]string)}

	for i, m := range def.Models {
		v.model(fmt.Sprintf("models[%d]", i), m, def)
	}
	for i, r := range def.Reports {
		v.report(fmt.Sprintf("reports[%d]", i), r, def)
	}
	for _, c := range AnalyzeCycles(def) {
		v.add("reports", ErrSourceCycle, "%s", c.Message)
	}
	return v.errs
}

type validator struct {
	errs  []ValidationError
	names map[string]string
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

// claim registers a model or report name; models and reports share one namespace.
func (v *validator) claim(path, name string) {
	if prev, ok := v.names[name]; ok {
		v.add(path+".name", ErrDuplicateName, "name %q is already used by %s", name, prev)
		return
	}
	v.names[name] = path
}

func (v *validator) model(path string, m ModelDef, def *Definition) {
	if strings.TrimSpace(m.Name) == "" {
		v.add(path+".name", ErrModelNameEmpty, "model name is required")
	} else {
		v.claim(path, m.Name)
	}

	v.fields(path, m.Fields, map[string]bool{model.IDField: true})

	// a reference may redeclare a field from fields to keep its position
	refs := make(map[string]bool)
	for i, ref := range m.References {
		rp := fmt.Sprintf("%s.references[%d]", path, i)
		if ref.Field == "" {
			v.add(rp+".field", ErrFieldNameEmpty, "reference field is required")
		} else if refs[ref.Field] {
			v.add(rp+".field", ErrDuplicateName, "reference %q is declared twice", ref.Field)
		}
		refs[ref.Field] = true
		if _, ok := def.Model(ref.Model); !ok {
			v.add(rp+".model", ErrUnknownModel, "model %q is not defined", ref.Model)
		}
	}

	v.conditions(path, m.Conditions)
}

func (v *validator) fields(path string, fields []FieldDef, seen map[string]bool) {
	for i, f := range fields {
		fp := fmt.Sprintf("%s.fields[%d]", path, i)
		if strings.TrimSpace(f.Name) == "" {
			v.add(fp+".name", ErrFieldNameEmpty, "field name is required")
			continue
		}
		if seen[f.Name] {
			v.add(fp+".name", ErrDuplicateName, "field %q is declared twice", f.Name)
		}
		seen[f.Name] = true
		if !fieldTypes[f.Type] {
			v.add(fp+".type", ErrInvalidFieldType, "unknown field type %q", f.Type)
		}
		if f.Expr != "" {
			v.template(fp+".expr", f.Expr)
		}
	}
}

// template checks that a template is well formed. Named placeholders are
// resolved later, against the built object.
func (v *validator) template(path, text string) {
	_, err := queryir.Parse(text, []queryir.Expr{queryir.Null{}, queryir.Null{}, queryir.Null{}}, func(string) (queryir.Expr, bool) {
		return queryir.Null{}, true
	})
	if err != nil {
		v.add(path, ErrInvalidExpression, "%v", err)
	}
}

func (v *validator) conditions(path string, conds []ConditionDef) {
	for i, c := range conds {
		v.condition(fmt.Sprintf("%s.conditions[%d]", path, i), c)
	}
}

func (v *validator) condition(path string, c ConditionDef) {
	switch {
	case c.Field != "" && len(c.Any) > 0:
		v.add(path, ErrInvalidCondition, "condition has both field and any")
	case c.Field == "" && len(c.Any) == 0:
		v.add(path, ErrInvalidCondition, "condition needs a field or any")
	}
	for i, sub := range c.Any {
		v.condition(fmt.Sprintf("%s.any[%d]", path, i), sub)
	}
}

func (v *validator) report(path string, r ReportDef, def *Definition) {
	if strings.TrimSpace(r.Name) == "" {
		v.add(path+".name", ErrReportNameEmpty, "report name is required")
	} else {
		v.claim(path, r.Name)
	}

	switch r.Kind {
	case KindGroup:
		if r.Source == "" {
			v.add(path+".source", ErrMissingSource, "group report needs a source")
		} else {
			v.source(path+".source", r.Source, def)
		}
		if len(r.Branches) > 0 {
			v.add(path+".branches", ErrUnexpectedBranches, "group report cannot have branches")
		}
	case KindUnion:
		if len(r.Branches) == 0 {
			v.add(path+".branches", ErrMissingSource, "union report needs at least one branch")
		}
		if r.Source != "" {
			v.add(path+".source", ErrUnexpectedBranches, "union report takes branches, not a source")
		}
		for i, b := range r.Branches {
			bp := fmt.Sprintf("%s.branches[%d]", path, i)
			v.source(bp+".source", b.Source, def)
			for field, t := range b.Mapping {
				v.template(fmt.Sprintf("%s.mapping[%s]", bp, field), t)
			}
		}
	default:
		v.add(path+".kind", ErrInvalidKind, "kind must be %q or %q, got %q", KindGroup, KindUnion, r.Kind)
	}

	v.fields(path, r.Fields, map[string]bool{})

	if r.GroupBy != nil {
		for i, a := range r.GroupBy.Aggregates {
			ap := fmt.Sprintf("%s.group_by.aggregates[%d]", path, i)
			if a.Field == "" || a.Template == "" {
				v.add(ap, ErrInvalidAggregate, "aggregate needs a field and a template")
				continue
			}
			if !fieldTypes[a.Type] {
				v.add(ap+".type", ErrInvalidFieldType, "unknown field type %q", a.Type)
			}
			v.template(ap+".template", a.Template)
		}
	}

	v.conditions(path, r.Conditions)

	if r.Limit < 0 || r.Offset < 0 {
		v.add(path+".limit", ErrInvalidLimit, "limit and offset must not be negative")
	}
}

func (v *validator) source(path, name string, def *Definition) {
	if name == "" {
		v.add(path, ErrMissingSource, "source is required")
		return
	}
	if _, ok := def.Model(name); ok {
		return
	}
	if _, ok := def.Report(name); ok {
		return
	}
	v.add(path, ErrUnknownSource, "%q is neither a model nor a report", name)
}
