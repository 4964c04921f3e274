package compiler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Report kinds.
const (
	KindGroup = "group"
	KindUnion = "union"
)

// Definition is a complete set of models and the reports built on them.
type Definition struct {
	Models  []ModelDef  `json:"models" yaml:"models"`
	Reports []ReportDef `json:"reports" yaml:"reports"`
}

// ModelDef describes a table-backed base model. Every model has an integer
// "id" field.
type ModelDef struct {
	Name       string         `json:"name" yaml:"name"`
	Table      string         `json:"table,omitempty" yaml:"table,omitempty"`
	Fields     []FieldDef     `json:"fields,omitempty" yaml:"fields,omitempty"`
	References []ReferenceDef `json:"references,omitempty" yaml:"references,omitempty"`
	Conditions []ConditionDef `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// TableName returns Table, defaulting to the model name.
func (m ModelDef) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return m.Name
}

// FieldDef describes a model or report field. Expr makes it an expression
// over sibling fields.
type FieldDef struct {
	Name         string `json:"name" yaml:"name"`
	Type         string `json:"type,omitempty" yaml:"type,omitempty"`
	Actual       string `json:"actual,omitempty" yaml:"actual,omitempty"`
	Expr         string `json:"expr,omitempty" yaml:"expr,omitempty"`
	NeverPersist bool   `json:"never_persist,omitempty" yaml:"never_persist,omitempty"`
	System       bool   `json:"system,omitempty" yaml:"system,omitempty"`
}

// ReferenceDef is a hasOne link from Field to another model's id. Title
// adds a field with the referenced model's name.
type ReferenceDef struct {
	Field string `json:"field" yaml:"field"`
	Model string `json:"model" yaml:"model"`
	Title bool   `json:"title,omitempty" yaml:"title,omitempty"`
}

// ConditionDef is a filter. Either Field (with Op and Value) or Any is set.
// Nested pushes a union condition into the branches even when the union
// owns the field.
type ConditionDef struct {
	Field  string         `json:"field,omitempty" yaml:"field,omitempty"`
	Op     string         `json:"op,omitempty" yaml:"op,omitempty"`
	Value  any            `json:"value,omitempty" yaml:"value,omitempty"`
	Any    []ConditionDef `json:"any,omitempty" yaml:"any,omitempty"`
	Nested bool           `json:"nested,omitempty" yaml:"nested,omitempty"`
}

// ReportDef describes a grouping view (Source) or a union view (Branches).
// Sources name a model or another report.
type ReportDef struct {
	Name       string         `json:"name" yaml:"name"`
	Kind       string         `json:"kind" yaml:"kind"`
	Source     string         `json:"source,omitempty" yaml:"source,omitempty"`
	Branches   []BranchDef    `json:"branches,omitempty" yaml:"branches,omitempty"`
	Fields     []FieldDef     `json:"fields,omitempty" yaml:"fields,omitempty"`
	GroupBy    *GroupDef      `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	Conditions []ConditionDef `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Order      []OrderDef     `json:"order,omitempty" yaml:"order,omitempty"`
	Limit      int            `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset     int            `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// BranchDef is one member of a union with its field mapping.
type BranchDef struct {
	Source  string            `json:"source" yaml:"source"`
	Mapping map[string]string `json:"mapping,omitempty" yaml:"mapping,omitempty"`
}

// GroupDef is a grouping: keys plus aggregates.
type GroupDef struct {
	Keys       []string       `json:"keys,omitempty" yaml:"keys,omitempty"`
	Aggregates []AggregateDef `json:"aggregates,omitempty" yaml:"aggregates,omitempty"`
}

// AggregateDef declares an aggregate output field, e.g. sum([]).
type AggregateDef struct {
	Field    string `json:"field" yaml:"field"`
	Template string `json:"template" yaml:"template"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
}

// OrderDef is one ordering term.
type OrderDef struct {
	Field string `json:"field" yaml:"field"`
	Desc  bool   `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// Model returns the model definition named name.
func (d *Definition) Model(name string) (ModelDef, bool) {
	for _, m := range d.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelDef{}, false
}

// Report returns the report definition named name.
func (d *Definition) Report(name string) (ReportDef, bool) {
	for _, r := range d.Reports {
		if r.Name == name {
			return r, true
		}
	}
	return ReportDef{}, false
}

// CompileError reports a definition that could not be decoded.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadFile reads a definition from a .cue, .yaml or .yml file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return ParseCUE(path, data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported definition format %q (want .cue or .yaml)", filepath.Ext(path))
	}
}

// ParseCUE decodes a CUE definition. filename is used in error positions.
func ParseCUE(filename string, data []byte) (*Definition, error) {
	ctx := cuecontext.New()
	return Decode(ctx.CompileBytes(data, cue.Filename(filename)))
}

// Decode decodes a built CUE value. The value must be concrete.
func Decode(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var def Definition
	if err := v.Decode(&def); err != nil {
		return nil, formatCUEError(err)
	}
	return &def, nil
}

// ParseYAML decodes a YAML definition. Unknown keys are rejected.
func ParseYAML(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	return &def, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
