package model

import "github.com/atk4/report/internal/queryir"

// Field types understood by the typecast helpers. Any other type string is
// carried as metadata only.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeMoney   = "money"
	TypeBoolean = "boolean"
)

// FieldDescriptor describes one field of a model or view.
//
// Exactly one of the following holds:
//   - Expr == "" && Computed == nil: a physical column named Actual (or Name)
//   - Expr != "": an expression template over sibling fields, e.g. "[s]+[amount]"
//   - Computed != nil: a prebuilt expression (reference titles)
type FieldDescriptor struct {
	Name     string
	Type     string
	Actual   string
	Expr     string
	Computed queryir.Expr

	// NeverPersist marks client-side fields that are never selected.
	NeverPersist bool

	// System fields are always selected but hidden from default listings.
	System bool

	// JoinOnly fields exist only to support joins and are never projected.
	JoinOnly bool
}

// IsExpression reports whether the field is computed rather than stored.
func (f FieldDescriptor) IsExpression() bool {
	return f.Expr != "" || f.Computed != nil
}

// Column returns the physical column name.
func (f FieldDescriptor) Column() string {
	if f.Actual != "" {
		return f.Actual
	}
	return f.Name
}

// Selectable reports whether the field belongs in a default projection.
func (f FieldDescriptor) Selectable() bool {
	return !f.NeverPersist && !f.JoinOnly
}

// FieldOption customizes a FieldDescriptor.
type FieldOption func(*FieldDescriptor)

// WithType sets the declared type.
func WithType(t string) FieldOption {
	return func(f *FieldDescriptor) { f.Type = t }
}

// WithActual stores the field under a different column name.
func WithActual(column string) FieldOption {
	return func(f *FieldDescriptor) { f.Actual = column }
}

// WithExpr turns the field into an expression template.
func WithExpr(template string) FieldOption {
	return func(f *FieldDescriptor) { f.Expr = template }
}

// NeverPersist marks the field as client-side only.
func NeverPersist() FieldOption {
	return func(f *FieldDescriptor) { f.NeverPersist = true }
}

// System marks the field as a system field.
func System() FieldOption {
	return func(f *FieldDescriptor) { f.System = true }
}

// JoinOnly marks the field as usable in joins only.
func JoinOnly() FieldOption {
	return func(f *FieldDescriptor) { f.JoinOnly = true }
}

// NewField builds a descriptor from options.
func NewField(name string, opts ...FieldOption) FieldDescriptor {
	f := FieldDescriptor{Name: name}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Merge returns base with the given options applied on top, renamed to name.
func Merge(base FieldDescriptor, name string, opts ...FieldOption) FieldDescriptor {
	f := base
	f.Name = name
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Schema is the read side of a model: field introspection by name and in
// declaration order.
type Schema interface {
	Field(name string) (FieldDescriptor, bool)
	Fields() []FieldDescriptor
}

// FieldSet is an ordered set of descriptors keyed by name.
// The zero value is ready to use.
type FieldSet struct {
	list  []FieldDescriptor
	index map[string]int
}

// Put adds f, or replaces the descriptor of the same name in place.
func (s *FieldSet) Put(f FieldDescriptor) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[f.Name]; ok {
		s.list[i] = f
		return
	}
	s.index[f.Name] = len(s.list)
	s.list = append(s.list, f)
}

// Field implements Schema.
func (s *FieldSet) Field(name string) (FieldDescriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return s.list[i], true
}

// Fields implements Schema. The returned slice is a copy.
func (s *FieldSet) Fields() []FieldDescriptor {
	return append([]FieldDescriptor{}, s.list...)
}

// Names lists field names in order.
func (s *FieldSet) Names() []string {
	names := make([]string, 0, len(s.list))
	for _, f := range s.list {
		names = append(names, f.Name)
	}
	return names
}

// Len returns the number of fields.
func (s *FieldSet) Len() int {
	return len(s.list)
}
