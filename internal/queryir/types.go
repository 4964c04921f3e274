package queryir

// Expr is a renderable node of a composite query expression.
//
// This is a sealed interface - only types in this package implement it.
// Renderers switch exhaustively over the concrete types below.
//
// Expr types:
//   - Raw: verbatim SQL fragment (count(*), NULL, 'invoice')
//   - Ident: quoted identifier (derived column or alias name)
//   - Column: optionally table-qualified column reference
//   - Param: bound value, never interpolated
//   - Null: typed NULL literal used to fill absent fields
//   - Paren: parenthesized sub-expression
//   - Template: text with substituted argument slots
//   - *Query: a SELECT statement, rendered in parentheses when nested
//   - Union: UNION ALL of statements
//   - Derived: a statement or union used as an aliased table source
//   - Table: a physical table source
type Expr interface {
	exprNode()
}

// Predicate is a filter condition placed in WHERE or HAVING.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Raw is a SQL fragment rendered as-is.
type Raw string

func (Raw) exprNode() {}

// Ident is an identifier rendered with dialect quoting.
type Ident string

func (Ident) exprNode() {}

// Column references a column, qualified by Table when set.
type Column struct {
	Table string
	Name  string
}

func (Column) exprNode() {}

// Col returns an unqualified column reference.
func Col(name string) Column {
	return Column{Name: name}
}

// Param is a bound value. Slices expand to one placeholder per element.
type Param struct {
	Value any
}

func (Param) exprNode() {}

// Null renders NULL.
type Null struct{}

func (Null) exprNode() {}

// Paren wraps an expression in parentheses.
type Paren struct {
	Expr Expr
}

func (Paren) exprNode() {}

// Part is one segment of a Template: literal Text, or an Arg when Arg is non-nil.
type Part struct {
	Text string
	Arg  Expr
}

// Template is a parsed expression with its arguments already substituted.
// Build one with Parse.
type Template struct {
	Parts []Part
}

func (Template) exprNode() {}

// Union concatenates statements with UNION ALL, in slice order.
type Union struct {
	Branches []*Query
}

func (Union) exprNode() {}

// Derived is a statement or union used as a table source under Alias.
type Derived struct {
	Source Expr
	Alias  string
}

func (Derived) exprNode() {}

// Table is a physical table source.
type Table struct {
	Name  string
	Alias string
}

func (Table) exprNode() {}

// Compare is "Left Op Right". A nil Right with "=" or "!=" renders IS [NOT] NULL.
type Compare struct {
	Left  Expr
	Op    string
	Right Expr
}

func (Compare) predicateNode() {}

// Or is a disjunction. An empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// ExprPredicate uses a boolean expression directly as a condition.
type ExprPredicate struct {
	Expr Expr
}

func (ExprPredicate) predicateNode() {}

// Field is one projected column of a Query.
type Field struct {
	Expr  Expr
	Alias string
}

// Order is one ORDER BY term.
type Order struct {
	Expr Expr
	Desc bool
}

// Limit holds LIMIT/OFFSET. Offset 0 is not rendered.
type Limit struct {
	Count  int
	Offset int
}

// Hook may inspect or mutate a statement right before a view returns it.
type Hook func(q *Query) error
