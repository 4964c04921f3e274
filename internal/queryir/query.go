package queryir

// Clause names accepted by Query.Reset.
const (
	ClauseField  = "field"
	ClauseTable  = "table"
	ClauseWhere  = "where"
	ClauseGroup  = "group"
	ClauseHaving = "having"
	ClauseOrder  = "order"
	ClauseLimit  = "limit"
)

// Query is a SELECT statement under construction.
//
// Semantics:
//
//	SELECT <fields> FROM <from> WHERE <where...> GROUP BY <group...>
//	HAVING <having...> ORDER BY <order...> LIMIT <limit>
//
// WHERE and HAVING entries are joined with AND. An empty field list renders "*".
// Builder methods return the receiver so calls can be chained.
type Query struct {
	Fields []Field
	From   Expr
	Where  []Predicate
	Group  []Expr
	Having []Predicate
	Order  []Order
	Limit  *Limit
}

func (*Query) exprNode() {}

// NewQuery returns an empty statement.
func NewQuery() *Query {
	return &Query{}
}

// Select returns a statement reading from src.
func Select(src Expr) *Query {
	return &Query{From: src}
}

// Field adds a projected expression. An empty alias leaves the column unnamed.
func (q *Query) Field(e Expr, alias string) *Query {
	q.Fields = append(q.Fields, Field{Expr: e, Alias: alias})
	return q
}

// Table replaces the table source.
func (q *Query) Table(src Expr) *Query {
	q.From = src
	return q
}

// AndWhere appends a WHERE predicate.
func (q *Query) AndWhere(p Predicate) *Query {
	q.Where = append(q.Where, p)
	return q
}

// AndHaving appends a HAVING predicate.
func (q *Query) AndHaving(p Predicate) *Query {
	q.Having = append(q.Having, p)
	return q
}

// GroupBy appends a GROUP BY term.
func (q *Query) GroupBy(e Expr) *Query {
	q.Group = append(q.Group, e)
	return q
}

// OrderBy appends an ORDER BY term.
func (q *Query) OrderBy(e Expr, desc bool) *Query {
	q.Order = append(q.Order, Order{Expr: e, Desc: desc})
	return q
}

// SetLimit sets LIMIT and OFFSET. A count of 0 or less removes the limit.
func (q *Query) SetLimit(count, offset int) *Query {
	if count <= 0 {
		q.Limit = nil
		return q
	}
	q.Limit = &Limit{Count: count, Offset: offset}
	return q
}

// Reset clears one clause. Unknown clause names are ignored.
func (q *Query) Reset(clause string) *Query {
	switch clause {
	case ClauseField:
		q.Fields = nil
	case ClauseTable:
		q.From = nil
	case ClauseWhere:
		q.Where = nil
	case ClauseGroup:
		q.Group = nil
	case ClauseHaving:
		q.Having = nil
	case ClauseOrder:
		q.Order = nil
	case ClauseLimit:
		q.Limit = nil
	}
	return q
}

// Clone returns a copy whose clause slices can be modified independently.
// Expressions themselves are shared; they are never mutated after construction.
func (q *Query) Clone() *Query {
	c := &Query{From: q.From}
	c.Fields = append([]Field(nil), q.Fields...)
	c.Where = append([]Predicate(nil), q.Where...)
	c.Group = append([]Expr(nil), q.Group...)
	c.Having = append([]Predicate(nil), q.Having...)
	c.Order = append([]Order(nil), q.Order...)
	if q.Limit != nil {
		l := *q.Limit
		c.Limit = &l
	}
	return c
}

// As wraps the statement as a derived table source.
func (q *Query) As(alias string) Derived {
	return Derived{Source: q, Alias: alias}
}
