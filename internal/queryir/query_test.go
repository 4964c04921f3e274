package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery_Builder(t *testing.T) {
	q := Select(Table{Name: "invoice"}).
		Field(Col("name"), "name").
		AndWhere(ExprPredicate{Expr: Raw("1 = 1")}).
		GroupBy(Col("name")).
		AndHaving(ExprPredicate{Expr: Raw("count(*) > 1")}).
		OrderBy(Col("name"), true).
		SetLimit(10, 5)

	assert.Len(t, q.Fields, 1)
	assert.Equal(t, Table{Name: "invoice"}, q.From)
	assert.Len(t, q.Where, 1)
	assert.Len(t, q.Group, 1)
	assert.Len(t, q.Having, 1)
	assert.Equal(t, []Order{{Expr: Col("name"), Desc: true}}, q.Order)
	assert.Equal(t, &Limit{Count: 10, Offset: 5}, q.Limit)
}

func TestQuery_SetLimitZeroClears(t *testing.T) {
	q := NewQuery().SetLimit(3, 0)
	assert.NotNil(t, q.Limit)

	q.SetLimit(0, 0)
	assert.Nil(t, q.Limit)
}

func TestQuery_Reset(t *testing.T) {
	testCases := []struct {
		clause string
		check  func(t *testing.T, q *Query)
	}{
		{ClauseField, func(t *testing.T, q *Query) { assert.Empty(t, q.Fields) }},
		{ClauseTable, func(t *testing.T, q *Query) { assert.Nil(t, q.From) }},
		{ClauseWhere, func(t *testing.T, q *Query) { assert.Empty(t, q.Where) }},
		{ClauseGroup, func(t *testing.T, q *Query) { assert.Empty(t, q.Group) }},
		{ClauseHaving, func(t *testing.T, q *Query) { assert.Empty(t, q.Having) }},
		{ClauseOrder, func(t *testing.T, q *Query) { assert.Empty(t, q.Order) }},
		{ClauseLimit, func(t *testing.T, q *Query) { assert.Nil(t, q.Limit) }},
	}

	for _, tc := range testCases {
		t.Run(tc.clause, func(t *testing.T) {
			q := Select(Table{Name: "t"}).
				Field(Col("a"), "").
				AndWhere(ExprPredicate{Expr: Raw("1")}).
				GroupBy(Col("a")).
				AndHaving(ExprPredicate{Expr: Raw("1")}).
				OrderBy(Col("a"), false).
				SetLimit(1, 0)
			tc.check(t, q.Reset(tc.clause))
		})
	}
}

func TestQuery_CloneIsIndependent(t *testing.T) {
	q := Select(Table{Name: "invoice"}).Field(Col("name"), "").SetLimit(2, 1)
	c := q.Clone()

	c.Field(Col("amount"), "")
	c.Limit.Count = 7
	c.Reset(ClauseTable)

	assert.Len(t, q.Fields, 1)
	assert.Equal(t, 2, q.Limit.Count)
	assert.Equal(t, Table{Name: "invoice"}, q.From)
}

func TestQuery_As(t *testing.T) {
	q := Select(Table{Name: "invoice"})
	d := q.As("der")
	assert.Equal(t, "der", d.Alias)
	assert.Same(t, q, d.Source)
}
