package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atk4/report/internal/queryir"
	"github.com/atk4/report/internal/querysql"
)

func newInvoice() *Model {
	client := New("client")
	client.AddField("name")

	m := New("invoice")
	m.AddField("name")
	m.HasOne("client_id", client)
	m.AddField("amount", WithType(TypeMoney))
	return m
}

func render(t *testing.T, e queryir.Expr) (string, []any) {
	t.Helper()
	sql, params, err := querysql.NewSQLCompiler(nil).Compile(e)
	require.NoError(t, err)
	return sql, params
}

func TestModel_Select(t *testing.T) {
	m := newInvoice()

	q, err := m.Select(nil)
	require.NoError(t, err)

	sql, _ := render(t, q)
	assert.Equal(t, `SELECT "invoice"."id", "invoice"."name", "invoice"."client_id", "invoice"."amount" FROM "invoice"`, sql)
}

func TestModel_SelectWithConditionsOrderLimit(t *testing.T) {
	m := newInvoice()
	require.NoError(t, m.AddCondition(Eq("client_id", "1")))
	require.NoError(t, m.AddCondition(Cond("amount", ">", 2)))
	m.SetOrder("name", true)
	m.SetLimit(2, 1)

	q, err := m.Select([]string{"name"})
	require.NoError(t, err)

	sql, params := render(t, q)
	assert.Equal(t,
		`SELECT "invoice"."name" FROM "invoice" WHERE "invoice"."client_id" = ? AND "invoice"."amount" > ?`+
			` ORDER BY "invoice"."name" DESC LIMIT 2 OFFSET 1`,
		sql)
	assert.Equal(t, []any{int64(1), 2.0}, params, "values are typecast by field type")
}

func TestModel_AddConditionUnknownField(t *testing.T) {
	m := newInvoice()
	err := m.AddCondition(Eq("missing", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestModel_ActualColumn(t *testing.T) {
	m := New("payment")
	m.AddField("total", WithActual("amount_paid"))

	q, err := m.Select([]string{"total"})
	require.NoError(t, err)

	sql, _ := render(t, q)
	assert.Equal(t, `SELECT "payment"."amount_paid" AS "total" FROM "payment"`, sql)
}

func TestModel_ExpressionFields(t *testing.T) {
	m := newInvoice()
	m.AddExpression("type", "'invoice'")
	m.AddExpression("double", "[amount]*2", WithType(TypeMoney))
	m.AddExpression("quad", "[double]*2")

	q, err := m.Select([]string{"type", "quad"})
	require.NoError(t, err)

	sql, _ := render(t, q)
	assert.Equal(t, `SELECT ('invoice') AS "type", (("invoice"."amount"*2)*2) AS "quad" FROM "invoice"`, sql)
}

func TestModel_CyclicExpression(t *testing.T) {
	m := New("t")
	m.AddExpression("a", "[b]+1")
	m.AddExpression("b", "[a]+1")

	_, err := m.FieldRef("a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicExpression)
}

func TestModel_RedefineKeepsPosition(t *testing.T) {
	m := newInvoice()
	m.AddExpression("name", "upper([amount])")

	names := []string{}
	for _, f := range m.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "name", "client_id", "amount"}, names)

	f, ok := m.Field("name")
	require.True(t, ok)
	assert.True(t, f.IsExpression())
}

func TestModel_HasOneTitle(t *testing.T) {
	m := newInvoice()
	client := New("client")
	client.AddField("name")

	fd, err := m.HasOne("client_id", client).AddTitle()
	require.NoError(t, err)
	assert.Equal(t, "client", fd.Name)

	q, err := m.Select([]string{"client", "amount"})
	require.NoError(t, err)

	sql, _ := render(t, q)
	assert.Equal(t,
		`SELECT (SELECT "client"."name" FROM "client" WHERE "client"."id" = "invoice"."client_id") AS "client",`+
			` "invoice"."amount" FROM "invoice"`,
		sql)
}

func TestModel_Count(t *testing.T) {
	m := newInvoice()
	require.NoError(t, m.AddCondition(Eq("name", "chair purchase")))
	m.SetLimit(1, 0)

	q, err := m.Count("cnt")
	require.NoError(t, err)

	sql, params := render(t, q)
	assert.Equal(t, `SELECT count(*) AS "cnt" FROM "invoice" WHERE "invoice"."name" = ?`, sql)
	assert.Equal(t, []any{"chair purchase"}, params)
}

func TestModel_Fx(t *testing.T) {
	testCases := []struct {
		name  string
		fn    string
		field string
		alias string
		wrap  []string
		sql   string
	}{
		{
			name:  "plain",
			fn:    "sum",
			field: "amount",
			sql:   `SELECT sum("invoice"."amount") FROM "invoice"`,
		},
		{
			name:  "aliased and wrapped",
			fn:    "sum",
			field: "amount",
			alias: "val",
			wrap:  []string{"-[]"},
			sql:   `SELECT sum(-"invoice"."amount") AS "val" FROM "invoice"`,
		},
		{
			name:  "missing field is null",
			fn:    "max",
			field: "blah",
			sql:   `SELECT max(NULL) FROM "invoice"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := newInvoice().Fx(tc.fn, tc.field, tc.alias, tc.wrap...)
			require.NoError(t, err)
			sql, _ := render(t, q)
			assert.Equal(t, tc.sql, sql)
		})
	}
}

func TestModel_FxRejectsExpressionAsFunction(t *testing.T) {
	for _, fn := range []string{"", "sum(1)) --", "sum ", "1sum", "count(*"} {
		_, err := newInvoice().Fx(fn, "amount", "")
		require.Error(t, err, fn)
		assert.Contains(t, err.Error(), "invalid function name")
	}
}

func TestModel_Expr(t *testing.T) {
	m := newInvoice()

	e, err := m.Expr("[amount] + []", queryir.Param{Value: 3})
	require.NoError(t, err)

	sql, params := render(t, e)
	assert.Equal(t, `"invoice"."amount" + ?`, sql)
	assert.Equal(t, []any{3}, params)

	_, err = m.Expr("[nope]")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestModel_SelectHooks(t *testing.T) {
	m := newInvoice()

	q, err := m.Select([]string{"name"}, func(q *queryir.Query) error {
		q.GroupBy(queryir.Column{Table: "invoice", Name: "name"})
		return nil
	})
	require.NoError(t, err)

	sql, _ := render(t, q)
	assert.Equal(t, `SELECT "invoice"."name" FROM "invoice" GROUP BY "invoice"."name"`, sql)
}
