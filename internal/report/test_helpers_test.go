package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
	"github.com/atk4/report/internal/querysql"
	"github.com/atk4/report/internal/store"
	"github.com/atk4/report/internal/testutil"
)

func render(t *testing.T, e queryir.Expr) string {
	t.Helper()
	sql, _, err := querysql.NewSQLCompiler(nil).Compile(e)
	require.NoError(t, err)
	return sql
}

func renderParams(t *testing.T, e queryir.Expr) (string, []any) {
	t.Helper()
	sql, params, err := querysql.NewSQLCompiler(nil).Compile(e)
	require.NoError(t, err)
	return sql, params
}

// clientGroup is a GroupView over invoices that also shows the client name.
func clientGroup(t *testing.T) *GroupView {
	t.Helper()
	g := NewGroupView(testutil.InvoiceWithClient(t))
	g.AddField("client")
	return g
}

// transaction is a UnionView over invoices and payments with name and
// amount fields. Invoice amounts go through invoiceAmount when it is set.
func transaction(invoiceAmount string) (*UnionView, *model.Model, *model.Model) {
	u := NewUnionView()
	mapping := Mapping{}
	if invoiceAmount != "" {
		mapping["amount"] = invoiceAmount
	}
	inv := testutil.Invoice()
	pay := testutil.Payment()
	u.AddNestedModel(inv, mapping)
	u.AddNestedModel(pay, nil)
	u.AddField("name")
	u.AddField("amount", model.WithType(model.TypeMoney))
	return u, inv, pay
}

func export(t *testing.T, s *store.Store, src Selectable, fields ...string) []map[string]any {
	t.Helper()
	rows, err := Export(context.Background(), s, src, ExportOptions{Fields: fields})
	require.NoError(t, err)
	return rows
}

func one(t *testing.T, s *store.Store, q *queryir.Query) any {
	t.Helper()
	v, err := s.One(context.Background(), q)
	require.NoError(t, err)
	return v
}

func money(t *testing.T, v any) float64 {
	t.Helper()
	f, err := model.TypecastLoad(model.NewField("v", model.WithType(model.TypeMoney)), v)
	require.NoError(t, err)
	return f.(float64)
}
