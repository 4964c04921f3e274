package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
	"github.com/atk4/report/internal/testutil"
)

const (
	unmappedMembers = `SELECT "invoice"."name", "invoice"."amount" FROM "invoice" UNION ALL SELECT "payment"."name", "payment"."amount" FROM "payment"`
	mappedMembers   = `SELECT "invoice"."name", -"invoice"."amount" AS "amount" FROM "invoice" UNION ALL SELECT "payment"."name", "payment"."amount" FROM "payment"`
)

func amountAggregate() Aggregate {
	return Aggregate{Field: "amount", Template: "sum([])", Type: model.TypeMoney}
}

func TestUnionView_SubQuery(t *testing.T) {
	testCases := []struct {
		name    string
		mapping string
		fields  []string
		want    string
	}{
		{
			name:   "single field",
			fields: []string{"name"},
			want:   `(SELECT "invoice"."name" FROM "invoice" UNION ALL SELECT "payment"."name" FROM "payment") AS "derivedTable"`,
		},
		{
			name:   "unmapped",
			fields: []string{"name", "amount"},
			want:   `(` + unmappedMembers + `) AS "derivedTable"`,
		},
		{
			name:    "mapped",
			mapping: "-[]",
			fields:  []string{"name", "amount"},
			want:    `(` + mappedMembers + `) AS "derivedTable"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, _, _ := transaction(tc.mapping)
			sub, err := u.SubQuery(tc.fields)
			require.NoError(t, err)
			assert.Equal(t, tc.want, render(t, sub))
		})
	}
}

func TestUnionView_MissingFieldIsNull(t *testing.T) {
	s := testutil.BillingStore(t)
	u, inv, _ := transaction("-[]")
	inv.AddExpression("type", "'invoice'")
	u.AddField("type")

	sub, err := u.SubQuery([]string{"type", "amount"})
	require.NoError(t, err)
	assert.Equal(t,
		`(SELECT ('invoice') AS "type", -"invoice"."amount" AS "amount" FROM "invoice"`+
			` UNION ALL SELECT NULL AS "type", "payment"."amount" FROM "payment") AS "derivedTable"`,
		render(t, sub))

	rows := export(t, s, u, "type", "amount")
	assert.ElementsMatch(t, []map[string]any{
		{"type": "invoice", "amount": -4.0},
		{"type": "invoice", "amount": -15.0},
		{"type": "invoice", "amount": -4.0},
		{"type": nil, "amount": 10.0},
		{"type": nil, "amount": 4.0},
	}, rows)
}

func TestUnionView_SelectSQL(t *testing.T) {
	u, _, _ := transaction("-[]")
	q, err := u.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "name", "amount" FROM (`+mappedMembers+`) AS "derivedTable"`, render(t, q))

	_, err = u.Select([]string{"nope"})
	require.Error(t, err)
	assert.True(t, IsUnknownField(err))
}

func TestUnionView_Export(t *testing.T) {
	testCases := []struct {
		name    string
		mapping string
		want    []float64
	}{
		{"unmapped", "", []float64{4, 15, 4, 10, 4}},
		{"mapped", "-[]", []float64{-4, -15, -4, 10, 4}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := testutil.BillingStore(t)
			u, _, _ := transaction(tc.mapping)

			var amounts []float64
			for _, row := range export(t, s, u) {
				amounts = append(amounts, row["amount"].(float64))
			}
			assert.ElementsMatch(t, tc.want, amounts)
		})
	}
}

func TestUnionView_Grouped(t *testing.T) {
	u, _, _ := transaction("-[]")
	require.NoError(t, u.GroupBy([]string{"name"}, amountAggregate()))

	sub, err := u.SubQuery([]string{"name", "amount"})
	require.NoError(t, err)
	members := `SELECT "invoice"."name", sum(-"invoice"."amount") AS "amount" FROM "invoice" GROUP BY "invoice"."name"` +
		` UNION ALL SELECT "payment"."name", sum("payment"."amount") AS "amount" FROM "payment" GROUP BY "payment"."name"`
	assert.Equal(t, `(`+members+`) AS "derivedTable"`, render(t, sub))

	q, err := u.Select(nil)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "name", sum("amount") AS "amount" FROM (`+members+`) AS "derivedTable" GROUP BY "name"`,
		render(t, q))
}

func TestUnionView_GroupedExport(t *testing.T) {
	testCases := []struct {
		name    string
		mapping string
		want    []map[string]any
	}{
		{
			name:    "mapped",
			mapping: "-[]",
			want: []map[string]any{
				{"name": "chair purchase", "amount": -8.0},
				{"name": "full pay", "amount": 4.0},
				{"name": "prepay", "amount": 10.0},
				{"name": "table purchase", "amount": -15.0},
			},
		},
		{
			name: "unmapped",
			want: []map[string]any{
				{"name": "chair purchase", "amount": 8.0},
				{"name": "full pay", "amount": 4.0},
				{"name": "prepay", "amount": 10.0},
				{"name": "table purchase", "amount": 15.0},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := testutil.BillingStore(t)
			u, _, _ := transaction(tc.mapping)
			require.NoError(t, u.GroupBy([]string{"name"}, amountAggregate()))
			u.SetOrder("name", false)

			assert.Equal(t, tc.want, export(t, s, u))
		})
	}
}

func TestUnionView_GroupByBranchExpression(t *testing.T) {
	s := testutil.BillingStore(t)
	u, inv, pay := transaction("-[]")
	inv.AddExpression("type", "'invoice'")
	pay.AddExpression("type", "'payment'")
	u.AddField("type")
	require.NoError(t, u.GroupBy([]string{"type"}, amountAggregate()))
	u.SetOrder("type", false)

	q, err := u.Select([]string{"type", "amount"})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "type", sum("amount") AS "amount" FROM (`+
			`SELECT ('invoice') AS "type", sum(-"invoice"."amount") AS "amount" FROM "invoice" GROUP BY ('invoice')`+
			` UNION ALL SELECT ('payment') AS "type", sum("payment"."amount") AS "amount" FROM "payment" GROUP BY ('payment')`+
			`) AS "derivedTable" GROUP BY "type" ORDER BY "type"`,
		render(t, q))

	assert.Equal(t, []map[string]any{
		{"type": "invoice", "amount": -23.0},
		{"type": "payment", "amount": 14.0},
	}, export(t, s, u, "type", "amount"))
}

func TestUnionView_GroupKeyMissingFromBranch(t *testing.T) {
	u, inv, _ := transaction("")
	inv.AddExpression("type", "'invoice'")
	u.AddField("type")
	require.NoError(t, u.GroupBy([]string{"type"}, amountAggregate()))

	sub, err := u.SubQuery([]string{"type", "amount"})
	require.NoError(t, err)
	assert.Contains(t, render(t, sub),
		`SELECT NULL AS "type", sum("payment"."amount") AS "amount" FROM "payment" GROUP BY "type"`)
}

func TestUnionView_RegroupReplaces(t *testing.T) {
	u, _, _ := transaction("")
	require.NoError(t, u.GroupBy([]string{"name"}, amountAggregate()))
	require.NoError(t, u.GroupBy([]string{"client_id"}, Aggregate{Field: "top", Template: "max([amount])"}))

	spec := u.Spec()
	assert.Equal(t, []string{"client_id"}, spec.Keys)
	require.Len(t, spec.Aggregates, 1)
	assert.Equal(t, "top", spec.Aggregates[0].Field)

	_, isAgg := u.Spec().Aggregate("amount")
	assert.False(t, isAgg)
	amount, ok := u.Field("amount")
	require.True(t, ok)
	assert.Equal(t, "", amount.Expr, "amount is a plain field again")
}

func TestUnionView_GroupByRejectsEmptyAggregate(t *testing.T) {
	u, _, _ := transaction("")
	err := u.GroupBy([]string{"name"}, Aggregate{Field: "amount"})
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
	assert.False(t, u.Spec().Active())
}

func TestUnionView_Count(t *testing.T) {
	s := testutil.BillingStore(t)
	u, _, _ := transaction("-[]")

	q, err := u.Action(ModeCount)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT sum("cnt") FROM (SELECT count(*) AS "cnt" FROM "invoice" UNION ALL SELECT count(*) AS "cnt" FROM "payment") AS "derivedTable"`,
		render(t, q))
	assert.Equal(t, int64(5), one(t, s, q))
}

func TestUnionView_CountGrouped(t *testing.T) {
	s := testutil.BillingStore(t)
	u, _, _ := transaction("")
	require.NoError(t, u.GroupBy([]string{"name"}, amountAggregate()))

	q, err := u.Count("")
	require.NoError(t, err)
	assert.Equal(t, int64(4), one(t, s, q))
}

func TestUnionView_Fx(t *testing.T) {
	testCases := []struct {
		name    string
		mapping string
		fn      string
		wantSQL string
		want    float64
	}{
		{
			name:    "sum unmapped",
			fn:      "sum",
			wantSQL: `SELECT sum("val") FROM (SELECT sum("invoice"."amount") AS "val" FROM "invoice" UNION ALL SELECT sum("payment"."amount") AS "val" FROM "payment") AS "derivedTable"`,
			want:    37,
		},
		{
			name:    "sum mapped",
			mapping: "-[]",
			fn:      "sum",
			wantSQL: `SELECT sum("val") FROM (SELECT sum(-"invoice"."amount") AS "val" FROM "invoice" UNION ALL SELECT sum("payment"."amount") AS "val" FROM "payment") AS "derivedTable"`,
			want:    -9,
		},
		{
			name:    "max mapped",
			mapping: "-[]",
			fn:      "max",
			wantSQL: `SELECT max("val") FROM (SELECT max(-"invoice"."amount") AS "val" FROM "invoice" UNION ALL SELECT max("payment"."amount") AS "val" FROM "payment") AS "derivedTable"`,
			want:    10,
		},
		{
			name:    "avg over union rows",
			fn:      "avg",
			wantSQL: `SELECT avg("amount") FROM (SELECT "amount" FROM (SELECT "invoice"."amount" FROM "invoice" UNION ALL SELECT "payment"."amount" FROM "payment") AS "derivedTable") AS "der"`,
			want:    7.4,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := testutil.BillingStore(t)
			u, _, _ := transaction(tc.mapping)

			q, err := u.Action(ModeFx, tc.fn, "amount")
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, render(t, q))
			assert.InDelta(t, tc.want, money(t, one(t, s, q)), 0.001)
		})
	}
}

func TestUnionView_FxCount(t *testing.T) {
	s := testutil.BillingStore(t)
	u, _, _ := transaction("-[]")

	q, err := u.Fx("count", "name", "n")
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT sum("val") AS "n" FROM (SELECT count("invoice"."name") AS "val" FROM "invoice" UNION ALL SELECT count("payment"."name") AS "val" FROM "payment") AS "derivedTable"`,
		render(t, q))
	assert.Equal(t, int64(5), one(t, s, q))
}

func TestUnionView_SubAction(t *testing.T) {
	u, _, _ := transaction("-[]")

	testCases := []struct {
		name string
		mode string
		args []any
		want string
	}{
		{
			name: "fx",
			mode: ModeFx,
			args: []any{"sum", "amount"},
			want: `(SELECT sum(-"invoice"."amount") FROM "invoice" UNION ALL SELECT sum("payment"."amount") FROM "payment") AS "derivedTable"`,
		},
		{
			name: "count",
			mode: ModeCount,
			want: `(SELECT count(*) FROM "invoice" UNION ALL SELECT count(*) FROM "payment") AS "derivedTable"`,
		},
		{
			name: "field",
			mode: ModeField,
			args: []any{"name"},
			want: `(SELECT "invoice"."name" FROM "invoice" UNION ALL SELECT "payment"."name" FROM "payment") AS "derivedTable"`,
		},
		{
			name: "select",
			mode: ModeSelect,
			args: []any{[]string{"name"}},
			want: `(SELECT "invoice"."name" FROM "invoice" UNION ALL SELECT "payment"."name" FROM "payment") AS "derivedTable"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sub, err := u.SubAction(tc.mode, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, render(t, sub))
		})
	}

	_, err := u.SubAction(ModeFx, "sum")
	assert.True(t, IsInvalidArgument(err))

	_, err = u.SubAction(ModeDelete)
	assert.True(t, IsUnsupportedAction(err))
}

func TestUnionView_ConditionOnReference(t *testing.T) {
	testCases := []struct {
		name    string
		mapping string
		want    float64
	}{
		{"unmapped", "", 29},
		{"mapped", "-[]", -9},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := testutil.BillingStore(t)
			u, _, _ := transaction(tc.mapping)
			require.NoError(t, u.AddCondition(model.Eq("client_id", 1)))

			q, err := u.Fx("sum", "amount", "")
			require.NoError(t, err)
			sql, params := renderParams(t, q)
			assert.Contains(t, sql, `FROM "invoice" WHERE "invoice"."client_id" = ?`)
			assert.Contains(t, sql, `FROM "payment" WHERE "payment"."client_id" = ?`)
			assert.Equal(t, []any{int64(1), int64(1)}, params)
			assert.Equal(t, tc.want, money(t, one(t, s, q)))

			assert.Len(t, export(t, s, u), 3)
		})
	}
}

func TestUnionView_OwnedConditionOnTop(t *testing.T) {
	s := testutil.BillingStore(t)
	u, _, _ := transaction("-[]")
	require.NoError(t, u.AddCondition(model.Eq("name", "prepay")))

	q, err := u.Select(nil)
	require.NoError(t, err)
	sql, params := renderParams(t, q)
	assert.Equal(t, `SELECT "name", "amount" FROM (`+mappedMembers+`) AS "derivedTable" WHERE "name" = ?`, sql)
	assert.Equal(t, []any{"prepay"}, params)

	q, err = u.Count("")
	require.NoError(t, err)
	assert.Equal(t, int64(1), one(t, s, q))

	q, err = u.Fx("sum", "amount", "")
	require.NoError(t, err)
	assert.Equal(t, 10.0, money(t, one(t, s, q)))
}

func TestUnionView_HavingOnAggregate(t *testing.T) {
	s := testutil.BillingStore(t)
	u, _, _ := transaction("-[]")
	require.NoError(t, u.GroupBy([]string{"name"}, amountAggregate()))
	require.NoError(t, u.AddCondition(model.Cond("amount", ">", 5)))

	q, err := u.Select(nil)
	require.NoError(t, err)
	sql, params := renderParams(t, q)
	assert.Contains(t, sql, `GROUP BY "name" HAVING sum("amount") > ?`)
	assert.Equal(t, []any{5.0}, params)

	assert.Equal(t, []map[string]any{{"name": "prepay", "amount": 10.0}}, export(t, s, u))
}

func TestUnionView_NestedCondition(t *testing.T) {
	s := testutil.BillingStore(t)
	u, inv, pay := transaction("-[]")
	require.NoError(t, u.AddNestedCondition(model.Eq("amount", -4)))

	invSQL, invParams := renderParams(t, mustBaseSelect(t, inv))
	assert.Equal(t, `SELECT * FROM "invoice" WHERE -"invoice"."amount" = ?`, invSQL)
	assert.Equal(t, []any{-4.0}, invParams)

	paySQL, _ := renderParams(t, mustBaseSelect(t, pay))
	assert.Equal(t, `SELECT * FROM "payment" WHERE "payment"."amount" = ?`, paySQL)

	assert.Equal(t, []map[string]any{
		{"name": "chair purchase", "amount": -4.0},
		{"name": "chair purchase", "amount": -4.0},
	}, export(t, s, u))
}

func TestUnionView_NestedConditionSkipsBranchWithoutField(t *testing.T) {
	u, inv, pay := transaction("")
	inv.AddExpression("type", "'invoice'")

	require.NoError(t, u.AddCondition(model.Eq("type", "invoice")))
	assert.Len(t, inv.Conditions(), 1)
	assert.Empty(t, pay.Conditions())
}

func TestUnionView_DisjunctionMustBeOwned(t *testing.T) {
	u, _, _ := transaction("")

	err := u.AddCondition(model.Any(model.Eq("name", "prepay"), model.Eq("client_id", 1)))
	require.Error(t, err)
	assert.True(t, IsUnknownField(err))

	require.NoError(t, u.AddCondition(model.Any(model.Eq("name", "prepay"), model.Cond("amount", "<", 0))))
}

func TestUnionView_ExpressionField(t *testing.T) {
	s := testutil.BillingStore(t)
	u, _, _ := transaction("-[]")
	u.AddExpression("double", "[amount]*2", model.WithType(model.TypeMoney))

	q, err := u.Select([]string{"name", "double"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "name", ("amount"*2) AS "double" FROM (`+mappedMembers+`) AS "derivedTable"`, render(t, q))

	var doubles []float64
	for _, row := range export(t, s, u, "double") {
		doubles = append(doubles, row["double"].(float64))
	}
	assert.ElementsMatch(t, []float64{-8, -30, -8, 20, 8}, doubles)
}

func TestUnionView_Empty(t *testing.T) {
	u := NewUnionView()
	u.AddField("name")

	_, err := u.Select(nil)
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
}

func TestUnionView_Deterministic(t *testing.T) {
	u, _, _ := transaction("-[]")
	require.NoError(t, u.GroupBy([]string{"name"}, amountAggregate()))
	require.NoError(t, u.AddCondition(model.Eq("client_id", 1)))
	u.SetOrder("amount", true)

	q, err := u.Select(nil)
	require.NoError(t, err)
	want := render(t, q)
	for i := 0; i < 5; i++ {
		q, err := u.Select(nil)
		require.NoError(t, err)
		assert.Equal(t, want, render(t, q))
	}
}

func mustBaseSelect(t *testing.T, src Source) *queryir.Query {
	t.Helper()
	q, err := src.BaseSelect()
	require.NoError(t, err)
	return q
}

func TestFoldable(t *testing.T) {
	testCases := []struct {
		template string
		fn       string
		ok       bool
	}{
		{"sum([])", "sum", true},
		{"count(*)", "count", true},
		{" MAX([amount]) ", "max", true},
		{"min(coalesce([], 0))", "min", true},
		{"sum(')')", "sum", true},
		{"round(sum([]), 2)", "", false},
		{"0+sum([])", "", false},
		{"sum([])+1", "", false},
		{"sum([a]) * sum([b])", "", false},
		{"sum(distinct [])", "", false},
		{"avg([])", "", false},
		{"[]", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.template, func(t *testing.T) {
			fn, ok := foldable(tc.template)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.fn, fn)
			}
		})
	}
}

func TestUnionView_UnfoldedAggregate(t *testing.T) {
	testCases := []struct {
		name     string
		mapping  string
		template string
		wantSQL  string
		want     []map[string]any
	}{
		{
			name:     "rounded",
			template: "round(sum([]), 2)",
			wantSQL: `SELECT "client_id", round(sum("amount"), 2) AS "amount" FROM (` +
				`SELECT "invoice"."client_id", "invoice"."amount" FROM "invoice"` +
				` UNION ALL SELECT "payment"."client_id", "payment"."amount" FROM "payment"` +
				`) AS "derivedTable" GROUP BY "client_id" ORDER BY "client_id"`,
			want: []map[string]any{
				{"client_id": int64(1), "amount": 29.0},
				{"client_id": int64(2), "amount": 8.0},
			},
		},
		{
			name:     "offset",
			template: "0+sum([])",
			want: []map[string]any{
				{"client_id": int64(1), "amount": 29.0},
				{"client_id": int64(2), "amount": 8.0},
			},
		},
		{
			name:     "rounded mapped",
			mapping:  "-[]",
			template: "round(sum([]), 2)",
			want: []map[string]any{
				{"client_id": int64(1), "amount": -9.0},
				{"client_id": int64(2), "amount": 0.0},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := testutil.BillingStore(t)
			u, _, _ := transaction(tc.mapping)
			u.AddField("client_id", model.WithType(model.TypeInteger))
			require.NoError(t, u.GroupBy([]string{"client_id"},
				Aggregate{Field: "amount", Template: tc.template, Type: model.TypeMoney}))
			u.SetOrder("client_id", false)

			q, err := u.Select([]string{"client_id", "amount"})
			require.NoError(t, err)
			sql := render(t, q)
			if tc.wantSQL != "" {
				assert.Equal(t, tc.wantSQL, sql)
			}
			assert.NotContains(t, sql, `GROUP BY "invoice"`, "branches keep raw rows")

			assert.Equal(t, tc.want, export(t, s, u, "client_id", "amount"))
		})
	}
}

func TestUnionView_UnfoldedAggregateWithHaving(t *testing.T) {
	s := testutil.BillingStore(t)
	u, _, _ := transaction("")
	u.AddField("client_id", model.WithType(model.TypeInteger))
	require.NoError(t, u.GroupBy([]string{"client_id"},
		Aggregate{Field: "amount", Template: "round(sum([]), 2)", Type: model.TypeMoney}))
	require.NoError(t, u.AddCondition(model.Cond("amount", ">", 20)))

	q, err := u.Select([]string{"client_id", "amount"})
	require.NoError(t, err)
	assert.Contains(t, render(t, q), `HAVING round(sum("amount"), 2) > ?`)
	assert.Equal(t, []map[string]any{{"client_id": int64(1), "amount": 29.0}}, export(t, s, u, "client_id", "amount"))
}

func TestUnionView_UnfoldedAggregateOverNestedView(t *testing.T) {
	u := NewUnionView()
	u.AddNestedModel(NewGroupView(testutil.Invoice()), nil)
	u.AddNestedModel(testutil.Payment(), nil)
	require.NoError(t, u.GroupBy([]string{"client_id"},
		Aggregate{Field: "amount", Template: "round(sum([]), 2)", Type: model.TypeMoney}))

	_, err := u.Select(nil)
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
}

func TestUnionView_UnstoredFieldsAreNotSelectable(t *testing.T) {
	u, _, _ := transaction("")
	u.AddField("note", model.NeverPersist())
	u.AddField("link", model.JoinOnly())

	for _, name := range []string{"note", "link"} {
		_, err := u.Select([]string{"name", name})
		assert.True(t, IsInvalidArgument(err), name)

		_, err = u.FieldQuery(name)
		assert.True(t, IsInvalidArgument(err), name)

		_, err = u.Fx("max", name, "")
		assert.Error(t, err, name)
	}

	q, err := u.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "name", "amount" FROM (`+unmappedMembers+`) AS "derivedTable"`, render(t, q))
}

func TestUnionView_FxRejectsExpressionAsFunction(t *testing.T) {
	u, _, _ := transaction("-[]")
	_, err := u.Fx("sum(1)) --", "amount", "")
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
}
