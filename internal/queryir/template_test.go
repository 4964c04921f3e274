package queryir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(name string) (Expr, bool) {
	switch name {
	case "amount", "s":
		return Column{Table: "invoice", Name: name}, true
	}
	return nil, false
}

func TestParse_Positional(t *testing.T) {
	amount := Column{Table: "invoice", Name: "amount"}

	tpl, err := Parse("sum([])", []Expr{amount}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Part{{Text: "sum("}, {Arg: amount}, {Text: ")"}}, tpl.Parts)
}

func TestParse_NilPositionalBecomesNull(t *testing.T) {
	tpl, err := Parse("-[]", []Expr{nil}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Part{{Text: "-"}, {Arg: Null{}}}, tpl.Parts)
}

func TestParse_IndexedAndNamed(t *testing.T) {
	a := Param{Value: 1}
	b := Param{Value: 2}

	tpl, err := Parse("[1]+[0]+[amount]", []Expr{a, b}, fields)
	require.NoError(t, err)
	assert.Equal(t, []Part{
		{Arg: b}, {Text: "+"}, {Arg: a}, {Text: "+"}, {Arg: Column{Table: "invoice", Name: "amount"}},
	}, tpl.Parts)
}

func TestParse_Identifier(t *testing.T) {
	tpl, err := Parse("sum({cnt})", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []Part{{Text: "sum("}, {Arg: Ident("cnt")}, {Text: ")"}}, tpl.Parts)

	tpl, err = Parse("sum({})", []Expr{Ident("val")}, nil)
	require.NoError(t, err)
	assert.Equal(t, Ident("val"), tpl.Parts[1].Arg)
}

func TestParse_NoPlaceholders(t *testing.T) {
	tpl, err := Parse("count(*)", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []Part{{Text: "count(*)"}}, tpl.Parts)
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		template string
		args     []Expr
		message  string
	}{
		{name: "missing positional", template: "sum([])", message: "missing positional argument 0"},
		{name: "index out of range", template: "[2]", args: []Expr{Raw("a")}, message: "out of range"},
		{name: "unknown name", template: "sum([blah])", message: `unknown field "blah"`},
		{name: "unclosed bracket", template: "sum([amount", message: "unclosed"},
		{name: "unclosed brace", template: "{cnt", message: "unclosed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.template, tc.args, fields)
			require.Error(t, err)

			var te *TemplateError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tc.template, te.Template)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("[]") })
	assert.NotPanics(t, func() { MustParse("-[]", Raw("1")) })
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"s", "amount"}, Names("[s]+[amount]+[s]"))
	assert.Empty(t, Names("sum([])"))
	assert.Empty(t, Names("[0]+[1]"))
	assert.Equal(t, []string{"amount"}, Names("sum({cnt})+[amount]"))
}
