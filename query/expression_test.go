package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpressionAndImmutable(t *testing.T) {
	a := F("name").Eq("Ada")
	b := F("age").Gt(30)

	aSQLBefore, aParamsBefore := a.SQL(), a.Params()
	bSQLBefore, bParamsBefore := b.SQL(), b.Params()

	combined := a.And(b)

	assert.Equal(t, aSQLBefore, a.SQL(), "a mutated by And")
	assert.Len(t, a.Params(), len(aParamsBefore))
	assert.Equal(t, bSQLBefore, b.SQL(), "b mutated by And")
	assert.Len(t, b.Params(), len(bParamsBefore))

	wantSQL := "(" + aSQLBefore + ") AND (" + bSQLBefore + ")"
	require.Equal(t, wantSQL, combined.SQL())
	require.Equal(t, []any{"Ada", 30}, combined.Params())
}

func TestExpressionOr(t *testing.T) {
	a := F("a").Eq(1)
	b := F("b").Eq(2)
	or := a.Or(b)
	want := "(" + a.SQL() + ") OR (" + b.SQL() + ")"
	assert.Equal(t, want, or.SQL())
}

func TestExpressionNot(t *testing.T) {
	a := F("a").Eq(1)
	not := a.Not()
	want := "NOT (" + a.SQL() + ")"
	assert.Equal(t, want, not.SQL())
	require.Equal(t, []any{1}, not.Params())
}

func TestAndOrVariadic(t *testing.T) {
	exprs := []Expression{F("a").Eq(1), F("b").Eq(2), F("c").Eq(3)}
	combined := And(exprs...)
	want := "((" + exprs[0].SQL() + ") AND (" + exprs[1].SQL() + ")) AND (" + exprs[2].SQL() + ")"
	assert.Equal(t, want, combined.SQL())
}

func TestAndPanicsOnEmpty(t *testing.T) {
	assert.Panics(t, func() { And() })
	assert.Panics(t, func() { Or() })
}
