package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelFieldEqCompilesCorrelatedExists(t *testing.T) {
	spec := RefSpec{OuterTable: "users", RefField: "address", RefTable: "addresses"}
	mf := NewModelField(spec, "city")
	e := mf.Eq("Kyoto")

	want := "EXISTS (SELECT 1 FROM addresses r WHERE r.id = json_extract(users.data, '$.address.id') " +
		"AND json_extract(r.data, '$.city') = ?)"
	assert.Equal(t, want, e.SQL())
	require.Equal(t, []any{"Kyoto"}, e.Params())
}

func TestModelFieldLikeMatchesCompileShape(t *testing.T) {
	spec := RefSpec{OuterTable: "users", RefField: "address", RefTable: "addresses"}
	mf := NewModelField(spec, "city")

	eqExpr := mf.Eq("x")
	likeExpr := mf.Like("K%")

	eqWithoutOp := eqExpr.SQL()[:len(eqExpr.SQL())-len("= ?)")]
	likeWithoutOp := likeExpr.SQL()[:len(likeExpr.SQL())-len("LIKE ?)")]
	assert.Equal(t, eqWithoutOp, likeWithoutOp)
}

func TestModelFieldNestedTerminalPath(t *testing.T) {
	spec := RefSpec{OuterTable: "orders", RefField: "customer", RefTable: "customers"}
	mf := NewModelField(spec, "billing", "zip")
	e := mf.Gt(10000)

	want := "EXISTS (SELECT 1 FROM customers r WHERE r.id = json_extract(orders.data, '$.customer.id') " +
		"AND json_extract(r.data, '$.billing.zip') > ?)"
	assert.Equal(t, want, e.SQL())
}

func TestModelFieldComposesWithAnd(t *testing.T) {
	spec := RefSpec{OuterTable: "orders", RefField: "customer", RefTable: "customers"}
	mf := NewModelField(spec, "active")
	combined := F("status").Eq("open").And(mf.Eq(true))

	require.Equal(t, []any{"open", true}, combined.Params())
}
