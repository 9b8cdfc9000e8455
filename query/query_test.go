package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSQLPlain(t *testing.T) {
	b := New("users", nil)
	assert.Equal(t, "SELECT data FROM users", b.SQL("data"))
	assert.Empty(t, b.Params())
}

func TestBuilderFilterOrderLimit(t *testing.T) {
	b := New("users", nil).
		Filter(F("active").Eq(true)).
		OrderBy("name", false).
		Limit(5)

	want := "SELECT data FROM users WHERE json_extract(data, '$.active') = ? " +
		"ORDER BY json_extract(data, '$.name') LIMIT 5"
	assert.Equal(t, want, b.SQL("data"))
	require.Equal(t, []any{true}, b.Params())
}

func TestBuilderOrderByDesc(t *testing.T) {
	b := New("users", nil).OrderBy("age", true)
	want := "SELECT data FROM users ORDER BY json_extract(data, '$.age') DESC"
	assert.Equal(t, want, b.SQL("data"))
}

func TestBuilderFilterChainsWithAnd(t *testing.T) {
	b := New("users", nil).
		Filter(F("a").Eq(1)).
		Filter(F("b").Eq(2))

	want := "SELECT data FROM users WHERE (json_extract(data, '$.a') = ?) AND (json_extract(data, '$.b') = ?)"
	assert.Equal(t, want, b.SQL("data"))
	require.Len(t, b.Params(), 2)
}

func TestBuilderExclude(t *testing.T) {
	b := New("users", nil).Exclude(F("active").Eq(false))
	want := "SELECT data FROM users WHERE NOT (json_extract(data, '$.active') = ?)"
	assert.Equal(t, want, b.SQL("data"))
}

func TestBuilderCountSQLIgnoresOrderAndLimit(t *testing.T) {
	b := New("users", nil).
		Filter(F("active").Eq(true)).
		OrderBy("name", false).
		Limit(5)

	want := "SELECT count(*) FROM users WHERE json_extract(data, '$.active') = ?"
	assert.Equal(t, want, b.CountSQL())
}

// TestBuilderChainPurity verifies that each mutator returns a new Builder
// without touching the receiver, so a base query can be reused to derive
// multiple independent queries.
func TestBuilderChainPurity(t *testing.T) {
	base := New("users", nil).Filter(F("active").Eq(true))
	baseSQL := base.SQL("data")
	baseParams := base.Params()

	derivedA := base.Filter(F("age").Gt(18))
	derivedB := base.OrderBy("name", false)
	_ = derivedA.Limit(10)

	assert.Equal(t, baseSQL, base.SQL("data"), "base mutated")
	assert.Len(t, base.Params(), len(baseParams))
	assert.NotEqual(t, derivedA.SQL("data"), derivedB.SQL("data"))
	assert.NotEqual(t, baseSQL, derivedA.SQL("data"), "derivedA did not add its own filter")
}

func TestBuilderRequiresExecutorForRun(t *testing.T) {
	b := New("users", nil)
	_, err := b.All(nil)
	require.Error(t, err)
}
