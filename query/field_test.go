package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldComparisonsCompileJSONExtract(t *testing.T) {
	e := F("name").Eq("Ada")
	assert.Equal(t, `json_extract(data, '$.name') = ?`, e.SQL())
	require.Equal(t, []any{"Ada"}, e.Params())
}

func TestFieldNestedPath(t *testing.T) {
	e := F("qc", "esi_ms", "contaminant_peaks").Eq(1)
	assert.Equal(t, `json_extract(data, '$.qc.esi_ms.contaminant_peaks') = ?`, e.SQL())
}

func TestFieldQuotedKeyEscaping(t *testing.T) {
	e := F("weird key").Eq(1)
	assert.Contains(t, e.SQL(), `."weird key"`)
}

func TestFieldArrayIndex(t *testing.T) {
	e := F("tags", 0).Eq("x")
	assert.Equal(t, `json_extract(data, '$.tags[0]') = ?`, e.SQL())
}

func TestFieldContains(t *testing.T) {
	e := F("tags").Contains("test")
	want := `EXISTS (SELECT 1 FROM json_each(data, '$.tags') WHERE json_each.value = ?)`
	assert.Equal(t, want, e.SQL())
	require.Equal(t, []any{"test"}, e.Params())
}

func TestFieldInEmptyIsLiteralFalse(t *testing.T) {
	e := F("type").In(nil)
	assert.Equal(t, "0", e.SQL())
	assert.Empty(t, e.Params())
}

func TestFieldInPopulated(t *testing.T) {
	e := F("type").In([]any{"a", "b"})
	want := `json_extract(data, '$.type') IN (?, ?)`
	assert.Equal(t, want, e.SQL())
	require.Equal(t, []any{"a", "b"}, e.Params())
}

func TestFieldLike(t *testing.T) {
	e := F("name").Like("A%")
	assert.Equal(t, `json_extract(data, '$.name') LIKE ?`, e.SQL())
}

func TestAnyTraversalSingleLevel(t *testing.T) {
	e := F("tags").Any().Field().Eq("test")
	want := `EXISTS (SELECT 1 FROM json_each(json_extract(data, '$.tags')) AS a WHERE json_extract(a.value, '$') = ?)`
	assert.Equal(t, want, e.SQL())
}

func TestAnyTraversalNested(t *testing.T) {
	e := F("qc", "esi_ms", "contaminant_peaks").Any().Field("mz").Gt(900)
	want := `EXISTS (SELECT 1 FROM json_each(json_extract(data, '$.qc.esi_ms.contaminant_peaks')) AS a WHERE json_extract(a.value, '$.mz') > ?)`
	assert.Equal(t, want, e.SQL())
	require.Equal(t, []any{900}, e.Params())
}

func TestAnyTraversalDoubleNested(t *testing.T) {
	e := F("a").Any().Any("b").Field("c").Gt(1)
	want := `EXISTS (SELECT 1 FROM json_each(json_extract(data, '$.a')) AS a JOIN json_each(json_extract(a.value, '$.b')) AS b WHERE json_extract(b.value, '$.c') > ?)`
	assert.Equal(t, want, e.SQL())
}

func TestAliasSequence(t *testing.T) {
	cases := map[int]string{0: "a", 1: "b", 25: "z", 26: "aa", 27: "ab"}
	for n, want := range cases {
		assert.Equal(t, want, aliasSequence(n), "aliasSequence(%d)", n)
	}
}
