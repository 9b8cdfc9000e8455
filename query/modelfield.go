package query

import "fmt"

// RefSpec describes a reference attribute on a bound record type, enough to
// compile a cross-reference EXISTS predicate: the owning table, the JSON key
// holding the {table,id} pair, and the referenced table's name. The record
// package resolves this from the Go struct field's type and the registry; it
// is kept a plain value here so query stays independent of record.
type RefSpec struct {
	OuterTable string
	RefField   string
	RefTable   string
}

// ModelField builds a predicate against a field reached through a reference,
// compiling to a correlated EXISTS against the referenced table rather than a
// json_each traversal of the owning row. It mirrors the source's
// SQLerModelField, minus the model class reference (carried instead as a
// resolved RefSpec by the caller).
type ModelField struct {
	spec     RefSpec
	terminal []any
}

// NewModelField builds a ModelField for the rest-of-path segments beyond the
// reference attribute itself (e.g. for ref(User,"address").field("city"),
// terminal is ["city"]).
func NewModelField(spec RefSpec, terminal ...any) *ModelField {
	return &ModelField{spec: spec, terminal: append([]any(nil), terminal...)}
}

func (m *ModelField) compile(op string, param any) Expression {
	outerAlias := m.spec.OuterTable
	path := jsonPathLiteral(append([]any{m.spec.RefField}, "id"))
	termPath := jsonPathLiteral(m.terminal)
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s r WHERE r.id = %s AND json_extract(r.data, '%s') %s ?)",
		m.spec.RefTable,
		fmt.Sprintf("json_extract(%s.data, '%s')", outerAlias, path),
		termPath,
		op,
	)
	return NewExpression(sql, param)
}

func (m *ModelField) Eq(v any) Expression { return m.compile("=", v) }
func (m *ModelField) Ne(v any) Expression { return m.compile("!=", v) }
func (m *ModelField) Lt(v any) Expression { return m.compile("<", v) }
func (m *ModelField) Le(v any) Expression { return m.compile("<=", v) }
func (m *ModelField) Gt(v any) Expression { return m.compile(">", v) }
func (m *ModelField) Ge(v any) Expression { return m.compile(">=", v) }

// Like matches against the referenced record's terminal field.
func (m *ModelField) Like(pattern string) Expression {
	termPath := jsonPathLiteral(m.terminal)
	outerPath := jsonPathLiteral(append([]any{m.spec.RefField}, "id"))
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s r WHERE r.id = json_extract(%s.data, '%s') AND json_extract(r.data, '%s') LIKE ?)",
		m.spec.RefTable, m.spec.OuterTable, outerPath, termPath,
	)
	return NewExpression(sql, pattern)
}
