// Package query implements the JSON-path field proxy, the immutable
// expression algebra it compiles predicates into, and the chainable query
// builder that compiles a filter chain to parameterized SQL.
package query

import "strings"

// Expression is an immutable SQL fragment paired with its ordered bind
// parameters. Every combinator returns a new value; none mutate receivers.
type Expression struct {
	sql    string
	params []any
}

// NewExpression builds a raw expression. Most callers get one from Field's
// comparison methods instead of constructing it directly.
func NewExpression(sql string, params ...any) Expression {
	return Expression{sql: sql, params: append([]any(nil), params...)}
}

// SQL returns the fragment's SQL text (without surrounding parens).
func (e Expression) SQL() string { return e.sql }

// Params returns a copy of the fragment's bind parameters.
func (e Expression) Params() []any {
	return append([]any(nil), e.params...)
}

// And combines two expressions as "(a) AND (b)", concatenating params in
// left-to-right order.
func (e Expression) And(other Expression) Expression {
	return Expression{
		sql:    "(" + e.sql + ") AND (" + other.sql + ")",
		params: concatParams(e.params, other.params),
	}
}

// Or combines two expressions as "(a) OR (b)".
func (e Expression) Or(other Expression) Expression {
	return Expression{
		sql:    "(" + e.sql + ") OR (" + other.sql + ")",
		params: concatParams(e.params, other.params),
	}
}

// Not negates an expression as "NOT (a)"; params are unchanged.
func (e Expression) Not() Expression {
	return Expression{
		sql:    "NOT (" + e.sql + ")",
		params: append([]any(nil), e.params...),
	}
}

func concatParams(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// And is a free-function variant of Expression.And for building a chain out
// of a slice without a seed value; it panics on an empty slice since there is
// no neutral "always true" expression representable in this algebra.
func And(exprs ...Expression) Expression {
	if len(exprs) == 0 {
		panic("sqler: query.And called with no expressions")
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = acc.And(e)
	}
	return acc
}

// Or is the disjunctive counterpart of And.
func Or(exprs ...Expression) Expression {
	if len(exprs) == 0 {
		panic("sqler: query.Or called with no expressions")
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = acc.Or(e)
	}
	return acc
}

// collapseWhitespace normalizes repeated whitespace produced by template
// concatenation, matching the source compiler's final formatting pass.
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
