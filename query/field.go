package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// identSafe matches JSON object keys that can be rendered as a plain ".key"
// path segment; anything else needs quoted-escaped rendering.
var identSafe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func renderPath(column string, segments []any) string {
	return fmt.Sprintf("json_extract(%s, '%s')", column, jsonPathLiteral(segments))
}

// Field builds predicates against a JSON path rooted at a table's data
// column. Field values are immutable; every method returns a fresh value or
// an Expression.
type Field struct {
	column   string
	segments []any
}

// F builds a Field over the default "data" column with the given path
// segments (each a string key or int array index).
func F(path ...any) Field {
	return Field{column: "data", segments: append([]any(nil), path...)}
}

// On rebinds the field to read a different column (used by cross-table
// reference predicates, where the referenced row is aliased).
func (f Field) On(column string) Field {
	return Field{column: column, segments: f.segments}
}

// Path appends additional segments, returning a new Field.
func (f Field) Path(path ...any) Field {
	return Field{column: f.column, segments: append(append([]any(nil), f.segments...), path...)}
}

func (f Field) expr() string { return renderPath(f.column, f.segments) }

// Eq/Ne/Lt/Le/Gt/Ge each emit a single-parameter comparison against the
// json_extract'd path.
func (f Field) Eq(v any) Expression { return NewExpression(f.expr()+" = ?", v) }
func (f Field) Ne(v any) Expression { return NewExpression(f.expr()+" != ?", v) }
func (f Field) Lt(v any) Expression { return NewExpression(f.expr()+" < ?", v) }
func (f Field) Le(v any) Expression { return NewExpression(f.expr()+" <= ?", v) }
func (f Field) Gt(v any) Expression { return NewExpression(f.expr()+" > ?", v) }
func (f Field) Ge(v any) Expression { return NewExpression(f.expr()+" >= ?", v) }

// Like emits a LIKE predicate.
func (f Field) Like(pattern string) Expression {
	return NewExpression(f.expr()+" LIKE ?", pattern)
}

// Contains emits an EXISTS-over-json_each membership test: true when the
// array at this path has an element equal to v.
func (f Field) Contains(v any) Expression {
	path := jsonPathLiteral(f.segments)
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM json_each(%s, '%s') WHERE json_each.value = ?)",
		f.column, path,
	)
	return NewExpression(sql, v)
}

// In emits a membership test against a literal list of values. An empty list
// compiles to the literal-false expression "0" with no bound parameters,
// since an empty IN (...) is invalid SQL and "always false" is the only
// semantics that composes cleanly with And/Or.
func (f Field) In(values []any) Expression {
	if len(values) == 0 {
		return NewExpression("0")
	}
	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = "?"
	}
	sql := fmt.Sprintf("%s IN (%s)", f.expr(), strings.Join(placeholders, ", "))
	return NewExpression(sql, values...)
}

func jsonPathLiteral(segments []any) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range segments {
		switch v := seg.(type) {
		case int:
			b.WriteString("[")
			b.WriteString(strconv.Itoa(v))
			b.WriteString("]")
		case string:
			if identSafe.MatchString(v) {
				b.WriteString(".")
				b.WriteString(v)
			} else {
				escaped := strings.ReplaceAll(v, `"`, `\"`)
				b.WriteString(`."`)
				b.WriteString(escaped)
				b.WriteString(`"`)
			}
		}
	}
	return b.String()
}

// aliasSequence allocates sequential alphabetic aliases a, b, c, ... z, aa,
// ab, ... for nested json_each joins, matching the source compiler's
// alias-per-Any() allocation.
func aliasSequence(n int) string {
	if n < 0 {
		panic("sqler: negative alias index")
	}
	const letters = "abcdefghijklmnopqrstuvwxyz"
	s := ""
	for {
		s = string(letters[n%26]) + s
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return s
}

// AnyField represents an in-progress array-traversal chain: one or more
// Any() hops, each correlated to the previous via a JOIN on json_each.
type AnyField struct {
	column string
	hops   [][]any // each hop is the array path relative to the previous alias (or the root column for the first hop)
}

// Any begins (or, called on an existing AnyField, continues) an array-any
// traversal: the current field's path names the array to iterate.
func (f Field) Any() *AnyField {
	return &AnyField{column: f.column, hops: [][]any{append([]any(nil), f.segments...)}}
}

// Any adds another nested array-any hop, relative to the previous alias's
// element value.
func (a *AnyField) Any(path ...any) *AnyField {
	hops := append([][]any(nil), a.hops...)
	hops = append(hops, append([]any(nil), path...))
	return &AnyField{column: a.column, hops: hops}
}

// Field sets the terminal (non-array) field evaluated inside the WHERE
// clause of the compiled EXISTS, relative to the last alias's element value.
func (a *AnyField) Field(path ...any) *AnyTerminal {
	return &AnyTerminal{any: a, terminal: append([]any(nil), path...)}
}

// AnyTerminal is a fully-specified array-any chain ready for a comparison.
type AnyTerminal struct {
	any      *AnyField
	terminal []any
}

func (t *AnyTerminal) compile(op string, param any) Expression {
	aliases := make([]string, len(t.any.hops))
	for i := range aliases {
		aliases[i] = aliasSequence(i)
	}

	var b strings.Builder
	b.WriteString("EXISTS (SELECT 1 FROM ")
	for i, hop := range t.any.hops {
		if i == 0 {
			path := jsonPathLiteral(hop)
			fmt.Fprintf(&b, "json_each(json_extract(%s, '%s')) AS %s", t.any.column, path, aliases[0])
		} else {
			path := jsonPathLiteral(hop)
			fmt.Fprintf(&b, " JOIN json_each(json_extract(%s.value, '%s')) AS %s", aliases[i-1], path, aliases[i])
		}
	}
	lastAlias := aliases[len(aliases)-1]
	termPath := jsonPathLiteral(t.terminal)
	fmt.Fprintf(&b, " WHERE json_extract(%s.value, '%s') %s ?)", lastAlias, termPath, op)

	return NewExpression(b.String(), param)
}

func (t *AnyTerminal) Eq(v any) Expression { return t.compile("=", v) }
func (t *AnyTerminal) Ne(v any) Expression { return t.compile("!=", v) }
func (t *AnyTerminal) Lt(v any) Expression { return t.compile("<", v) }
func (t *AnyTerminal) Le(v any) Expression { return t.compile("<=", v) }
func (t *AnyTerminal) Gt(v any) Expression { return t.compile(">", v) }
func (t *AnyTerminal) Ge(v any) Expression { return t.compile(">=", v) }
