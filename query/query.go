package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gaburyuu/sqler/adapter"
	"github.com/Gaburyuu/sqler/internal/sqlerr"
)

// Executor is the minimal adapter surface the builder needs to run a
// compiled query; document.DB's Adapter satisfies it.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) (*adapter.Cursor, error)
}

// Builder accumulates a filter/order/limit chain immutably: every method
// returns a new Builder, leaving the receiver untouched.
type Builder struct {
	table    string
	exec     Executor
	where    *Expression
	orderBy  string
	descend  bool
	hasOrder bool
	limit    *int
}

// New starts a query against table using exec to run it. exec may be nil for
// a builder used purely to inspect compiled SQL.
func New(table string, exec Executor) *Builder {
	return &Builder{table: table, exec: exec}
}

func (b *Builder) clone() *Builder {
	cp := *b
	return &cp
}

// Filter ANDs expr onto the existing predicate (if any).
func (b *Builder) Filter(expr Expression) *Builder {
	cp := b.clone()
	if cp.where == nil {
		cp.where = &expr
	} else {
		combined := cp.where.And(expr)
		cp.where = &combined
	}
	return cp
}

// Exclude is equivalent to Filter(expr.Not()).
func (b *Builder) Exclude(expr Expression) *Builder {
	return b.Filter(expr.Not())
}

// OrderBy sorts by a JSON path, ascending unless desc is true.
func (b *Builder) OrderBy(field string, desc bool) *Builder {
	cp := b.clone()
	cp.orderBy = field
	cp.descend = desc
	cp.hasOrder = true
	return cp
}

// Limit caps the number of rows returned.
func (b *Builder) Limit(n int) *Builder {
	cp := b.clone()
	cp.limit = &n
	return cp
}

// SQL compiles the SELECT statement for the given column list (e.g. "data"
// or "id, data").
func (b *Builder) SQL(columns string) string {
	sql := fmt.Sprintf("SELECT %s FROM %s", columns, b.table)
	if b.where != nil {
		sql += " WHERE " + b.where.sql
	}
	if b.hasOrder {
		dir := ""
		if b.descend {
			dir = " DESC"
		}
		sql += fmt.Sprintf(" ORDER BY json_extract(data, '$.%s')%s", b.orderBy, dir)
	}
	if b.limit != nil {
		sql += fmt.Sprintf(" LIMIT %d", *b.limit)
	}
	return collapseWhitespace(sql)
}

// Params returns the compiled statement's bind parameters.
func (b *Builder) Params() []any {
	if b.where == nil {
		return nil
	}
	return b.where.Params()
}

// CountSQL compiles the COUNT(*) form, ignoring ORDER BY/LIMIT.
func (b *Builder) CountSQL() string {
	sql := fmt.Sprintf("SELECT count(*) FROM %s", b.table)
	if b.where != nil {
		sql += " WHERE " + b.where.sql
	}
	return collapseWhitespace(sql)
}

func (b *Builder) requireExec() error {
	if b.exec == nil {
		return sqlerr.ErrNoAdapter
	}
	return nil
}

// All returns every matching row's raw JSON payload.
func (b *Builder) All(ctx context.Context) ([]json.RawMessage, error) {
	if err := b.requireExec(); err != nil {
		return nil, err
	}
	cur, err := b.exec.Query(ctx, b.SQL("data"), b.Params()...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		data, err := dataColumn(row)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// First returns the first matching row, or nil if none match.
func (b *Builder) First(ctx context.Context) (json.RawMessage, error) {
	limited := b.Limit(1)
	rows, err := limited.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// AllDicts returns every matching row hydrated as a map with "id" attached.
func (b *Builder) AllDicts(ctx context.Context) ([]map[string]any, error) {
	if err := b.requireExec(); err != nil {
		return nil, err
	}
	cur, err := b.exec.Query(ctx, b.SQL("id, data"), b.Params()...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m, err := hydrate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// FirstDict returns the first matching row hydrated as a map, or nil.
func (b *Builder) FirstDict(ctx context.Context) (map[string]any, error) {
	limited := b.Limit(1)
	rows, err := limited.AllDicts(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Count runs the compiled COUNT(*) query.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	if err := b.requireExec(); err != nil {
		return 0, err
	}
	cur, err := b.exec.Query(ctx, b.CountSQL(), b.Params()...)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	row, ok, err := cur.FetchOne()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	for _, v := range row {
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("sqler: unexpected count() result type")
}

func dataColumn(row map[string]any) (json.RawMessage, error) {
	v, ok := row["data"]
	if !ok {
		return nil, fmt.Errorf("sqler: row missing data column")
	}
	switch t := v.(type) {
	case string:
		return json.RawMessage(t), nil
	case []byte:
		return json.RawMessage(t), nil
	default:
		return nil, fmt.Errorf("sqler: unexpected data column type %T", v)
	}
}

func hydrate(row map[string]any) (map[string]any, error) {
	raw, err := dataColumn(row)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("sqler: unmarshal document: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	m["id"] = row["id"]
	return m, nil
}
