package adapter

import (
	"database/sql"
	"sync"
)

// Row is a single result row addressed by column name, mirroring the source
// adapter's sqlite3.Row row factory.
type Row map[string]any

// Cursor wraps *sql.Rows and re-acquires the adapter's lock on every fetch,
// the Go analogue of the source's _LockedCursor wrapper (which re-enters a
// threading.RLock on every fetch/attribute access instead of handing back a
// lazily-iterated, lock-free generator).
type Cursor struct {
	rows *sql.Rows
	mu   *sync.RWMutex
}

// FetchOne returns the next row, or (nil, false) when exhausted.
func (c *Cursor) FetchOne() (Row, bool, error) {
	if c.mu != nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
	}
	if !c.rows.Next() {
		return nil, false, c.rows.Err()
	}
	row, err := scanRow(c.rows)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// FetchAll drains the remaining rows.
func (c *Cursor) FetchAll() ([]Row, error) {
	if c.mu != nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
	}
	var out []Row
	for c.rows.Next() {
		row, err := scanRow(c.rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, c.rows.Err()
}

// FetchMany returns up to n remaining rows.
func (c *Cursor) FetchMany(n int) ([]Row, error) {
	if c.mu != nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
	}
	out := make([]Row, 0, n)
	for len(out) < n && c.rows.Next() {
		row, err := scanRow(c.rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, c.rows.Err()
}

// Close releases the underlying *sql.Rows.
func (c *Cursor) Close() error {
	return c.rows.Close()
}

func scanRow(rows *sql.Rows) (Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(Row, len(cols))
	for i, c := range cols {
		row[c] = vals[i]
	}
	return row, nil
}
