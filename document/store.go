// Package document implements per-table JSON document storage on top of the
// adapter package: lazy table creation, insert/upsert/find/delete, bulk id
// assignment, and index management. It has no notion of typed records or
// references — that is the record package's job.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Gaburyuu/sqler/adapter"
	"github.com/Gaburyuu/sqler/internal/config"
	"github.com/Gaburyuu/sqler/internal/sqlerr"
)

// DB is a thin façade around an *adapter.Adapter that remembers which tables
// have already had their DDL applied, so repeated binds stay cheap.
type DB struct {
	Adapter *adapter.Adapter

	mu       sync.Mutex
	ensured  map[string]bool
	versione map[string]bool
}

// NewDB wraps an already-open adapter.
func NewDB(a *adapter.Adapter) *DB {
	return &DB{Adapter: a, ensured: map[string]bool{}, versione: map[string]bool{}}
}

// Open is a convenience constructor for an on-disk database with the default
// pragma profile.
func Open(ctx context.Context, path string) (*DB, error) {
	a, err := adapter.OpenOnDisk(ctx, path, adapter.OnDiskProfile(0, 0, 0, 0))
	if err != nil {
		return nil, err
	}
	return NewDB(a), nil
}

// OpenWithConfig opens an on-disk database whose pragma profile is derived
// from cfg (see SPEC_FULL.md §6), rather than OnDiskProfile's baked-in
// defaults.
func OpenWithConfig(ctx context.Context, path string, cfg config.EngineConfig) (*DB, error) {
	a, err := adapter.OpenOnDisk(ctx, path, adapter.ProfileFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return NewDB(a), nil
}

// OpenInMemory is a convenience constructor for an in-memory database.
func OpenInMemory(ctx context.Context, shared bool) (*DB, error) {
	a, err := adapter.OpenInMemory(ctx, shared)
	if err != nil {
		return nil, err
	}
	return NewDB(a), nil
}

// Close closes the underlying adapter.
func (db *DB) Close() error {
	return db.Adapter.Close()
}

// EnsureTable creates the unversioned table schema if it is not present.
func (db *DB) EnsureTable(ctx context.Context, table string) error {
	if _, err := quoteIdent(table); err != nil {
		return err
	}
	db.mu.Lock()
	already := db.ensured[table]
	db.mu.Unlock()
	if already {
		return nil
	}
	if _, err := db.Adapter.Exec(ctx, createTableSQL(table)); err != nil {
		return fmt.Errorf("sqler: ensure table %s: %w", table, err)
	}
	db.mu.Lock()
	db.ensured[table] = true
	db.mu.Unlock()
	return nil
}

// Insert serializes doc and inserts a new row, returning the assigned id.
func (db *DB) Insert(ctx context.Context, table string, doc any) (int64, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("sqler: marshal document: %w", err)
	}
	res, err := db.Adapter.Exec(ctx, insertSQL(table), string(payload))
	if err != nil {
		return 0, fmt.Errorf("sqler: insert into %s: %w", table, err)
	}
	return res.LastInsertId()
}

// Upsert inserts when id is nil, otherwise updates the existing row by id.
func (db *DB) Upsert(ctx context.Context, table string, id *int64, doc any) (int64, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("sqler: marshal document: %w", err)
	}
	if id == nil {
		res, err := db.Adapter.Exec(ctx, insertSQL(table), string(payload))
		if err != nil {
			return 0, fmt.Errorf("sqler: insert into %s: %w", table, err)
		}
		return res.LastInsertId()
	}
	if _, err := db.Adapter.Exec(ctx, updateSQL(table), string(payload), *id); err != nil {
		return 0, fmt.Errorf("sqler: update %s id=%d: %w", table, *id, err)
	}
	return *id, nil
}

// Find returns the raw JSON payload for id, or ok=false if absent.
func (db *DB) Find(ctx context.Context, table string, id int64) (json.RawMessage, bool, error) {
	cur, err := db.Adapter.Query(ctx, selectByIDSQL(table), id)
	if err != nil {
		return nil, false, fmt.Errorf("sqler: find %s id=%d: %w", table, id, err)
	}
	defer cur.Close()
	row, ok, err := cur.FetchOne()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return rawData(row)
}

func rawData(row map[string]any) (json.RawMessage, bool, error) {
	v, ok := row["data"]
	if !ok {
		return nil, false, fmt.Errorf("sqler: row missing data column")
	}
	switch t := v.(type) {
	case string:
		return json.RawMessage(t), true, nil
	case []byte:
		return json.RawMessage(t), true, nil
	default:
		return nil, false, fmt.Errorf("sqler: unexpected data column type %T", v)
	}
}

// Delete removes the row with the given id.
func (db *DB) Delete(ctx context.Context, table string, id int64) error {
	if _, err := db.Adapter.Exec(ctx, deleteSQL(table), id); err != nil {
		return fmt.Errorf("sqler: delete %s id=%d: %w", table, id, err)
	}
	return nil
}

// BulkUpsert inserts/updates docs in one transaction. ids[i] == nil means
// "insert a new row for docs[i]"; new ids are assigned by reading max(id)
// before and after the insert batch and distributing the resulting range
// sequentially in input order, matching the source implementation's window
// (see the Open Question recorded in DESIGN.md about its fragility under a
// concurrent second writer process).
func (db *DB) BulkUpsert(ctx context.Context, table string, docs []any, ids []*int64) ([]int64, error) {
	if len(docs) != len(ids) {
		return nil, fmt.Errorf("sqler: bulk upsert: %d docs but %d ids", len(docs), len(ids))
	}
	out := make([]int64, len(docs))

	err := db.Adapter.WithTx(ctx, func(tx *adapter.Tx) error {
		beforeCur, err := tx.Query(ctx, maxIDSQL(table))
		if err != nil {
			return err
		}
		before, err := scanSingleInt(beforeCur)
		if err != nil {
			return err
		}

		newCount := 0
		for i, doc := range docs {
			payload, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("sqler: marshal document %d: %w", i, err)
			}
			if ids[i] != nil {
				if _, err := tx.Exec(ctx, updateSQL(table), string(payload), *ids[i]); err != nil {
					return err
				}
				out[i] = *ids[i]
				continue
			}
			if _, err := tx.Exec(ctx, insertSQL(table), string(payload)); err != nil {
				return err
			}
			newCount++
		}

		afterCur, err := tx.Query(ctx, maxIDSQL(table))
		if err != nil {
			return err
		}
		after, err := scanSingleInt(afterCur)
		if err != nil {
			return err
		}

		if int64(newCount) != after-before {
			return sqlerr.ErrBulkCountMismatch
		}

		next := before + 1
		for i, id := range ids {
			if id == nil {
				out[i] = next
				next++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanSingleInt(cur *adapter.Cursor) (int64, error) {
	defer cur.Close()
	row, ok, err := cur.FetchOne()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("sqler: expected a row from aggregate query")
	}
	for _, v := range row {
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("sqler: unexpected aggregate result type")
}

// CreateIndex creates (or no-ops an existing) index on a JSON path or literal
// column (when field begins with "_").
func (db *DB) CreateIndex(ctx context.Context, table, field string, opts IndexOptions) error {
	stmt, err := createIndexSQL(table, field, opts)
	if err != nil {
		return err
	}
	if _, err := db.Adapter.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("sqler: create index on %s.%s: %w", table, field, err)
	}
	return nil
}

// DropIndex drops the named index if it exists.
func (db *DB) DropIndex(ctx context.Context, name string) error {
	if _, err := db.Adapter.Exec(ctx, dropIndexSQL(name)); err != nil {
		return fmt.Errorf("sqler: drop index %s: %w", name, err)
	}
	return nil
}

// ExecSQL runs a caller-supplied SELECT that must project (id, data), and
// returns each row's raw payload keyed by id.
func (db *DB) ExecSQL(ctx context.Context, query string, args ...any) (map[int64]json.RawMessage, error) {
	cur, err := db.Adapter.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]json.RawMessage, len(rows))
	for _, row := range rows {
		id, ok := row["id"].(int64)
		if !ok {
			return nil, fmt.Errorf("sqler: ExecSQL result missing integer id column")
		}
		data, _, err := rawData(row)
		if err != nil {
			return nil, err
		}
		out[id] = data
	}
	return out, nil
}
