package document

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gaburyuu/sqler/internal/sqlerr"
)

// EnsureVersionedTable creates the table with a _version column, or adds the
// column to a table that was previously created unversioned.
func (db *DB) EnsureVersionedTable(ctx context.Context, table string) error {
	if _, err := quoteIdent(table); err != nil {
		return err
	}
	db.mu.Lock()
	already := db.versione[table]
	db.mu.Unlock()
	if already {
		return nil
	}

	if _, err := db.Adapter.Exec(ctx, createVersionedTableSQL(table)); err != nil {
		return fmt.Errorf("sqler: ensure versioned table %s: %w", table, err)
	}

	cur, err := db.Adapter.Query(ctx, hasVersionColumnSQL(table))
	if err != nil {
		return fmt.Errorf("sqler: inspect %s schema: %w", table, err)
	}
	rows, err := cur.FetchAll()
	cur.Close()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		if _, err := db.Adapter.Exec(ctx, addVersionColumnSQL(table)); err != nil {
			return fmt.Errorf("sqler: add _version column to %s: %w", table, err)
		}
	}

	db.mu.Lock()
	db.versione[table] = true
	db.ensured[table] = true
	db.mu.Unlock()
	return nil
}

// FindWithVersion returns the payload and version for id.
func (db *DB) FindWithVersion(ctx context.Context, table string, id int64) (json.RawMessage, int64, bool, error) {
	cur, err := db.Adapter.Query(ctx, selectByIDWithVersionSQL(table), id)
	if err != nil {
		return nil, 0, false, fmt.Errorf("sqler: find %s id=%d: %w", table, id, err)
	}
	defer cur.Close()
	row, ok, err := cur.FetchOne()
	if err != nil {
		return nil, 0, false, err
	}
	if !ok {
		return nil, 0, false, nil
	}
	data, _, err := rawData(row)
	if err != nil {
		return nil, 0, false, err
	}
	version, err := asInt64(row["_version"])
	if err != nil {
		return nil, 0, false, err
	}
	return data, version, true, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("sqler: unexpected _version column type %T", v)
	}
}

// UpsertWithVersion inserts a new row at version 0 (id == nil), or performs a
// compare-and-swap update requiring the stored _version to equal
// expectedVersion; a zero rows-affected count on update means the row moved
// since the caller last read it, and returns sqlerr.ErrStaleVersion.
func (db *DB) UpsertWithVersion(ctx context.Context, table string, id *int64, doc any, expectedVersion int64) (int64, int64, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, 0, fmt.Errorf("sqler: marshal document: %w", err)
	}

	if id == nil {
		res, err := db.Adapter.Exec(ctx, insertVersionedSQL(table), string(payload))
		if err != nil {
			return 0, 0, fmt.Errorf("sqler: insert into %s: %w", table, err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, 0, err
		}
		return newID, 0, nil
	}

	res, err := db.Adapter.Exec(ctx, updateVersionedSQL(table), string(payload), *id, expectedVersion)
	if err != nil {
		return 0, 0, fmt.Errorf("sqler: update %s id=%d: %w", table, *id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	if affected == 0 {
		return 0, 0, fmt.Errorf("sqler: update %s id=%d expected version %d: %w", table, *id, expectedVersion, sqlerr.ErrStaleVersion)
	}
	return *id, expectedVersion + 1, nil
}

// CurrentVersion reads the version column alone, used by the retry policy to
// observe the latest version before retrying after a conflict.
func (db *DB) CurrentVersion(ctx context.Context, table string, id int64) (int64, bool, error) {
	cur, err := db.Adapter.Query(ctx, fmt.Sprintf(`SELECT _version FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return 0, false, err
	}
	defer cur.Close()
	row, ok, err := cur.FetchOne()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	v, err := asInt64(row["_version"])
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
