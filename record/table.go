package record

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/Gaburyuu/sqler/document"
	"github.com/Gaburyuu/sqler/internal/sqlerr"
	"github.com/Gaburyuu/sqler/query"
)

// Table binds a Go record type T (via its Entity-satisfying pointer PT) to a
// document-store table and a registry, exposing the typed CRUD + query
// surface described for the record layer. Both type parameters are given
// explicitly at the call site, e.g. record.Bind[User, *User](ctx, db,
// "users", nil), since Go cannot infer PT from T alone.
type Table[T any, PT entityPtr[T]] struct {
	db   *document.DB
	name string
	reg  *Registry
}

// Bind ensures the table exists, registers T's loader with reg (Default if
// nil), and returns a bound Table handle.
func Bind[T any, PT entityPtr[T]](ctx context.Context, db *document.DB, table string, reg *Registry) (*Table[T, PT], error) {
	if reg == nil {
		reg = Default
	}
	if err := db.EnsureTable(ctx, table); err != nil {
		return nil, err
	}
	t := &Table[T, PT]{db: db, name: table, reg: reg}

	typ := reflect.TypeOf(*new(T))
	reg.register(table, typ,
		func(ctx context.Context, id int64) (any, error) {
			return t.FromID(ctx, id)
		},
		func(ctx context.Context, rec any) (int64, error) {
			p, ok := rec.(PT)
			if !ok {
				return 0, fmt.Errorf("sqler: cannot save %T through table %q", rec, table)
			}
			if err := t.Save(ctx, p); err != nil {
				return 0, err
			}
			id, _ := p.recordMeta().ID()
			return id, nil
		},
	)
	return t, nil
}

// BindDefault binds T to the lowercase-plural of its type name (e.g. User ->
// "users") using the Default registry.
func BindDefault[T any, PT entityPtr[T]](ctx context.Context, db *document.DB) (*Table[T, PT], error) {
	typ := reflect.TypeOf(*new(T))
	return Bind[T, PT](ctx, db, defaultTableName(typ), nil)
}

// Name returns the bound table name.
func (t *Table[T, PT]) Name() string { return t.name }

// Registry returns the registry this table was bound against.
func (t *Table[T, PT]) Registry() *Registry { return t.reg }

// FromID loads and hydrates a record by id, resolving its reference fields.
// Returns (nil, nil) if no such row exists.
func (t *Table[T, PT]) FromID(ctx context.Context, id int64) (*T, error) {
	raw, ok, err := t.db.Find(ctx, t.name, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var inst T
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("sqler: unmarshal %s id=%d: %w", t.name, id, err)
	}
	if err := resolveRefs(ctx, t.reg, reflect.ValueOf(&inst).Elem()); err != nil {
		return nil, err
	}
	p := PT(&inst)
	p.recordMeta().setID(id, t.name)
	return &inst, nil
}

// Save inserts (if rec is unsaved) or updates (by id) rec, assigning its id
// on success. Before the write, it runs the encode-on-save walk (see
// SPEC_FULL.md §4.7): any Ref[X] field holding a pending, unsaved referent is
// saved first and turned into a plain {table,id} reference.
func (t *Table[T, PT]) Save(ctx context.Context, rec PT) error {
	if err := encodeRefs(ctx, t.reg, reflect.ValueOf(rec).Elem()); err != nil {
		return err
	}
	m := rec.recordMeta()
	var idPtr *int64
	if id, ok := m.ID(); ok {
		idPtr = &id
	}
	newID, err := t.db.Upsert(ctx, t.name, idPtr, rec)
	if err != nil {
		return err
	}
	m.setID(newID, t.name)
	return nil
}

// Delete removes rec's row and clears its id.
func (t *Table[T, PT]) Delete(ctx context.Context, rec PT) error {
	m := rec.recordMeta()
	id, ok := m.ID()
	if !ok {
		return sqlerr.ErrUnsavedDelete
	}
	if err := t.db.Delete(ctx, t.name, id); err != nil {
		return err
	}
	m.clearID()
	return nil
}

// Refresh reloads rec's fields (and id) from storage in place.
func (t *Table[T, PT]) Refresh(ctx context.Context, rec PT) error {
	m := rec.recordMeta()
	id, ok := m.ID()
	if !ok {
		return sqlerr.ErrUnsavedRefresh
	}
	fresh, err := t.FromID(ctx, id)
	if err != nil {
		return err
	}
	if fresh == nil {
		return sqlerr.ErrNotFound
	}
	*rec = *fresh
	return nil
}

// Query returns a fresh query.Builder bound to this table.
func (t *Table[T, PT]) Query() *query.Builder {
	return query.New(t.name, t.db.Adapter)
}

// EnsureIndex creates (or no-ops) an index on field.
func (t *Table[T, PT]) EnsureIndex(ctx context.Context, field string, opts document.IndexOptions) error {
	return t.db.CreateIndex(ctx, t.name, field, opts)
}

// All loads and hydrates every row of t's table in id order. Intended for
// small tables and tests; large tables should filter via Query instead.
func (t *Table[T, PT]) All(ctx context.Context) ([]*T, error) {
	rows, err := t.Query().AllDicts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		idRaw, _ := row["id"].(int64)
		rec, err := t.FromID(ctx, idRaw)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
