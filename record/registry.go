package record

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// loaderFunc loads a single record of a registered type by id, returning the
// typed pointer boxed as any; callers type-assert back to *T.
type loaderFunc func(ctx context.Context, id int64) (any, error)

// saverFunc saves rec (boxed as any, actually *T) through its bound table,
// returning the assigned id. Used by the encode-on-save walk to persist an
// as-yet-unsaved nested record reachable from a Ref[X] field without knowing
// X at the call site.
type saverFunc func(ctx context.Context, rec any) (int64, error)

type typeEntry struct {
	table  string
	loader loaderFunc
	saver  saverFunc
	typ    reflect.Type
}

// Registry maps table names to the bound record type's loader and reflect
// type, and the reverse direction (type to table name), so references can be
// both resolved (table -> instance) and compiled (Go field type -> table
// name) for cross-reference predicates. A package-level Default backs the
// zero-value convenience functions; construct an explicit Registry to keep
// two document.DB instances' type spaces from colliding in one process (see
// the Design Notes on process-wide vs. explicit registries).
type Registry struct {
	mu        sync.RWMutex
	byTable   map[string]typeEntry
	byGoType  map[reflect.Type]string
}

// NewRegistry returns an empty, ready-to-use registry.
func NewRegistry() *Registry {
	return &Registry{
		byTable:  map[string]typeEntry{},
		byGoType: map[reflect.Type]string{},
	}
}

// Default is the package-wide registry used when callers don't construct
// their own.
var Default = NewRegistry()

func (r *Registry) register(table string, typ reflect.Type, loader loaderFunc, saver saverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTable[table] = typeEntry{table: table, loader: loader, saver: saver, typ: typ}
	r.byGoType[typ] = table
}

// Load fetches a record by table name and id through whatever loader was
// registered for that table, boxed as any. Returns (nil, nil) when the
// table isn't registered or the row isn't found.
func (r *Registry) Load(ctx context.Context, table string, id int64) (any, error) {
	r.mu.RLock()
	entry, ok := r.byTable[table]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	v, err := entry.loader(ctx, id)
	if err != nil {
		return nil, err
	}
	// Loaders return a typed *T; a missing row arrives as a nil *T boxed in a
	// non-nil interface, so unbox it to a plain nil here.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}
	return v, nil
}

// SaveByType saves rec (a *T boxed as any) through the saver registered for
// T's bound table, returning that table name and the assigned id. Used by
// the encode-on-save walk to persist an unsaved nested record reachable
// through a Ref[X] field without static knowledge of X.
func (r *Registry) SaveByType(ctx context.Context, typ reflect.Type, rec any) (string, int64, error) {
	r.mu.RLock()
	table, ok := r.byGoType[typ]
	if !ok {
		r.mu.RUnlock()
		return "", 0, fmt.Errorf("sqler: type %s is not bound to any table", typ)
	}
	entry := r.byTable[table]
	r.mu.RUnlock()
	id, err := entry.saver(ctx, rec)
	if err != nil {
		return "", 0, err
	}
	return table, id, nil
}

// TableNameForType returns the table a Go type was bound to, or "" if none.
func (r *Registry) TableNameForType(t reflect.Type) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byGoType[t]
}

// defaultTableName lowercases the type name and appends "s", matching the
// source's _default_table_name.
func defaultTableName(t reflect.Type) string {
	name := t.Name()
	return strings.ToLower(name) + "s"
}

// defaultPluralize is used as a registry-miss fallback when compiling a
// cross-reference predicate against an attribute name rather than a
// registered Go type.
func defaultPluralize(attr string) string {
	return strings.ToLower(attr) + "s"
}
