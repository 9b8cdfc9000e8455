package record

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Gaburyuu/sqler/internal/sqlerr"
)

// Reference is the canonical wire encoding of a cross-record reference: a
// two-field object with exactly these keys. It is never an owning
// relationship — the referring record stores only the pair, and resolution
// is a lookup.
type Reference struct {
	Table string `json:"table"`
	ID    int64  `json:"id"`
}

// IsZero reports whether r carries no reference at all.
func (r Reference) IsZero() bool { return r.Table == "" && r.ID == 0 }

// Ref is a typed reference to another bound record type T. It marshals to
// exactly {"table":...,"id":...}; the resolved pointer is cached privately
// and populated automatically when the owning record is loaded through
// FromID (see resolveRefs below); Get returns it.
type Ref[T any] struct {
	Table string `json:"table"`
	ID    int64  `json:"id"`

	resolved *T
	pending  *T
}

// NewRefValue builds a Ref[T] directly from a table/id pair, for callers that
// already know the coordinates (e.g. decoding legacy data).
func NewRefValue[T any](table string, id int64) Ref[T] {
	return Ref[T]{Table: table, ID: id}
}

// Pending builds a reference to rec without requiring it be saved yet: the
// owning record's Save (or SaveWithRetry) auto-saves rec through its bound
// table and fills in the {table,id} coordinates as part of the encode-on-save
// walk, mirroring the source's _dump_with_relations (original_source's
// model.py saves a nested unsaved model in place of requiring the caller to
// do it). If rec is already saved, its existing coordinates are used as-is
// and it is left untouched.
func Pending[T any](rec *T) Ref[T] {
	return Ref[T]{pending: rec}
}

// Valid reports whether the reference has non-zero coordinates.
func (r Ref[T]) Valid() bool { return r.Table != "" && r.ID != 0 }

// Get returns the resolved referent, if resolution has run and succeeded.
func (r *Ref[T]) Get() (*T, bool) { return r.resolved, r.resolved != nil }

// entityPtr constrains T so that *T implements Entity, i.e. T embeds Meta.
type entityPtr[T any] interface {
	*T
	Entity
}

// NewRef builds a reference to an already-saved record; it returns
// sqlerr.ErrUnsavedReferent if rec has no id yet (use Pending to have an
// unsaved referent saved along with its owner). T is inferred from rec's type.
func NewRef[T any, PT entityPtr[T]](rec PT) (Ref[T], error) {
	m := Entity(rec).recordMeta()
	if !m.hasID {
		return Ref[T]{}, sqlerr.ErrUnsavedReferent
	}
	return Ref[T]{Table: m.table, ID: m.id}, nil
}

// resolvableRef is implemented by every Ref[X] instantiation; the reflective
// walk in resolveRefs dispatches through it without needing to know X.
type resolvableRef interface {
	resolveField(ctx context.Context, reg *Registry) error
}

func (r *Ref[T]) resolveField(ctx context.Context, reg *Registry) error {
	if !r.Valid() {
		return nil
	}
	v, err := reg.Load(ctx, r.Table, r.ID)
	if err != nil {
		return err
	}
	if v == nil {
		// Broken reference: no registered loader, or the row is gone. Left
		// unresolved, never repaired.
		return nil
	}
	t, ok := v.(*T)
	if !ok {
		return fmt.Errorf("sqler: reference to table %q resolved to %T, not %T", r.Table, v, t)
	}
	r.resolved = t
	return nil
}

// encodableRef is implemented by every Ref[X] instantiation; the reflective
// walk in encodeRefs dispatches through it without needing to know X.
type encodableRef interface {
	encodeField(ctx context.Context, reg *Registry) error
}

// encodeField resolves r's wire coordinates before the owning record is
// marshaled: a pending, unsaved referent is saved through the registry and
// its assigned {table,id} adopted; a pending, already-saved referent simply
// contributes its existing coordinates. A Ref with no pending referent (the
// NewRef/NewRefValue construction path) passes through unchanged.
func (r *Ref[T]) encodeField(ctx context.Context, reg *Registry) error {
	if r.pending == nil {
		return nil
	}
	ent, ok := any(r.pending).(Entity)
	if !ok {
		return fmt.Errorf("sqler: %T does not embed record.Meta, cannot be referenced", r.pending)
	}
	m := ent.recordMeta()
	if id, ok := m.ID(); ok {
		r.Table, r.ID = m.table, id
		r.pending = nil
		return nil
	}

	typ := reflect.TypeOf(*new(T))
	table, id, err := reg.SaveByType(ctx, typ, r.pending)
	if err != nil {
		return err
	}
	r.Table, r.ID = table, id
	r.pending = nil
	return nil
}

// encodeRefs walks v (addressable) recursing into structs, slices, and maps,
// encoding every Ref[X] field it finds: the "encoding on save" pass described
// in SPEC_FULL.md §4.7. It runs before the owning record is marshaled.
func encodeRefs(ctx context.Context, reg *Registry, v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return encodeRefs(ctx, reg, v.Elem())
	case reflect.Struct:
		if v.CanAddr() {
			if r, ok := v.Addr().Interface().(encodableRef); ok {
				return r.encodeField(ctx, reg)
			}
		}
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !f.CanSet() {
				continue
			}
			if err := encodeRefs(ctx, reg, f); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := encodeRefs(ctx, reg, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			mv := iter.Value()
			cp := reflect.New(mv.Type()).Elem()
			cp.Set(mv)
			if err := encodeRefs(ctx, reg, cp); err != nil {
				return err
			}
			v.SetMapIndex(iter.Key(), cp)
		}
		return nil
	default:
		return nil
	}
}

// resolveRefs walks v (addressable) recursing into structs, slices, and
// maps, resolving every Ref[X] field it finds against reg. It implements the
// "resolution on load" pass described for the record layer: single-level per
// field, recursing naturally because loading X runs through FromID again.
func resolveRefs(ctx context.Context, reg *Registry, v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return resolveRefs(ctx, reg, v.Elem())
	case reflect.Struct:
		if v.CanAddr() {
			if r, ok := v.Addr().Interface().(resolvableRef); ok {
				return r.resolveField(ctx, reg)
			}
		}
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !f.CanSet() {
				continue
			}
			if err := resolveRefs(ctx, reg, f); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := resolveRefs(ctx, reg, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			mv := iter.Value()
			cp := reflect.New(mv.Type()).Elem()
			cp.Set(mv)
			if err := resolveRefs(ctx, reg, cp); err != nil {
				return err
			}
			v.SetMapIndex(iter.Key(), cp)
		}
		return nil
	default:
		return nil
	}
}

