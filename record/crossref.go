package record

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/Gaburyuu/sqler/query"
)

// refTableNamer is implemented by every Ref[X] instantiation; it reveals the
// referenced table name without the caller needing to know X, dispatched via
// a zero value obtained purely from the field's reflect.Type.
type refTableNamer interface {
	refTable(reg *Registry) string
}

func (r Ref[T]) refTable(reg *Registry) string {
	return reg.TableNameForType(reflect.TypeOf(*new(T)))
}

// jsonFieldName returns the field's JSON key (honoring a `json:"name"` tag),
// or "" if the field is unexported or tagged json:"-".
func jsonFieldName(f reflect.StructField) string {
	if f.PkgPath != "" {
		return ""
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name
}

func findJSONField(t reflect.Type, jsonName string) (reflect.StructField, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if jsonFieldName(f) == jsonName {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// refSpecFor resolves a query.RefSpec for the reference attribute named
// refField on outer type T, using reg (or Default) to look up both T's own
// table and the referenced table named by the field's Ref[X] type.
func refSpecFor[T any](reg *Registry, refField string) (query.RefSpec, error) {
	if reg == nil {
		reg = Default
	}
	outerType := reflect.TypeOf(*new(T))
	outerTable := reg.TableNameForType(outerType)
	if outerTable == "" {
		return query.RefSpec{}, fmt.Errorf("sqler: type %s is not bound to any table", outerType)
	}

	refTable := defaultPluralize(refField)
	if sf, ok := findJSONField(outerType, refField); ok {
		zero := reflect.New(sf.Type).Elem()
		if zero.CanInterface() {
			if named, ok := zero.Interface().(refTableNamer); ok {
				if t := named.refTable(reg); t != "" {
					refTable = t
				}
			}
		}
	}

	return query.RefSpec{OuterTable: outerTable, RefField: refField, RefTable: refTable}, nil
}

// RefField builds a cross-reference predicate rooted at outer type T's
// reference attribute refField, continuing into the referenced record's own
// path. It mirrors User.ref("address").field("city") from the source:
//
//	mf, err := record.RefField[User](nil, "address", "city")
//	// ... check err ...
//	expr := mf.Eq("Kyoto")
func RefField[T any](reg *Registry, refField string, path ...any) (*query.ModelField, error) {
	spec, err := refSpecFor[T](reg, refField)
	if err != nil {
		return nil, err
	}
	return query.NewModelField(spec, path...), nil
}
