// Package snapshot defines the read-only view the diff engine and the
// template evaluator use to read named fields off business objects.
//
// Business types expose their fields explicitly by implementing Snapshot,
// usually with a small hand-written adapter per entity type:
//
//	func (o *Order) Field(name string) (any, bool) {
//		switch name {
//		case "orderNo":
//			return o.OrderNo, true
//		case "creator":
//			if o.Creator == nil {
//				return nil, true
//			}
//			return o.Creator, true
//		}
//		return nil, false
//	}
//
// Plain string-keyed maps and structs are accepted everywhere a Snapshot is
// expected. Struct fields are read by their Go name or by the name with a
// lower-case first letter ("orderNo" reads OrderNo).
package snapshot

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ohler55/ojg/oj"
)

// Snapshot is a read-only name-to-value lookup over a business object.
// The boolean result is false when the object has no field by that name.
type Snapshot interface {
	Field(name string) (any, bool)
}

// Map is a Snapshot backed by a map.
type Map map[string]any

// Field implements Snapshot.
func (m Map) Field(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Func adapts a lookup function to Snapshot.
type Func func(name string) (any, bool)

// Field implements Snapshot.
func (f Func) Field(name string) (any, bool) {
	return f(name)
}

type stringMap map[string]string

func (m stringMap) Field(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// From returns v as a Snapshot when it implements Snapshot, is a
// string-keyed map, or is a struct or a pointer to one. It reports false for
// nil, typed nils and any other value.
func From(v any) (Snapshot, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case Snapshot:
		if Absent(x) {
			return nil, false
		}
		return x, true
	case map[string]any:
		if x == nil {
			return nil, false
		}
		return Map(x), true
	case map[string]string:
		if x == nil {
			return nil, false
		}
		return stringMap(x), true
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return structValue{rv}, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return nil, false
		}
		return mapValue{rv}, true
	}
	return nil, false
}

type structValue struct {
	rv reflect.Value
}

func (s structValue) Field(name string) (any, bool) {
	f := s.rv.FieldByName(exported(name))
	if !f.IsValid() || !f.CanInterface() {
		return nil, false
	}
	return f.Interface(), true
}

type mapValue struct {
	rv reflect.Value
}

func (m mapValue) Field(name string) (any, bool) {
	v := m.rv.MapIndex(reflect.ValueOf(name).Convert(m.rv.Type().Key()))
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// Absent reports whether s holds no object at all, including typed nils.
func Absent(s Snapshot) bool {
	if s == nil {
		return true
	}
	return IsNil(s)
}

// IsNil reports whether v is nil or a nil pointer, map, slice or func.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Get resolves a dotted path ("creator.userId") against s.
func Get(s Snapshot, path string) (any, bool) {
	if Absent(s) {
		return nil, false
	}
	parts := strings.Split(path, ".")
	cur := s
	for i, part := range parts {
		v, ok := cur.Field(part)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := From(v)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// FromJSON decodes a JSON object into a Map.
func FromJSON(data []byte) (Map, error) {
	var v any
	if err := oj.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("snapshot: invalid JSON: %w", err)
	}
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return Map(m), nil
	default:
		return nil, fmt.Errorf("snapshot: JSON value is %T, want object", v)
	}
}
