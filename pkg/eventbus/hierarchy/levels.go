package hierarchy

import (
	"reflect"
	"slices"
)

// Level is one step of a type's embedding hierarchy.
type Level struct {
	// Type is the struct type at this level. For the root of a non-struct
	// type it is that type itself.
	Type reflect.Type

	// Index is the field path from the root (nil for the root).
	Index []int

	// Indirect is true when the level is reached through a pointer,
	// meaning the level value is addressable.
	Indirect bool
}

// Levels walks t's anonymous embedded struct fields breadth-first and
// returns every level once, root first. A pointer to a struct is walked
// as the struct, with Indirect set. Unexported embedded fields are
// skipped because reflection cannot hand them to a method call.
func Levels(t reflect.Type) []Level {
	root := Level{Type: t}
	if t.Kind() == reflect.Pointer {
		root = Level{Type: t.Elem(), Indirect: true}
	}

	levels := []Level{root}
	if root.Type.Kind() != reflect.Struct {
		return levels
	}

	seen := map[reflect.Type]bool{root.Type: true}
	for next := 0; next < len(levels); next++ {
		parent := levels[next]
		for i := range parent.Type.NumField() {
			f := parent.Type.Field(i)
			if !f.Anonymous || !f.IsExported() {
				continue
			}

			ft, indirect := f.Type, parent.Indirect
			if ft.Kind() == reflect.Pointer {
				ft, indirect = ft.Elem(), true
			}
			if ft.Kind() != reflect.Struct || seen[ft] {
				continue
			}
			seen[ft] = true

			index := append(slices.Clone(parent.Index), i)
			levels = append(levels, Level{Type: ft, Index: index, Indirect: indirect})
		}
	}
	return levels
}

// Receiver returns a pointer to this level's struct inside root, a pointer
// to the root struct. ok is false when the path crosses a nil embedded
// pointer.
func (l Level) Receiver(root reflect.Value) (reflect.Value, bool) {
	v := root
	for _, i := range l.Index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	if v.Kind() == reflect.Pointer {
		return v, !v.IsNil()
	}
	return v.Addr(), true
}
