package metadata

import (
	"fmt"
	"strings"

	"github.com/wippyai/subscript/types"
)

// registerPortable defines every V14 type as "#<id>". Types with a path
// are also reachable by their full path and, when no other type shares
// it, by the last path segment, so custom documents and callers can use
// names like AccountId32 or EventRecord.
func registerPortable(b *types.Builder, raw *Raw) error {
	if len(raw.Types) == 0 {
		return nil
	}
	byID := make(map[uint32]*PortableType, len(raw.Types))
	fullCount := make(map[string]int)
	lastCount := make(map[string]int)
	for i := range raw.Types {
		t := &raw.Types[i]
		byID[t.ID] = t
		if len(t.Path) > 0 {
			fullCount[strings.Join(t.Path, "::")]++
			lastCount[t.Path[len(t.Path)-1]]++
		}
	}

	for i := range raw.Types {
		t := &raw.Types[i]
		name := portableRef(t.ID)
		def, err := portableDef(b, t, byID)
		if err != nil {
			return fmt.Errorf("type %d: %w", t.ID, err)
		}
		def.Docs = t.Docs
		b.Define(name, def)

		if len(t.Path) == 0 {
			continue
		}
		if full := strings.Join(t.Path, "::"); fullCount[full] == 1 {
			b.Define(full, types.Alias(name))
		}
		if last := t.Path[len(t.Path)-1]; lastCount[last] == 1 && !types.IsBuiltin(last) {
			b.Define(last, types.Alias(name))
		}
	}
	return nil
}

func portableDef(b *types.Builder, t *PortableType, byID map[uint32]*PortableType) (*types.TypeDef, error) {
	d := &t.Def
	switch d.Kind {
	case DefComposite:
		return fieldsDef(d.Fields), nil
	case DefVariant:
		if isOption(t) {
			return types.Option(portableRef(d.Variants[1].Fields[0].Type)), nil
		}
		variants := make([]types.Variant, len(d.Variants))
		for i, v := range d.Variants {
			variants[i] = types.Variant{Index: uint32(v.Index), Name: v.Name}
			switch {
			case len(v.Fields) == 0:
			case len(v.Fields) == 1 && v.Fields[0].Name == "":
				variants[i].Type = portableRef(v.Fields[0].Type)
			default:
				payload := portableRef(t.ID) + "::" + v.Name
				b.Define(payload, fieldsDef(v.Fields))
				variants[i].Type = payload
			}
		}
		return types.Enum(variants...), nil
	case DefSequence:
		return types.Sequence(portableRef(d.Elem)), nil
	case DefArray:
		return types.Array(portableRef(d.Elem), d.Len), nil
	case DefTuple:
		elems := make([]string, len(d.Elems))
		for i, e := range d.Elems {
			elems[i] = portableRef(e)
		}
		return types.Tuple(elems...), nil
	case DefPrimitive:
		return types.Alias(d.Prim.String()), nil
	case DefCompact:
		return types.Compact(portableRef(d.Elem)), nil
	case DefBitSequence:
		store, ok := byID[d.BitStore]
		if !ok || store.Def.Kind != DefPrimitive || !store.Def.Prim.IsInteger() || store.Def.Prim.Signed() {
			return nil, fmt.Errorf("bit sequence store %d is not an unsigned integer", d.BitStore)
		}
		msb0 := false
		if order, ok := byID[d.BitOrder]; ok && len(order.Path) > 0 {
			msb0 = order.Path[len(order.Path)-1] == "Msb0"
		}
		return types.BitSequence(store.Def.Prim.Width(), msb0), nil
	}
	return nil, fmt.Errorf("unknown definition kind %d", d.Kind)
}

// fieldsDef maps composite fields: named fields make a struct, a single
// unnamed field is transparent and several make a tuple.
func fieldsDef(fields []PortableField) *types.TypeDef {
	switch {
	case len(fields) == 0:
		return types.Tuple()
	case fields[0].Name != "":
		out := make([]types.Field, len(fields))
		for i, f := range fields {
			out[i] = types.Field{Name: f.Name, Type: portableRef(f.Type)}
		}
		return types.Struct(out...)
	case len(fields) == 1:
		return types.Alias(portableRef(fields[0].Type))
	}
	elems := make([]string, len(fields))
	for i, f := range fields {
		elems[i] = portableRef(f.Type)
	}
	return types.Tuple(elems...)
}

// isOption recognizes core::option::Option so that Option<bool> keeps its
// one-byte encoding.
func isOption(t *PortableType) bool {
	if len(t.Path) == 0 || t.Path[len(t.Path)-1] != "Option" {
		return false
	}
	v := t.Def.Variants
	return len(v) == 2 &&
		v[0].Name == "None" && v[0].Index == 0 && len(v[0].Fields) == 0 &&
		v[1].Name == "Some" && v[1].Index == 1 && len(v[1].Fields) == 1
}
