package types

import (
	"fmt"
	"strings"
)

// TypeDef is a structural type descriptor. Children are referenced by
// registered name, so recursive types are a lookup rather than nesting.
type TypeDef struct {
	// Name is the name the definition was registered under.
	Name string

	Kind Kind
	Prim Prim

	// Elem is the inner type of Sequence, Option, Compact, Array and Alias.
	Elem string
	Len  uint32

	Key   string
	Value string

	Elems    []string
	Fields   []Field
	Variants []Variant

	// IndexWidth is the enum discriminant width in bytes; zero means one.
	IndexWidth int

	// BitStoreWidth is the byte width of a BitSequence storage word.
	BitStoreWidth int
	// BitMsb0 selects most-significant-bit-first ordering.
	BitMsb0 bool

	Docs []string
}

// Field is a named struct member.
type Field struct {
	Name string
	Type string
}

// Variant is one enum case. An empty Type is a unit payload.
type Variant struct {
	Index uint32
	Name  string
	Type  string
}

// Primitive returns a primitive descriptor.
func Primitive(p Prim) *TypeDef { return &TypeDef{Kind: KindPrimitive, Prim: p} }

// Sequence returns a compact-length-prefixed sequence descriptor.
func Sequence(elem string) *TypeDef { return &TypeDef{Kind: KindSequence, Elem: elem} }

// Tuple returns a tuple descriptor. No elements is the unit type.
func Tuple(elems ...string) *TypeDef { return &TypeDef{Kind: KindTuple, Elems: elems} }

// Struct returns a struct descriptor with fields in declared order.
func Struct(fields ...Field) *TypeDef { return &TypeDef{Kind: KindStruct, Fields: fields} }

// Enum returns an enum descriptor.
func Enum(variants ...Variant) *TypeDef { return &TypeDef{Kind: KindEnum, Variants: variants} }

// Compact returns a compact integer descriptor.
func Compact(elem string) *TypeDef { return &TypeDef{Kind: KindCompact, Elem: elem} }

// Map returns a map descriptor, encoded as a sequence of key/value pairs.
func Map(key, value string) *TypeDef { return &TypeDef{Kind: KindMap, Key: key, Value: value} }

// Option returns an optional descriptor.
func Option(elem string) *TypeDef { return &TypeDef{Kind: KindOption, Elem: elem} }

// Array returns a fixed-length array descriptor.
func Array(elem string, n uint32) *TypeDef { return &TypeDef{Kind: KindArray, Elem: elem, Len: n} }

// Alias returns a named indirection.
func Alias(target string) *TypeDef { return &TypeDef{Kind: KindAlias, Elem: target} }

// BitSequence returns a bit vector descriptor.
func BitSequence(storeWidth int, msb0 bool) *TypeDef {
	return &TypeDef{Kind: KindBitSequence, BitStoreWidth: storeWidth, BitMsb0: msb0}
}

// UnitVariants builds enum variants with no payload, indexed from zero.
func UnitVariants(names ...string) []Variant {
	out := make([]Variant, len(names))
	for i, n := range names {
		out[i] = Variant{Index: uint32(i), Name: n}
	}
	return out
}

// IsUnit reports whether the descriptor encodes to zero bytes by shape.
func (t *TypeDef) IsUnit() bool {
	return t.Kind == KindTuple && len(t.Elems) == 0
}

// DiscriminantWidth returns the enum discriminant width in bytes.
func (t *TypeDef) DiscriminantWidth() int {
	if t.IndexWidth <= 0 {
		return 1
	}
	return t.IndexWidth
}

// VariantByIndex finds an enum case by discriminant.
func (t *TypeDef) VariantByIndex(idx uint32) (*Variant, bool) {
	for i := range t.Variants {
		if t.Variants[i].Index == idx {
			return &t.Variants[i], true
		}
	}
	return nil, false
}

// VariantByName finds an enum case by name.
func (t *TypeDef) VariantByName(name string) (*Variant, bool) {
	for i := range t.Variants {
		if t.Variants[i].Name == name {
			return &t.Variants[i], true
		}
	}
	return nil, false
}

// Children returns the names this descriptor references.
func (t *TypeDef) Children() []string {
	switch t.Kind {
	case KindSequence, KindOption, KindCompact, KindArray, KindAlias:
		return []string{t.Elem}
	case KindMap:
		return []string{t.Key, t.Value}
	case KindTuple:
		return t.Elems
	case KindStruct:
		out := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			out[i] = f.Type
		}
		return out
	case KindEnum:
		out := make([]string, 0, len(t.Variants))
		for _, v := range t.Variants {
			if v.Type != "" {
				out = append(out, v.Type)
			}
		}
		return out
	}
	return nil
}

// String renders the descriptor as a type expression.
func (t *TypeDef) String() string {
	switch t.Kind {
	case KindPrimitive:
		return t.Prim.String()
	case KindSequence:
		return "Vec<" + t.Elem + ">"
	case KindOption:
		return "Option<" + t.Elem + ">"
	case KindCompact:
		return "Compact<" + t.Elem + ">"
	case KindAlias:
		return t.Elem
	case KindArray:
		return fmt.Sprintf("[%s;%d]", t.Elem, t.Len)
	case KindMap:
		return "BTreeMap<" + t.Key + "," + t.Value + ">"
	case KindTuple:
		return "(" + strings.Join(t.Elems, ",") + ")"
	case KindBitSequence:
		order := "Lsb0"
		if t.BitMsb0 {
			order = "Msb0"
		}
		return fmt.Sprintf("BitVec<u%d,%s>", t.BitStoreWidth*8, order)
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case KindEnum:
		parts := make([]string, len(t.Variants))
		for i, v := range t.Variants {
			if v.Type == "" {
				parts[i] = fmt.Sprintf("%d: %s", v.Index, v.Name)
			} else {
				parts[i] = fmt.Sprintf("%d: %s(%s)", v.Index, v.Name, v.Type)
			}
		}
		return "enum { " + strings.Join(parts, ", ") + " }"
	}
	return "unknown"
}
