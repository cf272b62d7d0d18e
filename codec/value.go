package codec

import (
	"bytes"
	"math/big"
)

// ValueKind tags a Value.
type ValueKind uint8

const (
	KindUnit ValueKind = iota
	KindBool
	KindInt
	KindBytes
	KindText
	KindSequence
	KindStruct
	KindEnum
)

var valueKindNames = [...]string{
	KindUnit:     "unit",
	KindBool:     "bool",
	KindInt:      "int",
	KindBytes:    "bytes",
	KindText:     "text",
	KindSequence: "sequence",
	KindStruct:   "struct",
	KindEnum:     "enum",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return "unknown"
}

// Value is a dynamically typed value mirroring a type descriptor's shape.
//
// Sequences, tuples, arrays and bit sequences decode to KindSequence; maps
// decode to a sequence of [key, value] pairs; options decode to the enum
// variants None (0) and Some (1).
type Value struct {
	Kind ValueKind

	Bool  bool
	Int   *big.Int
	Bytes []byte
	Text  string

	Items  []Value
	Fields []Field

	// Enum variant. Index is the discriminant; Name identifies the variant
	// when set. A nil Payload is a unit variant.
	Index   uint32
	Name    string
	Payload *Value
}

// Field is a named struct member.
type Field struct {
	Name  string
	Value Value
}

// Unit returns the empty value.
func Unit() Value { return Value{Kind: KindUnit} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Int returns an integer value holding a copy of n.
func Int(n *big.Int) Value { return Value{Kind: KindInt, Int: new(big.Int).Set(n)} }

// Int64 returns an integer value.
func Int64(n int64) Value { return Value{Kind: KindInt, Int: big.NewInt(n)} }

// Uint returns an integer value.
func Uint(n uint64) Value { return Value{Kind: KindInt, Int: new(big.Int).SetUint64(n)} }

// U8 returns an integer value.
func U8(n uint8) Value { return Uint(uint64(n)) }

// U16 returns an integer value.
func U16(n uint16) Value { return Uint(uint64(n)) }

// U32 returns an integer value.
func U32(n uint32) Value { return Uint(uint64(n)) }

// U64 returns an integer value.
func U64(n uint64) Value { return Uint(n) }

// Bytes returns a byte string value holding a copy of b.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: append([]byte{}, b...)} }

// Text returns a string value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Seq returns a sequence value.
func Seq(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindSequence, Items: items}
}

// Tuple is Seq, for readability at call sites encoding tuples.
func Tuple(items ...Value) Value { return Seq(items...) }

// NewStruct returns a struct value with fields in the given order.
func NewStruct(fields ...Field) Value { return Value{Kind: KindStruct, Fields: fields} }

// F builds a struct field.
func F(name string, v Value) Field { return Field{Name: name, Value: v} }

// Variant returns an enum value selected by name. At most one payload is used.
func Variant(name string, payload ...Value) Value {
	v := Value{Kind: KindEnum, Name: name}
	if len(payload) > 0 {
		p := payload[0]
		v.Payload = &p
	}
	return v
}

// VariantAt returns an enum value with both discriminant and name.
func VariantAt(index uint32, name string, payload ...Value) Value {
	v := Variant(name, payload...)
	v.Index = index
	return v
}

// Some returns an Option value holding v.
func Some(v Value) Value { return VariantAt(1, "Some", v) }

// None returns an empty Option value.
func None() Value { return VariantAt(0, "None") }

// IsUnit reports whether v is the unit value.
func (v Value) IsUnit() bool { return v.Kind == KindUnit }

// Len returns the number of items, fields or bytes.
func (v Value) Len() int {
	switch v.Kind {
	case KindSequence:
		return len(v.Items)
	case KindStruct:
		return len(v.Fields)
	case KindBytes:
		return len(v.Bytes)
	case KindText:
		return len(v.Text)
	}
	return 0
}

// Field returns the struct field with the given name.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Get is Field without the presence flag; a missing field is the zero
// Value.
func (v Value) Get(name string) Value {
	f, _ := v.Field(name)
	return f
}

// Uint64 returns the integer as uint64 when it fits.
func (v Value) Uint64() (uint64, bool) {
	if v.Kind != KindInt || v.Int == nil || !v.Int.IsUint64() {
		return 0, false
	}
	return v.Int.Uint64(), true
}

// Option reports whether v is an Option holding a value and returns it.
func (v Value) Option() (Value, bool) {
	if v.Kind == KindEnum && v.Name == "Some" && v.Payload != nil {
		return *v.Payload, true
	}
	return Value{}, false
}

// Equal reports deep equality. Enum variants compare by name when both
// sides carry one and by discriminant otherwise.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindUnit:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		if v.Int == nil || o.Int == nil {
			return v.Int == o.Int
		}
		return v.Int.Cmp(o.Int) == 0
	case KindBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case KindText:
		return v.Text == o.Text
	case KindSequence:
		if len(v.Items) != len(o.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	case KindStruct:
		if len(v.Fields) != len(o.Fields) {
			return false
		}
		for i := range v.Fields {
			if v.Fields[i].Name != o.Fields[i].Name || !v.Fields[i].Value.Equal(o.Fields[i].Value) {
				return false
			}
		}
		return true
	case KindEnum:
		if v.Name != "" && o.Name != "" {
			if v.Name != o.Name {
				return false
			}
		} else if v.Index != o.Index {
			return false
		}
		if v.Payload == nil || o.Payload == nil {
			return v.Payload == nil && o.Payload == nil
		}
		return v.Payload.Equal(*o.Payload)
	}
	return false
}

// String renders v as JSON.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<" + v.Kind.String() + ">"
	}
	return string(b)
}
