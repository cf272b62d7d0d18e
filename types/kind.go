package types

// Kind tags the shape of a TypeDef.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindSequence
	KindTuple
	KindStruct
	KindEnum
	KindCompact
	KindMap
	KindOption
	KindArray
	KindAlias
	KindBitSequence
)

var kindNames = [...]string{
	KindPrimitive:   "primitive",
	KindSequence:    "sequence",
	KindTuple:       "tuple",
	KindStruct:      "struct",
	KindEnum:        "enum",
	KindCompact:     "compact",
	KindMap:         "map",
	KindOption:      "option",
	KindArray:       "array",
	KindAlias:       "alias",
	KindBitSequence: "bitsequence",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Prim identifies a primitive. The first fifteen values follow the
// portable registry's primitive codes.
type Prim uint8

const (
	PrimBool Prim = iota
	PrimChar
	PrimStr
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimU128
	PrimU256
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimI128
	PrimI256
	// PrimEra is the transaction mortality encoding: one zero byte for an
	// immortal era, two bytes otherwise.
	PrimEra
)

var primNames = [...]string{
	PrimBool: "bool",
	PrimChar: "char",
	PrimStr:  "str",
	PrimU8:   "u8",
	PrimU16:  "u16",
	PrimU32:  "u32",
	PrimU64:  "u64",
	PrimU128: "u128",
	PrimU256: "u256",
	PrimI8:   "i8",
	PrimI16:  "i16",
	PrimI32:  "i32",
	PrimI64:  "i64",
	PrimI128: "i128",
	PrimI256: "i256",
	PrimEra:  "Era",
}

func (p Prim) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return "unknown"
}

// IsInteger reports whether p is a fixed-width integer.
func (p Prim) IsInteger() bool {
	return p >= PrimU8 && p <= PrimI256
}

// Signed reports whether p is a signed integer.
func (p Prim) Signed() bool {
	return p >= PrimI8 && p <= PrimI256
}

// Width returns the encoded byte width of an integer primitive, 0 otherwise.
func (p Prim) Width() int {
	switch p {
	case PrimU8, PrimI8:
		return 1
	case PrimU16, PrimI16:
		return 2
	case PrimU32, PrimI32, PrimChar:
		return 4
	case PrimU64, PrimI64:
		return 8
	case PrimU128, PrimI128:
		return 16
	case PrimU256, PrimI256:
		return 32
	}
	return 0
}
