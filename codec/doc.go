// Package codec encodes and decodes SCALE values against a type registry.
//
// The codec is an interpreter over type descriptors: given a registered
// type name it walks the descriptor and reads or writes bytes, so no code
// is generated per type and runtime upgrades only need a new registry.
//
//	┌──────────────────────────────────────────────────────────┐
//	│ Value ←→ [Codec + types.Registry] ←→ SCALE bytes         │
//	└──────────────────────────────────────────────────────────┘
//
// # Wire Format
//
//	Type            Encoding
//	──────────────────────────────────────────────────────────
//	bool            1 byte, 0 or 1
//	uN / iN         N/8 bytes little-endian, two's complement
//	Compact<T>      low 2 bits select 1, 2, 4 or 5..67 bytes
//	str, Vec<T>     compact length then elements
//	[T; N]          N elements, no prefix
//	(A, B), struct  elements in declared order
//	enum            discriminant then the variant payload
//	Option<T>       0 for None, 1 then T for Some
//	Option<bool>    0 None, 1 true, 2 false
//	BTreeMap<K,V>   compact length then key/value pairs
//	BitVec          compact bit count then packed store words
//	Era             0 for immortal, 2 bytes for mortal
//
// # Key Types
//
//	Codec  - Encodes and decodes against one registry
//	Value  - Tagged dynamic value (unit, bool, int, bytes, text,
//	         sequence, struct, enum)
//
// # Encoding Flow
//
//  1. types.Builder → Registry
//  2. codec.New(registry)
//  3. Codec.Encode("Balance", codec.Uint(10)) → []byte
//
// # Decoding Flow
//
//  1. Codec.Decode(name, data) → value, remainder
//     or Codec.DecodeAll(name, data) → value (trailing bytes rejected)
//     or Codec.DecodeFrom(reader, name) to stream several values
//
// # Accepted Inputs
//
// The encoder is lenient where the target type leaves no ambiguity:
//
//   - Integers accept decimal or 0x-hex text
//   - Vec<u8> and [u8; N] accept bytes, 0x-hex text or a list of integers
//   - Enums accept a variant name as text or a one-field struct {Name: payload}
//   - Options accept unit for None and a bare value for Some
//   - Structs accept a positional sequence of field values
//   - Maps accept a list of [key, value] pairs or a struct keyed by name
//
// Decoding always produces the canonical shape, so decode(encode(v)) is v
// for canonical values.
//
// # Thread Safety
//
// Codec is stateless and safe for concurrent use. Registries derive
// unseen composite names lazily under a concurrent map.
//
// # Error Handling
//
// Errors use the structured types from the errors package and carry the
// value path, type name and, for decoding, the byte offset:
//
//	[encode] overflow at dest.Index: type u32 - value 4294967296 overflows u32
//	[decode] truncated at data.free: type u128, offset 12 - need 16 bytes, have 4
//	[decode] invalid_variant at [2]: type MultiAddress, offset 40 - unknown discriminant 9
package codec
