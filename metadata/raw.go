package metadata

import (
	"strconv"

	"github.com/wippyai/subscript/hashing"
	"github.com/wippyai/subscript/types"
)

// Magic is the little-endian "meta" prefix of every metadata blob.
const Magic uint32 = 0x6174656d

// Supported metadata format versions.
const (
	V12 uint8 = 12
	V13 uint8 = 13
	V14 uint8 = 14
)

// Raw is a decoded metadata blob before type registration. Type
// references are type expressions; portable type ids appear as "#<id>".
type Raw struct {
	Version   uint8
	Types     []PortableType
	Modules   []RawModule
	Extrinsic Extrinsic
	// RuntimeType is the portable id of the runtime type, V14 only.
	RuntimeType uint32
}

// RawModule is one pallet as written in the blob.
type RawModule struct {
	Name      string
	Index     uint8
	Storage   *RawStorage
	Calls     []RawItem
	Events    []RawItem
	Errors    []RawItem
	Constants []Constant

	// Portable ids of the pallet's call, event and error enums, V14 only.
	CallType  string
	EventType string
	ErrorType string
}

// RawStorage is a pallet's storage section.
type RawStorage struct {
	Prefix  string
	Entries []StorageEntry
}

// RawItem is a call, event or error: a named, indexed argument list.
type RawItem struct {
	Name  string
	Index uint8
	Args  []Arg
	Docs  []string
}

// PortableDefKind selects the shape of a portable type definition.
type PortableDefKind uint8

const (
	DefComposite PortableDefKind = iota
	DefVariant
	DefSequence
	DefArray
	DefTuple
	DefPrimitive
	DefCompact
	DefBitSequence
)

// PortableType is one entry of the V14 type table.
type PortableType struct {
	ID     uint32
	Path   []string
	Params []TypeParam
	Def    PortableDef
	Docs   []string
}

// TypeParam is a generic parameter. Type is nil when erased.
type TypeParam struct {
	Name string
	Type *uint32
}

// PortableDef is the structural definition of a portable type.
type PortableDef struct {
	Kind     PortableDefKind
	Fields   []PortableField
	Variants []PortableVariant
	Elem     uint32
	Len      uint32
	Elems    []uint32
	Prim     types.Prim
	BitStore uint32
	BitOrder uint32
}

// PortableField is a composite or variant field. Name is empty for tuple
// style fields.
type PortableField struct {
	Name     string
	Type     uint32
	TypeName string
	Docs     []string
}

// PortableVariant is one case of a variant type.
type PortableVariant struct {
	Name   string
	Fields []PortableField
	Index  uint8
	Docs   []string
}

// portableRef renders a portable id as a type name.
func portableRef(id uint32) string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// hasherKind converts a metadata tag to a hasher kind.
func hasherKind(tag byte) (hashing.Kind, bool) {
	k := hashing.Kind(tag)
	return k, k.Valid()
}
