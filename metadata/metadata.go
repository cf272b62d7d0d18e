package metadata

import (
	"fmt"
	"strings"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/hashing"
	"github.com/wippyai/subscript/types"
)

// Metadata is the normalized view of a runtime's metadata: a type registry
// plus the module table. It is immutable after Build and safe to share.
type Metadata struct {
	// Version is the metadata format version of the source blob.
	Version   uint8
	Extrinsic Extrinsic

	reg     *types.Registry
	codec   *codec.Codec
	modules []*Module
	byName  map[string]*Module
	byIndex map[uint8]*Module
}

// Registry returns the type registry.
func (m *Metadata) Registry() *types.Registry { return m.reg }

// Codec returns a codec bound to the registry.
func (m *Metadata) Codec() *codec.Codec { return m.codec }

// Modules returns the modules in declaration order.
func (m *Metadata) Modules() []*Module { return m.modules }

// Module finds a module by name.
func (m *Metadata) Module(name string) (*Module, error) {
	mod, ok := m.byName[name]
	if !ok {
		return nil, errors.UnknownCall(errors.PhaseCall, name, "")
	}
	return mod, nil
}

// ModuleByIndex finds a module by its runtime index.
func (m *Metadata) ModuleByIndex(idx uint8) (*Module, bool) {
	mod, ok := m.byIndex[idx]
	return mod, ok
}

// Call finds a dispatchable function.
func (m *Metadata) Call(module, name string) (*Call, error) {
	mod, err := m.Module(module)
	if err != nil {
		return nil, err
	}
	c, ok := mod.calls[name]
	if !ok {
		return nil, errors.UnknownCall(errors.PhaseCall, module, name)
	}
	return c, nil
}

// CallByIndex finds a call by module and call index.
func (m *Metadata) CallByIndex(modIdx, callIdx uint8) (*Call, bool) {
	mod, ok := m.byIndex[modIdx]
	if !ok {
		return nil, false
	}
	for _, c := range mod.Calls {
		if c.Index == callIdx {
			return c, true
		}
	}
	return nil, false
}

// Event finds an event by module and name.
func (m *Metadata) Event(module, name string) (*Event, error) {
	mod, err := m.Module(module)
	if err != nil {
		return nil, err
	}
	e, ok := mod.events[name]
	if !ok {
		return nil, errors.UnknownCall(errors.PhaseCall, module, name)
	}
	return e, nil
}

// EventByIndex finds an event by module and event index.
func (m *Metadata) EventByIndex(modIdx, evIdx uint8) (*Event, bool) {
	mod, ok := m.byIndex[modIdx]
	if !ok {
		return nil, false
	}
	for _, e := range mod.Events {
		if e.Index == evIdx {
			return e, true
		}
	}
	return nil, false
}

// Storage finds a storage entry.
func (m *Metadata) Storage(module, name string) (*StorageEntry, error) {
	mod, ok := m.byName[module]
	if !ok {
		return nil, errors.UnknownCall(errors.PhaseStorage, module, "")
	}
	s, ok := mod.storage[name]
	if !ok {
		return nil, errors.UnknownCall(errors.PhaseStorage, module, name)
	}
	return s, nil
}

// Constant finds a module constant.
func (m *Metadata) Constant(module, name string) (*Constant, error) {
	mod, err := m.Module(module)
	if err != nil {
		return nil, err
	}
	c, ok := mod.constants[name]
	if !ok {
		return nil, errors.UnknownCall(errors.PhaseCall, module, name)
	}
	return c, nil
}

// ConstantValue decodes a module constant.
func (m *Metadata) ConstantValue(module, name string) (codec.Value, error) {
	c, err := m.Constant(module, name)
	if err != nil {
		return codec.Value{}, err
	}
	return m.codec.DecodeAll(c.Type, c.Value)
}

// FindError maps a dispatch error's module and error index to its metadata.
func (m *Metadata) FindError(modIdx, errIdx uint8) (*ModuleError, bool) {
	mod, ok := m.byIndex[modIdx]
	if !ok {
		return nil, false
	}
	for _, e := range mod.Errors {
		if e.Index == errIdx {
			return e, true
		}
	}
	return nil, false
}

// ItemKind classifies what a module item name refers to.
type ItemKind uint8

const (
	ItemExtrinsic ItemKind = iota
	ItemEvent
	ItemStorage
	ItemConstant
)

func (k ItemKind) String() string {
	switch k {
	case ItemExtrinsic:
		return "extrinsic"
	case ItemEvent:
		return "event"
	case ItemStorage:
		return "storage"
	case ItemConstant:
		return "constant"
	}
	return "unknown"
}

// ItemRef describes a module item found by name.
type ItemRef struct {
	Kind     ItemKind
	Module   string
	Name     string
	Index    uint8
	ArgTypes []string
}

// Item looks a name up among a module's calls, events, storage entries and
// constants, in that order.
func (m *Metadata) Item(module, name string) (ItemRef, error) {
	mod, err := m.Module(module)
	if err != nil {
		return ItemRef{}, err
	}
	ref := ItemRef{Module: module, Name: name}
	if c, ok := mod.calls[name]; ok {
		ref.Kind, ref.Index, ref.ArgTypes = ItemExtrinsic, c.Index, argTypes(c.Args)
		return ref, nil
	}
	if e, ok := mod.events[name]; ok {
		ref.Kind, ref.Index, ref.ArgTypes = ItemEvent, e.Index, argTypes(e.Args)
		return ref, nil
	}
	if s, ok := mod.storage[name]; ok {
		ref.Kind, ref.ArgTypes = ItemStorage, append([]string(nil), s.Keys...)
		return ref, nil
	}
	if c, ok := mod.constants[name]; ok {
		ref.Kind, ref.ArgTypes = ItemConstant, []string{c.Type}
		return ref, nil
	}
	return ItemRef{}, errors.UnknownCall(errors.PhaseCall, module, name)
}

func argTypes(args []Arg) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.Type
	}
	return out
}

// Module is one pallet.
type Module struct {
	Name  string
	Index uint8
	// StoragePrefix is empty when the module has no storage.
	StoragePrefix string

	Calls     []*Call
	Events    []*Event
	Storage   []*StorageEntry
	Constants []*Constant
	Errors    []*ModuleError

	calls     map[string]*Call
	events    map[string]*Event
	storage   map[string]*StorageEntry
	constants map[string]*Constant
}

// HasCalls reports whether the module declares any calls.
func (m *Module) HasCalls() bool { return len(m.Calls) > 0 }

// Arg is a named, typed argument. Event arguments from legacy metadata
// are unnamed.
type Arg struct {
	Name string
	Type string
	// TypeName is the source-level type name when the metadata carries one.
	TypeName string
}

// Call is a dispatchable function.
type Call struct {
	Module      string
	Name        string
	ModuleIndex uint8
	Index       uint8
	Args        []Arg
	Docs        []string
}

// Title returns the first line of the docs.
func (c *Call) Title() string { return title(c.Docs) }

// FullName returns Module.Name.
func (c *Call) FullName() string { return c.Module + "." + c.Name }

// Event is a module event.
type Event struct {
	Module      string
	Name        string
	ModuleIndex uint8
	Index       uint8
	Args        []Arg
	Docs        []string
}

// Title returns the first line of the docs.
func (e *Event) Title() string { return title(e.Docs) }

// FullName returns Module.Name.
func (e *Event) FullName() string { return e.Module + "." + e.Name }

// Modifier says what an absent storage value reads as.
type Modifier uint8

const (
	// ModifierOptional entries read as absent.
	ModifierOptional Modifier = iota
	// ModifierDefault entries read as the metadata default.
	ModifierDefault
)

func (m Modifier) String() string {
	if m == ModifierDefault {
		return "Default"
	}
	return "Optional"
}

// StorageEntry is one storage item. Plain values have no keys; maps carry
// one hasher per key.
type StorageEntry struct {
	Module   string
	Prefix   string
	Name     string
	Modifier Modifier
	Hashers  []hashing.Kind
	Keys     []string
	Value    string
	Default  []byte
	Docs     []string
}

// IsMap reports whether the entry is keyed.
func (s *StorageEntry) IsMap() bool { return len(s.Keys) > 0 }

// Title returns the first line of the docs.
func (s *StorageEntry) Title() string { return title(s.Docs) }

// Constant is a module constant with its encoded value.
type Constant struct {
	Module string
	Name   string
	Type   string
	Value  []byte
	Docs   []string
}

// ModuleError is a module's dispatch error case.
type ModuleError struct {
	Module      string
	Name        string
	ModuleIndex uint8
	Index       uint8
	Docs        []string
}

// Title returns the first line of the docs.
func (e *ModuleError) Title() string { return title(e.Docs) }

func (e *ModuleError) String() string {
	return fmt.Sprintf("%s.%s", e.Module, e.Name)
}

// Extrinsic describes the transaction format.
type Extrinsic struct {
	Version uint8
	// Type is the portable id of the extrinsic type, V14 only.
	Type             string
	SignedExtensions []SignedExtension
}

// SignedExtension is a transaction extension. Type and AdditionalSigned
// are set for V14 metadata only.
type SignedExtension struct {
	Identifier       string
	Type             string
	AdditionalSigned string
}

func title(docs []string) string {
	if len(docs) == 0 {
		return ""
	}
	return strings.TrimSpace(docs[0])
}
