package metadata

import (
	"fmt"
	"math"

	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/hashing"
	"github.com/wippyai/subscript/scale"
	"github.com/wippyai/subscript/types"
	"go.uber.org/zap"
)

// Decode parses a metadata blob into its raw layout. V12 and V13 blobs
// carry type expressions; V14 blobs carry the portable type table.
func Decode(blob []byte) (*Raw, error) {
	r := scale.NewReader(blob)

	magic, err := r.ReadU32()
	if err != nil {
		return nil, errors.Schema(errors.KindInvalidData, "metadata header", err)
	}
	if magic != Magic {
		return nil, errors.Schema(errors.KindInvalidData, fmt.Sprintf("bad metadata magic 0x%08x", magic), nil)
	}
	version, err := r.ReadByte()
	if err != nil {
		return nil, errors.Schema(errors.KindInvalidData, "metadata header", err)
	}

	raw := &Raw{Version: version}
	switch version {
	case V12, V13:
		err = decodeLegacy(r, raw)
	case V14:
		err = decodeV14(r, raw)
	default:
		return nil, errors.Schema(errors.KindUnsupported, fmt.Sprintf("metadata version %d", version), nil)
	}
	if err != nil {
		return nil, errors.Schema(errors.KindInvalidData, fmt.Sprintf("decode metadata v%d", version), err)
	}
	if r.Len() > 0 {
		return nil, errors.Schema(errors.KindInvalidData,
			fmt.Sprintf("%d trailing bytes after metadata v%d", r.Len(), version), nil)
	}

	Logger().Debug("decoded metadata",
		zap.Uint8("version", version),
		zap.Int("modules", len(raw.Modules)),
		zap.Int("types", len(raw.Types)))
	return raw, nil
}

func readVec[T any](r *scale.Reader, read func(*scale.Reader) (T, error)) ([]T, error) {
	start := r.Offset()
	n, err := r.ReadCompactLen()
	if err != nil {
		return nil, err
	}
	// every element occupies at least one byte
	if n > r.Len() {
		return nil, errors.Truncated(nil, "Vec", start, n, r.Len())
	}
	out := make([]T, 0, n)
	for range n {
		v, err := read(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func readOption[T any](r *scale.Reader, read func(*scale.Reader) (T, error)) (*T, error) {
	some, err := r.ReadOptionFlag()
	if err != nil || !some {
		return nil, err
	}
	v, err := read(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readText(r *scale.Reader) (string, error) { return r.ReadString() }

func readTexts(r *scale.Reader) ([]string, error) { return readVec(r, readText) }

func readID(r *scale.Reader) (uint32, error) {
	start := r.Offset()
	v, err := r.ReadCompactU64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, errors.New(errors.PhaseSchema, errors.KindOverflow).
			Offset(start).Detail("type id %d exceeds u32", v).Build()
	}
	return uint32(v), nil
}

func readHasher(r *scale.Reader) (hashing.Kind, error) {
	start := r.Offset()
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	k, ok := hasherKind(b)
	if !ok {
		return 0, errors.New(errors.PhaseSchema, errors.KindInvalidVariant).
			Offset(start).Detail("unknown storage hasher %d", b).Build()
	}
	return k, nil
}

func readModifier(r *scale.Reader) (Modifier, error) {
	start := r.Offset()
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b > byte(ModifierDefault) {
		return 0, errors.New(errors.PhaseSchema, errors.KindInvalidVariant).
			Offset(start).Detail("unknown storage modifier %d", b).Build()
	}
	return Modifier(b), nil
}

func badTag(r *scale.Reader, what string, tag byte) error {
	return errors.New(errors.PhaseSchema, errors.KindInvalidVariant).
		Offset(r.Offset() - 1).Detail("unknown %s tag %d", what, tag).Build()
}

// Legacy layouts (V12, V13).

func decodeLegacy(r *scale.Reader, raw *Raw) error {
	modules, err := readVec(r, func(r *scale.Reader) (RawModule, error) {
		return readLegacyModule(r, raw.Version)
	})
	if err != nil {
		return fmt.Errorf("modules: %w", err)
	}
	raw.Modules = modules

	version, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("extrinsic: %w", err)
	}
	exts, err := readTexts(r)
	if err != nil {
		return fmt.Errorf("extrinsic: %w", err)
	}
	raw.Extrinsic.Version = version
	for _, id := range exts {
		raw.Extrinsic.SignedExtensions = append(raw.Extrinsic.SignedExtensions, SignedExtension{Identifier: id})
	}
	return nil
}

func readLegacyModule(r *scale.Reader, version uint8) (RawModule, error) {
	var m RawModule
	var err error
	if m.Name, err = r.ReadString(); err != nil {
		return m, err
	}

	if m.Storage, err = readOption(r, func(r *scale.Reader) (RawStorage, error) {
		return readLegacyStorage(r, version)
	}); err != nil {
		return m, fmt.Errorf("module %s storage: %w", m.Name, err)
	}

	calls, err := readOption(r, func(r *scale.Reader) ([]RawItem, error) {
		return readVec(r, readLegacyCall)
	})
	if err != nil {
		return m, fmt.Errorf("module %s calls: %w", m.Name, err)
	}
	if calls != nil {
		m.Calls = indexItems(*calls)
	}

	events, err := readOption(r, func(r *scale.Reader) ([]RawItem, error) {
		return readVec(r, readLegacyEvent)
	})
	if err != nil {
		return m, fmt.Errorf("module %s events: %w", m.Name, err)
	}
	if events != nil {
		m.Events = indexItems(*events)
	}

	if m.Constants, err = readVec(r, readLegacyConstant); err != nil {
		return m, fmt.Errorf("module %s constants: %w", m.Name, err)
	}

	errs, err := readVec(r, func(r *scale.Reader) (RawItem, error) {
		var it RawItem
		var err error
		if it.Name, err = r.ReadString(); err != nil {
			return it, err
		}
		it.Docs, err = readTexts(r)
		return it, err
	})
	if err != nil {
		return m, fmt.Errorf("module %s errors: %w", m.Name, err)
	}
	m.Errors = indexItems(errs)

	if m.Index, err = r.ReadByte(); err != nil {
		return m, fmt.Errorf("module %s index: %w", m.Name, err)
	}
	return m, nil
}

// indexItems numbers legacy calls, events and errors by position.
func indexItems(items []RawItem) []RawItem {
	for i := range items {
		items[i].Index = uint8(i)
	}
	if items == nil {
		return []RawItem{}
	}
	return items
}

func readLegacyStorage(r *scale.Reader, version uint8) (RawStorage, error) {
	var s RawStorage
	var err error
	if s.Prefix, err = r.ReadString(); err != nil {
		return s, err
	}
	s.Entries, err = readVec(r, func(r *scale.Reader) (StorageEntry, error) {
		return readLegacyEntry(r, version)
	})
	return s, err
}

func readLegacyEntry(r *scale.Reader, version uint8) (StorageEntry, error) {
	var e StorageEntry
	var err error
	if e.Name, err = r.ReadString(); err != nil {
		return e, err
	}
	if e.Modifier, err = readModifier(r); err != nil {
		return e, err
	}

	tag, err := r.ReadByte()
	if err != nil {
		return e, err
	}
	switch {
	case tag == 0: // Plain
		if e.Value, err = r.ReadString(); err != nil {
			return e, err
		}
	case tag == 1: // Map
		h, err := readHasher(r)
		if err != nil {
			return e, err
		}
		key, err := r.ReadString()
		if err != nil {
			return e, err
		}
		if e.Value, err = r.ReadString(); err != nil {
			return e, err
		}
		if _, err = r.ReadBool(); err != nil { // unused
			return e, err
		}
		e.Hashers, e.Keys = []hashing.Kind{h}, []string{key}
	case tag == 2: // DoubleMap
		h1, err := readHasher(r)
		if err != nil {
			return e, err
		}
		k1, err := r.ReadString()
		if err != nil {
			return e, err
		}
		k2, err := r.ReadString()
		if err != nil {
			return e, err
		}
		if e.Value, err = r.ReadString(); err != nil {
			return e, err
		}
		h2, err := readHasher(r)
		if err != nil {
			return e, err
		}
		e.Hashers, e.Keys = []hashing.Kind{h1, h2}, []string{k1, k2}
	case tag == 3 && version >= V13: // NMap
		if e.Keys, err = readTexts(r); err != nil {
			return e, err
		}
		if e.Hashers, err = readVec(r, readHasher); err != nil {
			return e, err
		}
		if e.Value, err = r.ReadString(); err != nil {
			return e, err
		}
		if len(e.Keys) != len(e.Hashers) {
			return e, fmt.Errorf("storage %s: %d keys but %d hashers", e.Name, len(e.Keys), len(e.Hashers))
		}
	default:
		return e, badTag(r, "storage entry type", tag)
	}

	if e.Default, err = r.ReadVarBytes(); err != nil {
		return e, err
	}
	e.Docs, err = readTexts(r)
	return e, err
}

func readLegacyCall(r *scale.Reader) (RawItem, error) {
	var it RawItem
	var err error
	if it.Name, err = r.ReadString(); err != nil {
		return it, err
	}
	if it.Args, err = readVec(r, func(r *scale.Reader) (Arg, error) {
		var a Arg
		var err error
		if a.Name, err = r.ReadString(); err != nil {
			return a, err
		}
		a.Type, err = r.ReadString()
		return a, err
	}); err != nil {
		return it, err
	}
	it.Docs, err = readTexts(r)
	return it, err
}

func readLegacyEvent(r *scale.Reader) (RawItem, error) {
	var it RawItem
	var err error
	if it.Name, err = r.ReadString(); err != nil {
		return it, err
	}
	argTypes, err := readTexts(r)
	if err != nil {
		return it, err
	}
	for _, t := range argTypes {
		it.Args = append(it.Args, Arg{Type: t})
	}
	it.Docs, err = readTexts(r)
	return it, err
}

func readLegacyConstant(r *scale.Reader) (Constant, error) {
	var c Constant
	var err error
	if c.Name, err = r.ReadString(); err != nil {
		return c, err
	}
	if c.Type, err = r.ReadString(); err != nil {
		return c, err
	}
	if c.Value, err = r.ReadVarBytes(); err != nil {
		return c, err
	}
	c.Docs, err = readTexts(r)
	return c, err
}

// V14 layout.

func decodeV14(r *scale.Reader, raw *Raw) error {
	var err error
	if raw.Types, err = readVec(r, readPortableType); err != nil {
		return fmt.Errorf("types: %w", err)
	}
	byID := make(map[uint32]*PortableType, len(raw.Types))
	for i := range raw.Types {
		byID[raw.Types[i].ID] = &raw.Types[i]
	}

	if raw.Modules, err = readVec(r, func(r *scale.Reader) (RawModule, error) {
		return readPallet(r, byID)
	}); err != nil {
		return fmt.Errorf("pallets: %w", err)
	}

	xtType, err := readID(r)
	if err != nil {
		return fmt.Errorf("extrinsic: %w", err)
	}
	raw.Extrinsic.Type = portableRef(xtType)
	if raw.Extrinsic.Version, err = r.ReadByte(); err != nil {
		return fmt.Errorf("extrinsic: %w", err)
	}
	if raw.Extrinsic.SignedExtensions, err = readVec(r, func(r *scale.Reader) (SignedExtension, error) {
		var s SignedExtension
		var err error
		if s.Identifier, err = r.ReadString(); err != nil {
			return s, err
		}
		ty, err := readID(r)
		if err != nil {
			return s, err
		}
		extra, err := readID(r)
		if err != nil {
			return s, err
		}
		s.Type, s.AdditionalSigned = portableRef(ty), portableRef(extra)
		return s, nil
	}); err != nil {
		return fmt.Errorf("extrinsic: %w", err)
	}

	if raw.RuntimeType, err = readID(r); err != nil {
		return fmt.Errorf("runtime type: %w", err)
	}
	return nil
}

func readPortableType(r *scale.Reader) (PortableType, error) {
	var t PortableType
	var err error
	if t.ID, err = readID(r); err != nil {
		return t, err
	}
	if t.Path, err = readTexts(r); err != nil {
		return t, err
	}
	if t.Params, err = readVec(r, func(r *scale.Reader) (TypeParam, error) {
		var p TypeParam
		var err error
		if p.Name, err = r.ReadString(); err != nil {
			return p, err
		}
		p.Type, err = readOption(r, readID)
		return p, err
	}); err != nil {
		return t, err
	}
	if t.Def, err = readPortableDef(r); err != nil {
		return t, fmt.Errorf("type %d: %w", t.ID, err)
	}
	t.Docs, err = readTexts(r)
	return t, err
}

func readPortableField(r *scale.Reader) (PortableField, error) {
	var f PortableField
	name, err := readOption(r, readText)
	if err != nil {
		return f, err
	}
	if name != nil {
		f.Name = *name
	}
	if f.Type, err = readID(r); err != nil {
		return f, err
	}
	typeName, err := readOption(r, readText)
	if err != nil {
		return f, err
	}
	if typeName != nil {
		f.TypeName = *typeName
	}
	f.Docs, err = readTexts(r)
	return f, err
}

func readPortableDef(r *scale.Reader) (PortableDef, error) {
	var d PortableDef
	tag, err := r.ReadByte()
	if err != nil {
		return d, err
	}
	d.Kind = PortableDefKind(tag)
	switch d.Kind {
	case DefComposite:
		d.Fields, err = readVec(r, readPortableField)
	case DefVariant:
		d.Variants, err = readVec(r, func(r *scale.Reader) (PortableVariant, error) {
			var v PortableVariant
			var err error
			if v.Name, err = r.ReadString(); err != nil {
				return v, err
			}
			if v.Fields, err = readVec(r, readPortableField); err != nil {
				return v, err
			}
			if v.Index, err = r.ReadByte(); err != nil {
				return v, err
			}
			v.Docs, err = readTexts(r)
			return v, err
		})
	case DefSequence, DefCompact:
		d.Elem, err = readID(r)
	case DefArray:
		if d.Len, err = r.ReadU32(); err != nil {
			return d, err
		}
		d.Elem, err = readID(r)
	case DefTuple:
		d.Elems, err = readVec(r, readID)
	case DefPrimitive:
		var p byte
		if p, err = r.ReadByte(); err != nil {
			return d, err
		}
		if p > byte(types.PrimI256) {
			return d, badTag(r, "primitive", p)
		}
		d.Prim = types.Prim(p)
	case DefBitSequence:
		if d.BitStore, err = readID(r); err != nil {
			return d, err
		}
		d.BitOrder, err = readID(r)
	default:
		return d, badTag(r, "type definition", tag)
	}
	return d, err
}

func readPallet(r *scale.Reader, byID map[uint32]*PortableType) (RawModule, error) {
	var m RawModule
	var err error
	if m.Name, err = r.ReadString(); err != nil {
		return m, err
	}

	if m.Storage, err = readOption(r, readV14Storage(byID)); err != nil {
		return m, fmt.Errorf("pallet %s storage: %w", m.Name, err)
	}

	callType, err := readOption(r, readID)
	if err != nil {
		return m, fmt.Errorf("pallet %s calls: %w", m.Name, err)
	}
	eventType, err := readOption(r, readID)
	if err != nil {
		return m, fmt.Errorf("pallet %s events: %w", m.Name, err)
	}

	if m.Constants, err = readVec(r, func(r *scale.Reader) (Constant, error) {
		var c Constant
		var err error
		if c.Name, err = r.ReadString(); err != nil {
			return c, err
		}
		ty, err := readID(r)
		if err != nil {
			return c, err
		}
		c.Type = portableRef(ty)
		if c.Value, err = r.ReadVarBytes(); err != nil {
			return c, err
		}
		c.Docs, err = readTexts(r)
		return c, err
	}); err != nil {
		return m, fmt.Errorf("pallet %s constants: %w", m.Name, err)
	}

	errorType, err := readOption(r, readID)
	if err != nil {
		return m, fmt.Errorf("pallet %s errors: %w", m.Name, err)
	}
	if m.Index, err = r.ReadByte(); err != nil {
		return m, fmt.Errorf("pallet %s index: %w", m.Name, err)
	}

	if callType != nil {
		m.CallType = portableRef(*callType)
		if m.Calls, err = variantItems(byID, *callType); err != nil {
			return m, fmt.Errorf("pallet %s calls: %w", m.Name, err)
		}
	}
	if eventType != nil {
		m.EventType = portableRef(*eventType)
		if m.Events, err = variantItems(byID, *eventType); err != nil {
			return m, fmt.Errorf("pallet %s events: %w", m.Name, err)
		}
	}
	if errorType != nil {
		m.ErrorType = portableRef(*errorType)
		if m.Errors, err = variantItems(byID, *errorType); err != nil {
			return m, fmt.Errorf("pallet %s errors: %w", m.Name, err)
		}
	}
	return m, nil
}

// variantItems lists the cases of a pallet's call, event or error enum.
func variantItems(byID map[uint32]*PortableType, id uint32) ([]RawItem, error) {
	t, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("type %d not in table", id)
	}
	if t.Def.Kind != DefVariant {
		return nil, fmt.Errorf("type %d is not a variant", id)
	}
	items := make([]RawItem, len(t.Def.Variants))
	for i, v := range t.Def.Variants {
		items[i] = RawItem{Name: v.Name, Index: v.Index, Docs: v.Docs}
		for _, f := range v.Fields {
			items[i].Args = append(items[i].Args, Arg{Name: f.Name, Type: portableRef(f.Type), TypeName: f.TypeName})
		}
	}
	return items, nil
}

func readV14Storage(byID map[uint32]*PortableType) func(*scale.Reader) (RawStorage, error) {
	return func(r *scale.Reader) (RawStorage, error) {
		var s RawStorage
		var err error
		if s.Prefix, err = r.ReadString(); err != nil {
			return s, err
		}
		s.Entries, err = readVec(r, func(r *scale.Reader) (StorageEntry, error) {
			return readV14Entry(r, byID)
		})
		return s, err
	}
}

func readV14Entry(r *scale.Reader, byID map[uint32]*PortableType) (StorageEntry, error) {
	var e StorageEntry
	var err error
	if e.Name, err = r.ReadString(); err != nil {
		return e, err
	}
	if e.Modifier, err = readModifier(r); err != nil {
		return e, err
	}

	tag, err := r.ReadByte()
	if err != nil {
		return e, err
	}
	switch tag {
	case 0: // Plain
		v, err := readID(r)
		if err != nil {
			return e, err
		}
		e.Value = portableRef(v)
	case 1: // Map
		if e.Hashers, err = readVec(r, readHasher); err != nil {
			return e, err
		}
		key, err := readID(r)
		if err != nil {
			return e, err
		}
		v, err := readID(r)
		if err != nil {
			return e, err
		}
		e.Value = portableRef(v)
		if e.Keys, err = splitKeys(byID, key, len(e.Hashers)); err != nil {
			return e, fmt.Errorf("storage %s: %w", e.Name, err)
		}
	default:
		return e, badTag(r, "storage entry type", tag)
	}

	if e.Default, err = r.ReadVarBytes(); err != nil {
		return e, err
	}
	e.Docs, err = readTexts(r)
	return e, err
}

// splitKeys returns one key type per hasher. With several hashers the key
// type is a tuple of the individual keys.
func splitKeys(byID map[uint32]*PortableType, key uint32, hashers int) ([]string, error) {
	if hashers == 1 {
		return []string{portableRef(key)}, nil
	}
	t, ok := byID[key]
	if !ok {
		return nil, fmt.Errorf("key type %d not in table", key)
	}
	if t.Def.Kind != DefTuple || len(t.Def.Elems) != hashers {
		return nil, fmt.Errorf("key type %d does not match %d hashers", key, hashers)
	}
	keys := make([]string, hashers)
	for i, id := range t.Def.Elems {
		keys[i] = portableRef(id)
	}
	return keys, nil
}
