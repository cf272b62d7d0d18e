package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/types"
	"go.uber.org/zap"
)

// Build decodes a metadata blob and normalizes it with the built-in base
// types and an optional custom document. Custom entries take precedence
// over anything derived from the blob.
func Build(blob []byte, doc *types.Document) (*Metadata, error) {
	raw, err := Decode(blob)
	if err != nil {
		return nil, err
	}
	return FromRaw(raw, doc)
}

// FromRaw builds metadata from an already decoded blob.
func FromRaw(raw *Raw, doc *types.Document) (*Metadata, error) {
	b := types.NewBuilder()
	if err := b.MergeDefaults(types.Defaults()); err != nil {
		return nil, errors.Schema(errors.KindInvalidData, "built-in types", err)
	}
	if err := registerPortable(b, raw); err != nil {
		return nil, errors.Schema(errors.KindInvalidData, "portable types", err)
	}
	if err := b.Merge(doc); err != nil {
		return nil, errors.Schema(errors.KindInvalidData, "custom types", err)
	}

	md := &Metadata{
		Version:   raw.Version,
		Extrinsic: raw.Extrinsic,
		byName:    make(map[string]*Module, len(raw.Modules)),
		byIndex:   make(map[uint8]*Module, len(raw.Modules)),
	}
	for i := range raw.Modules {
		mod, err := buildModule(b, &raw.Modules[i])
		if err != nil {
			return nil, errors.Schema(errors.KindInvalidData, "module "+raw.Modules[i].Name, err)
		}
		if _, dup := md.byName[mod.Name]; dup {
			return nil, errors.Schema(errors.KindDuplicate, fmt.Sprintf("module %q declared twice", mod.Name), nil)
		}
		if other, dup := md.byIndex[mod.Index]; dup {
			return nil, errors.Schema(errors.KindDuplicate,
				fmt.Sprintf("modules %q and %q share index %d", other.Name, mod.Name, mod.Index), nil)
		}
		md.modules = append(md.modules, mod)
		md.byName[mod.Name] = mod
		md.byIndex[mod.Index] = mod
	}

	if err := synthesize(b, md, raw); err != nil {
		return nil, errors.Schema(errors.KindInvalidData, "runtime types", err)
	}

	reg, err := b.Build()
	if err != nil {
		return nil, err
	}
	md.reg = reg
	md.codec = codec.New(reg)

	Logger().Debug("built metadata",
		zap.Uint8("version", md.Version),
		zap.Int("modules", len(md.modules)),
		zap.Int("types", reg.Len()))
	return md, nil
}

func buildModule(b *types.Builder, rm *RawModule) (*Module, error) {
	mod := &Module{
		Name:      rm.Name,
		Index:     rm.Index,
		calls:     make(map[string]*Call, len(rm.Calls)),
		events:    make(map[string]*Event, len(rm.Events)),
		storage:   make(map[string]*StorageEntry),
		constants: make(map[string]*Constant, len(rm.Constants)),
	}

	for _, it := range rm.Calls {
		args, err := canonArgs(b, it.Args)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", it.Name, err)
		}
		for i := range args {
			args[i].Name = argName(args[i], i)
		}
		c := &Call{Module: rm.Name, Name: it.Name, ModuleIndex: rm.Index, Index: it.Index, Args: args, Docs: it.Docs}
		mod.Calls = append(mod.Calls, c)
		mod.calls[c.Name] = c
	}

	for _, it := range rm.Events {
		args, err := canonArgs(b, it.Args)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", it.Name, err)
		}
		e := &Event{Module: rm.Name, Name: it.Name, ModuleIndex: rm.Index, Index: it.Index, Args: args, Docs: it.Docs}
		mod.Events = append(mod.Events, e)
		mod.events[e.Name] = e
	}

	if rm.Storage != nil {
		mod.StoragePrefix = rm.Storage.Prefix
		for _, se := range rm.Storage.Entries {
			s := se
			s.Module, s.Prefix = rm.Name, rm.Storage.Prefix
			var err error
			if s.Value, err = b.Parse(se.Value); err != nil {
				return nil, fmt.Errorf("storage %s: %w", se.Name, err)
			}
			s.Keys = make([]string, len(se.Keys))
			for i, k := range se.Keys {
				if s.Keys[i], err = b.Parse(k); err != nil {
					return nil, fmt.Errorf("storage %s key %d: %w", se.Name, i, err)
				}
			}
			if len(s.Keys) == 0 {
				s.Keys = nil
			}
			mod.Storage = append(mod.Storage, &s)
			mod.storage[s.Name] = &s
		}
	}

	for _, rc := range rm.Constants {
		c := rc
		c.Module = rm.Name
		var err error
		if c.Type, err = b.Parse(rc.Type); err != nil {
			return nil, fmt.Errorf("constant %s: %w", rc.Name, err)
		}
		mod.Constants = append(mod.Constants, &c)
		mod.constants[c.Name] = &c
	}

	for _, it := range rm.Errors {
		mod.Errors = append(mod.Errors, &ModuleError{
			Module:      rm.Name,
			Name:        it.Name,
			ModuleIndex: rm.Index,
			Index:       it.Index,
			Docs:        it.Docs,
		})
	}
	return mod, nil
}

// canonArgs parses argument types to their registered spelling.
func canonArgs(b *types.Builder, args []Arg) ([]Arg, error) {
	out := make([]Arg, len(args))
	for i, a := range args {
		t, err := b.Parse(a.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = Arg{Name: a.Name, Type: t, TypeName: a.TypeName}
	}
	return out, nil
}

// argName returns the argument's name or its position. Call arguments
// are always named so they can be passed as a struct.
func argName(a Arg, i int) string {
	if a.Name != "" {
		return a.Name
	}
	return strconv.Itoa(i)
}

// synthesize defines the runtime-wide enums: <Module>::Call, Call,
// <Module>::Event, Event, <Module>::Error, RuntimeError, EventRecord and
// EventRecords.
func synthesize(b *types.Builder, md *Metadata, raw *Raw) error {
	var calls, events, errs []types.Variant
	for i, mod := range md.modules {
		rm := &raw.Modules[i]

		if mod.HasCalls() || rm.CallType != "" {
			name := mod.Name + "::Call"
			if rm.CallType != "" {
				b.Define(name, types.Alias(rm.CallType))
			} else {
				b.Define(name, types.Enum(legacyCallVariants(b, mod)...))
			}
			calls = append(calls, types.Variant{Index: uint32(mod.Index), Name: mod.Name, Type: name})
		}

		if len(mod.Events) > 0 || rm.EventType != "" {
			name := mod.Name + "::Event"
			if rm.EventType != "" {
				b.Define(name, types.Alias(rm.EventType))
			} else {
				variants, err := legacyEventVariants(b, mod)
				if err != nil {
					return err
				}
				b.Define(name, types.Enum(variants...))
			}
			events = append(events, types.Variant{Index: uint32(mod.Index), Name: mod.Name, Type: name})
		}

		if len(mod.Errors) > 0 || rm.ErrorType != "" {
			name := mod.Name + "::Error"
			if rm.ErrorType != "" {
				b.Define(name, types.Alias(rm.ErrorType))
			} else {
				variants := make([]types.Variant, len(mod.Errors))
				for j, e := range mod.Errors {
					variants[j] = types.Variant{Index: uint32(e.Index), Name: e.Name}
				}
				b.Define(name, types.Enum(variants...))
			}
			errs = append(errs, types.Variant{Index: uint32(mod.Index), Name: mod.Name, Type: name})
		}
	}

	b.Define("Call", types.Enum(calls...))
	b.Define("Event", types.Enum(events...))
	b.Define("RuntimeError", types.Enum(errs...))

	topics, err := b.Parse("Vec<Hash>")
	if err != nil {
		return err
	}
	b.Define("EventRecord", types.Struct(
		types.Field{Name: "phase", Type: "Phase"},
		types.Field{Name: "event", Type: "Event"},
		types.Field{Name: "topics", Type: topics},
	))
	b.Define("EventRecords", types.Sequence("EventRecord"))
	return nil
}

// legacyCallVariants makes one variant per call whose payload is a struct
// of the call's arguments.
func legacyCallVariants(b *types.Builder, mod *Module) []types.Variant {
	variants := make([]types.Variant, len(mod.Calls))
	for i, c := range mod.Calls {
		variants[i] = types.Variant{Index: uint32(c.Index), Name: c.Name}
		if len(c.Args) == 0 {
			continue
		}
		fields := make([]types.Field, len(c.Args))
		for j, a := range c.Args {
			fields[j] = types.Field{Name: argName(a, j), Type: a.Type}
		}
		payload := mod.Name + "::Call::" + c.Name
		b.Define(payload, types.Struct(fields...))
		variants[i].Type = payload
	}
	return variants
}

// legacyEventVariants makes one variant per event. A single argument is
// the payload itself; several form a tuple.
func legacyEventVariants(b *types.Builder, mod *Module) ([]types.Variant, error) {
	variants := make([]types.Variant, len(mod.Events))
	for i, e := range mod.Events {
		variants[i] = types.Variant{Index: uint32(e.Index), Name: e.Name}
		switch len(e.Args) {
		case 0:
		case 1:
			variants[i].Type = e.Args[0].Type
		default:
			t, err := b.Parse("(" + strings.Join(argTypes(e.Args), ", ") + ")")
			if err != nil {
				return nil, fmt.Errorf("event %s: %w", e.FullName(), err)
			}
			variants[i].Type = t
		}
	}
	return variants, nil
}
