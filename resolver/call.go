package resolver

import (
	"encoding/hex"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/metadata"
	"github.com/wippyai/subscript/scale"
)

// CallPayload is an encoded call: module index, call index and the
// arguments in declared order. It is immutable.
type CallPayload struct {
	call  *metadata.Call
	args  []codec.Value
	bytes []byte
	// ends[i] is the offset in bytes just past argument i.
	ends []int
}

// Module returns the module name.
func (p *CallPayload) Module() string { return p.call.Module }

// Function returns the call name.
func (p *CallPayload) Function() string { return p.call.Name }

// ModuleIndex returns the module's runtime index.
func (p *CallPayload) ModuleIndex() uint8 { return p.call.ModuleIndex }

// CallIndex returns the call's index within its module.
func (p *CallPayload) CallIndex() uint8 { return p.call.Index }

// Meta returns the call's metadata.
func (p *CallPayload) Meta() *metadata.Call { return p.call }

// Args returns a copy of the argument values.
func (p *CallPayload) Args() []codec.Value {
	return append([]codec.Value(nil), p.args...)
}

// ArgBytes returns a copy of each argument's encoding, in declared order.
func (p *CallPayload) ArgBytes() [][]byte {
	out := make([][]byte, len(p.ends))
	start := 2
	for i, end := range p.ends {
		out[i] = append([]byte(nil), p.bytes[start:end]...)
		start = end
	}
	return out
}

// Bytes returns a copy of the encoded call.
func (p *CallPayload) Bytes() []byte {
	return append([]byte(nil), p.bytes...)
}

// Len returns the encoded length.
func (p *CallPayload) Len() int { return len(p.bytes) }

// Hex returns the encoded call as 0x-prefixed hex.
func (p *CallPayload) Hex() string { return "0x" + hex.EncodeToString(p.bytes) }

// Value returns the call in the shape the synthesized Call type accepts,
// for nesting inside batch-style calls.
func (p *CallPayload) Value() codec.Value {
	fields := make([]codec.Field, len(p.args))
	for i, a := range p.call.Args {
		fields[i] = codec.F(a.Name, p.args[i])
	}
	inner := codec.VariantAt(uint32(p.call.Index), p.call.Name)
	if len(fields) > 0 {
		inner = codec.VariantAt(uint32(p.call.Index), p.call.Name, codec.NewStruct(fields...))
	}
	return codec.VariantAt(uint32(p.call.ModuleIndex), p.call.Module, inner)
}

func (p *CallPayload) String() string { return p.call.FullName() + " " + p.Hex() }

// BuildCall encodes a call with positional arguments. The argument count
// must match the metadata exactly; nothing is built otherwise.
func (r *Resolver) BuildCall(module, function string, args ...codec.Value) (*CallPayload, error) {
	c, err := r.md.Call(module, function)
	if err != nil {
		return nil, err
	}
	if len(args) != len(c.Args) {
		return nil, errors.ArgumentMismatch(errors.PhaseCall, c.FullName(), len(c.Args), len(args))
	}

	w := scale.NewWriter()
	w.Byte(c.ModuleIndex)
	w.Byte(c.Index)
	ends := make([]int, len(c.Args))
	for i, a := range c.Args {
		if err := r.codec.EncodeTo(w, a.Type, args[i]); err != nil {
			return nil, prefixPath(err, a.Name)
		}
		ends[i] = w.Len()
	}
	return &CallPayload{
		call:  c,
		args:  append([]codec.Value(nil), args...),
		bytes: w.Bytes(),
		ends:  ends,
	}, nil
}

// BuildCallNamed encodes a call from a struct of arguments keyed by name.
func (r *Resolver) BuildCallNamed(module, function string, args codec.Value) (*CallPayload, error) {
	c, err := r.md.Call(module, function)
	if err != nil {
		return nil, err
	}
	if args.Kind != codec.KindStruct && !(args.IsUnit() && len(c.Args) == 0) {
		return nil, errors.TypeMismatch(errors.PhaseCall, nil, c.FullName(), args.Kind.String())
	}

	known := make(map[string]bool, len(c.Args))
	for _, a := range c.Args {
		known[a.Name] = true
	}
	for _, f := range args.Fields {
		if !known[f.Name] {
			return nil, errors.FieldUnknown(errors.PhaseCall, []string{f.Name}, f.Name)
		}
	}

	positional := make([]codec.Value, len(c.Args))
	for i, a := range c.Args {
		v, ok := args.Field(a.Name)
		if !ok {
			return nil, errors.FieldMissing(errors.PhaseCall, []string{a.Name}, a.Name)
		}
		positional[i] = v
	}
	return r.BuildCall(module, function, positional...)
}

// DecodeCall reads one call from the front of data and returns it with the
// unread remainder.
func (r *Resolver) DecodeCall(data []byte) (*CallPayload, []byte, error) {
	rd := scale.NewReader(data)
	modIdx, err := rd.ReadByte()
	if err != nil {
		return nil, nil, located(err)
	}
	callIdx, err := rd.ReadByte()
	if err != nil {
		return nil, nil, located(err)
	}
	c, ok := r.md.CallByIndex(modIdx, callIdx)
	if !ok {
		return nil, nil, errors.New(errors.PhaseDecode, errors.KindInvalidVariant).
			TypeName("Call").Offset(0).Value([2]uint8{modIdx, callIdx}).
			Detail("no call at index %d.%d", modIdx, callIdx).Build()
	}

	args := make([]codec.Value, len(c.Args))
	ends := make([]int, len(c.Args))
	for i, a := range c.Args {
		if args[i], err = r.codec.DecodeFrom(rd, a.Type); err != nil {
			return nil, nil, prefixPath(err, a.Name)
		}
		ends[i] = rd.Offset()
	}
	n := rd.Offset()
	return &CallPayload{
		call:  c,
		args:  args,
		bytes: append([]byte(nil), data[:n]...),
		ends:  ends,
	}, rd.Remaining(), nil
}

func located(err error) error {
	if e, ok := errors.As(err); ok && e.TypeName == "" {
		e.TypeName = "Call"
	}
	return err
}
