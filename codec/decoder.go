package codec

import (
	"math/big"
	"slices"
	"unicode/utf8"

	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/scale"
	"github.com/wippyai/subscript/types"
)

func (c *Codec) decode(r *scale.Reader, name string, path []string) (Value, error) {
	def, err := c.reg.Resolve(name)
	if err != nil {
		return Value{}, err
	}

	switch def.Kind {
	case types.KindAlias:
		return c.decode(r, def.Elem, path)
	case types.KindPrimitive:
		return c.decodePrimitive(r, def.Prim, name, path)
	case types.KindCompact:
		return c.decodeCompact(r, def.Elem, name, path)
	case types.KindSequence:
		return c.decodeSequence(r, def, name, path)
	case types.KindArray:
		return c.decodeArray(r, def, name, path)
	case types.KindTuple:
		if len(def.Elems) == 0 {
			return Unit(), nil
		}
		items := make([]Value, len(def.Elems))
		for i, elem := range def.Elems {
			if items[i], err = c.decode(r, elem, indexPath(path, i)); err != nil {
				return Value{}, err
			}
		}
		return Seq(items...), nil
	case types.KindStruct:
		fields := make([]Field, len(def.Fields))
		for i, f := range def.Fields {
			fv, err := c.decode(r, f.Type, appendPath(path, f.Name))
			if err != nil {
				return Value{}, err
			}
			fields[i] = F(f.Name, fv)
		}
		return NewStruct(fields...), nil
	case types.KindEnum:
		return c.decodeEnum(r, def, name, path)
	case types.KindOption:
		return c.decodeOption(r, def, name, path)
	case types.KindMap:
		return c.decodeMap(r, def, name, path)
	case types.KindBitSequence:
		return c.decodeBits(r, def, name, path)
	}
	return Value{}, errors.Unsupported(errors.PhaseDecode, "type kind "+def.Kind.String())
}

func (c *Codec) decodePrimitive(r *scale.Reader, p types.Prim, name string, path []string) (Value, error) {
	switch p {
	case types.PrimBool:
		b, err := r.ReadBool()
		if err != nil {
			return Value{}, located(err, name, path)
		}
		return Bool(b), nil
	case types.PrimStr:
		s, err := r.ReadString()
		if err != nil {
			return Value{}, located(err, name, path)
		}
		return Text(s), nil
	case types.PrimChar:
		start := r.Offset()
		u, err := r.ReadU32()
		if err != nil {
			return Value{}, located(err, name, path)
		}
		if u > utf8.MaxRune || !utf8.ValidRune(rune(u)) {
			return Value{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(path...).TypeName(name).Offset(start).Detail("invalid char 0x%x", u).Build()
		}
		return Text(string(rune(u))), nil
	case types.PrimEra:
		return decodeEra(r, name, path)
	}

	var (
		n   *big.Int
		err error
	)
	if p.Signed() {
		n, err = r.ReadInt(p.Width())
	} else {
		n, err = r.ReadUint(p.Width())
	}
	if err != nil {
		return Value{}, located(err, name, path)
	}
	return Value{Kind: KindInt, Int: n}, nil
}

func (c *Codec) decodeCompact(r *scale.Reader, elem, name string, path []string) (Value, error) {
	d, err := c.reg.Underlying(elem)
	if err != nil {
		return Value{}, err
	}
	switch {
	case d.IsUnit():
		return Unit(), nil
	case d.Kind == types.KindPrimitive && d.Prim.IsInteger() && !d.Prim.Signed():
		start := r.Offset()
		n, err := r.ReadCompact()
		if err != nil {
			return Value{}, located(err, name, path)
		}
		if !fitsInt(n, d.Prim.Width(), false) {
			return Value{}, errors.New(errors.PhaseDecode, errors.KindOverflow).
				Path(path...).TypeName(name).Offset(start).Value(n).
				Detail("value %s overflows %s", n, d.Prim).Build()
		}
		return Value{Kind: KindInt, Int: n}, nil
	case d.Kind == types.KindStruct && len(d.Fields) == 1:
		inner, err := c.decodeCompact(r, d.Fields[0].Type, name, path)
		if err != nil {
			return Value{}, err
		}
		return NewStruct(F(d.Fields[0].Name, inner)), nil
	case d.Kind == types.KindTuple && len(d.Elems) == 1:
		inner, err := c.decodeCompact(r, d.Elems[0], name, path)
		if err != nil {
			return Value{}, err
		}
		return Seq(inner), nil
	}
	return Value{}, errors.New(errors.PhaseDecode, errors.KindUnsupported).
		Path(path...).TypeName(name).Detail("compact encoding of %s", d).Build()
}

// nonEmpty reports whether every value of the named type occupies at least
// one byte, which bounds how many elements a length prefix can claim.
func (c *Codec) nonEmpty(name string) bool {
	d, err := c.reg.Underlying(name)
	if err != nil {
		return false
	}
	switch d.Kind {
	case types.KindTuple:
		return slices.ContainsFunc(d.Elems, c.nonEmpty)
	case types.KindStruct:
		return slices.ContainsFunc(d.Fields, func(f types.Field) bool { return c.nonEmpty(f.Type) })
	case types.KindArray:
		return d.Len > 0 && c.nonEmpty(d.Elem)
	case types.KindCompact:
		d2, err := c.reg.Underlying(d.Elem)
		return err == nil && !d2.IsUnit()
	}
	return true
}

// maxZeroSized caps the element count of collections whose elements
// encode to no bytes, since the input cannot bound them.
const maxZeroSized = 1 << 16

// checkLen rejects a length prefix of n elements that cannot fit in the
// remaining input. A second element type, when set, is the map value.
func (c *Codec) checkLen(elem, value, name string, path []string, start, n, have int) error {
	if n <= have {
		return nil
	}
	if c.nonEmpty(elem) || (value != "" && c.nonEmpty(value)) {
		return errors.Truncated(path, name, start, n, have)
	}
	if n > maxZeroSized {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(path...).TypeName(name).Offset(start).
			Detail("%d zero-sized elements exceeds limit %d", n, maxZeroSized).Build()
	}
	return nil
}

func (c *Codec) decodeSequence(r *scale.Reader, def *types.TypeDef, name string, path []string) (Value, error) {
	start := r.Offset()
	n, err := r.ReadCompactLen()
	if err != nil {
		return Value{}, located(err, name, path)
	}
	if c.isByte(def.Elem) {
		b, err := r.ReadBytes(n)
		if err != nil {
			return Value{}, located(err, name, path)
		}
		return Value{Kind: KindBytes, Bytes: b}, nil
	}
	if err := c.checkLen(def.Elem, "", name, path, start, n, r.Len()); err != nil {
		return Value{}, err
	}
	items := make([]Value, n)
	for i := range items {
		if items[i], err = c.decode(r, def.Elem, indexPath(path, i)); err != nil {
			return Value{}, err
		}
	}
	return Seq(items...), nil
}

func (c *Codec) decodeArray(r *scale.Reader, def *types.TypeDef, name string, path []string) (Value, error) {
	if c.isByte(def.Elem) {
		b, err := r.ReadBytes(int(def.Len))
		if err != nil {
			return Value{}, located(err, name, path)
		}
		return Value{Kind: KindBytes, Bytes: b}, nil
	}
	items := make([]Value, def.Len)
	for i := range items {
		var err error
		if items[i], err = c.decode(r, def.Elem, indexPath(path, i)); err != nil {
			return Value{}, err
		}
	}
	return Seq(items...), nil
}

func (c *Codec) decodeEnum(r *scale.Reader, def *types.TypeDef, name string, path []string) (Value, error) {
	start := r.Offset()
	var (
		idx uint32
		err error
	)
	switch def.DiscriminantWidth() {
	case 2:
		var u uint16
		u, err = r.ReadU16()
		idx = uint32(u)
	case 4:
		idx, err = r.ReadU32()
	default:
		var b byte
		b, err = r.ReadByte()
		idx = uint32(b)
	}
	if err != nil {
		return Value{}, located(err, name, path)
	}

	variant, ok := def.VariantByIndex(idx)
	if !ok {
		e := errors.InvalidDiscriminant(errors.PhaseDecode, path, name, idx)
		e.Offset, e.HasOffset = start, true
		return Value{}, e
	}
	out := Value{Kind: KindEnum, Index: variant.Index, Name: variant.Name}
	if variant.Type == "" {
		return out, nil
	}
	payload, err := c.decode(r, variant.Type, appendPath(path, variant.Name))
	if err != nil {
		return Value{}, err
	}
	out.Payload = &payload
	return out, nil
}

func (c *Codec) decodeOption(r *scale.Reader, def *types.TypeDef, name string, path []string) (Value, error) {
	if d, err := c.reg.Underlying(def.Elem); err == nil && d.Kind == types.KindPrimitive && d.Prim == types.PrimBool {
		start := r.Offset()
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, located(err, name, path)
		}
		switch b {
		case 0:
			return None(), nil
		case 1:
			return Some(Bool(true)), nil
		case 2:
			return Some(Bool(false)), nil
		}
		return Value{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(path...).TypeName(name).Offset(start).Detail("invalid Option<bool> byte 0x%02x", b).Build()
	}

	some, err := r.ReadOptionFlag()
	if err != nil {
		return Value{}, located(err, name, path)
	}
	if !some {
		return None(), nil
	}
	inner, err := c.decode(r, def.Elem, appendPath(path, "Some"))
	if err != nil {
		return Value{}, err
	}
	return Some(inner), nil
}

func (c *Codec) decodeMap(r *scale.Reader, def *types.TypeDef, name string, path []string) (Value, error) {
	start := r.Offset()
	n, err := r.ReadCompactLen()
	if err != nil {
		return Value{}, located(err, name, path)
	}
	if err := c.checkLen(def.Key, def.Value, name, path, start, n, r.Len()); err != nil {
		return Value{}, err
	}
	pairs := make([]Value, n)
	for i := range pairs {
		p := indexPath(path, i)
		k, err := c.decode(r, def.Key, p)
		if err != nil {
			return Value{}, err
		}
		v, err := c.decode(r, def.Value, p)
		if err != nil {
			return Value{}, err
		}
		pairs[i] = Seq(k, v)
	}
	return Seq(pairs...), nil
}
