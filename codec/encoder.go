package codec

import (
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/scale"
	"github.com/wippyai/subscript/types"
)

func (c *Codec) encode(w *scale.Writer, name string, v Value, path []string) error {
	def, err := c.reg.Resolve(name)
	if err != nil {
		return err
	}

	switch def.Kind {
	case types.KindAlias:
		return c.encode(w, def.Elem, v, path)
	case types.KindPrimitive:
		return c.encodePrimitive(w, def.Prim, name, v, path)
	case types.KindCompact:
		return c.encodeCompact(w, def.Elem, name, v, path)
	case types.KindSequence:
		return c.encodeSequence(w, def, name, v, path)
	case types.KindArray:
		return c.encodeArray(w, def, name, v, path)
	case types.KindTuple:
		return c.encodeTuple(w, def, name, v, path)
	case types.KindStruct:
		return c.encodeStruct(w, def, name, v, path)
	case types.KindEnum:
		return c.encodeEnum(w, def, name, v, path)
	case types.KindOption:
		return c.encodeOption(w, def, name, v, path)
	case types.KindMap:
		return c.encodeMap(w, def, name, v, path)
	case types.KindBitSequence:
		return c.encodeBits(w, def, name, v, path)
	}
	return errors.Unsupported(errors.PhaseEncode, "type kind "+def.Kind.String())
}

func mismatch(path []string, typeName string, v Value) error {
	return errors.TypeMismatch(errors.PhaseEncode, path, typeName, v.Kind.String())
}

func (c *Codec) encodePrimitive(w *scale.Writer, p types.Prim, name string, v Value, path []string) error {
	switch p {
	case types.PrimBool:
		if v.Kind != KindBool {
			return mismatch(path, name, v)
		}
		w.WriteBool(v.Bool)
		return nil
	case types.PrimStr:
		switch v.Kind {
		case KindText:
			w.WriteString(v.Text)
		case KindBytes:
			if !utf8.Valid(v.Bytes) {
				return errors.InvalidUTF8(errors.PhaseEncode, path, v.Bytes)
			}
			w.WriteVarBytes(v.Bytes)
		default:
			return mismatch(path, name, v)
		}
		return nil
	case types.PrimChar:
		var r rune
		switch v.Kind {
		case KindText:
			if utf8.RuneCountInString(v.Text) != 1 {
				return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
					Path(path...).TypeName(name).Detail("char needs exactly one character, got %q", v.Text).Build()
			}
			r, _ = utf8.DecodeRuneInString(v.Text)
		case KindInt:
			if v.Int == nil || !v.Int.IsInt64() || v.Int.Int64() < 0 || v.Int.Int64() > utf8.MaxRune || !utf8.ValidRune(rune(v.Int.Int64())) {
				return errors.Overflow(errors.PhaseEncode, path, v.Int, name)
			}
			r = rune(v.Int.Int64())
		default:
			return mismatch(path, name, v)
		}
		w.WriteU32(uint32(r))
		return nil
	case types.PrimEra:
		return encodeEra(w, name, v, path)
	}

	n, err := intOf(v, name, path)
	if err != nil {
		return err
	}
	width := p.Width()
	if !fitsInt(n, width, p.Signed()) {
		return errors.Overflow(errors.PhaseEncode, path, n, name)
	}
	if p.Signed() {
		w.WriteInt(n, width)
	} else {
		w.WriteUint(n, width)
	}
	return nil
}

// intOf accepts an integer value or decimal or 0x-hex text.
func intOf(v Value, name string, path []string) (*big.Int, error) {
	switch v.Kind {
	case KindInt:
		if v.Int != nil {
			return v.Int, nil
		}
	case KindText:
		if n, ok := new(big.Int).SetString(strings.TrimSpace(v.Text), 0); ok {
			return n, nil
		}
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(path...).TypeName(name).Detail("%q is not an integer", v.Text).Build()
	}
	return nil, mismatch(path, name, v)
}

func fitsInt(n *big.Int, width int, signed bool) bool {
	bits := width * 8
	if !signed {
		return n.Sign() >= 0 && n.BitLen() <= bits
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	if n.Sign() >= 0 {
		return n.Cmp(limit) < 0
	}
	return new(big.Int).Neg(n).Cmp(limit) <= 0
}

// encodeCompact writes an unsigned integer in compact form. Compact<T>
// over a single-field wrapper of an integer is transparent, and
// Compact<()> writes nothing.
func (c *Codec) encodeCompact(w *scale.Writer, elem, name string, v Value, path []string) error {
	d, err := c.reg.Underlying(elem)
	if err != nil {
		return err
	}
	switch {
	case d.IsUnit():
		return nil
	case d.Kind == types.KindPrimitive && d.Prim.IsInteger() && !d.Prim.Signed():
		n, err := intOf(v, name, path)
		if err != nil {
			return err
		}
		if !fitsInt(n, d.Prim.Width(), false) {
			return errors.Overflow(errors.PhaseEncode, path, n, name)
		}
		w.WriteCompact(n)
		return nil
	case d.Kind == types.KindStruct && len(d.Fields) == 1:
		inner := v
		if v.Kind == KindStruct {
			f, ok := v.Field(d.Fields[0].Name)
			if !ok {
				return errors.FieldMissing(errors.PhaseEncode, path, d.Fields[0].Name)
			}
			inner = f
		}
		return c.encodeCompact(w, d.Fields[0].Type, name, inner, path)
	case d.Kind == types.KindTuple && len(d.Elems) == 1:
		inner := v
		if v.Kind == KindSequence && len(v.Items) == 1 {
			inner = v.Items[0]
		}
		return c.encodeCompact(w, d.Elems[0], name, inner, path)
	}
	return errors.New(errors.PhaseEncode, errors.KindUnsupported).
		Path(path...).TypeName(name).Detail("compact encoding of %s", d).Build()
}

// isByte reports whether name is u8 after following aliases.
func (c *Codec) isByte(name string) bool {
	d, err := c.reg.Underlying(name)
	return err == nil && d.Kind == types.KindPrimitive && d.Prim == types.PrimU8
}

// bytesOf accepts bytes, 0x-hex or raw text, or a sequence of small integers.
func bytesOf(v Value, name string, path []string) ([]byte, error) {
	switch v.Kind {
	case KindBytes:
		return v.Bytes, nil
	case KindText:
		if b, ok := parseHex(v.Text); ok {
			return b, nil
		}
		return []byte(v.Text), nil
	case KindSequence:
		out := make([]byte, len(v.Items))
		for i, it := range v.Items {
			n, err := intOf(it, "u8", indexPath(path, i))
			if err != nil {
				return nil, err
			}
			if !fitsInt(n, 1, false) {
				return nil, errors.Overflow(errors.PhaseEncode, indexPath(path, i), n, "u8")
			}
			out[i] = byte(n.Uint64())
		}
		return out, nil
	}
	return nil, mismatch(path, name, v)
}

func (c *Codec) encodeSequence(w *scale.Writer, def *types.TypeDef, name string, v Value, path []string) error {
	if c.isByte(def.Elem) {
		b, err := bytesOf(v, name, path)
		if err != nil {
			return err
		}
		w.WriteVarBytes(b)
		return nil
	}
	if v.Kind != KindSequence {
		return mismatch(path, name, v)
	}
	w.WriteCompactU64(uint64(len(v.Items)))
	for i, it := range v.Items {
		if err := c.encode(w, def.Elem, it, indexPath(path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) encodeArray(w *scale.Writer, def *types.TypeDef, name string, v Value, path []string) error {
	if c.isByte(def.Elem) {
		b, err := bytesOf(v, name, path)
		if err != nil {
			return err
		}
		if len(b) != int(def.Len) {
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(path...).TypeName(name).Detail("expected %d bytes, got %d", def.Len, len(b)).Build()
		}
		w.WriteBytes(b)
		return nil
	}
	if v.Kind != KindSequence {
		return mismatch(path, name, v)
	}
	if len(v.Items) != int(def.Len) {
		return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(path...).TypeName(name).Detail("expected %d elements, got %d", def.Len, len(v.Items)).Build()
	}
	for i, it := range v.Items {
		if err := c.encode(w, def.Elem, it, indexPath(path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) encodeTuple(w *scale.Writer, def *types.TypeDef, name string, v Value, path []string) error {
	if len(def.Elems) == 0 {
		if v.Kind == KindUnit || v.Kind == KindSequence && len(v.Items) == 0 {
			return nil
		}
		return mismatch(path, name, v)
	}
	if v.Kind != KindSequence {
		return mismatch(path, name, v)
	}
	if len(v.Items) != len(def.Elems) {
		return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(path...).TypeName(name).Detail("expected %d tuple elements, got %d", len(def.Elems), len(v.Items)).Build()
	}
	for i, elem := range def.Elems {
		if err := c.encode(w, elem, v.Items[i], indexPath(path, i)); err != nil {
			return err
		}
	}
	return nil
}

// encodeStruct writes fields in declared order. Named values must match
// the declared field set exactly; a sequence is taken positionally.
func (c *Codec) encodeStruct(w *scale.Writer, def *types.TypeDef, name string, v Value, path []string) error {
	switch v.Kind {
	case KindStruct:
		for _, f := range v.Fields {
			if !hasField(def, f.Name) {
				return errors.FieldUnknown(errors.PhaseEncode, path, f.Name)
			}
		}
		for _, f := range def.Fields {
			fv, ok := v.Field(f.Name)
			if !ok {
				return errors.FieldMissing(errors.PhaseEncode, path, f.Name)
			}
			if err := c.encode(w, f.Type, fv, appendPath(path, f.Name)); err != nil {
				return err
			}
		}
		return nil
	case KindSequence:
		if len(v.Items) != len(def.Fields) {
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(path...).TypeName(name).Detail("expected %d fields, got %d", len(def.Fields), len(v.Items)).Build()
		}
		for i, f := range def.Fields {
			if err := c.encode(w, f.Type, v.Items[i], appendPath(path, f.Name)); err != nil {
				return err
			}
		}
		return nil
	case KindUnit:
		if len(def.Fields) == 0 {
			return nil
		}
	}
	return mismatch(path, name, v)
}

func hasField(def *types.TypeDef, name string) bool {
	for _, f := range def.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// encodeEnum accepts an enum value, text naming a unit variant, or a
// single-field struct {Variant: payload}.
func (c *Codec) encodeEnum(w *scale.Writer, def *types.TypeDef, name string, v Value, path []string) error {
	var (
		variant *types.Variant
		payload *Value
		ok      bool
		label   string
	)
	switch v.Kind {
	case KindEnum:
		if v.Name != "" {
			label = v.Name
			variant, ok = def.VariantByName(v.Name)
		} else {
			variant, ok = def.VariantByIndex(v.Index)
		}
		payload = v.Payload
	case KindText:
		label = v.Text
		variant, ok = def.VariantByName(v.Text)
	case KindStruct:
		if len(v.Fields) != 1 {
			return mismatch(path, name, v)
		}
		label = v.Fields[0].Name
		variant, ok = def.VariantByName(label)
		payload = &v.Fields[0].Value
	default:
		return mismatch(path, name, v)
	}
	if !ok {
		if label == "" {
			return errors.InvalidDiscriminant(errors.PhaseEncode, path, name, v.Index)
		}
		return errors.New(errors.PhaseEncode, errors.KindInvalidVariant).
			Path(path...).TypeName(name).Value(label).Detail("unknown variant %q", label).Build()
	}

	switch def.DiscriminantWidth() {
	case 2:
		w.WriteU16(uint16(variant.Index))
	case 4:
		w.WriteU32(variant.Index)
	default:
		w.Byte(byte(variant.Index))
	}

	vpath := appendPath(path, variant.Name)
	if variant.Type == "" {
		if payload != nil && !payload.IsUnit() {
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(vpath...).TypeName(name).Detail("variant %s takes no payload", variant.Name).Build()
		}
		return nil
	}
	if payload == nil {
		u := Unit()
		payload = &u
	}
	return c.encode(w, variant.Type, *payload, vpath)
}

// encodeOption accepts None, Some(x), unit for None, or a bare value for
// Some. Only the names None and Some select the option itself, so an
// index-only enum value is always a payload. Option<bool> is a single byte: 0 None, 1 true, 2 false.
func (c *Codec) encodeOption(w *scale.Writer, def *types.TypeDef, name string, v Value, path []string) error {
	inner, some := optionOf(v)
	if d, err := c.reg.Underlying(def.Elem); err == nil && d.Kind == types.KindPrimitive && d.Prim == types.PrimBool {
		if !some {
			w.Byte(0)
			return nil
		}
		if inner.Kind != KindBool {
			return mismatch(path, name, inner)
		}
		if inner.Bool {
			w.Byte(1)
		} else {
			w.Byte(2)
		}
		return nil
	}
	if !some {
		w.Byte(0)
		return nil
	}
	w.Byte(1)
	return c.encode(w, def.Elem, inner, appendPath(path, "Some"))
}

func optionOf(v Value) (Value, bool) {
	switch {
	case v.Kind == KindUnit:
		return Value{}, false
	case v.Kind == KindEnum && v.Name == "None":
		return Value{}, false
	case v.Kind == KindEnum && v.Name == "Some":
		if v.Payload == nil {
			return Unit(), true
		}
		return *v.Payload, true
	}
	return v, true
}

// encodeMap accepts a sequence of [key, value] pairs, or a struct whose
// field names are the keys.
func (c *Codec) encodeMap(w *scale.Writer, def *types.TypeDef, name string, v Value, path []string) error {
	switch v.Kind {
	case KindSequence:
		w.WriteCompactU64(uint64(len(v.Items)))
		for i, pair := range v.Items {
			p := indexPath(path, i)
			if pair.Kind != KindSequence || len(pair.Items) != 2 {
				return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
					Path(p...).TypeName(name).Detail("map entry must be a [key, value] pair").Build()
			}
			if err := c.encode(w, def.Key, pair.Items[0], p); err != nil {
				return err
			}
			if err := c.encode(w, def.Value, pair.Items[1], p); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		w.WriteCompactU64(uint64(len(v.Fields)))
		for _, f := range v.Fields {
			p := appendPath(path, f.Name)
			if err := c.encode(w, def.Key, Text(f.Name), p); err != nil {
				return err
			}
			if err := c.encode(w, def.Value, f.Value, p); err != nil {
				return err
			}
		}
		return nil
	}
	return mismatch(path, name, v)
}
