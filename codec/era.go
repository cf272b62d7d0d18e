package codec

import (
	"math/bits"

	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/scale"
)

// Immortal is the era of a transaction valid forever.
func Immortal() Value { return VariantAt(0, "Immortal") }

// Mortal is the era of a transaction valid for period blocks starting at
// the block whose number modulo period equals phase.
func Mortal(period, phase uint64) Value {
	return VariantAt(1, "Mortal", Seq(Uint(period), Uint(phase)))
}

// MortalAt returns the mortal era covering period blocks from current.
// The period is rounded up to a power of two between 4 and 65536.
func MortalAt(period, current uint64) Value {
	p := clampPeriod(period)
	quantize := max(p>>12, 1)
	phase := current % p / quantize * quantize
	return Mortal(p, phase)
}

func clampPeriod(period uint64) uint64 {
	p := uint64(1)
	if period > 1 {
		p = 1 << bits.Len64(period-1)
	}
	return min(max(p, 4), 1<<16)
}

func encodeEra(w *scale.Writer, name string, v Value, path []string) error {
	label := v.Name
	var payload *Value
	switch v.Kind {
	case KindText:
		label = v.Text
	case KindEnum:
		payload = v.Payload
		if label == "" {
			label = "Immortal"
			if v.Index == 1 {
				label = "Mortal"
			}
		}
	case KindUnit:
		label = "Immortal"
	default:
		return mismatch(path, name, v)
	}

	switch label {
	case "Immortal":
		w.Byte(0)
		return nil
	case "Mortal":
	default:
		return errors.New(errors.PhaseEncode, errors.KindInvalidVariant).
			Path(path...).TypeName(name).Detail("unknown era %q", label).Build()
	}

	if payload == nil {
		return errors.FieldMissing(errors.PhaseEncode, path, "period")
	}
	var pv, phv Value
	switch payload.Kind {
	case KindSequence:
		if len(payload.Items) != 2 {
			return mismatch(path, name, *payload)
		}
		pv, phv = payload.Items[0], payload.Items[1]
	case KindStruct:
		var ok bool
		if pv, ok = payload.Field("period"); !ok {
			return errors.FieldMissing(errors.PhaseEncode, path, "period")
		}
		if phv, ok = payload.Field("phase"); !ok {
			return errors.FieldMissing(errors.PhaseEncode, path, "phase")
		}
	default:
		return mismatch(path, name, *payload)
	}
	period, ok1 := pv.Uint64()
	phase, ok2 := phv.Uint64()
	if !ok1 || !ok2 {
		return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(path...).TypeName(name).Detail("era period and phase must be integers").Build()
	}

	p := clampPeriod(period)
	quantize := max(p>>12, 1)
	if phase >= p {
		return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(path...).TypeName(name).Detail("phase %d not below period %d", phase, p).Build()
	}
	low := min(max(uint64(bits.TrailingZeros64(p))-1, 1), 15)
	encoded := low | phase/quantize<<4
	w.WriteU16(uint16(encoded))
	return nil
}

func decodeEra(r *scale.Reader, name string, path []string) (Value, error) {
	start := r.Offset()
	first, err := r.ReadByte()
	if err != nil {
		return Value{}, located(err, name, path)
	}
	if first == 0 {
		return Immortal(), nil
	}
	second, err := r.ReadByte()
	if err != nil {
		return Value{}, located(err, name, path)
	}
	encoded := uint64(first) | uint64(second)<<8
	period := uint64(2) << (encoded % 16)
	quantize := max(period>>12, 1)
	phase := (encoded >> 4) * quantize
	if period < 4 || phase >= period {
		return Value{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(path...).TypeName(name).Offset(start).
			Detail("invalid mortal era 0x%04x", encoded).Build()
	}
	return Mortal(period, phase), nil
}
