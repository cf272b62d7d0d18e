package codec

import (
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/scale"
	"github.com/wippyai/subscript/types"
)

// bitPosition maps bit i to its byte and mask inside the packed store.
// Store words are little-endian; Lsb0 counts from the low bit of each word
// and Msb0 from the high bit.
func bitPosition(i, storeWidth int, msb0 bool) (int, byte) {
	wordBits := storeWidth * 8
	word, bit := i/wordBits, i%wordBits
	if msb0 {
		bit = wordBits - 1 - bit
	}
	return word*storeWidth + bit/8, 1 << (bit % 8)
}

func storeBytes(n, storeWidth int) int {
	wordBits := storeWidth * 8
	return (n + wordBits - 1) / wordBits * storeWidth
}

func (c *Codec) encodeBits(w *scale.Writer, def *types.TypeDef, name string, v Value, path []string) error {
	if v.Kind != KindSequence {
		return mismatch(path, name, v)
	}
	width := max(def.BitStoreWidth, 1)
	out := make([]byte, storeBytes(len(v.Items), width))
	for i, it := range v.Items {
		var set bool
		switch it.Kind {
		case KindBool:
			set = it.Bool
		case KindInt:
			n, ok := it.Uint64()
			if !ok || n > 1 {
				return errors.Overflow(errors.PhaseEncode, indexPath(path, i), it.Int, "bit")
			}
			set = n == 1
		default:
			return mismatch(indexPath(path, i), "bit", it)
		}
		if set {
			idx, mask := bitPosition(i, width, def.BitMsb0)
			out[idx] |= mask
		}
	}
	w.WriteCompactU64(uint64(len(v.Items)))
	w.WriteBytes(out)
	return nil
}

func (c *Codec) decodeBits(r *scale.Reader, def *types.TypeDef, name string, path []string) (Value, error) {
	n, err := r.ReadCompactLen()
	if err != nil {
		return Value{}, located(err, name, path)
	}
	width := max(def.BitStoreWidth, 1)
	raw, err := r.ReadBytes(storeBytes(n, width))
	if err != nil {
		return Value{}, located(err, name, path)
	}
	items := make([]Value, n)
	for i := range items {
		idx, mask := bitPosition(i, width, def.BitMsb0)
		items[i] = Bool(raw[idx]&mask != 0)
	}
	return Seq(items...), nil
}
