package scale

import "math/big"

// Compact integer classes, selected by the low two bits of the first byte.
const (
	ModeSingle = 0b00 // value < 2^6, one byte
	ModeTwo    = 0b01 // value < 2^14, two bytes
	ModeFour   = 0b10 // value < 2^30, four bytes
	ModeBig    = 0b11 // upper six bits hold byte length minus four
)

// MaxCompactBytes is the longest big-integer payload the prefix can describe.
const MaxCompactBytes = 63 + 4

// CompactLen returns the encoded length of v.
func CompactLen(v uint64) int {
	switch {
	case v < 1<<6:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<30:
		return 4
	}
	n := 8
	for n > 4 && byte(v>>(8*(n-1))) == 0 {
		n--
	}
	return n + 1
}

// CompactLenBig returns the encoded length of a non-negative big integer.
func CompactLenBig(v *big.Int) int {
	if v.IsUint64() {
		return CompactLen(v.Uint64())
	}
	return len(v.Bytes()) + 1
}

// EncodeCompact returns the compact encoding of v.
func EncodeCompact(v uint64) []byte {
	w := NewWriter()
	w.WriteCompactU64(v)
	return w.Bytes()
}

// DecodeCompact decodes a compact integer from the front of data and returns
// the value with the number of bytes consumed.
func DecodeCompact(data []byte) (*big.Int, int, error) {
	r := NewReader(data)
	v, err := r.ReadCompact()
	if err != nil {
		return nil, 0, err
	}
	return v, r.Offset(), nil
}
