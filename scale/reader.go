package scale

import (
	"encoding/binary"
	"math/big"
	"unicode/utf8"

	"github.com/wippyai/subscript/errors"
)

// Reader decodes SCALE primitives from a byte slice with position tracking.
// Errors carry the byte offset where the failing read began.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data. The slice is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current byte position.
func (r *Reader) Offset() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Remaining returns the unread bytes. The result aliases the input.
func (r *Reader) Remaining() []byte {
	return r.data[r.pos:]
}

func (r *Reader) need(n int, what string) error {
	if n < 0 || r.Len() < n {
		return errors.Truncated(nil, what, r.pos, n, r.Len())
	}
	return nil
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1, "u8"); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes into a fresh slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n, "bytes"); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2, "u16"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.need(4, "u32"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	if err := r.need(8, "u64"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadUint reads an unsigned little-endian integer of width bytes.
func (r *Reader) ReadUint(width int) (*big.Int, error) {
	if err := r.need(width, uintName(width)); err != nil {
		return nil, err
	}
	v := leToBig(r.data[r.pos : r.pos+width])
	r.pos += width
	return v, nil
}

// ReadInt reads a two's complement little-endian integer of width bytes.
func (r *Reader) ReadInt(width int) (*big.Int, error) {
	if err := r.need(width, intName(width)); err != nil {
		return nil, err
	}
	raw := r.data[r.pos : r.pos+width]
	v := leToBig(raw)
	if width > 0 && raw[width-1]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*width)))
	}
	r.pos += width
	return v, nil
}

// ReadBool reads a single byte boolean. Only 0 and 1 are accepted.
func (r *Reader) ReadBool() (bool, error) {
	off := r.pos
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		TypeName("bool").Offset(off).Detail("invalid bool byte 0x%02x", b).Build()
}

// ReadOptionFlag reads the Option tag byte and reports whether a value follows.
func (r *Reader) ReadOptionFlag() (bool, error) {
	off := r.pos
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		TypeName("Option").Offset(off).Detail("invalid option tag 0x%02x", b).Build()
}

// ReadCompact reads a compact-encoded unsigned integer.
// Non-canonical encodings are rejected.
func (r *Reader) ReadCompact() (*big.Int, error) {
	start := r.pos
	b0, err := r.ReadByte()
	if err != nil {
		return nil, r.compactTruncated(start, 1)
	}

	switch b0 & 0b11 {
	case 0b00:
		return big.NewInt(int64(b0 >> 2)), nil
	case 0b01:
		if r.Len() < 1 {
			return nil, r.compactTruncated(start, 2)
		}
		v := uint64(binary.LittleEndian.Uint16(r.data[start:])) >> 2
		r.pos++
		if v < 1<<6 {
			return nil, errors.BadCompact(nil, start, "two-byte form holds a single-byte value")
		}
		return new(big.Int).SetUint64(v), nil
	case 0b10:
		if r.Len() < 3 {
			return nil, r.compactTruncated(start, 4)
		}
		v := uint64(binary.LittleEndian.Uint32(r.data[start:])) >> 2
		r.pos += 3
		if v < 1<<14 {
			return nil, errors.BadCompact(nil, start, "four-byte form holds a two-byte value")
		}
		return new(big.Int).SetUint64(v), nil
	}

	n := int(b0>>2) + 4
	if r.Len() < n {
		return nil, r.compactTruncated(start, n+1)
	}
	raw := r.data[r.pos : r.pos+n]
	r.pos += n
	if raw[n-1] == 0 {
		return nil, errors.BadCompact(nil, start, "big-integer form has a zero most significant byte")
	}
	v := leToBig(raw)
	if n == 4 && v.Cmp(big.NewInt(1<<30)) < 0 {
		return nil, errors.BadCompact(nil, start, "big-integer form holds a four-byte value")
	}
	return v, nil
}

func (r *Reader) compactTruncated(start, need int) error {
	have := len(r.data) - start
	r.pos = len(r.data)
	return errors.Truncated(nil, "Compact", start, need, have)
}

// ReadCompactU64 reads a compact integer that must fit in 64 bits.
func (r *Reader) ReadCompactU64() (uint64, error) {
	start := r.pos
	v, err := r.ReadCompact()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, errors.New(errors.PhaseDecode, errors.KindOverflow).
			TypeName("Compact<u64>").Offset(start).Detail("value %s exceeds 64 bits", v).Build()
	}
	return v.Uint64(), nil
}

// ReadCompactLen reads a compact length prefix.
func (r *Reader) ReadCompactLen() (int, error) {
	start := r.pos
	v, err := r.ReadCompactU64()
	if err != nil {
		return 0, err
	}
	if v > uint64(maxLen) {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Offset(start).Detail("length %d exceeds limit", v).Build()
	}
	return int(v), nil
}

// ReadVarBytes reads a compact length followed by that many bytes.
func (r *Reader) ReadVarBytes() ([]byte, error) {
	n, err := r.ReadCompactLen()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(n)
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	start := r.pos
	b, err := r.ReadVarBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		e := errors.InvalidUTF8(errors.PhaseDecode, nil, b)
		e.Offset, e.HasOffset = start, true
		return "", e
	}
	return string(b), nil
}

// maxLen bounds length prefixes so corrupt input cannot request huge allocations.
const maxLen = 1 << 30

func leToBig(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

func uintName(width int) string {
	switch width {
	case 1:
		return "u8"
	case 2:
		return "u16"
	case 4:
		return "u32"
	case 8:
		return "u64"
	case 16:
		return "u128"
	case 32:
		return "u256"
	}
	return "uint"
}

func intName(width int) string {
	switch width {
	case 1:
		return "i8"
	case 2:
		return "i16"
	case 4:
		return "i32"
	case 8:
		return "i64"
	case 16:
		return "i128"
	case 32:
		return "i256"
	}
	return "int"
}
