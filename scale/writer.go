package scale

import (
	"bytes"
	"encoding/binary"
	"math/big"
)

// Writer accumulates SCALE-encoded bytes.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reset discards the written bytes and keeps the capacity.
func (w *Writer) Reset() {
	w.buf.Reset()
}

// Cap returns the capacity of the underlying buffer.
func (w *Writer) Cap() int {
	return w.buf.Cap()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes raw bytes with no prefix.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteBool writes 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// WriteU16 writes a little-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteU32 writes a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteU64 writes a little-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint writes the low width bytes of a non-negative integer, little-endian.
// Range checking is the caller's responsibility.
func (w *Writer) WriteUint(v *big.Int, width int) {
	w.buf.Write(bigToLE(v, width))
}

// WriteInt writes a two's complement little-endian integer of width bytes.
func (w *Writer) WriteInt(v *big.Int, width int) {
	if v.Sign() >= 0 {
		w.WriteUint(v, width)
		return
	}
	u := new(big.Int).Lsh(big.NewInt(1), uint(8*width))
	u.Add(u, v)
	w.WriteUint(u, width)
}

// WriteCompact writes a compact-encoded non-negative integer.
func (w *Writer) WriteCompact(v *big.Int) {
	if v.IsUint64() {
		w.WriteCompactU64(v.Uint64())
		return
	}
	raw := v.Bytes()
	n := len(raw)
	w.buf.WriteByte(byte((n-4)<<2) | 0b11)
	for i := n - 1; i >= 0; i-- {
		w.buf.WriteByte(raw[i])
	}
}

// WriteCompactU64 writes a compact-encoded uint64.
func (w *Writer) WriteCompactU64(v uint64) {
	switch {
	case v < 1<<6:
		w.buf.WriteByte(byte(v << 2))
	case v < 1<<14:
		w.WriteU16(uint16(v<<2) | 0b01)
	case v < 1<<30:
		w.WriteU32(uint32(v<<2) | 0b10)
	default:
		n := 8
		for n > 4 && byte(v>>(8*(n-1))) == 0 {
			n--
		}
		w.buf.WriteByte(byte((n-4)<<2) | 0b11)
		for i := 0; i < n; i++ {
			w.buf.WriteByte(byte(v >> (8 * i)))
		}
	}
}

// WriteVarBytes writes a compact length prefix followed by data.
func (w *Writer) WriteVarBytes(data []byte) {
	w.WriteCompactU64(uint64(len(data)))
	w.buf.Write(data)
}

// WriteString writes a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteCompactU64(uint64(len(s)))
	w.buf.WriteString(s)
}

func bigToLE(v *big.Int, width int) []byte {
	out := make([]byte, width)
	be := v.Bytes()
	for i := 0; i < len(be) && i < width; i++ {
		out[i] = be[len(be)-1-i]
	}
	return out
}
