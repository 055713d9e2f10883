package protocol

import "math"

// Encoder is a binary encoder that appends data to an internal buffer.
// It is designed for efficient encoding without allocations in the hot path.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{
		buf: make([]byte, 0, 64),
	}
}

// NewEncoderWithBuffer creates an encoder that appends to buf.
// Used to encode a frame payload directly behind its length prefix.
func NewEncoderWithBuffer(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

// Reset resets the encoder to empty state, reusing the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded bytes. The returned slice is valid until
// the next call to Reset or any Write method.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes currently encoded.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteByte appends a single byte.
// Note: This intentionally doesn't return error (unlike io.ByteWriter)
// because our buffer is unbounded and can always append.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteUint32 appends a uint32 in big-endian byte order.
func (e *Encoder) WriteUint32(v uint32) {
	e.buf = append(e.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteFloat32 appends a float32 in IEEE 754 format (big-endian).
func (e *Encoder) WriteFloat32(v float32) {
	e.WriteUint32(math.Float32bits(v))
}

// WriteVec3 appends the three components of v in order.
func (e *Encoder) WriteVec3(v Vec3) {
	e.WriteFloat32(v[0])
	e.WriteFloat32(v[1])
	e.WriteFloat32(v[2])
}

// PutUint32 overwrites four bytes at offset off with v in big-endian order.
func (e *Encoder) PutUint32(off int, v uint32) {
	e.buf[off] = byte(v >> 24)
	e.buf[off+1] = byte(v >> 16)
	e.buf[off+2] = byte(v >> 8)
	e.buf[off+3] = byte(v)
}
