package protocol

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the length prefix in bytes.
	FrameHeaderSize = 4

	// DefaultMaxFrameSize is the largest payload a receiver accepts by default.
	DefaultMaxFrameSize = 64 * 1024
)

// Frame errors.
var (
	ErrFrameTooLarge = errors.New("protocol: frame payload too large")
)

// Frame wire format:
//
//	┌───────────────────────────────┬───────────────────────────────┐
//	│ Payload Length                │ Payload                       │
//	│ (4 bytes, big-endian uint32)  │ (Length bytes)                │
//	└───────────────────────────────┴───────────────────────────────┘
//
// The length counts only the payload, not the header itself.

// AppendFrame appends the framed encoding of m to dst and returns the
// extended slice. A payload that does not fit the header is a programming
// error and panics.
func AppendFrame(dst []byte, m Message) []byte {
	if m == nil {
		m = None{}
	}
	start := len(dst)
	e := NewEncoderWithBuffer(append(dst, 0, 0, 0, 0))
	EncodeTo(e, m)

	n := e.Len() - start - FrameHeaderSize
	if n < 0 || uint64(n) > math.MaxUint32 {
		panic(fmt.Sprintf("protocol: cannot frame %s payload of %d bytes", m.Kind(), n))
	}
	e.PutUint32(start, uint32(n))
	return e.Bytes()
}

// EncodeFrame returns the framed encoding of m.
func EncodeFrame(m Message) []byte {
	return AppendFrame(make([]byte, 0, 32), m)
}

// ReadFrameLength parses the length prefix at the start of b.
// ok is false when fewer than FrameHeaderSize bytes are available.
func ReadFrameLength(b []byte) (length uint32, ok bool) {
	if len(b) < FrameHeaderSize {
		return 0, false
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}

// SplitFrame locates the first complete frame in buf. It returns the
// payload and the total number of bytes the frame occupies, or n == 0 when
// the frame is still incomplete. A declared length above max is rejected
// with ErrFrameTooLarge.
func SplitFrame(buf []byte, max int) (payload []byte, n int, err error) {
	length, ok := ReadFrameLength(buf)
	if !ok {
		return nil, 0, nil
	}
	if uint64(length) > uint64(max) {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, max)
	}
	total := FrameHeaderSize + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}
	return buf[FrameHeaderSize:total], total, nil
}

// ReadFrame reads and decodes one complete frame from a blocking reader.
func ReadFrame(r io.Reader, max int) (Message, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length, _ := ReadFrameLength(header)
	if uint64(length) > uint64(max) {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return Decode(payload)
}

// WriteFrame writes the framed encoding of m to w.
func WriteFrame(w io.Writer, m Message) error {
	_, err := w.Write(EncodeFrame(m))
	return err
}
