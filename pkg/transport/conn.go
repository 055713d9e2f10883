package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/voxel-dev/voxnet/pkg/protocol"
)

// ScratchSize is the size of the per-connection read buffer.
const ScratchSize = 1024

// Observer receives per-frame traffic notifications. Implementations must
// be cheap; they run on the tick goroutine.
type Observer interface {
	FrameReceived(bytes int)
	FrameSent(bytes int)
}

// Options configures a Conn.
type Options struct {
	// MaxFrameSize is the largest payload accepted from the peer.
	// Default: protocol.DefaultMaxFrameSize.
	MaxFrameSize int

	// ReadPoll bounds a read on sockets without raw descriptor access.
	// Default: 1ms.
	ReadPoll time.Duration

	// WriteTimeout bounds a single Send so one stalled peer cannot hold
	// the tick. Default: 50ms.
	WriteTimeout time.Duration

	// Observer is notified of every frame. Optional.
	Observer Observer
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		ReadPoll:     time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	if o.ReadPoll <= 0 {
		o.ReadPoll = d.ReadPoll
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	return o
}

// Conn owns one socket and the bytes received on it that do not yet form
// a complete frame. It is not safe for concurrent use; the tick goroutine
// is its only caller.
type Conn struct {
	sock    net.Conn
	raw     syscall.RawConn
	opts    Options
	buf     []byte
	out     []byte
	scratch [ScratchSize]byte
}

// New wraps sock. The Conn takes ownership and closes it on Close.
func New(sock net.Conn, opts Options) *Conn {
	return &Conn{
		sock: sock,
		raw:  rawConn(sock),
		opts: opts.withDefaults(),
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}

// Buffered returns the number of received bytes not yet returned as a
// message.
func (c *Conn) Buffered() int {
	return len(c.buf)
}

// Close closes the socket.
func (c *Conn) Close() error {
	return c.sock.Close()
}

// Receive returns the next complete message, or nil when none is available
// yet. Complete frames already buffered are returned before the socket is
// read again, so callers drain by looping until nil. A read that fills the
// scratch buffer is followed by another read so frames larger than
// ScratchSize complete within one drain. Any error matches ErrDisconnected
// and the Conn must be discarded.
func (c *Conn) Receive() (protocol.Message, error) {
	for {
		if m, err := c.next(); m != nil || err != nil {
			return m, err
		}

		n, err := c.read(c.scratch[:])
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				return nil, nil
			}
			return nil, disconnected("read", c.RemoteAddr(), err)
		}
		if n == 0 {
			return nil, disconnected("read", c.RemoteAddr(), io.EOF)
		}
		c.buf = append(c.buf, c.scratch[:n]...)
		if n < len(c.scratch) {
			break
		}
	}

	return c.next()
}

// next pops one complete frame off the accumulation buffer.
func (c *Conn) next() (protocol.Message, error) {
	payload, n, err := protocol.SplitFrame(c.buf, c.opts.MaxFrameSize)
	if err != nil {
		return nil, disconnected("frame", c.RemoteAddr(), err)
	}
	if n == 0 {
		return nil, nil
	}

	m, err := protocol.Decode(payload)
	c.buf = c.buf[:copy(c.buf, c.buf[n:])]
	if err != nil {
		return nil, disconnected("decode", c.RemoteAddr(), err)
	}

	if c.opts.Observer != nil {
		c.opts.Observer.FrameReceived(n)
	}
	return m, nil
}

func (c *Conn) read(p []byte) (int, error) {
	if c.raw != nil {
		return rawRead(c.raw, p)
	}
	return c.pollRead(p)
}

// pollRead emulates a non-blocking read with a short deadline. A timeout
// means no data.
func (c *Conn) pollRead(p []byte) (int, error) {
	if err := c.sock.SetReadDeadline(time.Now().Add(c.opts.ReadPoll)); err != nil {
		return 0, err
	}
	n, err := c.sock.Read(p)
	if n > 0 {
		return n, nil
	}
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return 0, nil
	case IsTimeout(err), errors.Is(err, os.ErrDeadlineExceeded):
		return 0, errWouldBlock
	default:
		return 0, err
	}
}

// Send frames m and writes it in a single write. A failed or short write
// matches ErrDisconnected; there is no partial-write retry.
func (c *Conn) Send(m protocol.Message) error {
	c.out = protocol.AppendFrame(c.out[:0], m)

	if err := c.sock.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return disconnected("write", c.RemoteAddr(), err)
	}
	n, err := c.sock.Write(c.out)
	if err != nil {
		return disconnected("write", c.RemoteAddr(), err)
	}
	if n != len(c.out) {
		return disconnected("write", c.RemoteAddr(), io.ErrShortWrite)
	}

	if c.opts.Observer != nil {
		c.opts.Observer.FrameSent(n)
	}
	return nil
}
