package nettest

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/voxel-dev/voxnet/pkg/protocol"
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("nettest: injected failure")

// Addr is a fixed net.Addr.
type Addr string

func (a Addr) Network() string { return "fake" }
func (a Addr) String() string  { return string(a) }

// FakeConn is a scripted net.Conn. All methods are safe for concurrent use.
type FakeConn struct {
	mu       sync.Mutex
	reads    [][]byte
	readErr  error
	eof      bool
	written  bytes.Buffer
	writes   int
	writeErr error
	closed   bool
	remote   Addr
}

// NewFakeConn returns an idle FakeConn.
func NewFakeConn() *FakeConn {
	return &FakeConn{remote: "fake:0"}
}

// NewFakeConnAddr returns an idle FakeConn reporting addr as its remote
// address.
func NewFakeConnAddr(addr string) *FakeConn {
	return &FakeConn{remote: Addr(addr)}
}

// Feed queues chunks; each is returned by one Read call (split further only
// if the caller's buffer is smaller).
func (c *FakeConn) Feed(chunks ...[]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range chunks {
		c.reads = append(c.reads, append([]byte(nil), ch...))
	}
}

// FeedBytewise queues b one byte per Read call.
func (c *FakeConn) FeedBytewise(b []byte) {
	for i := range b {
		c.Feed(b[i : i+1])
	}
}

// FeedMessages queues the frames of msgs as a single chunk.
func (c *FakeConn) FeedMessages(msgs ...protocol.Message) {
	var buf []byte
	for _, m := range msgs {
		buf = protocol.AppendFrame(buf, m)
	}
	c.Feed(buf)
}

// CloseRemote makes reads report io.EOF once queued chunks are consumed,
// as if the peer closed the connection.
func (c *FakeConn) CloseRemote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eof = true
}

// FailReads makes reads return err once queued chunks are consumed.
func (c *FakeConn) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	c.readErr = err
}

// FailWrites makes every subsequent Write return err.
func (c *FakeConn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	c.writeErr = err
}

// Writes returns the number of successful Write calls.
func (c *FakeConn) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Written returns a copy of all bytes written so far.
func (c *FakeConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// Sent decodes every frame written so far.
func (c *FakeConn) Sent() ([]protocol.Message, error) {
	r := bytes.NewReader(c.Written())
	var out []protocol.Message
	for r.Len() > 0 {
		m, err := protocol.ReadFrame(r, protocol.DefaultMaxFrameSize)
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Read implements net.Conn.
func (c *FakeConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}
	if len(c.reads) > 0 {
		chunk := c.reads[0]
		n := copy(p, chunk)
		if n < len(chunk) {
			c.reads[0] = chunk[n:]
		} else {
			c.reads = c.reads[1:]
		}
		return n, nil
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	if c.eof {
		return 0, io.EOF
	}
	return 0, os.ErrDeadlineExceeded
}

// Write implements net.Conn.
func (c *FakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes++
	return c.written.Write(p)
}

// Close implements net.Conn.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *FakeConn) LocalAddr() net.Addr              { return Addr("fake:local") }
func (c *FakeConn) RemoteAddr() net.Addr             { return c.remote }
func (c *FakeConn) SetDeadline(time.Time) error      { return nil }
func (c *FakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *FakeConn) SetWriteDeadline(time.Time) error { return nil }
