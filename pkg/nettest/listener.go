package nettest

import (
	"context"
	"net"
	"os"
	"sync"
	"time"
)

// FakeListener is a net.Listener that hands out queued connections.
// Accept reports a deadline timeout when the queue is empty.
type FakeListener struct {
	mu      sync.Mutex
	pending []net.Conn
	closed  bool
}

// NewFakeListener returns an empty FakeListener.
func NewFakeListener() *FakeListener {
	return &FakeListener{}
}

// Queue adds connections to be returned by Accept.
func (l *FakeListener) Queue(conns ...net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, conns...)
}

// Accept implements net.Listener.
func (l *FakeListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, net.ErrClosed
	}
	if len(l.pending) == 0 {
		return nil, os.ErrDeadlineExceeded
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	return c, nil
}

// SetDeadline matches *net.TCPListener so accept polling can be exercised.
func (l *FakeListener) SetDeadline(time.Time) error {
	return nil
}

// Close implements net.Listener.
func (l *FakeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Addr implements net.Listener.
func (l *FakeListener) Addr() net.Addr {
	return Addr("fake:listener")
}

// FakeDialer hands out connections to dial attempts. When Gate is set,
// each DialContext blocks until a value arrives on it, which lets tests
// hold an attempt in flight.
type FakeDialer struct {
	mu    sync.Mutex
	calls int
	conns []net.Conn
	err   error

	// Gate, when non-nil, must receive once per dial before it returns.
	Gate chan struct{}
}

// NewFakeDialer returns a dialer that fails until connections are queued.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// Queue adds connections returned by successive dials.
func (d *FakeDialer) Queue(conns ...net.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, conns...)
}

// Fail makes dials return err while no connections are queued.
func (d *FakeDialer) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Calls returns the number of DialContext calls started.
func (d *FakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// DialContext implements the client Dialer interface.
func (d *FakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.calls++
	gate := d.Gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) > 0 {
		c := d.conns[0]
		d.conns = d.conns[1:]
		return c, nil
	}
	if d.err != nil {
		return nil, d.err
	}
	return nil, ErrInjected
}
