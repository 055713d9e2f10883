package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/voxel-dev/voxnet/pkg/protocol"
)

// Sentinel errors for the transport error taxonomy.
var (
	// ErrDisconnected is returned when the peer closed the connection or an
	// I/O or framing error made the stream unusable. The connection must be
	// discarded.
	ErrDisconnected = errors.New("transport: disconnected")

	// ErrConnectFailed is returned when an outbound connect attempt fails.
	ErrConnectFailed = errors.New("transport: connect failed")

	// ErrFrameTooLarge is returned when a peer declares a payload above the
	// configured maximum.
	ErrFrameTooLarge = protocol.ErrFrameTooLarge

	// errWouldBlock signals that a non-blocking read found no data. It never
	// leaves this package.
	errWouldBlock = errors.New("transport: would block")
)

// ConnError wraps a transport error with the operation and peer address.
type ConnError struct {
	Op   string   // Operation that failed
	Addr net.Addr // Remote address, may be nil
	Err  error    // Underlying error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	if e.Addr == nil {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// disconnected builds a ConnError that matches ErrDisconnected and still
// exposes the cause through errors.Is/As.
func disconnected(op string, addr net.Addr, cause error) *ConnError {
	if cause == nil {
		return &ConnError{Op: op, Addr: addr, Err: ErrDisconnected}
	}
	return &ConnError{Op: op, Addr: addr, Err: fmt.Errorf("%w: %w", ErrDisconnected, cause)}
}

// NewConnectError wraps a dial failure so it matches ErrConnectFailed.
func NewConnectError(addr string, cause error) error {
	return &ConnError{Op: "dial " + addr, Err: fmt.Errorf("%w: %w", ErrConnectFailed, cause)}
}

// IsTimeout reports whether err is a deadline expiry rather than a real
// I/O failure.
func IsTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, errWouldBlock)
}
