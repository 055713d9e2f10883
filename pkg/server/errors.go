package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for manager and peer conditions.
var (
	// ErrManagerClosed is returned when an operation is attempted on a closed Manager.
	ErrManagerClosed = errors.New("server: manager closed")

	// ErrPeerFailed is returned by Peer.Send after an earlier send or
	// receive on the same peer failed.
	ErrPeerFailed = errors.New("server: peer failed")
)

// PeerError wraps an error with peer context for debugging.
type PeerError struct {
	PeerID uint32
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with peer context.
func (e *PeerError) Error() string {
	if e.PeerID == 0 {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: peer %d: %s: %v", e.PeerID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PeerError) Unwrap() error {
	return e.Err
}

// NewPeerError creates a new PeerError.
func NewPeerError(peerID uint32, op string, err error) *PeerError {
	return &PeerError{
		PeerID: peerID,
		Op:     op,
		Err:    err,
	}
}
