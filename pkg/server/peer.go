package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/voxel-dev/voxnet/pkg/protocol"
	"github.com/voxel-dev/voxnet/pkg/transport"
)

// IDSource hands out peer ids. It is safe for concurrent use; the first id
// is 1 and ids never repeat for the life of the source.
type IDSource struct {
	last atomic.Uint32
}

// NewIDSource returns a source whose first id is 1.
func NewIDSource() *IDSource {
	return &IDSource{}
}

// Next returns the next id.
func (s *IDSource) Next() uint32 {
	return s.last.Add(1)
}

// Peer is one accepted connection. Peers are owned by the Manager's tick
// goroutine and are not safe for concurrent use.
type Peer struct {
	// ID identifies the peer for the life of the Manager.
	ID uint32

	conn   *transport.Conn
	remote net.Addr

	// err is the first failure seen on this peer. A failed peer is removed
	// at the end of the next Pump.
	err error

	pingSent time.Time
	rtt      time.Duration
}

func newPeer(id uint32, sock net.Conn, opts transport.Options) *Peer {
	return &Peer{
		ID:     id,
		conn:   transport.New(sock, opts),
		remote: sock.RemoteAddr(),
	}
}

// RemoteAddr returns the peer's network address.
func (p *Peer) RemoteAddr() net.Addr {
	return p.remote
}

// LastRTT returns the most recent ping round trip, or zero before the
// first one completes.
func (p *Peer) LastRTT() time.Duration {
	return p.rtt
}

// Err returns the failure that marked the peer for removal, if any.
func (p *Peer) Err() error {
	return p.err
}

// Send writes m to the peer. A failure marks the peer; every later Send
// fails with ErrPeerFailed without touching the socket.
func (p *Peer) Send(m protocol.Message) error {
	if p.err != nil {
		return NewPeerError(p.ID, "send", fmt.Errorf("%w: %w", ErrPeerFailed, p.err))
	}
	if err := p.conn.Send(m); err != nil {
		p.err = err
		return NewPeerError(p.ID, "send", err)
	}
	return nil
}

func (p *Peer) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *Peer) close() error {
	return p.conn.Close()
}

// PeerInfo is a point-in-time view of a peer, safe to hand to other
// goroutines.
type PeerInfo struct {
	ID         uint32    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	LastPing   time.Time `json:"last_ping,omitempty"`
	RTTMillis  float64   `json:"rtt_ms"`
}

func (p *Peer) info() PeerInfo {
	info := PeerInfo{
		ID:        p.ID,
		LastPing:  p.pingSent,
		RTTMillis: float64(p.rtt) / float64(time.Millisecond),
	}
	if p.remote != nil {
		info.RemoteAddr = p.remote.String()
	}
	return info
}

// removeReason labels why a peer was dropped, for metrics.
func removeReason(err error) string {
	var de *protocol.DecodeError
	switch {
	case errors.Is(err, io.EOF):
		return "closed"
	case errors.As(err, &de), errors.Is(err, protocol.ErrFrameTooLarge):
		return "protocol"
	case transport.IsTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}
