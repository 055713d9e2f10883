package server

import (
	"context"
	"log/slog"
	"net"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxel-dev/voxnet/pkg/metrics"
	"github.com/voxel-dev/voxnet/pkg/protocol"
	"github.com/voxel-dev/voxnet/pkg/transport"
)

const tracerName = "github.com/voxel-dev/voxnet/pkg/server"

// Options configures a Manager.
type Options struct {
	// IDs assigns peer ids. Default: a fresh IDSource.
	IDs *IDSource

	// PingInterval is the time between ping rounds. Default: 1 second.
	PingInterval time.Duration

	// AcceptPoll bounds how long AcceptNew waits for a pending connection.
	// Default: 1 millisecond.
	AcceptPoll time.Duration

	// Transport configures each accepted connection.
	Transport transport.Options

	// Logger receives peer lifecycle logs. Default: slog.Default().
	Logger *slog.Logger

	// Metrics records server metrics. Optional.
	Metrics *metrics.Collector

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// Tap, if set, receives every message passed to Broadcast.
	Tap func(protocol.Message)
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval: time.Second,
		AcceptPoll:   time.Millisecond,
	}
}

// deadliner is implemented by *net.TCPListener and *net.UnixListener.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Manager owns a listener and the set of live peers.
type Manager struct {
	listener net.Listener
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer

	// peers is kept in accept order.
	peers    []*Peer
	lastPing time.Time
	closed   bool
}

// Listen binds a TCP listener on addr ("host:port") and wraps it in a
// Manager.
func Listen(addr string, opts Options) (*Manager, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, NewPeerError(0, "listen "+addr, err)
	}
	return NewManager(l, opts), nil
}

// NewManager wraps an existing listener. The Manager takes ownership of l.
func NewManager(l net.Listener, opts Options) *Manager {
	d := DefaultOptions()
	if opts.IDs == nil {
		opts.IDs = NewIDSource()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = d.PingInterval
	}
	if opts.AcceptPoll <= 0 {
		opts.AcceptPoll = d.AcceptPoll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics != nil && opts.Transport.Observer == nil {
		opts.Transport.Observer = opts.Metrics
	}

	return &Manager{
		listener: l,
		opts:     opts,
		logger:   opts.Logger.With("component", "server", "addr", l.Addr().String()),
		tracer:   otel.Tracer(tracerName),
		lastPing: opts.Now(),
	}
}

// Addr returns the listener's address.
func (m *Manager) Addr() net.Addr {
	return m.listener.Addr()
}

// Len returns the number of live peers, including any marked for removal.
func (m *Manager) Len() int {
	return len(m.peers)
}

// Peers returns a snapshot of the live peers in accept order.
func (m *Manager) Peers() []PeerInfo {
	out := make([]PeerInfo, len(m.peers))
	for i, p := range m.peers {
		out[i] = p.info()
	}
	return out
}

// Listen runs one server tick: accept, pump, heartbeat. An accept error is
// logged by AcceptNew and does not stop the tick.
func (m *Manager) Listen(
	onConnect func(*Peer),
	onMessage func(*Peer, protocol.Message),
	onDisconnect func(*Peer),
) {
	_ = m.AcceptNew(onConnect)
	m.Pump(onMessage, onDisconnect)
	m.Heartbeat()
}

// AcceptNew accepts at most one pending connection. No pending connection
// is not an error. onConnect runs before the peer joins the live set, so
// it may send to the new peer without the peer seeing its own broadcast.
func (m *Manager) AcceptNew(onConnect func(*Peer)) error {
	if m.closed {
		return ErrManagerClosed
	}

	if d, ok := m.listener.(deadliner); ok {
		if err := d.SetDeadline(time.Now().Add(m.opts.AcceptPoll)); err != nil {
			return NewPeerError(0, "accept", err)
		}
	}

	sock, err := m.listener.Accept()
	if err != nil {
		if transport.IsTimeout(err) {
			return nil
		}
		m.logger.Warn("accept failed", "error", err)
		return NewPeerError(0, "accept", err)
	}

	p := newPeer(m.opts.IDs.Next(), sock, m.opts.Transport)

	_, span := m.tracer.Start(context.Background(), "voxnet.server.accept",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int64("voxnet.peer.id", int64(p.ID)),
			attribute.String("voxnet.remote_addr", p.info().RemoteAddr),
		))
	if onConnect != nil {
		onConnect(p)
	}
	span.End()

	m.peers = append(m.peers, p)
	m.opts.Metrics.PeerAccepted()
	m.logger.Info("peer connected", "peer", p.ID, "remote", p.info().RemoteAddr)
	return nil
}

// Pump drains every complete message from every peer. Pings are answered
// with the time since that peer was last pinged and are not passed on;
// everything else goes to onMessage. Peers that failed, here or in an
// earlier Send or Broadcast, are then removed in descending index order,
// with onDisconnect called immediately before each removal.
func (m *Manager) Pump(onMessage func(*Peer, protocol.Message), onDisconnect func(*Peer)) {
	if m.closed {
		return
	}

	for _, p := range m.peers {
		m.drain(p, onMessage)
	}

	for i := len(m.peers) - 1; i >= 0; i-- {
		p := m.peers[i]
		if p.err == nil {
			continue
		}
		if onDisconnect != nil {
			onDisconnect(p)
		}
		m.peers = slices.Delete(m.peers, i, i+1)
		_ = p.close()

		reason := removeReason(p.err)
		m.opts.Metrics.PeerRemoved(reason)
		m.logger.Info("peer disconnected", "peer", p.ID, "reason", reason, "error", p.err)
	}
}

func (m *Manager) drain(p *Peer, onMessage func(*Peer, protocol.Message)) {
	for p.err == nil {
		msg, err := p.conn.Receive()
		if err != nil {
			p.fail(err)
			return
		}
		if msg == nil {
			return
		}

		if msg.Kind() == protocol.KindPing {
			m.answerPing(p)
			continue
		}
		if onMessage != nil {
			onMessage(p, msg)
		}
	}
}

func (m *Manager) answerPing(p *Peer) {
	var rtt time.Duration
	if !p.pingSent.IsZero() {
		rtt = m.opts.Now().Sub(p.pingSent)
		p.rtt = rtt
		m.opts.Metrics.ObservePingRTT(rtt)
	}
	// Send marks the peer on failure.
	_ = p.Send(protocol.PingResult{LatencyMS: uint32(rtt / time.Millisecond)})
}

// Broadcast sends msg to every peer that has not failed. A failed send
// marks that peer for removal on the next Pump and the loop moves on. It
// returns the number of peers that were sent msg.
func (m *Manager) Broadcast(msg protocol.Message) int {
	if m.opts.Tap != nil {
		m.opts.Tap(msg)
	}

	sent := 0
	for _, p := range m.peers {
		if p.err != nil {
			continue
		}
		if err := p.Send(msg); err != nil {
			m.opts.Metrics.BroadcastFailure()
			m.logger.Debug("broadcast send failed", "peer", p.ID, "kind", msg.Kind().String(), "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Heartbeat sends a ping round when the ping interval has elapsed since
// the previous one, recording the send time on each peer.
func (m *Manager) Heartbeat() {
	if m.closed {
		return
	}
	now := m.opts.Now()
	if now.Sub(m.lastPing) < m.opts.PingInterval {
		return
	}
	m.lastPing = now

	for _, p := range m.peers {
		if p.err != nil {
			continue
		}
		if err := p.Send(protocol.Ping{}); err == nil {
			p.pingSent = now
		}
	}
	m.logger.Debug("ping round", "peers", len(m.peers))
}

// Close closes the listener and every peer without running callbacks.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	err := m.listener.Close()
	for _, p := range m.peers {
		_ = p.close()
		m.opts.Metrics.PeerRemoved("shutdown")
	}
	m.logger.Info("server closed", "peers", len(m.peers))
	m.peers = nil
	return err
}
