// Package client implements the game client's side of a voxnet connection:
// a connect/reconnect state machine driven from the tick loop, plus
// throttled sends.
//
// A Client is not safe for concurrent use. The tick goroutine calls Update
// once per tick and may call Send and SendThrottled at any point between
// updates. The only other goroutine a Client starts is the one performing a
// connect attempt, and that goroutine never touches the Client.
package client

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxel-dev/voxnet/pkg/metrics"
	"github.com/voxel-dev/voxnet/pkg/protocol"
	"github.com/voxel-dev/voxnet/pkg/transport"
)

const tracerName = "github.com/voxel-dev/voxnet/pkg/client"

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Client.
type Options struct {
	// Dialer opens connections. Default: *net.Dialer with DialTimeout.
	Dialer Dialer

	// DialTimeout bounds one connect attempt. Default: 5 seconds.
	DialTimeout time.Duration

	// RetryBackoff is the minimum time between the end of one connect
	// attempt and the start of the next. Default: 1 second.
	RetryBackoff time.Duration

	// Transport configures the connection once established.
	Transport transport.Options

	// Logger receives connection lifecycle logs. Default: slog.Default().
	Logger *slog.Logger

	// Metrics records client metrics. Optional.
	Metrics *metrics.Collector

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		DialTimeout:  5 * time.Second,
		RetryBackoff: time.Second,
	}
}

type dialResult struct {
	sock net.Conn
	err  error
}

// Client maintains one connection to a server and reconnects in the
// background when it is lost.
type Client struct {
	addr   string
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	state State
	conn  *transport.Conn

	// lastAttempt is when the previous attempt finished or the connection
	// was lost. Zero until the first attempt.
	lastAttempt time.Time
	attempted   bool
	pending     chan dialResult
	closed      bool

	// throttle holds the last send time per message kind.
	throttle map[protocol.Kind]time.Time
}

// New creates a disconnected Client for addr ("host:port"). No connection
// is attempted until the first Update.
func New(addr string, opts Options) *Client {
	d := DefaultOptions()
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = d.DialTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = d.RetryBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{Timeout: opts.DialTimeout}
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

	return &Client{
		addr:     addr,
		opts:     opts,
		logger:   opts.Logger.With("component", "client", "addr", addr),
		tracer:   otel.Tracer(tracerName),
		throttle: make(map[protocol.Kind]time.Time),
	}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.state
}

// IsConnected reports whether a live connection is held.
func (c *Client) IsConnected() bool {
	return c.state == StateConnected
}

// Update advances the client by one tick. When not connected it progresses
// the reconnect state machine and returns without I/O. When connected it
// drains every complete message, passing each to emit. Pings are answered
// here and not emitted. A transport error drops the connection immediately.
func (c *Client) Update(emit func(protocol.Message)) {
	if c.closed {
		return
	}
	if c.state != StateConnected {
		c.progress()
		return
	}

	for c.state == StateConnected {
		m, err := c.conn.Receive()
		if err != nil {
			c.drop(err)
			return
		}
		if m == nil {
			return
		}

		if m.Kind() == protocol.KindPing {
			c.Send(protocol.Ping{})
			continue
		}
		if emit != nil {
			emit(m)
		}
	}
}

// progress polls an in-flight attempt or starts a new one when the backoff
// allows.
func (c *Client) progress() {
	if c.pending != nil {
		select {
		case r := <-c.pending:
			c.pending = nil
			c.finishAttempt(r)
		default:
		}
		return
	}

	if c.attempted && c.opts.Now().Sub(c.lastAttempt) < c.opts.RetryBackoff {
		return
	}
	c.startAttempt()
}

// startAttempt dials in a new goroutine. The goroutine owns only the
// address and dialer; the socket reaches the Client through the channel.
func (c *Client) startAttempt() {
	ch := make(chan dialResult, 1)
	c.pending = ch
	c.attempted = true
	c.state = StateConnecting

	addr := c.addr
	dialer := c.opts.Dialer
	timeout := c.opts.DialTimeout
	tracer := c.tracer

	c.logger.Debug("connect attempt")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		ctx, span := tracer.Start(ctx, "voxnet.client.connect",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("voxnet.addr", addr)))

		sock, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			err = transport.NewConnectError(addr, err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		ch <- dialResult{sock: sock, err: err}
	}()
}

func (c *Client) finishAttempt(r dialResult) {
	c.lastAttempt = c.opts.Now()

	if r.err != nil {
		c.state = StateDisconnected
		c.opts.Metrics.ConnectAttempt("failure")
		c.logger.Debug("connect failed", "error", r.err, "retry_in", c.opts.RetryBackoff)
		return
	}

	c.conn = transport.New(r.sock, c.opts.Transport)
	c.state = StateConnected
	c.opts.Metrics.ConnectAttempt("success")
	c.opts.Metrics.SetConnected(true)
	c.logger.Info("connected", "remote", r.sock.RemoteAddr().String())
}

// drop tears down the live connection and restarts the backoff.
func (c *Client) drop(err error) {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.lastAttempt = c.opts.Now()
	c.attempted = true
	c.opts.Metrics.SetConnected(false)
	c.logger.Warn("connection lost", "error", err)
}

// Send writes m to the server. It is silently dropped when not connected;
// callers resend if the message is still relevant after reconnecting. A
// write failure drops the connection.
func (c *Client) Send(m protocol.Message) {
	if c.state != StateConnected {
		return
	}
	if err := c.conn.Send(m); err != nil {
		c.drop(err)
	}
}

// SendThrottled sends m unless a message of the same kind was sent less
// than delay ago. Only the most recent send time per kind is kept. It
// reports whether the message passed the throttle.
func (c *Client) SendThrottled(m protocol.Message, delay time.Duration) bool {
	now := c.opts.Now()
	kind := m.Kind()

	if last, ok := c.throttle[kind]; ok && now.Sub(last) < delay {
		c.opts.Metrics.Throttled(kind.String())
		return false
	}
	c.throttle[kind] = now
	c.Send(m)
	return true
}

// Close drops the connection and stops reconnecting. An in-flight attempt
// is left to finish; its socket, if any, is closed when it arrives.
func (c *Client) Close() error {
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	if c.pending != nil {
		go reclaim(c.pending)
		c.pending = nil
	}
	if c.state == StateConnected {
		c.opts.Metrics.SetConnected(false)
	}
	c.state = StateDisconnected
	c.closed = true
	return err
}

func reclaim(ch <-chan dialResult) {
	if r := <-ch; r.sock != nil {
		_ = r.sock.Close()
	}
}
