package client

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/voxel-dev/voxnet/pkg/nettest"
	"github.com/voxel-dev/voxnet/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClient(dialer *nettest.FakeDialer, clock *fakeClock) *Client {
	return New("game.test:8080", Options{
		Dialer:       dialer,
		RetryBackoff: time.Second,
		Logger:       testLogger(),
		Now:          clock.Now,
	})
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// connect drives Update until the client holds sock.
func connect(t *testing.T, c *Client, dialer *nettest.FakeDialer, sock *nettest.FakeConn) {
	t.Helper()
	dialer.Queue(sock)
	waitFor(t, "connection", func() bool {
		c.Update(nil)
		return c.IsConnected()
	})
}

func TestNewClientDisconnected(t *testing.T) {
	c := New("localhost:8080", Options{Logger: testLogger()})

	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want Disconnected", c.State())
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true before any Update")
	}
	if c.Addr() != "localhost:8080" {
		t.Errorf("Addr() = %q", c.Addr())
	}
	if c.opts.RetryBackoff != time.Second || c.opts.DialTimeout != 5*time.Second {
		t.Errorf("defaults not applied: %+v", c.opts)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "Disconnected"},
		{StateConnecting, "Connecting"},
		{StateConnected, "Connected"},
		{State(99), "Unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestReconnectSingleFlight(t *testing.T) {
	clock := newFakeClock()
	dialer := nettest.NewFakeDialer()
	dialer.Gate = make(chan struct{})
	c := newTestClient(dialer, clock)

	c.Update(nil)
	if c.State() != StateConnecting {
		t.Fatalf("State() = %v, want Connecting", c.State())
	}
	waitFor(t, "dial to start", func() bool { return dialer.Calls() == 1 })

	// Backoff has long elapsed, but an attempt is still in flight.
	clock.Advance(10 * time.Second)
	for i := 0; i < 5; i++ {
		c.Update(nil)
	}
	time.Sleep(10 * time.Millisecond)
	if got := dialer.Calls(); got != 1 {
		t.Fatalf("Calls() = %d while attempt in flight, want 1", got)
	}
	if c.State() != StateConnecting {
		t.Errorf("State() = %v, want Connecting", c.State())
	}

	sock := nettest.NewFakeConn()
	dialer.Queue(sock)
	dialer.Gate <- struct{}{}

	waitFor(t, "connection", func() bool {
		c.Update(nil)
		return c.IsConnected()
	})
	if got := dialer.Calls(); got != 1 {
		t.Errorf("Calls() = %d after connecting, want 1", got)
	}
}

func TestConnectFailureBackoff(t *testing.T) {
	clock := newFakeClock()
	dialer := nettest.NewFakeDialer()
	dialer.Fail(errors.New("connection refused"))
	c := newTestClient(dialer, clock)

	c.Update(nil)
	waitFor(t, "failed attempt", func() bool {
		c.Update(nil)
		return c.State() == StateDisconnected
	})
	if got := dialer.Calls(); got != 1 {
		t.Fatalf("Calls() = %d, want 1", got)
	}

	// Within the backoff: no new attempt.
	clock.Advance(999 * time.Millisecond)
	c.Update(nil)
	if c.State() != StateDisconnected {
		t.Fatalf("State() = %v inside backoff, want Disconnected", c.State())
	}
	time.Sleep(5 * time.Millisecond)
	if got := dialer.Calls(); got != 1 {
		t.Fatalf("Calls() = %d inside backoff, want 1", got)
	}

	clock.Advance(time.Millisecond)
	c.Update(nil)
	if c.State() != StateConnecting {
		t.Fatalf("State() = %v after backoff, want Connecting", c.State())
	}
	waitFor(t, "second attempt", func() bool { return dialer.Calls() == 2 })
}

func TestUpdateEmitsMessagesAndEchoesPing(t *testing.T) {
	clock := newFakeClock()
	dialer := nettest.NewFakeDialer()
	c := newTestClient(dialer, clock)
	sock := nettest.NewFakeConn()
	connect(t, c, dialer, sock)

	want := []protocol.Message{
		protocol.Identify{ID: 4},
		protocol.SetPosition{ID: 2, Position: protocol.Vec3{1, 0, 1}},
		protocol.PingResult{LatencyMS: 17},
	}
	sock.FeedMessages(want[0], protocol.Ping{}, want[1], want[2])

	var got []protocol.Message
	c.Update(func(m protocol.Message) { got = append(got, m) })

	if len(got) != len(want) {
		t.Fatalf("emitted %d messages, want %d: %#v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("emitted[%d] = %#v, want %#v", i, got[i], want[i])
		}
	}

	sent, err := sock.Sent()
	if err != nil {
		t.Fatalf("Sent() error = %v", err)
	}
	if len(sent) != 1 || sent[0] != (protocol.Ping{}) {
		t.Errorf("sent = %#v, want one Ping echo", sent)
	}
}

func TestUpdateDisconnectsOnPeerClose(t *testing.T) {
	clock := newFakeClock()
	dialer := nettest.NewFakeDialer()
	c := newTestClient(dialer, clock)
	sock := nettest.NewFakeConn()
	connect(t, c, dialer, sock)

	sock.FeedMessages(protocol.Identify{ID: 1})
	sock.CloseRemote()
	clock.Advance(time.Minute)

	var got []protocol.Message
	c.Update(func(m protocol.Message) { got = append(got, m) })

	if c.State() != StateDisconnected {
		t.Fatalf("State() = %v, want Disconnected", c.State())
	}
	if len(got) != 1 {
		t.Errorf("emitted %d messages before the close, want 1", len(got))
	}
	if !sock.Closed() {
		t.Error("socket not closed after disconnect")
	}
	if !c.lastAttempt.Equal(clock.Now()) {
		t.Errorf("lastAttempt = %v, want %v", c.lastAttempt, clock.Now())
	}

	// Backoff restarts from the disconnect.
	calls := dialer.Calls()
	c.Update(nil)
	if c.State() != StateDisconnected || dialer.Calls() != calls {
		t.Errorf("reconnect started inside backoff: state %v, calls %d", c.State(), dialer.Calls())
	}

	clock.Advance(time.Second)
	c.Update(nil)
	if c.State() != StateConnecting {
		t.Errorf("State() = %v after backoff, want Connecting", c.State())
	}
}

func TestUpdateDisconnectsOnDecodeError(t *testing.T) {
	clock := newFakeClock()
	dialer := nettest.NewFakeDialer()
	c := newTestClient(dialer, clock)
	sock := nettest.NewFakeConn()
	connect(t, c, dialer, sock)

	sock.Feed([]byte{0, 0, 0, 1, 0xEE})
	c.Update(nil)

	if c.IsConnected() {
		t.Error("IsConnected() = true after undecodable frame")
	}
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	c := newTestClient(nettest.NewFakeDialer(), newFakeClock())

	// Should not panic
	c.Send(protocol.Ping{})
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want Disconnected", c.State())
	}
}

func TestSendFailureDisconnects(t *testing.T) {
	clock := newFakeClock()
	dialer := nettest.NewFakeDialer()
	c := newTestClient(dialer, clock)
	sock := nettest.NewFakeConn()
	connect(t, c, dialer, sock)

	sock.FailWrites(io.ErrClosedPipe)
	c.Send(protocol.SetPosition{ID: 1})

	if c.IsConnected() {
		t.Error("IsConnected() = true after failed write")
	}
	if !sock.Closed() {
		t.Error("socket not closed after failed write")
	}
}

func TestSendThrottled(t *testing.T) {
	clock := newFakeClock()
	dialer := nettest.NewFakeDialer()
	c := newTestClient(dialer, clock)
	sock := nettest.NewFakeConn()
	connect(t, c, dialer, sock)

	pos := func(x float32) protocol.Message {
		return protocol.SetPosition{ID: 1, Position: protocol.Vec3{x, 0, 0}}
	}
	delay := 100 * time.Millisecond

	if !c.SendThrottled(pos(1), delay) {
		t.Fatal("first SendThrottled() suppressed")
	}
	clock.Advance(50 * time.Millisecond)
	if c.SendThrottled(pos(2), delay) {
		t.Error("second SendThrottled() within delay was not suppressed")
	}
	if got := sock.Writes(); got != 1 {
		t.Fatalf("Writes() = %d after two calls within delay, want 1", got)
	}

	clock.Advance(50 * time.Millisecond)
	if !c.SendThrottled(pos(3), delay) {
		t.Error("third SendThrottled() after delay suppressed")
	}
	if got := sock.Writes(); got != 2 {
		t.Fatalf("Writes() = %d after delay elapsed, want 2", got)
	}

	// Other kinds have their own slot.
	if !c.SendThrottled(protocol.Ping{}, delay) {
		t.Error("SendThrottled(Ping) suppressed by SetPosition throttle")
	}

	sent, err := sock.Sent()
	if err != nil {
		t.Fatalf("Sent() error = %v", err)
	}
	if len(sent) != 3 || sent[0] != pos(1) || sent[1] != pos(3) {
		t.Errorf("sent = %#v", sent)
	}
}

func TestSendThrottledRecordsWhileDisconnected(t *testing.T) {
	clock := newFakeClock()
	c := newTestClient(nettest.NewFakeDialer(), clock)

	if !c.SendThrottled(protocol.Ping{}, time.Second) {
		t.Error("first SendThrottled() suppressed")
	}
	if c.SendThrottled(protocol.Ping{}, time.Second) {
		t.Error("second SendThrottled() passed within delay")
	}
}

func TestCloseStopsReconnecting(t *testing.T) {
	clock := newFakeClock()
	dialer := nettest.NewFakeDialer()
	dialer.Gate = make(chan struct{})
	c := newTestClient(dialer, clock)

	c.Update(nil)
	waitFor(t, "dial to start", func() bool { return dialer.Calls() == 1 })

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	late := nettest.NewFakeConn()
	dialer.Queue(late)
	dialer.Gate <- struct{}{}
	waitFor(t, "late socket to be reclaimed", late.Closed)

	clock.Advance(time.Minute)
	c.Update(nil)
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v after Close, want Disconnected", c.State())
	}
	if dialer.Calls() != 1 {
		t.Errorf("Calls() = %d after Close, want 1", dialer.Calls())
	}
}
