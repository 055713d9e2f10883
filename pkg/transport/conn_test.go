package transport

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/voxel-dev/voxnet/pkg/nettest"
	"github.com/voxel-dev/voxnet/pkg/protocol"
)

type countingObserver struct {
	received, sent           int
	bytesReceived, bytesSent int
}

func (o *countingObserver) FrameReceived(n int) {
	o.received++
	o.bytesReceived += n
}

func (o *countingObserver) FrameSent(n int) {
	o.sent++
	o.bytesSent += n
}

func TestReceiveNoData(t *testing.T) {
	c := New(nettest.NewFakeConn(), Options{})

	m, err := c.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if m != nil {
		t.Errorf("Receive() = %#v, want nil", m)
	}
}

func TestReceiveByteAtATime(t *testing.T) {
	want := protocol.SetPosition{ID: 9, Position: protocol.Vec3{1, 2, 3}, Rotation: protocol.Vec3{4, 5, 6}}
	frame := protocol.EncodeFrame(want)

	sock := nettest.NewFakeConn()
	sock.FeedBytewise(frame)
	c := New(sock, Options{})

	for i := 0; i < len(frame)-1; i++ {
		m, err := c.Receive()
		if err != nil {
			t.Fatalf("Receive() byte %d error = %v", i, err)
		}
		if m != nil {
			t.Fatalf("Receive() byte %d = %#v, want nil before final byte", i, m)
		}
	}

	m, err := c.Receive()
	if err != nil {
		t.Fatalf("Receive() final byte error = %v", err)
	}
	if m != want {
		t.Errorf("Receive() = %#v, want %#v", m, want)
	}
	if c.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", c.Buffered())
	}
}

func TestReceiveArbitraryChunks(t *testing.T) {
	msgs := []protocol.Message{
		protocol.Identify{ID: 1},
		protocol.SetPosition{ID: 1, Position: protocol.Vec3{-10, 0, 0}},
		protocol.Ping{},
		protocol.RemoveEntity{ID: 4},
	}
	var stream []byte
	for _, m := range msgs {
		stream = protocol.AppendFrame(stream, m)
	}

	for _, size := range []int{1, 2, 3, 5, 7, 13, len(stream)} {
		sock := nettest.NewFakeConn()
		for i := 0; i < len(stream); i += size {
			end := i + size
			if end > len(stream) {
				end = len(stream)
			}
			sock.Feed(stream[i:end])
		}
		c := New(sock, Options{})

		var got []protocol.Message
		for i := 0; i < len(stream)+len(msgs); i++ {
			m, err := c.Receive()
			if err != nil {
				t.Fatalf("chunk %d: Receive() error = %v", size, err)
			}
			if m != nil {
				got = append(got, m)
			}
		}

		if len(got) != len(msgs) {
			t.Fatalf("chunk %d: got %d messages, want %d", size, len(got), len(msgs))
		}
		for i := range msgs {
			if got[i] != msgs[i] {
				t.Errorf("chunk %d: message %d = %#v, want %#v", size, i, got[i], msgs[i])
			}
		}
	}
}

func TestReceiveBackToBack(t *testing.T) {
	m1 := protocol.Identify{ID: 3}
	m2 := protocol.SetPosition{ID: 3, Rotation: protocol.Vec3{0, 1, 0}}

	sock := nettest.NewFakeConn()
	sock.FeedMessages(m1, m2)
	c := New(sock, Options{})

	got1, err := c.Receive()
	if err != nil || got1 != m1 {
		t.Fatalf("first Receive() = %#v, %v; want %#v", got1, err, m1)
	}
	got2, err := c.Receive()
	if err != nil || got2 != m2 {
		t.Fatalf("second Receive() = %#v, %v; want %#v", got2, err, m2)
	}
	got3, err := c.Receive()
	if err != nil || got3 != nil {
		t.Fatalf("third Receive() = %#v, %v; want nil, nil", got3, err)
	}
	if c.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", c.Buffered())
	}
}

func TestReceiveLargerThanScratch(t *testing.T) {
	sock := nettest.NewFakeConn()
	var msgs []protocol.Message
	for i := 0; i < 100; i++ {
		msgs = append(msgs, protocol.SetPosition{ID: uint32(i)})
	}
	// 100 × 33 bytes, several scratch-sized reads.
	sock.FeedMessages(msgs...)
	c := New(sock, Options{})

	var got int
	for i := 0; i < 200 && got < len(msgs); i++ {
		m, err := c.Receive()
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if m == nil {
			continue
		}
		if want := msgs[got]; m != want {
			t.Fatalf("message %d = %#v, want %#v", got, m, want)
		}
		got++
	}
	if got != len(msgs) {
		t.Errorf("received %d messages, want %d", got, len(msgs))
	}
}

func TestReceiveDisconnects(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*nettest.FakeConn)
		wantCause error
	}{
		{
			name:      "peer_closed",
			setup:     func(s *nettest.FakeConn) { s.CloseRemote() },
			wantCause: io.EOF,
		},
		{
			name:      "read_error",
			setup:     func(s *nettest.FakeConn) { s.FailReads(nil) },
			wantCause: nettest.ErrInjected,
		},
		{
			name:      "unknown_kind",
			setup:     func(s *nettest.FakeConn) { s.Feed([]byte{0, 0, 0, 1, 0x7F}) },
			wantCause: protocol.ErrUnknownKind,
		},
		{
			name:      "trailing_bytes",
			setup:     func(s *nettest.FakeConn) { s.Feed([]byte{0, 0, 0, 2, 0x01, 0x00}) },
			wantCause: protocol.ErrTrailingBytes,
		},
		{
			name:      "frame_too_large",
			setup:     func(s *nettest.FakeConn) { s.Feed([]byte{0x7F, 0xFF, 0xFF, 0xFF}) },
			wantCause: ErrFrameTooLarge,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sock := nettest.NewFakeConn()
			tc.setup(sock)
			c := New(sock, Options{})

			m, err := c.Receive()
			if m != nil {
				t.Errorf("Receive() = %#v, want nil", m)
			}
			if !errors.Is(err, ErrDisconnected) {
				t.Fatalf("Receive() error = %v, want ErrDisconnected", err)
			}
			if !errors.Is(err, tc.wantCause) {
				t.Errorf("Receive() error = %v, want cause %v", err, tc.wantCause)
			}
			var ce *ConnError
			if !errors.As(err, &ce) {
				t.Errorf("Receive() error %T is not *ConnError", err)
			}
		})
	}
}

func TestReceiveDecodeErrorIsFatalForStream(t *testing.T) {
	sock := nettest.NewFakeConn()
	bad := []byte{0, 0, 0, 1, 0x7F}
	good := protocol.EncodeFrame(protocol.Ping{})
	sock.Feed(append(bad, good...))
	c := New(sock, Options{})

	if _, err := c.Receive(); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Receive() error = %v, want ErrDisconnected", err)
	}
}

func TestSend(t *testing.T) {
	sock := nettest.NewFakeConn()
	obs := &countingObserver{}
	c := New(sock, Options{Observer: obs})

	msgs := []protocol.Message{protocol.Ping{}, protocol.PingResult{LatencyMS: 12}}
	for _, m := range msgs {
		if err := c.Send(m); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	if sock.Writes() != len(msgs) {
		t.Errorf("Writes() = %d, want %d (one write per frame)", sock.Writes(), len(msgs))
	}
	sent, err := sock.Sent()
	if err != nil {
		t.Fatalf("Sent() error = %v", err)
	}
	for i := range msgs {
		if sent[i] != msgs[i] {
			t.Errorf("sent[%d] = %#v, want %#v", i, sent[i], msgs[i])
		}
	}
	if obs.sent != 2 || obs.bytesSent != len(sock.Written()) {
		t.Errorf("observer sent = %d/%d bytes, want 2/%d", obs.sent, obs.bytesSent, len(sock.Written()))
	}
}

func TestSendFailure(t *testing.T) {
	sock := nettest.NewFakeConn()
	sock.FailWrites(nil)
	c := New(sock, Options{})

	err := c.Send(protocol.Ping{})
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Send() error = %v, want ErrDisconnected", err)
	}
	if !errors.Is(err, nettest.ErrInjected) {
		t.Errorf("Send() error = %v, want injected cause", err)
	}
}

func TestObserverReceive(t *testing.T) {
	sock := nettest.NewFakeConn()
	sock.FeedMessages(protocol.Identify{ID: 1})
	obs := &countingObserver{}
	c := New(sock, Options{Observer: obs})

	if _, err := c.Receive(); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if obs.received != 1 || obs.bytesReceived != protocol.FrameHeaderSize+5 {
		t.Errorf("observer received = %d/%d bytes, want 1/%d", obs.received, obs.bytesReceived, protocol.FrameHeaderSize+5)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	d := DefaultOptions()
	if o.MaxFrameSize != d.MaxFrameSize || o.ReadPoll != d.ReadPoll || o.WriteTimeout != d.WriteTimeout {
		t.Errorf("withDefaults() = %+v, want %+v", o, d)
	}

	custom := Options{MaxFrameSize: 10, ReadPoll: time.Second, WriteTimeout: time.Minute}.withDefaults()
	if custom.MaxFrameSize != 10 || custom.ReadPoll != time.Second || custom.WriteTimeout != time.Minute {
		t.Errorf("withDefaults() overrode explicit values: %+v", custom)
	}
}

func TestConnErrorMessage(t *testing.T) {
	err := disconnected("read", nettest.Addr("10.0.0.1:5"), io.EOF)
	want := "transport: read 10.0.0.1:5: transport: disconnected: EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	dial := NewConnectError("localhost:1", errors.New("refused"))
	if !errors.Is(dial, ErrConnectFailed) {
		t.Errorf("NewConnectError() does not match ErrConnectFailed: %v", dial)
	}
}

// TestLoopbackTCP exercises the raw descriptor read path on a real socket.
func TestLoopbackTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		s, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- s
	}()

	cs, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	ss, ok := <-accepted
	if !ok {
		t.Fatal("Accept() failed")
	}

	client := New(cs, Options{})
	server := New(ss, Options{})
	defer client.Close()
	defer server.Close()

	if m, err := server.Receive(); m != nil || err != nil {
		t.Fatalf("Receive() on idle socket = %#v, %v; want nil, nil", m, err)
	}

	want := []protocol.Message{protocol.Ping{}, protocol.SetPosition{ID: 2, Position: protocol.Vec3{1, 2, 3}}}
	for _, m := range want {
		if err := client.Send(m); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	var got []protocol.Message
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < len(want) && time.Now().Before(deadline) {
		m, err := server.Receive()
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if m == nil {
			time.Sleep(time.Millisecond)
			continue
		}
		got = append(got, m)
	}
	if len(got) != len(want) {
		t.Fatalf("received %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %#v, want %#v", i, got[i], want[i])
		}
	}

	client.Close()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := server.Receive()
		if errors.Is(err, ErrDisconnected) {
			return
		}
		if err != nil {
			t.Fatalf("Receive() error = %v, want ErrDisconnected", err)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server never observed the peer closing")
}
