package bot

import (
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/voxel-dev/voxnet/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeConn scripts server messages and records sends.
type fakeConn struct {
	inbox     []protocol.Message
	connected bool
	sent      []protocol.Message
	delays    []time.Duration
}

func (c *fakeConn) Update(emit func(protocol.Message)) {
	for _, m := range c.inbox {
		emit(m)
	}
	c.inbox = nil
}

func (c *fakeConn) SendThrottled(m protocol.Message, delay time.Duration) bool {
	c.sent = append(c.sent, m)
	c.delays = append(c.delays, delay)
	return true
}

func (c *fakeConn) IsConnected() bool { return c.connected }

func TestWorldApply(t *testing.T) {
	w := NewWorld()

	if _, ok := w.Self(); ok {
		t.Fatal("Self() identified before Identify")
	}

	w.Apply(protocol.Identify{ID: 3})
	w.Apply(protocol.SetPosition{ID: 1, Position: protocol.Vec3{1, 0, 0}})
	w.Apply(protocol.SetPosition{ID: 2, Position: protocol.Vec3{2, 0, 0}})
	w.Apply(protocol.SetPosition{ID: 3, Position: protocol.Vec3{9, 9, 9}})
	w.Apply(protocol.SetPosition{ID: 1, Position: protocol.Vec3{1, 1, 0}, Rotation: protocol.Vec3{0, 90, 0}})
	w.Apply(protocol.PingResult{LatencyMS: 42})

	if id, ok := w.Self(); !ok || id != 3 {
		t.Errorf("Self() = %d, %v, want 3", id, ok)
	}
	if w.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (own pose is not tracked)", w.Len())
	}
	e, ok := w.Entity(1)
	if !ok || e.Position != (protocol.Vec3{1, 1, 0}) || e.Rotation != (protocol.Vec3{0, 90, 0}) {
		t.Errorf("Entity(1) = %+v, %v", e, ok)
	}
	if w.Latency() != 42*time.Millisecond {
		t.Errorf("Latency() = %v, want 42ms", w.Latency())
	}

	w.Apply(protocol.RemoveEntity{ID: 1})
	w.Apply(protocol.RemoveEntity{ID: 77})
	ents := w.Entities()
	if len(ents) != 1 || ents[0].ID != 2 {
		t.Errorf("Entities() = %+v, want only 2", ents)
	}

	w.Reset()
	if _, ok := w.Self(); ok || w.Len() != 0 {
		t.Error("Reset() left state behind")
	}
}

func TestWorldEntitiesSorted(t *testing.T) {
	w := NewWorld()
	for _, id := range []uint32{5, 1, 4, 2} {
		w.Apply(protocol.SetPosition{ID: id})
	}
	ents := w.Entities()
	for i := 1; i < len(ents); i++ {
		if ents[i-1].ID >= ents[i].ID {
			t.Fatalf("Entities() not sorted: %+v", ents)
		}
	}
}

func TestStepWaitsForIdentify(t *testing.T) {
	conn := &fakeConn{connected: true}
	b := New(conn, Options{Logger: testLogger()})

	b.Step(20 * time.Millisecond)
	if len(conn.sent) != 0 {
		t.Fatalf("sent %#v before Identify", conn.sent)
	}

	conn.inbox = []protocol.Message{protocol.Identify{ID: 7}}
	b.Step(20 * time.Millisecond)
	if len(conn.sent) != 1 {
		t.Fatalf("sent %d poses after Identify, want 1", len(conn.sent))
	}
	pose := conn.sent[0].(protocol.SetPosition)
	if pose.ID != 7 {
		t.Errorf("pose ID = %d, want 7", pose.ID)
	}
	if conn.delays[0] != 100*time.Millisecond {
		t.Errorf("throttle = %v, want 100ms", conn.delays[0])
	}
}

func TestStepWalksCircle(t *testing.T) {
	conn := &fakeConn{connected: true, inbox: []protocol.Message{protocol.Identify{ID: 1}}}
	b := New(conn, Options{Radius: 2, Speed: math.Pi, Logger: testLogger()})

	// Half a second at pi rad/s is a quarter turn.
	b.Step(500 * time.Millisecond)

	pose := conn.sent[0].(protocol.SetPosition)
	if math.Abs(float64(pose.Position[0])) > 1e-5 || math.Abs(float64(pose.Position[2])-2) > 1e-5 {
		t.Errorf("position after a quarter turn = %v, want (0, 0, 2)", pose.Position)
	}
	if math.Abs(float64(pose.Rotation[1])-180) > 1e-3 {
		t.Errorf("yaw = %v, want 180", pose.Rotation[1])
	}

	for i := 0; i < 10; i++ {
		b.Step(time.Second)
	}
	last := conn.sent[len(conn.sent)-1].(protocol.SetPosition)
	r := math.Hypot(float64(last.Position[0]), float64(last.Position[2]))
	if math.Abs(r-2) > 1e-4 {
		t.Errorf("left the circle: radius %v", r)
	}
	if b.angle < 0 || b.angle >= 2*math.Pi {
		t.Errorf("angle %v not normalized", b.angle)
	}
}

func TestStepResetsWorldOnDisconnect(t *testing.T) {
	conn := &fakeConn{connected: true, inbox: []protocol.Message{
		protocol.Identify{ID: 1},
		protocol.SetPosition{ID: 2},
	}}
	b := New(conn, Options{Logger: testLogger()})
	b.Step(time.Millisecond)

	conn.connected = false
	b.Step(time.Millisecond)

	if _, ok := b.World().Self(); ok || b.World().Len() != 0 {
		t.Error("world kept state across a disconnect")
	}
	sends := len(conn.sent)
	b.Step(time.Millisecond)
	if len(conn.sent) != sends {
		t.Error("pose sent while unidentified")
	}
}
