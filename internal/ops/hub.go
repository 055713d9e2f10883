package ops

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const spectatorWriteTimeout = 5 * time.Second

// Hub fans broadcast frames out to websocket spectators. Each spectator
// has a bounded queue; frames for a full queue are dropped so a slow
// spectator never stalls the tick goroutine.
type Hub struct {
	mu        sync.Mutex
	subs      map[*spectator]struct{}
	queueSize int
	closed    bool

	dropped atomic.Uint64
}

type spectator struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub with per-spectator queues of queueSize frames.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		subs:      make(map[*spectator]struct{}),
		queueSize: queueSize,
	}
}

// Broadcast queues frame for every spectator. It never blocks.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.send <- frame:
		default:
			h.dropped.Add(1)
		}
	}
}

// Len returns the number of connected spectators.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns the number of frames dropped on full queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every spectator and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*spectator]struct{})
	h.closed = true
	h.mu.Unlock()

	for s := range subs {
		close(s.send)
		_ = s.conn.Close()
	}
}

func (h *Hub) add(conn *websocket.Conn) (*spectator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	s := &spectator{conn: conn, send: make(chan []byte, h.queueSize)}
	h.subs[s] = struct{}{}
	return s, true
}

func (h *Hub) remove(s *spectator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

// writeLoop sends queued frames until the queue is closed or a write fails.
func (s *spectator) writeLoop() {
	defer s.conn.Close()
	for frame := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(spectatorWriteTimeout))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
