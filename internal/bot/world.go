package bot

import (
	"cmp"
	"slices"
	"time"

	"github.com/voxel-dev/voxnet/pkg/protocol"
)

// Entity is another player as last reported by the server.
type Entity struct {
	ID       uint32
	Position protocol.Vec3
	Rotation protocol.Vec3
}

// World is the client's view of the game: its own id and every other
// entity the server has told it about.
type World struct {
	self       uint32
	identified bool
	entities   map[uint32]*Entity
	latency    time.Duration
}

// NewWorld returns an empty World.
func NewWorld() *World {
	return &World{entities: make(map[uint32]*Entity)}
}

// Apply updates the world from one server message.
func (w *World) Apply(m protocol.Message) {
	switch m := m.(type) {
	case protocol.Identify:
		w.self = m.ID
		w.identified = true
	case protocol.RemoveEntity:
		delete(w.entities, m.ID)
	case protocol.SetPosition:
		// Our own pose is authoritative locally.
		if w.identified && m.ID == w.self {
			return
		}
		e, ok := w.entities[m.ID]
		if !ok {
			e = &Entity{ID: m.ID}
			w.entities[m.ID] = e
		}
		e.Position = m.Position
		e.Rotation = m.Rotation
	case protocol.PingResult:
		w.latency = time.Duration(m.LatencyMS) * time.Millisecond
	}
}

// Reset forgets everything learned from the previous connection.
func (w *World) Reset() {
	w.self = 0
	w.identified = false
	clear(w.entities)
}

// Self returns the id the server assigned, if any.
func (w *World) Self() (uint32, bool) {
	return w.self, w.identified
}

// Latency returns the last round trip reported by the server.
func (w *World) Latency() time.Duration {
	return w.latency
}

// Len returns the number of known entities.
func (w *World) Len() int {
	return len(w.entities)
}

// Entity returns a copy of entity id.
func (w *World) Entity(id uint32) (Entity, bool) {
	e, ok := w.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Entities returns copies of every known entity ordered by id.
func (w *World) Entities() []Entity {
	out := make([]Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entity) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
