// Package relay is the server-side game logic behind `voxnet serve`: it
// identifies new players, spawns them, fans out their positions, and
// announces their departure.
//
// Manager callbacks cannot broadcast safely while the Manager is iterating
// peers, so every broadcast is queued on an outbox and sent by Flush after
// the Manager's tick.
package relay

import (
	"log/slog"
	"slices"

	"github.com/voxel-dev/voxnet/pkg/protocol"
	"github.com/voxel-dev/voxnet/pkg/server"
)

// SpawnPosition is where every new player appears.
var SpawnPosition = protocol.Vec3{-10, 0, 0}

// Broadcaster sends a message to every live peer.
type Broadcaster interface {
	Broadcast(m protocol.Message) int
}

// Relay tracks the last known pose of every connected player.
type Relay struct {
	logger *slog.Logger
	poses  map[uint32]protocol.SetPosition
	outbox []protocol.Message
}

// New creates an empty Relay.
func New(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		logger: logger.With("component", "relay"),
		poses:  make(map[uint32]protocol.SetPosition),
	}
}

// Tick runs one Manager tick with the relay's callbacks and flushes the
// outbox.
func (r *Relay) Tick(mgr *server.Manager) int {
	mgr.Listen(r.OnConnect, r.OnMessage, r.OnDisconnect)
	return r.Flush(mgr)
}

// OnConnect tells the new peer its id and the pose of everyone already
// present, then queues its spawn for all peers.
func (r *Relay) OnConnect(p *server.Peer) {
	if err := p.Send(protocol.Identify{ID: p.ID}); err != nil {
		r.logger.Debug("identify failed", "peer", p.ID, "error", err)
		return
	}
	for _, id := range r.ids() {
		if err := p.Send(r.poses[id]); err != nil {
			return
		}
	}

	spawn := protocol.SetPosition{ID: p.ID, Position: SpawnPosition}
	r.poses[p.ID] = spawn
	r.outbox = append(r.outbox, spawn)
}

// OnMessage relays a SetPosition under the sender's own id. Clients cannot
// move other entities, so the id they send is ignored.
func (r *Relay) OnMessage(p *server.Peer, m protocol.Message) {
	pos, ok := m.(protocol.SetPosition)
	if !ok {
		r.logger.Debug("ignoring message", "peer", p.ID, "kind", m.Kind().String())
		return
	}
	pos.ID = p.ID
	r.poses[p.ID] = pos
	r.outbox = append(r.outbox, pos)
}

// OnDisconnect forgets the peer and queues its removal.
func (r *Relay) OnDisconnect(p *server.Peer) {
	delete(r.poses, p.ID)
	r.outbox = append(r.outbox, protocol.RemoveEntity{ID: p.ID})
}

// Flush broadcasts and clears the outbox in queue order. It returns the
// number of messages flushed.
func (r *Relay) Flush(b Broadcaster) int {
	n := len(r.outbox)
	for _, m := range r.outbox {
		b.Broadcast(m)
	}
	clear(r.outbox)
	r.outbox = r.outbox[:0]
	return n
}

// Pending returns the number of queued broadcasts.
func (r *Relay) Pending() int {
	return len(r.outbox)
}

// Pose returns the last known pose of player id.
func (r *Relay) Pose(id uint32) (protocol.SetPosition, bool) {
	p, ok := r.poses[id]
	return p, ok
}

// Players returns the number of tracked players.
func (r *Relay) Players() int {
	return len(r.poses)
}

func (r *Relay) ids() []uint32 {
	ids := make([]uint32, 0, len(r.poses))
	for id := range r.poses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
