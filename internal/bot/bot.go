// Package bot is a headless voxnet player. It keeps a World up to date from
// server messages and walks its own entity around a circle, sending its
// pose at most once per throttle window.
package bot

import (
	"log/slog"
	"math"
	"time"

	"github.com/voxel-dev/voxnet/pkg/protocol"
)

// Conn is the part of *client.Client a Bot drives.
type Conn interface {
	Update(emit func(protocol.Message))
	SendThrottled(m protocol.Message, delay time.Duration) bool
	IsConnected() bool
}

// Options configures a Bot.
type Options struct {
	// Radius of the walked circle. Default: 5.
	Radius float64

	// Speed in radians per second. Default: 1.
	Speed float64

	// Throttle is the minimum time between pose sends. Default: 100ms.
	Throttle time.Duration

	// Logger receives connection and latency logs. Default: slog.Default().
	Logger *slog.Logger
}

// Bot walks in a circle and reports its pose.
type Bot struct {
	conn   Conn
	world  *World
	opts   Options
	logger *slog.Logger

	angle     float64
	connected bool
}

// New creates a Bot driving conn.
func New(conn Conn, opts Options) *Bot {
	if opts.Radius <= 0 {
		opts.Radius = 5
	}
	if opts.Speed == 0 {
		opts.Speed = 1
	}
	if opts.Throttle <= 0 {
		opts.Throttle = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bot{
		conn:   conn,
		world:  NewWorld(),
		opts:   opts,
		logger: opts.Logger.With("component", "bot"),
	}
}

// World returns the bot's view of the game.
func (b *Bot) World() *World {
	return b.world
}

// Step runs one client tick: it drains server messages, then advances the
// walk by dt and sends the new pose once the bot has been identified.
func (b *Bot) Step(dt time.Duration) {
	b.conn.Update(b.handle)

	connected := b.conn.IsConnected()
	if b.connected && !connected {
		b.logger.Info("lost server, waiting to reconnect", "entities", b.world.Len())
		b.world.Reset()
	}
	b.connected = connected

	id, ok := b.world.Self()
	if !ok {
		return
	}

	b.angle = math.Mod(b.angle+b.opts.Speed*dt.Seconds(), 2*math.Pi)
	b.conn.SendThrottled(b.Pose(id), b.opts.Throttle)
}

// Pose returns the current pose of the bot's entity. The bot faces along
// the circle's tangent.
func (b *Bot) Pose(id uint32) protocol.SetPosition {
	sin, cos := math.Sincos(b.angle)
	yaw := math.Mod(b.angle*180/math.Pi+90, 360)
	return protocol.SetPosition{
		ID:       id,
		Position: protocol.Vec3{float32(b.opts.Radius * cos), 0, float32(b.opts.Radius * sin)},
		Rotation: protocol.Vec3{0, float32(yaw), 0},
	}
}

func (b *Bot) handle(m protocol.Message) {
	b.world.Apply(m)

	switch m := m.(type) {
	case protocol.Identify:
		b.logger.Info("identified", "id", m.ID)
	case protocol.PingResult:
		b.logger.Info("ping", "latency_ms", m.LatencyMS)
	}
}
