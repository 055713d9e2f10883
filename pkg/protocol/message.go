package protocol

// Kind is the stable discriminant of a message variant. The numeric values
// are part of the wire format and must not be reordered.
type Kind uint8

const (
	KindNone         Kind = 0x00 // Sentinel, no-op
	KindPing         Kind = 0x01 // Liveness probe
	KindPingResult   Kind = 0x02 // Server → Client round-trip measurement
	KindIdentify     Kind = 0x03 // Server assigns a peer its id
	KindRemoveEntity Kind = 0x04 // Entity left the simulation
	KindSetPosition  Kind = 0x05 // Entity pose update
)

// String returns the string representation of the message kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindPing:
		return "Ping"
	case KindPingResult:
		return "PingResult"
	case KindIdentify:
		return "Identify"
	case KindRemoveEntity:
		return "RemoveEntity"
	case KindSetPosition:
		return "SetPosition"
	default:
		return "Unknown"
	}
}

// Valid reports whether k names a known variant.
func (k Kind) Valid() bool {
	return k <= KindSetPosition
}

// Vec3 is an x, y, z triple.
type Vec3 [3]float32

// Message is one of the protocol variants: None, Ping, PingResult,
// Identify, RemoveEntity or SetPosition. The set is closed; only this
// package can add variants.
type Message interface {
	Kind() Kind
	encodeFields(e *Encoder)
}

// None is a sentinel message with no payload.
type None struct{}

// Ping is a liveness probe. The server sends it periodically and the
// client echoes it back.
type Ping struct{}

// PingResult carries the round trip the server measured for this client.
type PingResult struct {
	LatencyMS uint32
}

// Identify tells a peer which id the server assigned to it.
type Identify struct {
	ID uint32
}

// RemoveEntity announces that an entity left the simulation.
type RemoveEntity struct {
	ID uint32
}

// SetPosition updates the pose of an entity.
type SetPosition struct {
	ID       uint32
	Position Vec3
	Rotation Vec3
}

func (None) Kind() Kind         { return KindNone }
func (Ping) Kind() Kind         { return KindPing }
func (PingResult) Kind() Kind   { return KindPingResult }
func (Identify) Kind() Kind     { return KindIdentify }
func (RemoveEntity) Kind() Kind { return KindRemoveEntity }
func (SetPosition) Kind() Kind  { return KindSetPosition }

func (None) encodeFields(*Encoder) {}
func (Ping) encodeFields(*Encoder) {}

func (m PingResult) encodeFields(e *Encoder) {
	e.WriteUint32(m.LatencyMS)
}

func (m Identify) encodeFields(e *Encoder) {
	e.WriteUint32(m.ID)
}

func (m RemoveEntity) encodeFields(e *Encoder) {
	e.WriteUint32(m.ID)
}

func (m SetPosition) encodeFields(e *Encoder) {
	e.WriteUint32(m.ID)
	e.WriteVec3(m.Position)
	e.WriteVec3(m.Rotation)
}

// SameKind reports whether a and b are the same variant, ignoring field
// values. A nil message matches nothing.
func SameKind(a, b Message) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Kind() == b.Kind()
}
