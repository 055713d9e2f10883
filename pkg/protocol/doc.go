// Package protocol implements the binary wire protocol shared by the voxnet
// client and server.
//
// # Wire Format
//
// Every message travels in a frame with a 4-byte length prefix:
//
//	┌───────────────────────────────┬───────────────────────────────┐
//	│ Payload Length                │ Payload                       │
//	│ (4 bytes, big-endian uint32)  │ (Length bytes)                │
//	└───────────────────────────────┴───────────────────────────────┘
//
// The payload starts with a one-byte Kind followed by the variant's fields
// in declaration order. Integers are big-endian uint32 and floats are
// big-endian IEEE 754 float32.
//
// # Messages
//
//   - None (0x00): sentinel
//   - Ping (0x01): liveness probe, echoed by the client
//   - PingResult (0x02): [LatencyMS: u32]
//   - Identify (0x03): [ID: u32]
//   - RemoveEntity (0x04): [ID: u32]
//   - SetPosition (0x05): [ID: u32][Position: 3×f32][Rotation: 3×f32]
//
// # Usage Example
//
//	frame := protocol.EncodeFrame(protocol.Identify{ID: 7})
//
//	payload, n, err := protocol.SplitFrame(buf, protocol.DefaultMaxFrameSize)
//	if err == nil && n > 0 {
//	    msg, err := protocol.Decode(payload)
//	    buf = buf[n:]
//	}
//
// Message kinds compare with SameKind, which ignores field values. Client
// throttling keys on Kind for exactly that reason.
package protocol
