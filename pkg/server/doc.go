// Package server implements the server side of a voxnet game session: a
// Manager that accepts TCP peers, drains their messages each tick,
// broadcasts to all of them, and keeps each one alive with periodic pings.
//
// # Tick model
//
// A Manager is driven from a single goroutine, once per tick:
//
//	mgr.Listen(onConnect, onMessage, onDisconnect)
//	for _, m := range outbox {
//	    mgr.Broadcast(m)
//	}
//
// Listen performs one non-blocking accept, drains every complete frame
// from every peer, and sends a ping round when the ping interval has
// elapsed. None of these block on the network beyond the configured
// accept poll and per-write deadline.
//
// # Failure handling
//
// A peer that fails a read, a decode or a write is marked and stays in the
// live set until the end of the next Pump, where onDisconnect is called for
// it exactly once before it is removed and its socket closed. Broadcast
// skips marked peers and never stops on one peer's failure.
//
// # Identifiers
//
// Peer ids come from an IDSource. Share one source between Managers to keep
// ids unique across them.
package server
