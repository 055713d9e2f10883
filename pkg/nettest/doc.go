// Package nettest provides in-memory sockets for testing code built on
// voxnet transports.
//
// FakeConn is a scripted net.Conn: reads return queued chunks one per call
// and report a deadline timeout when the script is empty, which transport
// treats as "no data yet". Writes are captured and can be made to fail.
//
//	sock := nettest.NewFakeConn()
//	sock.Feed(protocol.EncodeFrame(protocol.Ping{}))
//	conn := transport.New(sock, transport.Options{})
//	msg, err := conn.Receive()
//
// FakeListener queues FakeConns for Accept, and FakeDialer hands out
// FakeConns to a client while counting and optionally gating dial
// attempts.
package nettest
