//go:build unix

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// rawConn returns raw descriptor access for sockets that expose it, or nil.
func rawConn(sock net.Conn) syscall.RawConn {
	sc, ok := sock.(syscall.Conn)
	if !ok {
		return nil
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil
	}
	return rc
}

// rawRead performs exactly one read(2) on the socket without parking in the
// runtime poller. The runtime keeps network descriptors in non-blocking
// mode, so an empty socket reports EAGAIN.
func rawRead(rc syscall.RawConn, p []byte) (int, error) {
	var (
		n    int
		rerr error
	)
	err := rc.Read(func(fd uintptr) bool {
		n, rerr = unix.Read(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK || rerr == unix.EINTR {
		return 0, errWouldBlock
	}
	if rerr != nil {
		return 0, rerr
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}
