//go:build !unix

package transport

import (
	"errors"
	"net"
	"syscall"
)

// rawConn is unavailable off unix; reads fall back to short deadlines.
func rawConn(net.Conn) syscall.RawConn {
	return nil
}

func rawRead(syscall.RawConn, []byte) (int, error) {
	return 0, errors.ErrUnsupported
}
