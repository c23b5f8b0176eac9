package main

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneBuffers overrides the kernel's default SO_RCVBUF/SO_SNDBUF sizes on
// conn when the operator requested a non-zero override, following the
// SocketCAN backend's raw-socket-option idiom (unix.SetsockoptInt on the
// underlying file descriptor). The operator's number is passed to the
// kernel unchanged.
func tuneBuffers(conn *net.UDPConn, rcvBufBytes, sndBufBytes int) error {
	if rcvBufBytes <= 0 && sndBufBytes <= 0 {
		return nil
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if rcvBufBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufBytes); e != nil {
				sockErr = e
				return
			}
		}
		if sndBufBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sndBufBytes); e != nil {
				sockErr = e
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
