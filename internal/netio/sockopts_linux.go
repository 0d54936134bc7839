//go:build linux

package netio

import (
	"golang.org/x/sys/unix"
)

// applyListenerOpts sets SO_REUSEADDR/SO_REUSEPORT on the listening socket
// before bind. SO_REUSEPORT is best-effort: older kernels return
// ENOPROTOOPT and the gateway continues without it.
func applyListenerOpts(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	return nil
}

// applyClientOpts sets TCP_NODELAY, optional TCP_QUICKACK and SO_BUSY_POLL
// on an accepted connection. Both optional options are silently ignored on
// failure (e.g. unprivileged SO_BUSY_POLL).
func applyClientOpts(fd int, quickAck bool, busyPollUsec int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	if quickAck {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	}
	if busyPollUsec > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BUSY_POLL, busyPollUsec)
	}
	return nil
}

// setMulticastTTL sets IP_MULTICAST_TTL on a UDP socket fd.
func setMulticastTTL(fd int, ttl int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl)
}

// setMulticastLoop sets IP_MULTICAST_LOOP on a UDP socket fd.
func setMulticastLoop(fd int, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, v)
}
