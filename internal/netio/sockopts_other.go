//go:build !linux

package netio

// applyListenerOpts, applyClientOpts and the multicast sockopt helpers are
// Linux-specific (SO_REUSEPORT, TCP_QUICKACK, SO_BUSY_POLL, IP_MULTICAST_*
// via golang.org/x/sys/unix numeric constants that are not portable across
// BSD/Darwin without per-platform constant tables). On other platforms the
// gateway falls back to Go's portable net package defaults; REUSEPORT-style
// load balancing and the busy-poll/quick-ack tunables are unavailable.
func applyListenerOpts(fd int) error { return nil }

func applyClientOpts(fd int, quickAck bool, busyPollUsec int) error { return nil }

func setMulticastTTL(fd int, ttl int) error { return nil }

func setMulticastLoop(fd int, enabled bool) error { return nil }
