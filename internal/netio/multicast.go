package netio

import (
	"net"
	"strconv"
	"sync"

	"github.com/ehrlich-b/matchcore-gateway/internal/gwerrors"
	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// MulticastConfig configures the outbound multicast publisher.
type MulticastConfig struct {
	Group     string // IPv4 multicast address, 224.0.0.0/4
	Port      int
	TTL       int
	Loopback  bool
	Codec     Codec
	Interface string // optional outbound interface name
}

// Multicast sends one copy of every output message to a configured
// multicast group. IP_MULTICAST_TTL and IP_MULTICAST_LOOP are
// set once at socket creation via the platform sockopt helpers.
type Multicast struct {
	cfg  MulticastConfig
	conn *net.UDPConn
	mu   sync.Mutex
	buf  []byte
}

// NewMulticast dials the multicast group and applies TTL/loopback options.
func NewMulticast(cfg MulticastConfig) (*Multicast, error) {
	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.Group, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, gwerrors.Wrap("resolve", err)
	}

	var laddr *net.UDPAddr
	if cfg.Interface != "" {
		if iface, err := net.InterfaceByName(cfg.Interface); err == nil {
			if addrs, err := iface.Addrs(); err == nil && len(addrs) > 0 {
				if ipNet, ok := addrs[0].(*net.IPNet); ok {
					laddr = &net.UDPAddr{IP: ipNet.IP}
				}
			}
		}
	}

	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, gwerrors.Wrap("dial", err)
	}

	if raw, err := conn.SyscallConn(); err == nil {
		_ = raw.Control(func(fd uintptr) {
			_ = setMulticastTTL(int(fd), cfg.TTL)
			_ = setMulticastLoop(int(fd), cfg.Loopback)
		})
	}

	return &Multicast{cfg: cfg, conn: conn}, nil
}

// Publish formats msg with the configured codec and sends it to the
// multicast group.
func (m *Multicast) Publish(msg wire.OutputMessage) error {
	m.mu.Lock()
	m.buf = m.buf[:0]
	if m.cfg.Codec == CodecCSV {
		m.buf = wire.EncodeCSVOutput(m.buf, msg)
	} else {
		m.buf = wire.EncodeBinaryOutput(m.buf, msg)
	}
	payload := append([]byte(nil), m.buf...)
	m.mu.Unlock()

	_, err := m.conn.Write(payload)
	return err
}

// Close releases the multicast socket.
func (m *Multicast) Close() error {
	return m.conn.Close()
}

