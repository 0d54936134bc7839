package netio

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/matchcore-gateway/internal/constants"
	"github.com/ehrlich-b/matchcore-gateway/internal/gwerrors"
	"github.com/ehrlich-b/matchcore-gateway/internal/logging"
	"github.com/ehrlich-b/matchcore-gateway/internal/registry"
	"github.com/ehrlich-b/matchcore-gateway/internal/route"
	"github.com/ehrlich-b/matchcore-gateway/internal/spsc"
	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// UDPReceiverConfig configures component B.
type UDPReceiverConfig struct {
	Addr          string
	MaxClients    int
	ProbeLimit    int
	MaxDatagram   int
	IdleTimeout   time.Duration
	EvictInterval time.Duration
}

// UDPReceiver implements component B: a single socket, recvfrom loop with
// a bounded timeout, protocol auto-detection, multi-message-per-datagram
// parsing, and retry-with-yield enqueue.
type UDPReceiver struct {
	cfg      UDPReceiverConfig
	registry *registry.UDPRegistry
	inputs   InputQueues
	logger   *logging.Logger

	conn       *net.UDPConn
	lastEvict  time.Time
	seq        uint64 // touched only by recvLoop, this receiver's sole ingress goroutine

	rxMessages  atomic.Uint64
	rxBytes     atomic.Uint64
	rxErrors    atomic.Uint64
	parseErrors atomic.Uint64
	queueDrops  atomic.Uint64
}

// NewUDPReceiver builds a receiver; call Start to bind and begin polling.
func NewUDPReceiver(cfg UDPReceiverConfig, inputs InputQueues) *UDPReceiver {
	return &UDPReceiver{
		cfg:      cfg,
		registry: registry.NewUDPRegistry(cfg.MaxClients, cfg.ProbeLimit),
		inputs:   inputs,
		logger:   logging.Default().WithComponent("udp-receiver"),
	}
}

// Registry exposes the UDP client registry for the output router's direct
// reply path.
func (u *UDPReceiver) Registry() *registry.UDPRegistry { return u.registry }

// Addr returns the bound socket address, useful for tests that bind to
// ":0" and need to discover the assigned port. Nil until Start succeeds.
func (u *UDPReceiver) Addr() net.Addr {
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Start binds the UDP socket and begins the receive loop in its own
// goroutine.
func (u *UDPReceiver) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", u.cfg.Addr)
	if err != nil {
		return gwerrors.Wrap("resolve", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return gwerrors.Wrap("bind", err)
	}
	u.conn = conn
	u.lastEvict = time.Now()

	go u.recvLoop(ctx)
	u.logger.Info("udp receiver started", "addr", u.cfg.Addr)
	return nil
}

// Stop closes the UDP socket, unblocking the recvLoop.
func (u *UDPReceiver) Stop() {
	if u.conn != nil {
		_ = u.conn.Close()
	}
}

// WriteTo sends a direct unicast reply from the same socket the receiver
// listens on, used by the output router for UDP client deliveries.
func (u *UDPReceiver) WriteTo(payload []byte, addr wire.TransportAddr) error {
	if u.conn == nil {
		return gwerrors.New("write", gwerrors.ErrCodeTransportFault, "udp socket not started")
	}
	udpAddr := &net.UDPAddr{IP: ipv4Bytes(addr.IPv4), Port: int(addr.Port)}
	_, err := u.conn.WriteToUDP(payload, udpAddr)
	return err
}

func ipv4Bytes(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func ipv4FromUDPAddr(addr *net.UDPAddr) uint32 {
	ip := addr.IP.To4()
	if ip == nil {
		return 0
	}
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func (u *UDPReceiver) recvLoop(ctx context.Context) {
	buf := make([]byte, u.cfg.MaxDatagram)
	for {
		if ctx.Err() != nil {
			return
		}

		_ = u.conn.SetReadDeadline(time.Now().Add(constants.EventTimeout))
		n, peer, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				u.maybeEvict()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			u.rxErrors.Add(1)
			continue
		}
		u.rxBytes.Add(uint64(n))
		u.handleDatagram(buf[:n], peer)
		u.maybeEvict()
	}
}

func (u *UDPReceiver) maybeEvict() {
	if u.cfg.EvictInterval <= 0 {
		return
	}
	if time.Since(u.lastEvict) < u.cfg.EvictInterval {
		return
	}
	u.lastEvict = time.Now()
	if n := u.registry.EvictInactive(u.cfg.IdleTimeout, time.Now().Unix()); n > 0 {
		u.logger.Debug("evicted inactive udp clients", "count", n)
	}
}

func (u *UDPReceiver) handleDatagram(datagram []byte, peer *net.UDPAddr) {
	addr := wire.TransportAddr{IPv4: ipv4FromUDPAddr(peer), Port: uint16(peer.Port)}

	protocol := registry.UDPProtoUnknown
	if len(datagram) > 0 {
		if wire.IsBinaryFirstByte(datagram[0]) {
			protocol = registry.UDPProtoBinary
		} else if wire.IsCSVFirstByte(datagram[0]) {
			protocol = registry.UDPProtoCSV
		}
	}
	if protocol == registry.UDPProtoUnknown {
		u.rxErrors.Add(1)
		return
	}

	id, _ := u.registry.GetOrCreate(addr, protocol, time.Now().Unix())
	if id == wire.BroadcastClientId {
		// No slot even after one eviction: the datagram is dropped.
		return
	}

	cursor := 0
	for cursor < len(datagram) {
		remaining := datagram[cursor:]
		msg, advance, ok := u.parseOne(remaining, protocol)
		if advance <= 0 {
			advance = 1
		}
		cursor += advance
		if !ok {
			u.parseErrors.Add(1)
			continue
		}
		u.rxMessages.Add(1)
		env := wire.InputEnvelope{Msg: msg, ClientID: id, ClientAddr: addr, Sequence: u.seq}
		u.seq++
		u.routeWithRetry(env)
	}
}

func (u *UDPReceiver) parseOne(buf []byte, protocol registry.UDPProtocol) (wire.InputMessage, int, bool) {
	if protocol == registry.UDPProtoBinary {
		msg, n, err := wire.DecodeBinaryInput(buf)
		if err != nil {
			return wire.InputMessage{}, n, false
		}
		return msg, n, true
	}

	lineLen, advance, ok := wire.NextCSVMessageLen(buf)
	if !ok {
		// No terminator yet: treat the remainder as one final line.
		msg, err := wire.DecodeCSVInput(buf)
		if err != nil {
			return wire.InputMessage{}, len(buf), false
		}
		return msg, len(buf), true
	}
	msg, err := wire.DecodeCSVInput(buf[:lineLen])
	if err != nil {
		return wire.InputMessage{}, advance, false
	}
	return msg, advance, true
}

// routeWithRetry enqueues env onto its routed shard(s), retrying with a
// cooperative yield up to EnqueueRetryIterations before dropping.
func (u *UDPReceiver) routeWithRetry(env wire.InputEnvelope) {
	target := route.Route(env.Msg)
	switch target {
	case route.Both:
		u.enqueueWithRetry(0, env)
		u.enqueueWithRetry(1, env)
	case route.Shard1:
		u.enqueueWithRetry(1, env)
	default:
		u.enqueueWithRetry(0, env)
	}
}

func (u *UDPReceiver) enqueueWithRetry(shard int, env wire.InputEnvelope) {
	var backoff spsc.Backoff
	for i := 0; i < constants.EnqueueRetryIterations; i++ {
		if u.inputs[shard].Enqueue(env) {
			return
		}
		backoff.Wait()
	}
	u.queueDrops.Add(1)
}

// UDPReceiverStats is a point-in-time snapshot of component B's counters.
type UDPReceiverStats struct {
	RxMessages    uint64
	RxBytes       uint64
	RxErrors      uint64
	ParseErrors   uint64
	QueueDrops    uint64
	ActiveClients int
}

// Stats returns a snapshot of the receiver's observable statistics.
func (u *UDPReceiver) Stats() UDPReceiverStats {
	return UDPReceiverStats{
		RxMessages:    u.rxMessages.Load(),
		RxBytes:       u.rxBytes.Load(),
		RxErrors:      u.rxErrors.Load(),
		ParseErrors:   u.parseErrors.Load(),
		QueueDrops:    u.queueDrops.Load(),
		ActiveClients: u.registry.Count(),
	}
}
