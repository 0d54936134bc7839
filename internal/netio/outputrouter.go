package netio

import (
	"context"
	"sync/atomic"

	"github.com/ehrlich-b/matchcore-gateway/internal/constants"
	"github.com/ehrlich-b/matchcore-gateway/internal/logging"
	"github.com/ehrlich-b/matchcore-gateway/internal/registry"
	"github.com/ehrlich-b/matchcore-gateway/internal/spsc"
	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// MulticastPublisher formats and sends one copy of every output message,
// unconditionally, regardless of client_id: no delivery path suppresses
// another.
type MulticastPublisher interface {
	Publish(msg wire.OutputMessage) error
}

// UDPSender is the subset of UDPReceiver the output router needs to send
// a direct reply back to a UDP client (see DESIGN.md).
type UDPSender interface {
	WriteTo(payload []byte, addr wire.TransportAddr) error
}

// OutputRouterConfig configures component G.
type OutputRouterConfig struct {
	Codec Codec
}

// OutputRouter implements component G: round-robin drain of both shard
// output queues, per-client delivery (TCP slot or direct UDP reply), and
// an always-on multicast copy.
type OutputRouter struct {
	cfg       OutputRouterConfig
	outputs   [2]*spsc.Ring[wire.OutputEnvelope]
	tcp       *registry.TCPRegistry
	udp       *registry.UDPRegistry
	udpSender UDPSender
	multicast MulticastPublisher
	logger    *logging.Logger

	messagesDropped atomic.Uint64
	tcpDeliveries   atomic.Uint64
	udpDeliveries   atomic.Uint64
	multicastSends  atomic.Uint64
	pollEmpty       atomic.Uint64
	pollFull        atomic.Uint64
}

// NewOutputRouter builds the router over both shards' output queues.
func NewOutputRouter(
	outputs [2]*spsc.Ring[wire.OutputEnvelope],
	tcp *registry.TCPRegistry,
	udp *registry.UDPRegistry,
	udpSender UDPSender,
	multicast MulticastPublisher,
	cfg OutputRouterConfig,
) *OutputRouter {
	return &OutputRouter{
		cfg:       cfg,
		outputs:   outputs,
		tcp:       tcp,
		udp:       udp,
		udpSender: udpSender,
		multicast: multicast,
		logger:    logging.Default().WithComponent("output-router"),
	}
}

// Run drains both output queues round-robin until ctx is cancelled, then
// drains both once more, bounded by constants.MaxDrainIterations.
func (r *OutputRouter) Run(ctx context.Context) {
	batch := make([]wire.OutputEnvelope, constants.OutputBatchSize)
	var backoff spsc.Backoff

	for {
		if ctx.Err() != nil {
			r.drain(batch)
			return
		}
		n0 := r.drainQueue(0, batch)
		n1 := r.drainQueue(1, batch)
		if n0 == 0 && n1 == 0 {
			r.pollEmpty.Add(1)
			backoff.Wait()
			continue
		}
		if n0 == len(batch) || n1 == len(batch) {
			r.pollFull.Add(1)
		}
		backoff.Reset()
	}
}

func (r *OutputRouter) drainQueue(shard int, batch []wire.OutputEnvelope) int {
	n := r.outputs[shard].DequeueBatch(batch)
	for i := 0; i < n; i++ {
		r.dispatch(batch[i])
	}
	return n
}

func (r *OutputRouter) drain(batch []wire.OutputEnvelope) {
	for iter := 0; iter < constants.MaxDrainIterations; iter++ {
		n0 := r.drainQueue(0, batch)
		n1 := r.drainQueue(1, batch)
		if n0 == 0 && n1 == 0 {
			return
		}
	}
}

func (r *OutputRouter) dispatch(env wire.OutputEnvelope) {
	switch {
	case env.ClientID == wire.BroadcastClientId:
		r.tcp.ForEachActive(func(slot *registry.TCPSlot) {
			if slot.OutputQueue.Enqueue(env.Msg) {
				r.tcpDeliveries.Add(1)
			} else {
				r.messagesDropped.Add(1)
			}
		})
	case env.ClientID < wire.UDPClientIdBase:
		r.deliverTCP(env)
	default:
		r.deliverUDP(env)
	}

	if r.multicast != nil {
		if err := r.multicast.Publish(env.Msg); err != nil {
			r.logger.WithError(err).Debug("multicast publish failed")
		} else {
			r.multicastSends.Add(1)
		}
	}
}

func (r *OutputRouter) deliverTCP(env wire.OutputEnvelope) {
	slot := r.tcp.Get(env.ClientID)
	if slot == nil || !slot.Active.Load() {
		return
	}
	if slot.OutputQueue.Enqueue(env.Msg) {
		r.tcpDeliveries.Add(1)
	} else {
		r.messagesDropped.Add(1)
	}
}

func (r *OutputRouter) deliverUDP(env wire.OutputEnvelope) {
	if r.udp == nil || r.udpSender == nil {
		return
	}
	addr, ok := r.udp.Lookup(env.ClientID)
	if !ok {
		return
	}
	payload := r.encode(env.Msg)
	if err := r.udpSender.WriteTo(payload, addr); err != nil {
		r.logger.WithError(err).Debug("udp direct reply failed")
		return
	}
	r.udpDeliveries.Add(1)
}

func (r *OutputRouter) encode(msg wire.OutputMessage) []byte {
	if r.cfg.Codec == CodecCSV {
		return wire.EncodeCSVOutput(nil, msg)
	}
	return wire.EncodeBinaryOutput(nil, msg)
}

// OutputRouterStats is a point-in-time snapshot of component G's counters.
type OutputRouterStats struct {
	TCPDeliveries  uint64
	UDPDeliveries  uint64
	MulticastSends uint64
	MessagesDropped uint64
	PollEmpty      uint64
	PollFull       uint64
}

// Stats returns a snapshot of the router's observable statistics.
func (r *OutputRouter) Stats() OutputRouterStats {
	return OutputRouterStats{
		TCPDeliveries:   r.tcpDeliveries.Load(),
		UDPDeliveries:   r.udpDeliveries.Load(),
		MulticastSends:  r.multicastSends.Load(),
		MessagesDropped: r.messagesDropped.Load(),
		PollEmpty:       r.pollEmpty.Load(),
		PollFull:        r.pollFull.Load(),
	}
}
