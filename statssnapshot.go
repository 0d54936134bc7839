package matchcore

import (
	"fmt"
	"strings"

	"github.com/ehrlich-b/matchcore-gateway/internal/netio"
	"github.com/ehrlich-b/matchcore-gateway/internal/route"
	"github.com/ehrlich-b/matchcore-gateway/internal/statsexport"
)

// StatsSnapshot is a point-in-time aggregate of every component's
// observable statistics: one flat struct callers can read, diff, or
// export without reaching into internal/netio themselves.
type StatsSnapshot struct {
	TCP        netio.TCPListenerStats
	UDP        netio.UDPReceiverStats
	Processors [route.ShardCount]netio.ProcessorStats
	Router     netio.OutputRouterStats
}

// Dump renders the snapshot as a plain-text block, a `/debug/vars`-style
// sink alongside the Prometheus exporter in internal/statsexport.
func (s StatsSnapshot) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tcp: rx_msgs=%d tx_msgs=%d rx_bytes=%d tx_bytes=%d parse_errors=%d admit_drops=%d queue_drops=%d active_clients=%d\n",
		s.TCP.RxMessages, s.TCP.TxMessages, s.TCP.RxBytes, s.TCP.TxBytes, s.TCP.ParseErrors, s.TCP.AdmitDrops, s.TCP.QueueDrops, s.TCP.ActiveClients)
	fmt.Fprintf(&b, "udp: rx_msgs=%d rx_bytes=%d rx_errors=%d parse_errors=%d queue_drops=%d active_clients=%d\n",
		s.UDP.RxMessages, s.UDP.RxBytes, s.UDP.RxErrors, s.UDP.ParseErrors, s.UDP.QueueDrops, s.UDP.ActiveClients)
	for _, p := range s.Processors {
		fmt.Fprintf(&b, "shard[%d]: processed=%d dispatched=%d dropped=%d poll_empty=%d poll_full=%d\n",
			p.Shard, p.Processed, p.Dispatched, p.Dropped, p.PollEmpty, p.PollFull)
	}
	fmt.Fprintf(&b, "router: tcp_deliveries=%d udp_deliveries=%d multicast_sends=%d messages_dropped=%d poll_empty=%d poll_full=%d\n",
		s.Router.TCPDeliveries, s.Router.UDPDeliveries, s.Router.MulticastSends, s.Router.MessagesDropped, s.Router.PollEmpty, s.Router.PollFull)
	return b.String()
}

// ForExport adapts the snapshot to internal/statsexport's Snapshot shape,
// for wiring into a statsexport.Collector.
func (s StatsSnapshot) ForExport() statsexport.Snapshot {
	out := statsexport.Snapshot{
		TCPRxMessages: s.TCP.RxMessages, TCPTxMessages: s.TCP.TxMessages,
		TCPRxBytes: s.TCP.RxBytes, TCPTxBytes: s.TCP.TxBytes,
		TCPParseErrors: s.TCP.ParseErrors, TCPAdmitDrops: s.TCP.AdmitDrops,
		TCPQueueDrops: s.TCP.QueueDrops, TCPActiveClients: s.TCP.ActiveClients,

		UDPRxMessages: s.UDP.RxMessages, UDPRxBytes: s.UDP.RxBytes,
		UDPRxErrors: s.UDP.RxErrors, UDPParseErrors: s.UDP.ParseErrors,
		UDPQueueDrops: s.UDP.QueueDrops, UDPActiveClients: s.UDP.ActiveClients,

		RouterTCPDeliveries: s.Router.TCPDeliveries, RouterUDPDeliveries: s.Router.UDPDeliveries,
		RouterMulticastSends: s.Router.MulticastSends, RouterMessagesDropped: s.Router.MessagesDropped,
		RouterPollEmpty: s.Router.PollEmpty, RouterPollFull: s.Router.PollFull,
	}
	for _, p := range s.Processors {
		out.ShardProcessed = append(out.ShardProcessed, p.Processed)
		out.ShardDispatched = append(out.ShardDispatched, p.Dispatched)
		out.ShardDropped = append(out.ShardDropped, p.Dropped)
		out.ShardPollEmpty = append(out.ShardPollEmpty, p.PollEmpty)
		out.ShardPollFull = append(out.ShardPollFull, p.PollFull)
	}
	return out
}
