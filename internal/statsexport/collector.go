// Package statsexport exposes the gateway's observable statistics as
// Prometheus metrics: a fixed set of prometheus.Desc values and a
// Collect method that emits one prometheus.Metric per descriptor (one per
// shard for the shard-labelled descriptors) from whatever snapshot is
// current.
package statsexport

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
)

// Snapshot is the subset of matchcore.StatsSnapshot this collector reads.
// Declared locally (rather than importing the root package) to avoid an
// import cycle: the root package will want to register this collector,
// so this package cannot import back.
type Snapshot struct {
	TCPRxMessages, TCPTxMessages, TCPRxBytes, TCPTxBytes     uint64
	TCPParseErrors, TCPAdmitDrops, TCPQueueDrops              uint64
	TCPActiveClients                                          int
	UDPRxMessages, UDPRxBytes, UDPRxErrors, UDPParseErrors    uint64
	UDPQueueDrops                                             uint64
	UDPActiveClients                                          int
	ShardProcessed, ShardDispatched, ShardDropped             []uint64
	ShardPollEmpty, ShardPollFull                             []uint64
	RouterTCPDeliveries, RouterUDPDeliveries, RouterMulticastSends uint64
	RouterMessagesDropped, RouterPollEmpty, RouterPollFull    uint64
}

// Source supplies the current snapshot on each Prometheus scrape.
type Source func() Snapshot

// Collector adapts a Source into a prometheus.Collector. Each scrape is
// stamped with a fresh xid so operators can correlate two scrapes pulled
// moments apart (e.g. across a gateway restart) via the
// matchcore_stats_export_id gauge's label.
type Collector struct {
	source Source
	mu     sync.Mutex

	tcpRxMessages, tcpTxMessages, tcpRxBytes, tcpTxBytes *prometheus.Desc
	tcpParseErrors, tcpAdmitDrops, tcpQueueDrops          *prometheus.Desc
	tcpActiveClients                                      *prometheus.Desc

	udpRxMessages, udpRxBytes, udpRxErrors, udpParseErrors *prometheus.Desc
	udpQueueDrops, udpActiveClients                        *prometheus.Desc

	shardProcessed, shardDispatched, shardDropped *prometheus.Desc
	shardPollEmpty, shardPollFull                 *prometheus.Desc

	routerTCPDeliveries, routerUDPDeliveries, routerMulticastSends *prometheus.Desc
	routerMessagesDropped, routerPollEmpty, routerPollFull         *prometheus.Desc

	exportID *prometheus.Desc
}

// New builds a Collector reading from source. Register it with
// prometheus.MustRegister (or an exporter's own Registry).
func New(source Source) *Collector {
	const ns = "matchcore"
	return &Collector{
		source: source,

		tcpRxMessages: prometheus.NewDesc(ns+"_tcp_rx_messages_total", "TCP messages received.", nil, nil),
		tcpTxMessages: prometheus.NewDesc(ns+"_tcp_tx_messages_total", "TCP messages sent.", nil, nil),
		tcpRxBytes:    prometheus.NewDesc(ns+"_tcp_rx_bytes_total", "TCP bytes received.", nil, nil),
		tcpTxBytes:    prometheus.NewDesc(ns+"_tcp_tx_bytes_total", "TCP bytes sent.", nil, nil),
		tcpParseErrors: prometheus.NewDesc(ns+"_tcp_parse_errors_total", "TCP payloads that failed to parse.", nil, nil),
		tcpAdmitDrops:  prometheus.NewDesc(ns+"_tcp_admission_rejects_total", "TCP messages dropped by the user_id admission check.", nil, nil),
		tcpQueueDrops:  prometheus.NewDesc(ns+"_tcp_queue_full_drops_total", "TCP messages dropped because a shard input queue was full.", nil, nil),
		tcpActiveClients: prometheus.NewDesc(ns+"_tcp_active_clients", "Currently connected TCP clients.", nil, nil),

		udpRxMessages:  prometheus.NewDesc(ns+"_udp_rx_messages_total", "UDP messages received.", nil, nil),
		udpRxBytes:     prometheus.NewDesc(ns+"_udp_rx_bytes_total", "UDP bytes received.", nil, nil),
		udpRxErrors:    prometheus.NewDesc(ns+"_udp_rx_errors_total", "UDP datagrams that failed protocol detection.", nil, nil),
		udpParseErrors: prometheus.NewDesc(ns+"_udp_parse_errors_total", "UDP messages that failed to parse.", nil, nil),
		udpQueueDrops:  prometheus.NewDesc(ns+"_udp_queue_full_drops_total", "UDP messages dropped because a shard input queue was full.", nil, nil),
		udpActiveClients: prometheus.NewDesc(ns+"_udp_active_clients", "Currently tracked UDP clients.", nil, nil),

		shardProcessed:  prometheus.NewDesc(ns+"_shard_processed_total", "Input envelopes processed by the engine.", []string{"shard"}, nil),
		shardDispatched: prometheus.NewDesc(ns+"_shard_dispatched_total", "Output messages produced by the engine.", []string{"shard"}, nil),
		shardDropped:    prometheus.NewDesc(ns+"_shard_output_dropped_total", "Output messages dropped: shard's output queue stayed full.", []string{"shard"}, nil),
		shardPollEmpty:  prometheus.NewDesc(ns+"_shard_poll_empty_total", "Processor loop iterations that found an empty input queue.", []string{"shard"}, nil),
		shardPollFull:   prometheus.NewDesc(ns+"_shard_poll_full_total", "Processor loop iterations that dequeued a full batch.", []string{"shard"}, nil),

		routerTCPDeliveries:   prometheus.NewDesc(ns+"_router_tcp_deliveries_total", "Output messages enqueued onto a TCP client's write queue.", nil, nil),
		routerUDPDeliveries:   prometheus.NewDesc(ns+"_router_udp_deliveries_total", "Output messages sent directly to a UDP client.", nil, nil),
		routerMulticastSends:  prometheus.NewDesc(ns+"_router_multicast_sends_total", "Output messages published to the multicast group.", nil, nil),
		routerMessagesDropped: prometheus.NewDesc(ns+"_router_messages_dropped_total", "Output messages dropped: destination queue stayed full.", nil, nil),
		routerPollEmpty:       prometheus.NewDesc(ns+"_router_poll_empty_total", "Output router loop iterations that found both queues empty.", nil, nil),
		routerPollFull:        prometheus.NewDesc(ns+"_router_poll_full_total", "Output router loop iterations that drained a full batch.", nil, nil),

		exportID: prometheus.NewDesc(ns+"_stats_export_id", "Sortable id stamped on this scrape for cross-restart correlation (value is always 1; read the label).", []string{"xid"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.tcpRxMessages, c.tcpTxMessages, c.tcpRxBytes, c.tcpTxBytes,
		c.tcpParseErrors, c.tcpAdmitDrops, c.tcpQueueDrops, c.tcpActiveClients,
		c.udpRxMessages, c.udpRxBytes, c.udpRxErrors, c.udpParseErrors,
		c.udpQueueDrops, c.udpActiveClients,
		c.shardProcessed, c.shardDispatched, c.shardDropped, c.shardPollEmpty, c.shardPollFull,
		c.routerTCPDeliveries, c.routerUDPDeliveries, c.routerMulticastSends,
		c.routerMessagesDropped, c.routerPollEmpty, c.routerPollFull,
		c.exportID,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	snap := c.source()
	c.mu.Unlock()

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}

	counter(c.tcpRxMessages, snap.TCPRxMessages)
	counter(c.tcpTxMessages, snap.TCPTxMessages)
	counter(c.tcpRxBytes, snap.TCPRxBytes)
	counter(c.tcpTxBytes, snap.TCPTxBytes)
	counter(c.tcpParseErrors, snap.TCPParseErrors)
	counter(c.tcpAdmitDrops, snap.TCPAdmitDrops)
	counter(c.tcpQueueDrops, snap.TCPQueueDrops)
	gauge(c.tcpActiveClients, float64(snap.TCPActiveClients))

	counter(c.udpRxMessages, snap.UDPRxMessages)
	counter(c.udpRxBytes, snap.UDPRxBytes)
	counter(c.udpRxErrors, snap.UDPRxErrors)
	counter(c.udpParseErrors, snap.UDPParseErrors)
	counter(c.udpQueueDrops, snap.UDPQueueDrops)
	gauge(c.udpActiveClients, float64(snap.UDPActiveClients))

	for i := range snap.ShardProcessed {
		shard := shardLabel(i)
		counter(c.shardProcessed, snap.ShardProcessed[i], shard)
		counter(c.shardDispatched, snap.ShardDispatched[i], shard)
		counter(c.shardDropped, snap.ShardDropped[i], shard)
		counter(c.shardPollEmpty, snap.ShardPollEmpty[i], shard)
		counter(c.shardPollFull, snap.ShardPollFull[i], shard)
	}

	counter(c.routerTCPDeliveries, snap.RouterTCPDeliveries)
	counter(c.routerUDPDeliveries, snap.RouterUDPDeliveries)
	counter(c.routerMulticastSends, snap.RouterMulticastSends)
	counter(c.routerMessagesDropped, snap.RouterMessagesDropped)
	counter(c.routerPollEmpty, snap.RouterPollEmpty)
	counter(c.routerPollFull, snap.RouterPollFull)

	gauge(c.exportID, 1, xid.New().String())
}

func shardLabel(i int) string {
	switch i {
	case 0:
		return "0"
	case 1:
		return "1"
	default:
		return "?"
	}
}

var _ prometheus.Collector = (*Collector)(nil)
