package matchcore

import (
	"time"

	"github.com/ehrlich-b/matchcore-gateway/internal/constants"
	"github.com/ehrlich-b/matchcore-gateway/internal/netio"
)

// Config is the gateway's topology, fixed at process start: one struct,
// built once, handed to the constructor. There is no dynamic
// reconfiguration.
type Config struct {
	TCPAddr string
	UDPAddr string

	MulticastGroup    string
	MulticastPort     int
	MulticastTTL      int
	MulticastLoopback bool
	MulticastEnabled  bool

	// OutputCodec selects the wire format used for every outbound message
	// (TCP, UDP direct reply, and multicast all share one codec).
	OutputCodec netio.Codec

	Backlog      int
	BufSize      int
	MaxPayload   int
	MaxTCPClients int
	MaxUDPClients int
	UDPProbeLimit int
	MaxDatagram   int
	OutputDepth   int

	QuickAck     bool
	BusyPollUsec int

	UDPIdleTimeout   time.Duration
	UDPEvictInterval time.Duration

	// MetricsAddr, if non-empty, serves Prometheus metrics over HTTP.
	MetricsAddr string
}

// DefaultConfig returns a Config populated with the tunables of
// internal/constants.
func DefaultConfig() *Config {
	return &Config{
		TCPAddr: ":7000",
		UDPAddr: ":7001",

		MulticastGroup:    "239.1.1.1",
		MulticastPort:     7002,
		MulticastTTL:      constants.DefaultMulticastTTL,
		MulticastLoopback: false,
		MulticastEnabled:  true,

		OutputCodec: netio.CodecBinary,

		Backlog:       constants.DefaultBacklog,
		BufSize:       constants.DefaultBufSize,
		MaxPayload:    constants.MaxPayload,
		MaxTCPClients: constants.MaxTCPClients,
		MaxUDPClients: constants.MaxUDPClients,
		UDPProbeLimit: constants.UDPTableProbeLimit,
		MaxDatagram:   constants.MaxPayload,
		OutputDepth:   constants.SpscDefaultCapacity,

		QuickAck:     true,
		BusyPollUsec: 0,

		UDPIdleTimeout:   5 * time.Minute,
		UDPEvictInterval: 30 * time.Second,
	}
}
