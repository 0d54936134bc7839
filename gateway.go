package matchcore

import (
	"context"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ehrlich-b/matchcore-gateway/internal/gwerrors"
	"github.com/ehrlich-b/matchcore-gateway/internal/logging"
	"github.com/ehrlich-b/matchcore-gateway/internal/netio"
	"github.com/ehrlich-b/matchcore-gateway/internal/route"
	"github.com/ehrlich-b/matchcore-gateway/internal/spsc"
	"github.com/ehrlich-b/matchcore-gateway/internal/statsexport"
	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// Gateway wires every ingress/egress component (A, B, E x ShardCount, G)
// around a caller-supplied Engine and owns their lifecycle: one
// long-lived value built once, started, and stopped, with no implicit
// process-wide state.
type Gateway struct {
	cfg    *Config
	engine Engine
	logger *logging.Logger

	inputs  netio.InputQueues
	outputs [route.ShardCount]*spsc.Ring[wire.OutputEnvelope]

	tcpListener *netio.TCPListener
	udpReceiver *netio.UDPReceiver
	processors  [route.ShardCount]*netio.Processor
	router      *netio.OutputRouter
	multicast   *netio.Multicast

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGateway constructs a Gateway from cfg and engine but does not start
// any goroutines; call Start to do that.
func NewGateway(cfg *Config, engine Engine) (*Gateway, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	g := &Gateway{
		cfg:    cfg,
		engine: engine,
		logger: logging.Default().WithComponent("gateway"),
	}

	for i := range g.inputs {
		ring, err := spsc.New[wire.InputEnvelope](cfg.queueCapacity())
		if err != nil {
			return nil, gwerrors.Wrap("init", err)
		}
		g.inputs[i] = ring
	}
	for i := range g.outputs {
		ring, err := spsc.New[wire.OutputEnvelope](cfg.queueCapacity())
		if err != nil {
			return nil, gwerrors.Wrap("init", err)
		}
		g.outputs[i] = ring
	}

	g.tcpListener = netio.NewTCPListener(netio.TCPListenerConfig{
		Addr:         cfg.TCPAddr,
		Backlog:      cfg.Backlog,
		BufSize:      cfg.BufSize,
		MaxPayload:   cfg.MaxPayload,
		MaxClients:   cfg.MaxTCPClients,
		OutputDepth:  cfg.OutputDepth,
		OutputCodec:  cfg.OutputCodec,
		QuickAck:     cfg.QuickAck,
		BusyPollUsec: cfg.BusyPollUsec,
	}, g.inputs)

	g.udpReceiver = netio.NewUDPReceiver(netio.UDPReceiverConfig{
		Addr:          cfg.UDPAddr,
		MaxClients:    cfg.MaxUDPClients,
		ProbeLimit:    cfg.UDPProbeLimit,
		MaxDatagram:   cfg.MaxDatagram,
		IdleTimeout:   cfg.UDPIdleTimeout,
		EvictInterval: cfg.UDPEvictInterval,
	}, g.inputs)

	engineFunc := netio.EngineFunc(engine.Process)
	for i := range g.processors {
		g.processors[i] = netio.NewProcessor(i, g.inputs[i], g.outputs[i], engineFunc)
	}

	if cfg.MulticastEnabled {
		mc, err := netio.NewMulticast(netio.MulticastConfig{
			Group:    cfg.MulticastGroup,
			Port:     cfg.MulticastPort,
			TTL:      cfg.MulticastTTL,
			Loopback: cfg.MulticastLoopback,
			Codec:    cfg.OutputCodec,
		})
		if err != nil {
			return nil, gwerrors.Wrap("multicast-init", err)
		}
		g.multicast = mc
	}

	g.router = netio.NewOutputRouter(
		g.outputs,
		g.tcpListener.Registry(),
		g.udpReceiver.Registry(),
		g.udpReceiver,
		g.multicastPublisher(),
		netio.OutputRouterConfig{Codec: cfg.OutputCodec},
	)

	return g, nil
}

func (c *Config) queueCapacity() int {
	if c.OutputDepth < 2 || c.OutputDepth&(c.OutputDepth-1) != 0 {
		return 65536
	}
	return c.OutputDepth
}

// multicastPublisher returns nil cleanly (not a non-nil interface wrapping
// a nil pointer) when multicast is disabled, so the output router's
// `r.multicast != nil` check behaves correctly.
func (g *Gateway) multicastPublisher() netio.MulticastPublisher {
	if g.multicast == nil {
		return nil
	}
	return g.multicast
}

// Start binds the TCP and UDP sockets and launches every component's
// goroutine. A Transport fault here is fatal and is returned to
// the caller rather than logged-and-continued.
func (g *Gateway) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	if err := g.tcpListener.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := g.udpReceiver.Start(runCtx); err != nil {
		cancel()
		g.tcpListener.Stop()
		return err
	}

	for _, p := range g.processors {
		p := p
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			p.Run(runCtx)
		}()
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.router.Run(runCtx)
	}()

	g.logger.Info("gateway started", "tcp_addr", g.cfg.TCPAddr, "udp_addr", g.cfg.UDPAddr)
	return nil
}

// Stop cancels every component's context, closes the listening sockets,
// and waits for all goroutines to drain.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.tcpListener.Stop()
	g.udpReceiver.Stop()
	g.wg.Wait()
	if g.multicast != nil {
		_ = g.multicast.Close()
	}
	g.logger.Info("gateway stopped")
}

// TCPAddr returns the TCP listener's bound address, useful in tests that
// configure Config.TCPAddr as ":0" and need the assigned port.
func (g *Gateway) TCPAddr() net.Addr { return g.tcpListener.Addr() }

// UDPAddr returns the UDP socket's bound address, useful in tests that
// configure Config.UDPAddr as ":0" and need the assigned port.
func (g *Gateway) UDPAddr() net.Addr { return g.udpReceiver.Addr() }

// Stats aggregates the observable statistics of every wired
// component into one snapshot.
func (g *Gateway) Stats() StatsSnapshot {
	snap := StatsSnapshot{
		TCP: g.tcpListener.Stats(),
		UDP: g.udpReceiver.Stats(),
		Router: g.router.Stats(),
	}
	for i, p := range g.processors {
		snap.Processors[i] = p.Stats()
	}
	return snap
}

// Collector returns a prometheus.Collector reading this gateway's live
// stats on every scrape, for callers that want to prometheus.MustRegister
// it themselves (see cmd/matchcore-gateway/main.go's -metrics-addr flag).
func (g *Gateway) Collector() prometheus.Collector {
	return statsexport.New(func() statsexport.Snapshot {
		return g.Stats().ForExport()
	})
}
