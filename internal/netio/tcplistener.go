// Package netio hosts the gateway's transport-facing components: the TCP
// listener (A), UDP receiver (B), matching processors (E), and the output
// router / multicast publisher (G). Each runs its own goroutine pinned (in
// spirit — OS thread pinning is left to GOMAXPROCS/the runtime scheduler,
// see DESIGN.md) to one shard of work, and all coordinate only through the
// lock-free queues in internal/spsc and the registries in internal/registry.
package netio

import (
	"context"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/ehrlich-b/matchcore-gateway/internal/constants"
	"github.com/ehrlich-b/matchcore-gateway/internal/gwerrors"
	"github.com/ehrlich-b/matchcore-gateway/internal/logging"
	"github.com/ehrlich-b/matchcore-gateway/internal/registry"
	"github.com/ehrlich-b/matchcore-gateway/internal/route"
	"github.com/ehrlich-b/matchcore-gateway/internal/spsc"
	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// ListenerState is the TCP listener's lifecycle state machine.
type ListenerState int32

const (
	StateIdle ListenerState = iota
	StateListening
	StateRunning
	StateDraining
	StateStopped
)

// Codec selects the wire format the listener uses to encode outbound
// messages to TCP clients; inbound messages are always auto-detected.
type Codec int

const (
	CodecBinary Codec = iota
	CodecCSV
)

// TCPListenerConfig configures component A.
type TCPListenerConfig struct {
	Addr         string
	Backlog      int
	BufSize      int
	MaxPayload   int
	MaxClients   int
	OutputDepth  int
	OutputCodec  Codec
	QuickAck     bool
	BusyPollUsec int
}

// InputQueues is the pair of shard input queues shared by every ingress
// component (A and B).
type InputQueues [route.ShardCount]*spsc.Ring[wire.InputEnvelope]

// TCPListener implements component A: accept loop, per-connection framing,
// admission checks, routing, and draining the per-slot output queues back
// onto the wire.
type TCPListener struct {
	cfg      TCPListenerConfig
	registry *registry.TCPRegistry
	inputs   InputQueues
	logger   *logging.Logger

	state  atomic.Int32
	ln     net.Listener
	cancel context.CancelFunc
	rbufs  *bufPool

	// stats, atomic: relaxed, never used for control flow.
	rxMessages  atomic.Uint64
	txMessages  atomic.Uint64
	rxBytes     atomic.Uint64
	txBytes     atomic.Uint64
	parseErrors atomic.Uint64
	admitDrops  atomic.Uint64
	queueDrops  atomic.Uint64
}

// NewTCPListener builds a listener; call Start to begin accepting.
func NewTCPListener(cfg TCPListenerConfig, inputs InputQueues) *TCPListener {
	return &TCPListener{
		cfg:      cfg,
		registry: registry.NewTCPRegistry(cfg.MaxClients, cfg.BufSize, cfg.MaxPayload, cfg.OutputDepth),
		inputs:   inputs,
		logger:   logging.Default().WithComponent("tcp-listener"),
		rbufs:    newBufPool(4096),
	}
}

// Registry exposes the TCP client registry so the output router can reach
// it for broadcast fan-out and per-client delivery.
func (l *TCPListener) Registry() *registry.TCPRegistry { return l.registry }

// Addr returns the bound listen address, useful for tests that bind to
// ":0" and need to discover the assigned port. Nil until Start succeeds.
func (l *TCPListener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Start binds and begins accepting connections; it returns once the
// listen socket is bound.
func (l *TCPListener) Start(ctx context.Context) error {
	l.state.Store(int32(StateIdle))

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = applyListenerOpts(int(fd))
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	ln, err := lc.Listen(ctx, "tcp", l.cfg.Addr)
	if err != nil {
		return gwerrors.Wrap("listen", err)
	}
	l.ln = ln
	l.state.Store(int32(StateListening))

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.state.Store(int32(StateRunning))

	go l.acceptLoop(runCtx)
	l.logger.Info("tcp listener started", "addr", l.cfg.Addr)
	return nil
}

// Stop transitions to Draining then Stopped: stops accepting, closes the
// listen socket, and disconnects every client. Per-connection goroutines
// observe ctx cancellation and exit on their own.
func (l *TCPListener) Stop() {
	l.state.Store(int32(StateDraining))
	if l.cancel != nil {
		l.cancel()
	}
	if l.ln != nil {
		_ = l.ln.Close()
	}
	l.registry.DisconnectAll()
	l.state.Store(int32(StateStopped))
}

func (l *TCPListener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.WithError(err).Warn("accept failed")
			continue
		}
		l.onAccept(ctx, conn)
	}
}

func (l *TCPListener) onAccept(ctx context.Context, conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		if raw, err := tc.SyscallConn(); err == nil {
			_ = raw.Control(func(fd uintptr) {
				_ = applyClientOpts(int(fd), l.cfg.QuickAck, l.cfg.BusyPollUsec)
			})
		}
	}

	id, slot, ok := l.registry.Add(conn)
	if !ok {
		l.logger.Warn("tcp registry full, rejecting connection")
		_ = conn.Close()
		return
	}
	log := l.logger.WithClient(uint32(id))
	log.Info("client connected")

	go l.readLoop(ctx, id, slot, log)
	go l.writeLoop(ctx, slot, log)
}

// readLoop owns this connection's ReadState; it is the only goroutine
// that ever calls Append/Extract/Reset on it.
func (l *TCPListener) readLoop(ctx context.Context, id wire.ClientId, slot *registry.TCPSlot, log *logging.Logger) {
	defer l.disconnect(id, log)

	buf := l.rbufs.Get()
	defer l.rbufs.Put(buf)

	// seq is this connection's own monotonic counter: readLoop is the
	// only goroutine that ever builds an InputEnvelope for this client,
	// so a plain local suffices.
	var seq uint64

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := slot.Conn.Read(buf)
		if n > 0 {
			l.rxBytes.Add(uint64(n))
			accepted := slot.ReadState.Append(buf[:n])
			if accepted < n {
				log.Warn("read buffer overrun, resetting framing state")
				slot.ReadState.Reset()
				continue
			}
			l.extractMessages(id, slot, &seq, log)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			return
		}
	}
}

func (l *TCPListener) extractMessages(id wire.ClientId, slot *registry.TCPSlot, seq *uint64, log *logging.Logger) {
	for i := 0; i < constants.MaxMessagesPerRead; i++ {
		status, payload := slot.ReadState.Extract()
		switch status {
		case wire.ExtractNeedMore:
			return
		case wire.ExtractError:
			log.Warn("frame error, disconnecting client")
			_ = slot.Conn.Close()
			return
		case wire.ExtractReady:
			l.handlePayload(id, slot, payload, seq, log)
		}
	}
}

func (l *TCPListener) handlePayload(id wire.ClientId, slot *registry.TCPSlot, payload []byte, seq *uint64, log *logging.Logger) {
	if len(payload) == 0 {
		return
	}

	var msg wire.InputMessage
	var err error
	if wire.IsBinaryFirstByte(payload[0]) {
		msg, _, err = wire.DecodeBinaryInput(payload)
	} else if wire.IsCSVFirstByte(payload[0]) {
		msg, err = wire.DecodeCSVInput(payload)
	} else {
		err = gwerrors.New("decode", gwerrors.ErrCodeParseError, "unrecognised first byte")
	}
	if err != nil {
		l.parseErrors.Add(1)
		slot.Stats.ParseErrors.Add(1)
		log.WithError(err).Debug("parse error")
		return
	}
	l.rxMessages.Add(1)
	slot.Stats.RxMessages.Add(1)

	// Admission: declared user_id must match the connection's client_id.
	// Flush carries no id and is exempt.
	if msg.Kind == wire.KindNewOrder || msg.Kind == wire.KindCancel {
		if msg.UserID != uint32(id) {
			l.admitDrops.Add(1)
			log.Warn("admission rejected: user_id mismatch", "user_id", msg.UserID)
			return
		}
	}

	env := wire.InputEnvelope{Msg: msg, ClientID: id, Sequence: *seq}
	*seq++
	target := route.Route(msg)
	l.enqueue(target, env, log)
}

func (l *TCPListener) enqueue(target route.Target, env wire.InputEnvelope, log *logging.Logger) {
	switch target {
	case route.Both:
		if !l.inputs[0].Enqueue(env) {
			l.queueDrops.Add(1)
			log.Warn("shard 0 input queue full, dropping flush copy")
		}
		if !l.inputs[1].Enqueue(env) {
			l.queueDrops.Add(1)
			log.Warn("shard 1 input queue full, dropping flush copy")
		}
	case route.Shard1:
		if !l.inputs[1].Enqueue(env) {
			l.queueDrops.Add(1)
			log.Debug("shard 1 input queue full, dropping message")
		}
	default:
		if !l.inputs[0].Enqueue(env) {
			l.queueDrops.Add(1)
			log.Debug("shard 0 input queue full, dropping message")
		}
	}
}

// writeLoop drains this slot's output queue and writes framed, encoded
// bytes to the socket, implementing step 3's "client fd + writable"
// handling as a dedicated goroutine instead of a poll-loop branch.
func (l *TCPListener) writeLoop(ctx context.Context, slot *registry.TCPSlot, log *logging.Logger) {
	backoff := spsc.Backoff{}
	var encodeBuf []byte

	for {
		if ctx.Err() != nil {
			return
		}
		if !slot.Active.Load() {
			return
		}

		msg, ok := slot.OutputQueue.Dequeue()
		if !ok {
			backoff.Wait()
			continue
		}
		backoff.Reset()

		encodeBuf = encodeBuf[:0]
		encodeBuf = l.encode(encodeBuf, msg)
		framed, err := wire.EncodeFrame(nil, encodeBuf)
		if err != nil {
			continue
		}
		slot.WriteState.Queue(framed)
		if !l.flushWrite(slot, log) {
			return
		}
		l.txMessages.Add(1)
		slot.Stats.TxMessages.Add(1)
	}
}

func (l *TCPListener) flushWrite(slot *registry.TCPSlot, log *logging.Logger) bool {
	for slot.WriteState.Pending() {
		n, err := slot.Conn.Write(slot.WriteState.Remaining())
		if n > 0 {
			l.txBytes.Add(uint64(n))
			slot.WriteState.Advance(n)
		}
		if err != nil {
			log.WithError(err).Debug("client write error")
			return false
		}
	}
	return true
}

func (l *TCPListener) encode(dst []byte, msg wire.OutputMessage) []byte {
	if l.cfg.OutputCodec == CodecCSV {
		return wire.EncodeCSVOutput(dst, msg)
	}
	return wire.EncodeBinaryOutput(dst, msg)
}

func (l *TCPListener) disconnect(id wire.ClientId, log *logging.Logger) {
	l.registry.Remove(id)
	log.Info("client disconnected")
}

// State returns the listener's current lifecycle state.
func (l *TCPListener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// TCPListenerStats is a point-in-time snapshot of component A's counters.
type TCPListenerStats struct {
	RxMessages    uint64
	TxMessages    uint64
	RxBytes       uint64
	TxBytes       uint64
	ParseErrors   uint64
	AdmitDrops    uint64
	QueueDrops    uint64
	ActiveClients int
}

// Stats returns a snapshot of the listener's observable statistics.
func (l *TCPListener) Stats() TCPListenerStats {
	return TCPListenerStats{
		RxMessages:    l.rxMessages.Load(),
		TxMessages:    l.txMessages.Load(),
		RxBytes:       l.rxBytes.Load(),
		TxBytes:       l.txBytes.Load(),
		ParseErrors:   l.parseErrors.Load(),
		AdmitDrops:    l.admitDrops.Load(),
		QueueDrops:    l.queueDrops.Load(),
		ActiveClients: l.registry.Count(),
	}
}
