package netio

import (
	"context"
	"sync/atomic"

	"github.com/ehrlich-b/matchcore-gateway/internal/constants"
	"github.com/ehrlich-b/matchcore-gateway/internal/logging"
	"github.com/ehrlich-b/matchcore-gateway/internal/spsc"
	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// EngineFunc is the external collaborator's transform, matched to the
// top-level Engine interface without importing the root package (which
// would create an import cycle since the root package wires netio).
type EngineFunc func(msg wire.InputMessage) []wire.OutputMessage

// Processor implements component E: one per shard, pulling batches from
// its input queue, calling the engine serially, and pushing results onto
// its output queue in the same order the inputs were consumed.
type Processor struct {
	shard  int
	input  *spsc.Ring[wire.InputEnvelope]
	output *spsc.Ring[wire.OutputEnvelope]
	engine EngineFunc
	logger *logging.Logger

	seq uint64

	processed  atomic.Uint64
	dispatched atomic.Uint64
	dropped    atomic.Uint64
	pollEmpty  atomic.Uint64
	pollFull   atomic.Uint64
}

// NewProcessor builds a processor for one shard.
func NewProcessor(shard int, input *spsc.Ring[wire.InputEnvelope], output *spsc.Ring[wire.OutputEnvelope], engine EngineFunc) *Processor {
	return &Processor{
		shard:  shard,
		input:  input,
		output: output,
		engine: engine,
		logger: logging.Default().WithComponent("processor").WithShard(shard),
	}
}

// Run processes until ctx is cancelled, then drains the input queue once
// more before returning.
func (p *Processor) Run(ctx context.Context) {
	batch := make([]wire.InputEnvelope, constants.ProcessorBatchSize)
	var backoff spsc.Backoff

	for {
		if ctx.Err() != nil {
			p.drainOnce(batch)
			return
		}
		n := p.input.DequeueBatch(batch)
		if n == 0 {
			p.pollEmpty.Add(1)
			backoff.Wait()
			continue
		}
		if n == len(batch) {
			p.pollFull.Add(1)
		}
		backoff.Reset()
		p.processBatch(batch[:n])
	}
}

func (p *Processor) drainOnce(batch []wire.InputEnvelope) {
	for {
		n := p.input.DequeueBatch(batch)
		if n == 0 {
			return
		}
		p.processBatch(batch[:n])
	}
}

func (p *Processor) processBatch(batch []wire.InputEnvelope) {
	for _, env := range batch {
		outs := p.engine(env.Msg)
		p.processed.Add(1)
		for _, o := range outs {
			p.dispatched.Add(1)
			p.pushOutput(env, o)
		}
	}
}

func (p *Processor) pushOutput(env wire.InputEnvelope, o wire.OutputMessage) {
	outEnv := wire.OutputEnvelope{Msg: o, ClientID: destinationFor(env, o), Sequence: p.seq}
	p.seq++

	var backoff spsc.Backoff
	for i := 0; i < constants.EnqueueRetryIterations; i++ {
		if p.output.Enqueue(outEnv) {
			return
		}
		backoff.Wait()
	}
	p.dropped.Add(1)
	p.logger.Warn("output queue persistently full, dropping", "kind", o.Kind)
}

// ProcessorStats is a point-in-time snapshot of component E's counters.
type ProcessorStats struct {
	Shard      int
	Processed  uint64
	Dispatched uint64
	Dropped    uint64
	PollEmpty  uint64
	PollFull   uint64
}

// Stats returns a snapshot of the processor's observable statistics.
func (p *Processor) Stats() ProcessorStats {
	return ProcessorStats{
		Shard:      p.shard,
		Processed:  p.processed.Load(),
		Dispatched: p.dispatched.Load(),
		Dropped:    p.dropped.Load(),
		PollEmpty:  p.pollEmpty.Load(),
		PollFull:   p.pollFull.Load(),
	}
}

// destinationFor decides which client an engine-produced message targets:
// direct acknowledgements go back to the order's originating client,
// market data (Trade, TopOfBook) is broadcast.
func destinationFor(env wire.InputEnvelope, o wire.OutputMessage) wire.ClientId {
	switch o.Kind {
	case wire.KindAck, wire.KindCancelAck:
		return env.ClientID
	default:
		return wire.BroadcastClientId
	}
}
