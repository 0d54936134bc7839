// Package constants holds the fixed tunables of the gateway's ingress/egress
// core. Topology is fixed at process start (no dynamic reconfiguration), so
// these are compile-time defaults rather than a live config schema.
package constants

import "time"

// Envelope and queue sizing.
const (
	// SpscDefaultCapacity is the typical ring size for input/output queues.
	// Must be a power of two; the ring reserves one slot to distinguish
	// full from empty, so usable capacity is SpscDefaultCapacity-1.
	SpscDefaultCapacity = 65536

	// MaxTCPClients is the default size of the TCP slot-indexed registry.
	MaxTCPClients = 1024

	// MaxUDPClients is the default number of tracked UDP client entries.
	MaxUDPClients = 8192

	// UDPTableProbeLimit bounds linear probing in the UDP open-addressing table.
	UDPTableProbeLimit = 128
)

// TCP framing.
const (
	// DefaultBufSize is the default per-connection read/write buffer size
	// (4 bytes of length header + up to 64KiB of payload).
	DefaultBufSize = 65540

	// MaxPayload is the upper bound on a framed payload (2 MiB). A TCP
	// connection's ReadState further caps it at its buffer size minus the
	// 4-byte header.
	MaxPayload = 2 << 20

	// MaxMessagesPerRead bounds extract() calls per readable event so one
	// very chatty client cannot starve other clients in the same poll pass.
	MaxMessagesPerRead = 64
)

// Event loop and batching.
const (
	// EventTimeout bounds how long the UDP receiver's read blocks before
	// re-checking the shutdown flag.
	EventTimeout = 100 * time.Millisecond

	// ProcessorBatchSize is the max number of input envelopes pulled from
	// an input queue per processor loop iteration.
	ProcessorBatchSize = 64

	// OutputBatchSize is the max number of output envelopes drained from
	// each output queue per output-router round-robin pass.
	OutputBatchSize = 32

	// MaxDrainIterations bounds the output router's shutdown drain loop.
	MaxDrainIterations = 100

	// IdleSpinThreshold is how many consecutive empty dequeue attempts a
	// processor or receiver spins on before backing off to a sleep.
	IdleSpinThreshold = 1000

	// IdleSleep is the backoff duration once IdleSpinThreshold is exceeded.
	IdleSleep = 100 * time.Microsecond

	// EnqueueRetryIterations bounds the cooperative-yield retry loop used
	// by the UDP receiver and processor output path when a target queue
	// is transiently full.
	EnqueueRetryIterations = 1000
)

// TCP listener defaults.
const (
	DefaultBacklog = 128
)

// Multicast defaults.
const (
	DefaultMulticastTTL = 1
)
