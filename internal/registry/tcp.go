// Package registry implements the per-transport client registries:
// a fixed-size, mutex-guarded array for TCP slots and an open-addressing
// hash table with LRU eviction for UDP clients.
package registry

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/matchcore-gateway/internal/spsc"
	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// TCPStats tracks per-connection counters surfaced in observable
// statistics. Relaxed atomics: read by the stats exporter from any
// goroutine, written by this connection's read/write loops, never used to
// drive control flow.
type TCPStats struct {
	RxMessages  atomic.Uint64
	TxMessages  atomic.Uint64
	RxBytes     atomic.Uint64
	TxBytes     atomic.Uint64
	ParseErrors atomic.Uint64
}

// TCPSlot is one entry in the fixed-size TCP client array. It is created
// on accept and destroyed on disconnect; the slot's membership in the
// registry's live count is guarded by TCPRegistry's mutex, but Active is
// read from other goroutines (the output router, this connection's
// write loop) without taking that lock, so it is an atomic.Bool rather
// than a plain bool. The remaining fields are touched only by the
// listener goroutine that owns this connection, or via the slot's
// lock-free OutputQueue.
type TCPSlot struct {
	Conn        net.Conn
	ID          wire.ClientId
	Active      atomic.Bool
	ReadState   *wire.ReadState
	WriteState  *wire.WriteState
	OutputQueue *spsc.Ring[wire.OutputMessage]
	Stats       TCPStats
}

// TCPRegistry is the fixed-size, slot-indexed TCP client array.
type TCPRegistry struct {
	mu    sync.Mutex
	slots []TCPSlot
	count int

	bufSize     int
	maxPayload  int
	outputDepth int
}

// NewTCPRegistry allocates a registry sized for maxClients, with each
// slot's read/write framing buffers and output queue pre-sized from
// bufSize/maxPayload/outputDepth.
func NewTCPRegistry(maxClients, bufSize, maxPayload, outputDepth int) *TCPRegistry {
	return &TCPRegistry{
		slots:       make([]TCPSlot, maxClients),
		bufSize:     bufSize,
		maxPayload:  maxPayload,
		outputDepth: outputDepth,
	}
}

// Add scans for the first inactive slot and activates it for conn,
// returning the assigned ClientId (slot index + 1). Returns ok=false if
// the registry is full.
func (r *TCPRegistry) Add(conn net.Conn) (wire.ClientId, *TCPSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		slot := &r.slots[i]
		if !slot.Active.Load() {
			out, err := spsc.New[wire.OutputMessage](r.outputDepth)
			if err != nil {
				return 0, nil, false
			}
			slot.Conn = conn
			slot.ID = wire.ClientId(i + 1)
			slot.ReadState = wire.NewReadState(r.bufSize, r.maxPayload)
			slot.WriteState = wire.NewWriteState(r.bufSize)
			slot.OutputQueue = out
			slot.Stats = TCPStats{}
			slot.Active.Store(true)
			r.count++
			return slot.ID, slot, true
		}
	}
	return 0, nil, false
}

// Remove closes the connection and deactivates the slot. Safe to call
// more than once for the same id.
func (r *TCPRegistry) Remove(id wire.ClientId) {
	idx := int(id) - 1
	if idx < 0 || idx >= len(r.slots) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot := &r.slots[idx]
	if !slot.Active.Load() {
		return
	}
	if slot.Conn != nil {
		_ = slot.Conn.Close()
	}
	slot.Active.Store(false)
	slot.Conn = nil
	r.count--
}

// Get returns the slot for id without taking the registry's mutex.
// Active itself is an atomic.Bool, so callers reading it (e.g. before
// writing to the slot) get a well-defined answer even though it can be
// concurrently flipped by Remove/DisconnectAll; only the non-atomic
// fields (Conn, ReadState, ...) remain the read/write goroutine's own.
func (r *TCPRegistry) Get(id wire.ClientId) *TCPSlot {
	idx := int(id) - 1
	if idx < 0 || idx >= len(r.slots) {
		return nil
	}
	return &r.slots[idx]
}

// Count returns the current number of active TCP clients.
func (r *TCPRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// ForEachActive calls fn for every currently-active slot, used by the
// output router's broadcast fan-out. fn must not call Add/Remove.
func (r *TCPRegistry) ForEachActive(fn func(*TCPSlot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if r.slots[i].Active.Load() {
			fn(&r.slots[i])
		}
	}
}

// DisconnectAll closes every active connection, used at shutdown.
func (r *TCPRegistry) DisconnectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.Active.Load() {
			if slot.Conn != nil {
				_ = slot.Conn.Close()
			}
			slot.Active.Store(false)
			slot.Conn = nil
		}
	}
	r.count = 0
}
