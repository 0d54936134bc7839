package registry

import (
	"sync"
	"time"

	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// UDPProtocol records which wire protocol a UDP client was last observed
// speaking, detected per-datagram from the first byte.
type UDPProtocol uint8

const (
	UDPProtoUnknown UDPProtocol = iota
	UDPProtoCSV
	UDPProtoBinary
)

type udpEntry struct {
	lastSeen int64
	addr     wire.TransportAddr
	id       wire.ClientId
	protocol UDPProtocol
	active   bool
}

// UDPRegistry is an open-addressing (linear probing) hash table of UDP
// client entries with power-of-two capacity and bounded probe length.
// By convention it is mutated only by the UDP receiver goroutine; the
// output router, running on a different goroutine, only reads addresses
// back out through Lookup, which takes a short critical section rather
// than relying on single-writer discipline for reads.
type UDPRegistry struct {
	mu         sync.Mutex
	entries    []udpEntry
	mask       uint32
	probeLimit int
	idIndex    map[wire.ClientId]int
	nextID     wire.ClientId
}

// NewUDPRegistry allocates a table with capacity the next power of two
// at least 2x maxClients.
func NewUDPRegistry(maxClients, probeLimit int) *UDPRegistry {
	capacity := nextPowerOfTwo(maxClients * 2)
	return &UDPRegistry{
		entries:    make([]udpEntry, capacity),
		mask:       uint32(capacity - 1),
		probeLimit: probeLimit,
		idIndex:    make(map[wire.ClientId]int),
		nextID:     wire.UDPClientIdBase,
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// GetOrCreate looks up addr, updating last_seen and protocol on a hit, or
// inserts a new entry on a miss (evicting the LRU entry if the table is
// full). now is the caller-supplied epoch-seconds clock, threaded through
// for deterministic tests.
func (r *UDPRegistry) GetOrCreate(addr wire.TransportAddr, protocol UDPProtocol, now int64) (wire.ClientId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.probeAndUpdate(addr, protocol, now); ok {
		return id, false
	}

	if idx, ok := r.probeEmptySlot(addr); ok {
		return r.insertAt(idx, addr, protocol, now), false
	}

	// Table full within the probe bound: evict LRU and retry once.
	r.evictOldestLocked()
	if idx, ok := r.probeEmptySlot(addr); ok {
		return r.insertAt(idx, addr, protocol, now), true
	}
	// Still nothing after one eviction: drop this datagram's registration.
	return 0, true
}

func (r *UDPRegistry) probeAndUpdate(addr wire.TransportAddr, protocol UDPProtocol, now int64) (wire.ClientId, bool) {
	start := addr.Hash() & r.mask
	for i := 0; i < r.probeLimit; i++ {
		idx := (start + uint32(i)) & r.mask
		e := &r.entries[idx]
		if !e.active {
			return 0, false
		}
		if e.addr.Equal(addr) {
			e.lastSeen = now
			e.protocol = protocol
			return e.id, true
		}
	}
	return 0, false
}

func (r *UDPRegistry) probeEmptySlot(addr wire.TransportAddr) (int, bool) {
	start := addr.Hash() & r.mask
	for i := 0; i < r.probeLimit; i++ {
		idx := (start + uint32(i)) & r.mask
		if !r.entries[idx].active {
			return int(idx), true
		}
	}
	return 0, false
}

func (r *UDPRegistry) insertAt(idx int, addr wire.TransportAddr, protocol UDPProtocol, now int64) wire.ClientId {
	id := r.nextID
	r.nextID++
	if r.nextID == 0 { // wrapped past u32 max
		r.nextID = wire.UDPClientIdBase
	}

	r.entries[idx] = udpEntry{
		lastSeen: now, addr: addr, id: id, protocol: protocol, active: true,
	}
	r.idIndex[id] = idx
	return id
}

// evictOldestLocked scans all slots and deactivates the one with the
// smallest last_seen. Caller must hold r.mu.
func (r *UDPRegistry) evictOldestLocked() {
	oldestIdx := -1
	var oldestSeen int64
	for i := range r.entries {
		if !r.entries[i].active {
			continue
		}
		if oldestIdx == -1 || r.entries[i].lastSeen < oldestSeen {
			oldestIdx = i
			oldestSeen = r.entries[i].lastSeen
		}
	}
	if oldestIdx >= 0 {
		delete(r.idIndex, r.entries[oldestIdx].id)
		r.entries[oldestIdx].active = false
	}
}

// EvictInactive deactivates every entry whose last_seen predates
// now-timeout.
func (r *UDPRegistry) EvictInactive(timeout time.Duration, now int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now - int64(timeout/time.Second)
	evicted := 0
	for i := range r.entries {
		if r.entries[i].active && r.entries[i].lastSeen < cutoff {
			delete(r.idIndex, r.entries[i].id)
			r.entries[i].active = false
			evicted++
		}
	}
	return evicted
}

// Lookup returns the address for a client id (cross-goroutine read path
// used by the output router for direct UDP replies).
func (r *UDPRegistry) Lookup(id wire.ClientId) (wire.TransportAddr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.idIndex[id]
	if !ok || !r.entries[idx].active {
		return wire.TransportAddr{}, false
	}
	return r.entries[idx].addr, true
}

// Count returns the number of currently active UDP client entries.
func (r *UDPRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.entries {
		if r.entries[i].active {
			n++
		}
	}
	return n
}
