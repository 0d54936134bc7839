// Package route implements the deterministic symbol partition that splits
// the inbound message stream across the two matching shards.
package route

import "github.com/ehrlich-b/matchcore-gateway/internal/wire"

// Target identifies which matching shard(s) an input message is routed to.
type Target int

const (
	Shard0 Target = iota
	Shard1
	Both
)

// ShardCount is the fixed number of matching shards.
const ShardCount = 2

// Route is a pure function: Flush crosses both shards (it is a global
// quiescence barrier); everything else routes by the uppercased first
// byte of its symbol, A-M to Shard0, N-Z to Shard1, with a null or
// otherwise invalid first byte defaulting to Shard0.
func Route(msg wire.InputMessage) Target {
	if msg.Kind == wire.KindFlush {
		return Both
	}
	return routeSymbol(msg.Symbol)
}

func routeSymbol(sym wire.Symbol) Target {
	c := sym[0]
	// Uppercase: subtract 32 only when c is a lowercase letter.
	if c >= 'a' && c <= 'z' {
		c -= 32
	}
	if c >= 'A' && c <= 'M' {
		return Shard0
	}
	if c >= 'N' && c <= 'Z' {
		return Shard1
	}
	return Shard0
}
