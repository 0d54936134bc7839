package matchcore

import "github.com/ehrlich-b/matchcore-gateway/internal/wire"

// Engine is the matching engine this gateway treats as an opaque
// synchronous transformer: process(input) -> [output]. It is an external
// collaborator — order books, price-time priority, and trade generation
// live outside this module's scope.
//
// Implementations are called serially, once per InputMessage, from a
// single processor goroutine per shard; Process must not block on
// anything outside its own data structures; a Flush call from shard 0
// and the identical Flush call from shard 1 both arrive, are independent,
// and are not deduplicated by the gateway (see DESIGN.md).
type Engine interface {
	Process(msg wire.InputMessage) []wire.OutputMessage
}

// NullEngine is a no-op stand-in for a real matching engine: it acks every
// NewOrder and Cancel and produces no trades or top-of-book updates. It
// exists so cmd/matchcore-gateway/main.go has something to wire by
// default when no real engine is plugged in.
type NullEngine struct{}

// Process implements Engine.
func (NullEngine) Process(msg wire.InputMessage) []wire.OutputMessage {
	switch msg.Kind {
	case wire.KindNewOrder:
		return []wire.OutputMessage{{
			Kind: wire.KindAck, Symbol: msg.Symbol,
			UserID: msg.UserID, UserOrderID: msg.UserOrderID,
		}}
	case wire.KindCancel:
		return []wire.OutputMessage{{
			Kind: wire.KindCancelAck,
			UserID: msg.UserID, UserOrderID: msg.UserOrderID,
		}}
	default:
		return nil
	}
}

var _ Engine = NullEngine{}
