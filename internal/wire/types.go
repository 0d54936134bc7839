// Package wire defines the message, envelope, and address types that flow
// between the gateway's ingress, matching, and egress stages, plus the
// binary and CSV codecs used to serialize them.
package wire

import (
	"fmt"
	"unsafe"
)

// ClientId identifies a connected client. 0 is reserved for broadcast.
// TCP clients occupy 1..=0x7FFFFFFF (slot index + 1); UDP clients occupy
// the range above 0x80000000 (monotonic counter).
type ClientId uint32

// BroadcastClientId means "deliver to every client and to multicast".
const BroadcastClientId ClientId = 0

// UDPClientIdBase is the first id handed to a UDP-registered client.
const UDPClientIdBase ClientId = 0x80000001

// TransportAddr is a packed 8-byte client address: 4-byte network-order
// IPv4, 2-byte network-order port, 2 bytes of padding. Equality and
// hashing only consider the 6 significant bytes.
type TransportAddr struct {
	IPv4 uint32
	Port uint16
	_    uint16
}

// Equal compares the 6 significant bytes (IPv4 + port).
func (a TransportAddr) Equal(b TransportAddr) bool {
	return a.IPv4 == b.IPv4 && a.Port == b.Port
}

// IsZero reports whether this is the zero address (used by TCP envelopes,
// which route by ClientId rather than address).
func (a TransportAddr) IsZero() bool {
	return a.IPv4 == 0 && a.Port == 0
}

// Hash computes an FNV-1a-flavoured hash of the address for the UDP
// open-addressing registry: h = (2166136261 XOR ipv4) * 16777619,
// then XOR port, then multiply again.
func (a TransportAddr) Hash() uint32 {
	const fnvOffset = 2166136261
	const fnvPrime = 16777619
	h := uint32(fnvOffset) ^ a.IPv4
	h *= fnvPrime
	h ^= uint32(a.Port)
	h *= fnvPrime
	return h
}

func (a TransportAddr) String() string {
	b0 := byte(a.IPv4 >> 24)
	b1 := byte(a.IPv4 >> 16)
	b2 := byte(a.IPv4 >> 8)
	b3 := byte(a.IPv4)
	return fmt.Sprintf("%d.%d.%d.%d:%d", b0, b1, b2, b3, a.Port)
}

// Side is the resting side of an order in the book.
type Side uint8

const (
	SideBuy  Side = 'B'
	SideSell Side = 'S'
)

// Symbol is the 8-byte zero-padded (not necessarily null-terminated)
// instrument identifier. Equality and hashing use the full 8 bytes.
type Symbol [8]byte

// SymbolFrom builds a Symbol from a string, zero-padding or truncating to
// 8 bytes.
func SymbolFrom(s string) Symbol {
	var sym Symbol
	copy(sym[:], s)
	return sym
}

func (s Symbol) String() string {
	n := len(s)
	for n > 0 && s[n-1] == 0 {
		n--
	}
	return string(s[:n])
}

// MessageKind tags the variant carried by InputMessage/OutputMessage.
type MessageKind uint8

const (
	KindNewOrder MessageKind = iota
	KindCancel
	KindFlush
	KindAck
	KindCancelAck
	KindTrade
	KindTopOfBook
)

// InputMessage is the tagged union of client-submitted messages.
type InputMessage struct {
	Kind MessageKind

	// NewOrder fields.
	UserID      uint32
	Symbol      Symbol
	Price       uint32
	Quantity    uint32
	Side        Side
	UserOrderID uint32
	// Cancel reuses UserID and UserOrderID above.
}

// NewOrder builds a NewOrder InputMessage.
func NewOrder(userID uint32, symbol Symbol, price, quantity uint32, side Side, userOrderID uint32) InputMessage {
	return InputMessage{
		Kind: KindNewOrder, UserID: userID, Symbol: symbol,
		Price: price, Quantity: quantity, Side: side, UserOrderID: userOrderID,
	}
}

// Cancel builds a Cancel InputMessage.
func Cancel(userID, userOrderID uint32) InputMessage {
	return InputMessage{Kind: KindCancel, UserID: userID, UserOrderID: userOrderID}
}

// Flush builds a Flush InputMessage.
func Flush() InputMessage {
	return InputMessage{Kind: KindFlush}
}

// OutputMessage is the tagged union of engine-produced messages.
type OutputMessage struct {
	Kind MessageKind

	Symbol Symbol

	// Ack / CancelAck fields.
	UserID      uint32
	UserOrderID uint32

	// Trade fields.
	BuyUser    uint32
	BuyOrder   uint32
	SellUser   uint32
	SellOrder  uint32
	Price      uint32
	Quantity   uint32

	// TopOfBook fields. Price==0 && Quantity==0 denotes "side eliminated".
	Side Side
}

// IsEliminated reports whether a TopOfBook message announces that a side
// no longer has any resting liquidity.
func (m OutputMessage) IsEliminated() bool {
	return m.Kind == KindTopOfBook && m.Price == 0 && m.Quantity == 0
}

// InputEnvelope wraps a parsed client message with routing metadata.
// Sequence is strictly monotonic within the producing ingress thread;
// ClientAddr is zeroed for TCP (routing there uses ClientID). _pad is
// sized to round the struct out to exactly one cache line: this
// InputMessage is narrower than the wire-level one the envelope's byte
// budget assumes, so the gap has to be reclaimed explicitly rather than
// left to whatever the compiler would insert on its own.
type InputEnvelope struct {
	Msg        InputMessage
	ClientID   ClientId
	ClientAddr TransportAddr
	_pad       [12]byte
	Sequence   uint64
}

// OutputEnvelope wraps a produced response/market-data message with its
// destination client id. ClientID == BroadcastClientId means "deliver to
// every client and to multicast". Sequence is monotonic per output queue,
// not globally. Unlike InputEnvelope, this already lands on exactly one
// cache line with no explicit padding field needed (see the size
// assertion below) — OutputMessage's own field set is wide enough.
type OutputEnvelope struct {
	Msg      OutputMessage
	ClientID ClientId
	Sequence uint64
}

// Both envelope types back the SPSC rings in internal/spsc; packing two
// onto one cache line would let a consumer's read of one tear against a
// producer's concurrent write of its neighbor, so each must be exactly
// one line wide. Each size is checked in both directions: a struct larger
// or smaller than one line makes one of these constant array lengths
// negative, which is a compile error, turning a layout regression into a
// build failure instead of a runtime race.
const cacheLineSize = 64

var (
	_ [cacheLineSize - unsafe.Sizeof(InputEnvelope{})]byte
	_ [unsafe.Sizeof(InputEnvelope{}) - cacheLineSize]byte
	_ [cacheLineSize - unsafe.Sizeof(OutputEnvelope{})]byte
	_ [unsafe.Sizeof(OutputEnvelope{}) - cacheLineSize]byte
)
