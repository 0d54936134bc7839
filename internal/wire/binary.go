package wire

import (
	"encoding/binary"
	"fmt"
)

// Magic is the leading byte of every binary-protocol message.
const Magic = 0x4D

// Wire type tags (second byte of a binary message). Note that Cancel
// (inbound) and CancelAck (outbound) share the byte value 'C'; the two
// never collide because decoding only runs on inbound bytes and encoding
// only runs on outbound messages.
const (
	tagNewOrder   = 'N'
	tagCancel     = 'C'
	tagFlush      = 'F'
	tagAck        = 'A'
	tagCancelAck  = 'C'
	tagTrade      = 'T'
	tagTopOfBook  = 'B'
)

const (
	binNewOrderLen  = 2 + 4 + 8 + 4 + 4 + 1 + 4 // 27
	binCancelLen    = 2 + 4 + 4                 // 10
	binFlushLen     = 2                         // 2
	binAckLen       = 2 + 8 + 4 + 4             // 18
	binTradeLen     = 2 + 8 + 4 + 4 + 4 + 4 + 4 + 4 // 34
	binTopOfBookLen = 2 + 8 + 1 + 4 + 4         // 19
)

// IsBinaryFirstByte reports whether b identifies a binary-protocol message.
func IsBinaryFirstByte(b byte) bool {
	return b == Magic
}

// IsCSVFirstByte reports whether b identifies a CSV-protocol message
// (an ASCII letter naming the message type).
func IsCSVFirstByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// DecodeBinaryInput decodes one binary InputMessage from buf, returning the
// message and the number of bytes consumed. On a malformed message it
// returns an error and a consumed count of at least 1, so a caller
// scanning a multi-message datagram always makes forward progress.
func DecodeBinaryInput(buf []byte) (InputMessage, int, error) {
	if len(buf) < 2 {
		return InputMessage{}, 1, fmt.Errorf("wire: short binary header")
	}
	if buf[0] != Magic {
		return InputMessage{}, 1, fmt.Errorf("wire: bad magic byte 0x%02x", buf[0])
	}

	switch buf[1] {
	case tagNewOrder:
		if len(buf) < binNewOrderLen {
			return InputMessage{}, 1, fmt.Errorf("wire: short NewOrder")
		}
		var sym Symbol
		copy(sym[:], buf[6:14])
		msg := NewOrder(
			binary.BigEndian.Uint32(buf[2:6]),
			sym,
			binary.BigEndian.Uint32(buf[14:18]),
			binary.BigEndian.Uint32(buf[18:22]),
			Side(buf[22]),
			binary.BigEndian.Uint32(buf[23:27]),
		)
		return msg, binNewOrderLen, nil

	case tagCancel:
		if len(buf) < binCancelLen {
			return InputMessage{}, 1, fmt.Errorf("wire: short Cancel")
		}
		msg := Cancel(binary.BigEndian.Uint32(buf[2:6]), binary.BigEndian.Uint32(buf[6:10]))
		return msg, binCancelLen, nil

	case tagFlush:
		return Flush(), binFlushLen, nil

	default:
		return InputMessage{}, 1, fmt.Errorf("wire: unknown binary input tag 0x%02x", buf[1])
	}
}

// EncodeBinaryOutput serializes an OutputMessage using the binary wire
// format, appending to dst and returning the extended slice. Appending
// to a caller-owned buffer lets the output path reuse one formatter per
// thread without a heap allocation per message.
func EncodeBinaryOutput(dst []byte, msg OutputMessage) []byte {
	switch msg.Kind {
	case KindAck:
		dst = append(dst, Magic, tagAck)
		dst = append(dst, msg.Symbol[:]...)
		dst = appendU32(dst, msg.UserID)
		dst = appendU32(dst, msg.UserOrderID)

	case KindCancelAck:
		dst = append(dst, Magic, tagCancelAck)
		dst = append(dst, msg.Symbol[:]...)
		dst = appendU32(dst, msg.UserID)
		dst = appendU32(dst, msg.UserOrderID)

	case KindTrade:
		dst = append(dst, Magic, tagTrade)
		dst = append(dst, msg.Symbol[:]...)
		dst = appendU32(dst, msg.BuyUser)
		dst = appendU32(dst, msg.BuyOrder)
		dst = appendU32(dst, msg.SellUser)
		dst = appendU32(dst, msg.SellOrder)
		dst = appendU32(dst, msg.Price)
		dst = appendU32(dst, msg.Quantity)

	case KindTopOfBook:
		dst = append(dst, Magic, tagTopOfBook)
		dst = append(dst, msg.Symbol[:]...)
		dst = append(dst, byte(msg.Side))
		dst = appendU32(dst, msg.Price)
		dst = appendU32(dst, msg.Quantity)
	}
	return dst
}

func appendU32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}
