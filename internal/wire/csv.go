package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// DecodeCSVInput decodes one line of the line-oriented CSV protocol
// (comma-separated, optional space after the comma, no terminator in
// line) into an InputMessage.
func DecodeCSVInput(line []byte) (InputMessage, error) {
	fields := splitCSVFields(line)
	if len(fields) == 0 {
		return InputMessage{}, fmt.Errorf("wire: empty CSV line")
	}

	switch fields[0] {
	case "N":
		if len(fields) != 7 {
			return InputMessage{}, fmt.Errorf("wire: NewOrder wants 7 fields, got %d", len(fields))
		}
		userID, err := parseU32(fields[1])
		if err != nil {
			return InputMessage{}, err
		}
		price, err := parseU32(fields[3])
		if err != nil {
			return InputMessage{}, err
		}
		quantity, err := parseU32(fields[4])
		if err != nil {
			return InputMessage{}, err
		}
		if len(fields[5]) != 1 || (fields[5] != "B" && fields[5] != "S") {
			return InputMessage{}, fmt.Errorf("wire: invalid side %q", fields[5])
		}
		userOrderID, err := parseU32(fields[6])
		if err != nil {
			return InputMessage{}, err
		}
		return NewOrder(userID, SymbolFrom(fields[2]), price, quantity, Side(fields[5][0]), userOrderID), nil

	case "C":
		if len(fields) != 3 {
			return InputMessage{}, fmt.Errorf("wire: Cancel wants 3 fields, got %d", len(fields))
		}
		userID, err := parseU32(fields[1])
		if err != nil {
			return InputMessage{}, err
		}
		userOrderID, err := parseU32(fields[2])
		if err != nil {
			return InputMessage{}, err
		}
		return Cancel(userID, userOrderID), nil

	case "F":
		return Flush(), nil

	default:
		return InputMessage{}, fmt.Errorf("wire: unknown CSV input type %q", fields[0])
	}
}

// EncodeCSVOutput appends the CSV rendering of msg (including its LF
// terminator) to dst and returns the extended slice.
func EncodeCSVOutput(dst []byte, msg OutputMessage) []byte {
	switch msg.Kind {
	case KindAck:
		dst = append(dst, fmt.Sprintf("A, %s, %d, %d\n", msg.Symbol.String(), msg.UserID, msg.UserOrderID)...)
	case KindCancelAck:
		dst = append(dst, fmt.Sprintf("C, %s, %d, %d\n", msg.Symbol.String(), msg.UserID, msg.UserOrderID)...)
	case KindTrade:
		dst = append(dst, fmt.Sprintf("T, %s, %d, %d, %d, %d, %d, %d\n",
			msg.Symbol.String(), msg.BuyUser, msg.BuyOrder, msg.SellUser, msg.SellOrder, msg.Price, msg.Quantity)...)
	case KindTopOfBook:
		if msg.IsEliminated() {
			dst = append(dst, fmt.Sprintf("B, %s, %c, -, -\n", msg.Symbol.String(), msg.Side)...)
		} else {
			dst = append(dst, fmt.Sprintf("B, %s, %c, %d, %d\n", msg.Symbol.String(), msg.Side, msg.Price, msg.Quantity)...)
		}
	}
	return dst
}

func splitCSVFields(line []byte) []string {
	s := strings.TrimRight(string(line), "\r\n")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("wire: invalid integer %q: %w", s, err)
	}
	return uint32(v), nil
}

// NextCSVMessageLen finds the length of the next CSV message in buf
// (including its terminator), searching for '\n' or '\r'. It returns the
// length of the line content (without terminator) and the number of bytes
// to advance the cursor (including the terminator), or ok=false if no
// terminator was found yet.
func NextCSVMessageLen(buf []byte) (lineLen, advance int, ok bool) {
	for i, b := range buf {
		if b == '\n' {
			lineLen = i
			if lineLen > 0 && buf[lineLen-1] == '\r' {
				lineLen--
			}
			return lineLen, i + 1, true
		}
		if b == '\r' {
			if i+1 < len(buf) && buf[i+1] == '\n' {
				return i, i + 2, true
			}
			return i, i + 1, true
		}
	}
	return 0, 0, false
}
