package wire

import "testing"

func TestDecodeCSVInput_NewOrder(t *testing.T) {
	msg, err := DecodeCSVInput([]byte("N,1,IBM,100,50,B,1"))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != KindNewOrder || msg.UserID != 1 || msg.Symbol.String() != "IBM" ||
		msg.Price != 100 || msg.Quantity != 50 || msg.Side != SideBuy || msg.UserOrderID != 1 {
		t.Fatalf("decoded mismatch: %+v", msg)
	}
}

func TestDecodeCSVInput_WithSpaces(t *testing.T) {
	msg, err := DecodeCSVInput([]byte("N, 1, IBM, 100, 50, B, 1"))
	if err != nil {
		t.Fatal(err)
	}
	if msg.UserID != 1 || msg.Symbol.String() != "IBM" {
		t.Fatalf("decoded mismatch: %+v", msg)
	}
}

func TestDecodeCSVInput_CancelAndFlush(t *testing.T) {
	msg, err := DecodeCSVInput([]byte("C,1,1"))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != KindCancel || msg.UserID != 1 || msg.UserOrderID != 1 {
		t.Fatalf("decoded mismatch: %+v", msg)
	}

	fmsg, err := DecodeCSVInput([]byte("F"))
	if err != nil {
		t.Fatal(err)
	}
	if fmsg.Kind != KindFlush {
		t.Fatalf("decoded mismatch: %+v", fmsg)
	}
}

func TestDecodeCSVInput_InvalidSide(t *testing.T) {
	if _, err := DecodeCSVInput([]byte("N,1,IBM,100,50,X,1")); err == nil {
		t.Fatal("expected error for invalid side")
	}
}

func TestEncodeCSVOutput(t *testing.T) {
	tests := []struct {
		name string
		msg  OutputMessage
		want string
	}{
		{
			"ack",
			OutputMessage{Kind: KindAck, Symbol: SymbolFrom("IBM"), UserID: 1, UserOrderID: 1},
			"A, IBM, 1, 1\n",
		},
		{
			"cancel-ack",
			OutputMessage{Kind: KindCancelAck, Symbol: SymbolFrom("IBM"), UserID: 1, UserOrderID: 1},
			"C, IBM, 1, 1\n",
		},
		{
			"trade",
			OutputMessage{Kind: KindTrade, Symbol: SymbolFrom("IBM"), BuyUser: 1, BuyOrder: 1, SellUser: 2, SellOrder: 2, Price: 100, Quantity: 50},
			"T, IBM, 1, 1, 2, 2, 100, 50\n",
		},
		{
			"top-of-book",
			OutputMessage{Kind: KindTopOfBook, Symbol: SymbolFrom("IBM"), Side: SideBuy, Price: 100, Quantity: 50},
			"B, IBM, B, 100, 50\n",
		},
		{
			"top-of-book-eliminated",
			OutputMessage{Kind: KindTopOfBook, Symbol: SymbolFrom("IBM"), Side: SideBuy, Price: 0, Quantity: 0},
			"B, IBM, B, -, -\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(EncodeCSVOutput(nil, tt.msg))
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextCSVMessageLen(t *testing.T) {
	buf := []byte("N,1,IBM,100,50,B,1\nF\n")
	lineLen, advance, ok := NextCSVMessageLen(buf)
	if !ok {
		t.Fatal("expected ok")
	}
	if string(buf[:lineLen]) != "N,1,IBM,100,50,B,1" {
		t.Fatalf("line = %q", buf[:lineLen])
	}
	rest := buf[advance:]
	lineLen2, _, ok2 := NextCSVMessageLen(rest)
	if !ok2 || string(rest[:lineLen2]) != "F" {
		t.Fatalf("second line = %q", rest[:lineLen2])
	}
}

func TestNextCSVMessageLen_NoTerminatorYet(t *testing.T) {
	_, _, ok := NextCSVMessageLen([]byte("N,1,IBM"))
	if ok {
		t.Fatal("expected ok=false when no terminator present")
	}
}
