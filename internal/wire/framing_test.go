package wire

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestExtract_NeedMoreThenReady(t *testing.T) {
	rs := NewReadState(4096, 1024)

	rs.Append([]byte{0, 0})
	status, _ := rs.Extract()
	if status != ExtractNeedMore {
		t.Fatalf("status = %v, want NeedMore", status)
	}

	payload := []byte("hello")
	framed, err := EncodeFrame(nil, payload)
	if err != nil {
		t.Fatal(err)
	}
	rs.Append(framed[2:])
	status, out := rs.Extract()
	if status != ExtractReady {
		t.Fatalf("status = %v, want Ready", status)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("extracted %q, want %q", out, payload)
	}
}

func TestExtract_ZeroLengthIsError(t *testing.T) {
	rs := NewReadState(4096, 1024)
	rs.Append([]byte{0, 0, 0, 0})
	status, _ := rs.Extract()
	if status != ExtractError {
		t.Fatalf("status = %v, want Error", status)
	}
	if rs.pos != 0 {
		t.Fatalf("pos = %d, want 0 after reset", rs.pos)
	}
}

func TestExtract_OversizeIsError(t *testing.T) {
	rs := NewReadState(4096, 16)
	hdr := []byte{0, 0, 0, 100} // length 100 > maxPayload 16
	rs.Append(hdr)
	status, _ := rs.Extract()
	if status != ExtractError {
		t.Fatalf("status = %v, want Error", status)
	}
}

// TestExtract_SurvivesShift verifies the copy-before-shift requirement:
// a returned payload must remain valid (unaliased) across a subsequent
// Append/Extract that triggers the sliding-window memmove.
func TestExtract_SurvivesShift(t *testing.T) {
	rs := NewReadState(4096, 1024)

	var buf []byte
	buf, _ = EncodeFrame(buf, []byte("first"))
	buf, _ = EncodeFrame(buf, []byte("second"))
	rs.Append(buf)

	_, first := rs.Extract()
	firstCopy := append([]byte(nil), first...)

	_, second := rs.Extract()

	if !bytes.Equal(firstCopy, []byte("first")) {
		t.Fatalf("first payload corrupted: %q", firstCopy)
	}
	if !bytes.Equal(second, []byte("second")) {
		t.Fatalf("second payload = %q, want %q", second, "second")
	}
}

// TestRoundTrip_ArbitraryChunking covers framing's core guarantee:
// framing an arbitrary sequence of messages and feeding the resulting
// bytes to the reader in arbitrary chunk sizes reproduces exactly the
// original message sequence.
func TestRoundTrip_ArbitraryChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	var messages [][]byte
	for i := 0; i < 50; i++ {
		n := rng.Intn(200) + 1
		msg := make([]byte, n)
		rng.Read(msg)
		messages = append(messages, msg)
	}

	var wire []byte
	for _, m := range messages {
		var err error
		wire, err = EncodeFrame(wire, m)
		if err != nil {
			t.Fatal(err)
		}
	}

	rs := NewReadState(1<<20, 1<<20)
	var got [][]byte
	pos := 0
	for pos < len(wire) {
		chunk := rng.Intn(37) + 1
		if pos+chunk > len(wire) {
			chunk = len(wire) - pos
		}
		rs.Append(wire[pos : pos+chunk])
		pos += chunk

		for {
			status, payload := rs.Extract()
			if status == ExtractNeedMore {
				break
			}
			if status == ExtractError {
				t.Fatal("unexpected frame error")
			}
			got = append(got, append([]byte(nil), payload...))
		}
	}

	if len(got) != len(messages) {
		t.Fatalf("got %d messages, want %d", len(got), len(messages))
	}
	for i := range messages {
		if !bytes.Equal(got[i], messages[i]) {
			t.Fatalf("message %d mismatch: got %x want %x", i, got[i], messages[i])
		}
	}
}

func TestWriteState_PartialWrite(t *testing.T) {
	ws := NewWriteState(4096)
	ws.Queue([]byte("hello world"))
	if !ws.Pending() {
		t.Fatal("expected pending write")
	}
	ws.Advance(5)
	if !bytes.Equal(ws.Remaining(), []byte(" world")) {
		t.Fatalf("Remaining() = %q", ws.Remaining())
	}
	ws.Advance(6)
	if ws.Pending() {
		t.Fatal("expected write complete")
	}
}
