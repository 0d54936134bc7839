package wire

import (
	"encoding/binary"
	"fmt"
)

// FrameHeaderLen is the size of the big-endian length prefix.
const FrameHeaderLen = 4

// ExtractStatus reports the outcome of one ReadState.Extract call.
type ExtractStatus int

const (
	ExtractReady ExtractStatus = iota
	ExtractNeedMore
	ExtractError
)

// ReadState accumulates bytes read from a TCP connection and extracts
// length-prefixed frames. It is owned by a single reader goroutine;
// no internal locking.
type ReadState struct {
	buffer     []byte
	pos        int
	maxPayload int
	// extractBuf holds the most recently extracted payload. Extract must
	// copy into this buffer before shifting the sliding window, since a
	// pointer into buffer would alias with the subsequent memmove.
	extractBuf []byte
}

// NewReadState allocates a ReadState with the given backing buffer size
// and max payload length. maxPayload is capped at bufSize-FrameHeaderLen,
// so every frame that passes Extract's length check fits in the buffer.
func NewReadState(bufSize, maxPayload int) *ReadState {
	if limit := bufSize - FrameHeaderLen; maxPayload > limit {
		maxPayload = limit
	}
	return &ReadState{
		buffer:     make([]byte, bufSize),
		maxPayload: maxPayload,
	}
}

// Reset clears accumulated bytes, used after a frame error forces the
// connection's framing state to restart.
func (r *ReadState) Reset() {
	r.pos = 0
}

// Append copies as much of data as fits into the remaining buffer space
// and returns the number of bytes accepted.
func (r *ReadState) Append(data []byte) int {
	room := len(r.buffer) - r.pos
	if room <= 0 {
		return 0
	}
	n := len(data)
	if n > room {
		n = room
	}
	copy(r.buffer[r.pos:], data[:n])
	r.pos += n
	return n
}

// Extract attempts to pull one complete frame's payload out of the
// accumulated buffer.
//
//  1. Fewer than FrameHeaderLen bytes buffered -> NeedMore.
//  2. Parse the big-endian length L. L == 0 or L > maxPayload is a
//     framing violation: the state is reset and ExtractError is returned.
//  3. Fewer than FrameHeaderLen+L bytes buffered -> NeedMore.
//  4. The payload is copied into r.extractBuf (so it survives the
//     subsequent shift), trailing bytes are moved to offset 0, and
//     ExtractReady is returned with a view into r.extractBuf.
func (r *ReadState) Extract() (ExtractStatus, []byte) {
	if r.pos < FrameHeaderLen {
		return ExtractNeedMore, nil
	}

	length := int(binary.BigEndian.Uint32(r.buffer[0:FrameHeaderLen]))
	if length == 0 || length > r.maxPayload {
		r.Reset()
		return ExtractError, nil
	}

	total := FrameHeaderLen + length
	if r.pos < total {
		return ExtractNeedMore, nil
	}

	if cap(r.extractBuf) < length {
		r.extractBuf = make([]byte, length)
	}
	r.extractBuf = r.extractBuf[:length]
	copy(r.extractBuf, r.buffer[FrameHeaderLen:total])

	remaining := r.pos - total
	copy(r.buffer[0:remaining], r.buffer[total:r.pos])
	r.pos = remaining

	return ExtractReady, r.extractBuf
}

// EncodeFrame prepends a big-endian length header to payload, appending to
// dst and returning the extended slice.
func EncodeFrame(dst []byte, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("wire: cannot frame empty payload")
	}
	var hdr [FrameHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return dst, nil
}

// WriteState tracks a pending, possibly partial, write to a TCP socket.
type WriteState struct {
	buffer  []byte
	total   int
	written int
}

// NewWriteState allocates a WriteState with the given backing buffer size.
func NewWriteState(bufSize int) *WriteState {
	return &WriteState{buffer: make([]byte, bufSize)}
}

// Pending reports whether a write is in flight.
func (w *WriteState) Pending() bool {
	return w.written < w.total
}

// Queue stages data for writing, replacing any previous content. Callers
// must check Pending() is false before calling Queue again.
func (w *WriteState) Queue(data []byte) {
	if cap(w.buffer) < len(data) {
		w.buffer = make([]byte, len(data))
	}
	w.buffer = w.buffer[:len(data)]
	copy(w.buffer, data)
	w.total = len(data)
	w.written = 0
}

// Remaining returns the unwritten tail of the staged buffer.
func (w *WriteState) Remaining() []byte {
	return w.buffer[w.written:w.total]
}

// Advance records n bytes as successfully written.
func (w *WriteState) Advance(n int) {
	w.written += n
}
