package matchcore

import (
	"sync"

	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

// MockEngine is a hand-written stand-in for a real matching engine,
// satisfying the Engine interface: it records every call for test
// assertions and lets the test control exactly what comes back out,
// rather than running a real order book.
type MockEngine struct {
	mu sync.Mutex

	calls   []wire.InputMessage
	outputs map[int][]wire.OutputMessage // call index -> canned response
	next    func(wire.InputMessage) []wire.OutputMessage
}

// NewMockEngine builds an empty mock engine: Process returns nil for
// every call until outputs are queued with QueueResponse or SetNext is called.
func NewMockEngine() *MockEngine {
	return &MockEngine{outputs: make(map[int][]wire.OutputMessage)}
}

// Process implements Engine, recording msg and returning whatever was
// queued for this call index (via QueueResponse), else whatever the
// SetNext function produces, else nil.
func (m *MockEngine) Process(msg wire.InputMessage) []wire.OutputMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.calls)
	m.calls = append(m.calls, msg)

	if out, ok := m.outputs[idx]; ok {
		return out
	}
	if m.next != nil {
		return m.next(msg)
	}
	return nil
}

// QueueResponse arranges for the call at the given zero-based index (in
// call order) to return out.
func (m *MockEngine) QueueResponse(callIndex int, out []wire.OutputMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[callIndex] = out
}

// SetNext installs a function called for every Process invocation that
// has no queued response, for tests that want programmatic behaviour
// (e.g. always ack, or echo a trade) instead of canned per-call outputs.
func (m *MockEngine) SetNext(fn func(wire.InputMessage) []wire.OutputMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = fn
}

// Calls returns a copy of every InputMessage passed to Process so far, in
// call order.
func (m *MockEngine) Calls() []wire.InputMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wire.InputMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times Process has been called.
func (m *MockEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and queued responses.
func (m *MockEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.outputs = make(map[int][]wire.OutputMessage)
	m.next = nil
}

var _ Engine = (*MockEngine)(nil)
