package netio

import (
	"net"
	"testing"
	"time"

	"github.com/ehrlich-b/matchcore-gateway/internal/registry"
	"github.com/ehrlich-b/matchcore-gateway/internal/spsc"
	"github.com/ehrlich-b/matchcore-gateway/internal/wire"
)

type fakeMulticast struct {
	sends int
}

func (f *fakeMulticast) Publish(msg wire.OutputMessage) error {
	f.sends++
	return nil
}

type fakeUDPSender struct {
	sent []wire.TransportAddr
}

func (f *fakeUDPSender) WriteTo(payload []byte, addr wire.TransportAddr) error {
	f.sent = append(f.sent, addr)
	return nil
}

func addTCPSlot(t *testing.T, r *registry.TCPRegistry) (wire.ClientId, *registry.TCPSlot, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	id, slot, ok := r.Add(server)
	if !ok {
		t.Fatal("registry full")
	}
	return id, slot, client
}

// TestOutputRouter_BroadcastFansOutAndAlwaysMulticasts covers the
// Broadcast dispatch rule: every active TCP slot receives a copy, and the
// multicast publisher fires exactly once regardless of how many TCP
// clients are connected (or none at all).
func TestOutputRouter_BroadcastFansOutAndAlwaysMulticasts(t *testing.T) {
	tcpReg := registry.NewTCPRegistry(4, 4096, 1<<20, 8)
	_, slot1, conn1 := addTCPSlot(t, tcpReg)
	_, slot2, conn2 := addTCPSlot(t, tcpReg)
	_ = conn1
	_ = conn2

	mc := &fakeMulticast{}
	var outputs [2]*spsc.Ring[wire.OutputEnvelope]
	outputs[0], _ = spsc.New[wire.OutputEnvelope](16)
	outputs[1], _ = spsc.New[wire.OutputEnvelope](16)

	r := NewOutputRouter(outputs, tcpReg, nil, nil, mc, OutputRouterConfig{Codec: CodecCSV})

	env := wire.OutputEnvelope{Msg: wire.OutputMessage{Kind: wire.KindTrade, Symbol: wire.SymbolFrom("IBM")}, ClientID: wire.BroadcastClientId}
	r.dispatch(env)

	if _, ok := slot1.OutputQueue.Dequeue(); !ok {
		t.Error("slot1 did not receive the broadcast")
	}
	if _, ok := slot2.OutputQueue.Dequeue(); !ok {
		t.Error("slot2 did not receive the broadcast")
	}
	if mc.sends != 1 {
		t.Errorf("multicast sends = %d, want 1", mc.sends)
	}
	stats := r.Stats()
	if stats.TCPDeliveries != 2 {
		t.Errorf("TCPDeliveries = %d, want 2", stats.TCPDeliveries)
	}
	if stats.MulticastSends != 1 {
		t.Errorf("MulticastSends = %d, want 1", stats.MulticastSends)
	}
}

// TestOutputRouter_TCPSlowClientDoesNotBlockOthers covers the bounded-drop
// invariant as it applies to component G: a client whose output queue is saturated is dropped
// from, not blocking, that one broadcast; other clients still receive it.
func TestOutputRouter_TCPSlowClientDoesNotBlockOthers(t *testing.T) {
	tcpReg := registry.NewTCPRegistry(4, 4096, 1<<20, 2) // usable output depth 1
	_, slowSlot, slowConn := addTCPSlot(t, tcpReg)
	_, fastSlot, fastConn := addTCPSlot(t, tcpReg)
	_ = slowConn
	_ = fastConn

	var outputs [2]*spsc.Ring[wire.OutputEnvelope]
	outputs[0], _ = spsc.New[wire.OutputEnvelope](16)
	outputs[1], _ = spsc.New[wire.OutputEnvelope](16)
	r := NewOutputRouter(outputs, tcpReg, nil, nil, nil, OutputRouterConfig{Codec: CodecCSV})

	// Never drain slowSlot's queue; drain fastSlot continuously.
	fastDone := make(chan int)
	go func() {
		count := 0
		deadline := time.After(200 * time.Millisecond)
		for {
			select {
			case <-deadline:
				fastDone <- count
				return
			default:
			}
			if _, ok := fastSlot.OutputQueue.Dequeue(); ok {
				count++
			}
		}
	}()

	const n = 20
	for i := 0; i < n; i++ {
		r.dispatch(wire.OutputEnvelope{Msg: wire.OutputMessage{Kind: wire.KindTrade}, ClientID: wire.BroadcastClientId})
	}

	got := <-fastDone
	if got != n {
		t.Fatalf("fast client received %d of %d broadcasts, want all of them", got, n)
	}
	if r.Stats().MessagesDropped == 0 {
		t.Fatal("expected the saturated slow client's queue to register drops")
	}
	_ = slowSlot
}

// TestOutputRouter_DirectDispatchByClientIDRange covers the TCP-vs-UDP
// client id split: ids below UDPClientIdBase
// resolve through the TCP registry, ids at or above it through the UDP
// sender.
func TestOutputRouter_DirectDispatchByClientIDRange(t *testing.T) {
	tcpReg := registry.NewTCPRegistry(4, 4096, 1<<20, 8)
	id, slot, conn := addTCPSlot(t, tcpReg)
	_ = conn

	udpReg := registry.NewUDPRegistry(8, 4)
	udpID, _ := udpReg.GetOrCreate(wire.TransportAddr{IPv4: 0x7F000001, Port: 9000}, registry.UDPProtoCSV, 0)
	sender := &fakeUDPSender{}

	var outputs [2]*spsc.Ring[wire.OutputEnvelope]
	outputs[0], _ = spsc.New[wire.OutputEnvelope](16)
	outputs[1], _ = spsc.New[wire.OutputEnvelope](16)
	r := NewOutputRouter(outputs, tcpReg, udpReg, sender, nil, OutputRouterConfig{Codec: CodecCSV})

	r.dispatch(wire.OutputEnvelope{Msg: wire.OutputMessage{Kind: wire.KindAck}, ClientID: id})
	if _, ok := slot.OutputQueue.Dequeue(); !ok {
		t.Fatal("TCP-range client id did not resolve through the TCP registry")
	}

	r.dispatch(wire.OutputEnvelope{Msg: wire.OutputMessage{Kind: wire.KindCancelAck}, ClientID: udpID})
	if len(sender.sent) != 1 {
		t.Fatalf("UDP-range client id sent %d direct replies, want 1", len(sender.sent))
	}
}
