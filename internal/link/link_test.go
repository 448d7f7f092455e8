package link

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// fakePhysical is an in-memory stand-in for *physical.UdpSimulated that
// delivers bytes sent to a given MAC onto that MAC's inbox, so link-layer
// tests exercise framing and integrity filtering without a real socket.
type fakePhysical struct {
	selfMAC addr.MAC
	inboxes map[addr.MAC]chan []byte
}

func newFakeFabric(macs ...addr.MAC) map[addr.MAC]*fakePhysical {
	inboxes := make(map[addr.MAC]chan []byte, len(macs))
	for _, m := range macs {
		inboxes[m] = make(chan []byte, 16)
	}
	fab := make(map[addr.MAC]*fakePhysical, len(macs))
	for _, m := range macs {
		fab[m] = &fakePhysical{selfMAC: m, inboxes: inboxes}
	}
	return fab
}

func (f *fakePhysical) Send(dstMAC addr.MAC, frameBytes []byte) error {
	ch, ok := f.inboxes[dstMAC]
	if !ok {
		panic("fakePhysical: unknown MAC")
	}
	ch <- frameBytes
	return nil
}

func (f *fakePhysical) Receive() ([]byte, error) {
	b, ok := <-f.inboxes[f.selfMAC]
	if !ok {
		return nil, io.EOF
	}
	return b, nil
}

func (f *fakePhysical) Close() error {
	close(f.inboxes[f.selfMAC])
	return nil
}

func TestLinkSendReceiveDeliversPacket(t *testing.T) {
	log := zap.NewNop().Sugar()
	aliceMAC := addr.Topology[addr.Alice].MAC
	bobMAC := addr.Topology[addr.Bob].MAC
	fab := newFakeFabric(aliceMAC, bobMAC)

	alice := New(fab[aliceMAC], aliceMAC, addr.ARPTable{"HOST_B": bobMAC}, log)
	bob := New(fab[bobMAC], bobMAC, addr.ARPTable{"HOST_A": aliceMAC}, log)

	pkt := wire.Packet{SrcVIP: "HOST_A", DstVIP: "HOST_B", TTL: 16}
	require.NoError(t, alice.Send(pkt, "HOST_B"))

	done := make(chan wire.Packet, 1)
	go func() {
		p, err := bob.Receive()
		require.NoError(t, err)
		done <- p
	}()

	select {
	case p := <-done:
		require.Equal(t, "HOST_A", p.SrcVIP)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestLinkReceiveDropsFrameNotAddressedToUs(t *testing.T) {
	log := zap.NewNop().Sugar()
	aliceMAC := addr.Topology[addr.Alice].MAC
	bobMAC := addr.Topology[addr.Bob].MAC
	serverMAC := addr.Topology[addr.Server].MAC
	fab := newFakeFabric(aliceMAC, bobMAC, serverMAC)

	alice := New(fab[aliceMAC], aliceMAC, addr.ARPTable{"HOST_B": bobMAC}, log)
	bob := New(fab[bobMAC], bobMAC, nil, log)

	// A valid frame addressed to the server's MAC lands in Bob's inbox
	// first; Bob's link must drop it and return the next frame, his own.
	stray := wire.Frame{SrcMAC: string(aliceMAC), DstMAC: string(serverMAC), Data: wire.Packet{SrcVIP: "HOST_A", DstVIP: "HOST_S"}}
	strayBytes, err := stray.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, fab[aliceMAC].Send(bobMAC, strayBytes))
	require.NoError(t, alice.Send(wire.Packet{SrcVIP: "HOST_A", DstVIP: "HOST_B"}, "HOST_B"))

	done := make(chan wire.Packet, 1)
	go func() {
		p, err := bob.Receive()
		require.NoError(t, err)
		done <- p
	}()

	select {
	case p := <-done:
		require.Equal(t, "HOST_B", p.DstVIP, "bob must never receive a frame addressed to the server")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestLinkSendUnknownVIPPanics(t *testing.T) {
	log := zap.NewNop().Sugar()
	aliceMAC := addr.Topology[addr.Alice].MAC
	fab := newFakeFabric(aliceMAC)
	alice := New(fab[aliceMAC], aliceMAC, addr.ARPTable{}, log)
	require.Panics(t, func() {
		alice.Send(wire.Packet{}, "HOST_X")
	})
}
