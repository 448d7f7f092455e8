package network

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/config"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// fakeLinker is an in-memory stand-in for *link.SimpleLink: Send records
// each packet in sent instead of delivering it, and tests feed inbound
// directly, so network-layer tests exercise VIP filtering without framing
// or sockets.
type fakeLinker struct {
	inbound chan wire.Packet
	sent    []sentPacket
}

type sentPacket struct {
	pkt    wire.Packet
	dstVIP addr.VIP
}

func newFakeLinker() *fakeLinker {
	return &fakeLinker{inbound: make(chan wire.Packet, 16)}
}

func (f *fakeLinker) Send(pkt wire.Packet, dstVIP addr.VIP) error {
	f.sent = append(f.sent, sentPacket{pkt, dstVIP})
	return nil
}

func (f *fakeLinker) Receive() (wire.Packet, error) {
	p, ok := <-f.inbound
	if !ok {
		return wire.Packet{}, io.EOF
	}
	return p, nil
}

func (f *fakeLinker) Close() error {
	close(f.inbound)
	return nil
}

func TestHostNetworkSendWrapsSegmentWithInitialTTL(t *testing.T) {
	log := zap.NewNop().Sugar()
	link := newFakeLinker()
	host := NewHostNetwork(link, "HOST_A", log)

	seg := wire.Segment{SeqNum: 0, Payload: map[string]interface{}{"body": "hi"}}
	require.NoError(t, host.Send(seg, "HOST_B"))

	require.Len(t, link.sent, 1)
	require.Equal(t, "HOST_A", link.sent[0].pkt.SrcVIP)
	require.Equal(t, "HOST_B", link.sent[0].pkt.DstVIP)
	require.Equal(t, config.InitialTTL, link.sent[0].pkt.TTL)
	require.Equal(t, addr.VIP("HOST_B"), link.sent[0].dstVIP)
}

func TestHostNetworkReceiveDropsPacketsNotAddressedToUs(t *testing.T) {
	log := zap.NewNop().Sugar()
	link := newFakeLinker()
	host := NewHostNetwork(link, "HOST_A", log)

	link.inbound <- wire.Packet{SrcVIP: "HOST_S", DstVIP: "HOST_B", Data: wire.Segment{SeqNum: 1}}
	link.inbound <- wire.Packet{SrcVIP: "HOST_S", DstVIP: "HOST_A", Data: wire.Segment{SeqNum: 2}}

	seg, src, err := host.Receive()
	require.NoError(t, err)
	require.Equal(t, addr.VIP("HOST_S"), src)
	require.Equal(t, 2, seg.SeqNum)
}

func TestHostNetworkReceivePropagatesLinkError(t *testing.T) {
	log := zap.NewNop().Sugar()
	link := newFakeLinker()
	host := NewHostNetwork(link, "HOST_A", log)
	close(link.inbound)

	_, _, err := host.Receive()
	require.Error(t, err)
}
