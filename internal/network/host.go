// Package network implements the two network-layer variants: HostNetwork
// for end-hosts and RouterNetwork for the router. They share no code by
// design, per the system's "dynamic dispatch" note: two independent types,
// not a shared base.
package network

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/config"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// Linker is the minimal link-layer pipe the network layer needs — satisfied
// by *link.SimpleLink in production and by a fake in tests.
type Linker interface {
	Send(pkt wire.Packet, dstVIP addr.VIP) error
	Receive() (wire.Packet, error)
	Close() error
}

// HostNetwork originates packets addressed to any VIP (always via the
// router, per the fixed star topology) and filters inbound packets to only
// those addressed to the local VIP.
type HostNetwork struct {
	link    Linker
	selfVIP addr.VIP
	log     *zap.SugaredLogger
}

// NewHostNetwork builds a host's network layer on top of l.
func NewHostNetwork(l Linker, selfVIP addr.VIP, log *zap.SugaredLogger) *HostNetwork {
	return &HostNetwork{link: l, selfVIP: selfVIP, log: log}
}

// Send wraps seg in a packet carrying the fixed initial TTL and hands it to
// the link layer. The link's own static ARP table (every non-local VIP
// resolves to the router's MAC) supplies the next hop, so no separate
// routing decision is needed here.
func (h *HostNetwork) Send(seg wire.Segment, dstVIP addr.VIP) error {
	pkt := wire.Packet{
		SrcVIP: string(h.selfVIP),
		DstVIP: string(dstVIP),
		TTL:    config.InitialTTL,
		Data:   seg,
	}
	if err := h.link.Send(pkt, dstVIP); err != nil {
		return fmt.Errorf("network: host send: %w", err)
	}
	return nil
}

// Receive loops on link receive until a packet addressed to the local VIP
// arrives, returning its segment and the packet's source VIP. Packets for
// any other destination are dropped: a host never forwards (I2/P3).
func (h *HostNetwork) Receive() (wire.Segment, addr.VIP, error) {
	for {
		pkt, err := h.link.Receive()
		if err != nil {
			return wire.Segment{}, "", fmt.Errorf("network: host receive: %w", err)
		}
		if addr.VIP(pkt.DstVIP) != h.selfVIP {
			h.log.Debugw("network: dropping packet, not addressed to us", "dst_vip", pkt.DstVIP)
			continue
		}
		return pkt.Data, addr.VIP(pkt.SrcVIP), nil
	}
}

// Close releases the underlying link.
func (h *HostNetwork) Close() error {
	return h.link.Close()
}
