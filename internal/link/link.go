// Package link implements SimpleLink: framing, static-ARP MAC addressing,
// and integrity filtering on receive.
package link

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// Physical is the minimal packet pipe SimpleLink needs from the layer below
// it — satisfied by *physical.UdpSimulated in production and by a fake in
// tests, so link-layer tests never need a real bound socket.
type Physical interface {
	Send(dstMAC addr.MAC, frameBytes []byte) error
	Receive() ([]byte, error)
	Close() error
}

// SimpleLink wraps packets in frames and resolves next-hop MACs via a
// static ARP table fixed at construction time.
type SimpleLink struct {
	phy     Physical
	selfMAC addr.MAC
	arp     addr.ARPTable
	log     *zap.SugaredLogger
}

// New builds a link bound to phy, addressing frames as selfMAC and
// resolving next hops via arp.
func New(phy Physical, selfMAC addr.MAC, arp addr.ARPTable, log *zap.SugaredLogger) *SimpleLink {
	return &SimpleLink{phy: phy, selfMAC: selfMAC, arp: arp, log: log}
}

// Send looks up the next-hop MAC for dstVIP, wraps pkt in a frame addressed
// from selfMAC to that MAC, and hands the serialized bytes to physical
// send. A VIP with no ARP entry is a programming error: the static tables
// cover every VIP in the fixed topology.
func (l *SimpleLink) Send(pkt wire.Packet, dstVIP addr.VIP) error {
	nextHop, ok := l.arp[dstVIP]
	if !ok {
		panic(fmt.Sprintf("link: no ARP entry for VIP %q: programming error", dstVIP))
	}
	frame := wire.Frame{SrcMAC: string(l.selfMAC), DstMAC: string(nextHop), Data: pkt}
	b, err := frame.MarshalBinary()
	if err != nil {
		return fmt.Errorf("link: marshal frame: %w", err)
	}
	return l.phy.Send(nextHop, b)
}

// Receive reads datagrams from physical until one deserializes with a valid
// FCS and a destination MAC matching ours, then returns its inner packet.
// Frames failing either check are dropped silently (I1/P2): the upper layer
// never observes them.
func (l *SimpleLink) Receive() (wire.Packet, error) {
	for {
		b, err := l.phy.Receive()
		if err != nil {
			return wire.Packet{}, fmt.Errorf("link: receive: %w", err)
		}
		frame, ok := wire.DeserializeFrame(b)
		if !ok {
			l.log.Debugw("link: dropping frame, integrity check failed")
			continue
		}
		if addr.MAC(frame.DstMAC) != l.selfMAC {
			l.log.Debugw("link: dropping frame, not addressed to us", "dst_mac", frame.DstMAC)
			continue
		}
		return frame.Data, nil
	}
}

// Close releases the underlying physical socket.
func (l *SimpleLink) Close() error {
	return l.phy.Close()
}
