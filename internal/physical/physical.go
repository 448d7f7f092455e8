// Package physical implements UdpSimulated, the bottom layer of the stack:
// a single bound datagram socket whose sends pass through the noisy
// substrate and whose receive is a blocking read of one datagram.
package physical

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// UdpSimulated owns one bound *net.UDPConn and exposes the minimal packet
// pipe the link layer builds on: send-by-MAC, blocking receive, close. It
// never retries and never acknowledges.
type UdpSimulated struct {
	conn   *net.UDPConn
	params wire.Params
	log    *zap.SugaredLogger
}

// New binds the real (IP, Port) endpoint registered for self in the
// process-wide topology and returns a ready-to-use UdpSimulated.
func New(self addr.NodeName, params wire.Params, log *zap.SugaredLogger) (*UdpSimulated, error) {
	info, ok := addr.Topology[self]
	if !ok {
		return nil, fmt.Errorf("physical: unknown node %q", self)
	}
	laddr := &net.UDPAddr{IP: net.ParseIP(string(info.Addr.IP)), Port: int(info.Addr.Port)}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("physical: bind %s: %w", laddr, err)
	}
	return &UdpSimulated{conn: conn, params: params, log: log}, nil
}

// Send resolves dstMAC to a real (IP, Port) via the topology table and
// hands the frame bytes to the noisy substrate's send function. An unknown
// MAC is a programming error — the static ARP tables never produce one in
// normal operation — so it aborts with a diagnostic rather than returning
// an error a caller could silently ignore.
func (u *UdpSimulated) Send(dstMAC addr.MAC, frameBytes []byte) error {
	node, ok := addr.ByMAC(dstMAC)
	if !ok {
		panic(fmt.Sprintf("physical: unknown destination MAC %q: programming error", dstMAC))
	}
	dst := &net.UDPAddr{IP: net.ParseIP(string(node.Addr.IP)), Port: int(node.Addr.Port)}
	if err := wire.NoisySend(u.conn, dst, frameBytes, u.params); err != nil {
		return fmt.Errorf("physical: send to %s: %w", dst, err)
	}
	return nil
}

// Receive blocks for a single datagram and returns its raw bytes.
func (u *UdpSimulated) Receive() ([]byte, error) {
	buf := make([]byte, 65535)
	n, _, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, fmt.Errorf("physical: receive: %w", err)
	}
	return buf[:n], nil
}

// Close releases the socket. It unblocks any goroutine parked in Receive
// with a "use of closed network connection" error.
func (u *UdpSimulated) Close() error {
	if u.log != nil {
		u.log.Debugw("physical: closing socket", "local", u.conn.LocalAddr())
	}
	return u.conn.Close()
}
