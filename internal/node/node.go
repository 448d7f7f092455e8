// Package node wires the four layers below the application — physical,
// link, network and transport — into the two shapes a process can take: an
// end-host (with a transport on top) or the router (network layer only, no
// transport). This is the "Glue" row of the design: value types, topology
// tables and now the construction code every cmd/ entry point would
// otherwise duplicate four times over.
package node

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/link"
	"github.com/AndreKoraleski/Mini-Net/internal/network"
	"github.com/AndreKoraleski/Mini-Net/internal/physical"
	"github.com/AndreKoraleski/Mini-Net/internal/transport"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// Host is a running end-host's stack, from the physical socket up through
// the reliable transport. Close tears every layer down in one call.
type Host struct {
	Transport *transport.ReliableTransport
	VIP       addr.VIP
}

// BootHost binds self's real endpoint, builds its link and host-network
// layers against the static topology and ARP tables, and starts a
// transport listening on localPort. Transport construction refuses to run
// on the router node (spec.md §4.4.2); callers should use BootRouter there
// instead.
func BootHost(self addr.NodeName, localPort addr.Port, params wire.Params, log *zap.SugaredLogger) (*Host, error) {
	if self == addr.Router {
		return nil, fmt.Errorf("node: %s is the router, use BootRouter", self)
	}
	info, ok := addr.Topology[self]
	if !ok {
		return nil, fmt.Errorf("node: unknown node %q", self)
	}

	phy, err := physical.New(self, params, log)
	if err != nil {
		return nil, fmt.Errorf("node: boot host %s: %w", self, err)
	}
	l := link.New(phy, info.MAC, addr.HostARPTable(self), log)
	net := network.NewHostNetwork(l, info.VIP, log)
	t := transport.New(net, info.VIP, localPort, log)

	return &Host{Transport: t, VIP: info.VIP}, nil
}

// Close shuts the host's transport down, which cascades through the
// network, link and physical layers beneath it.
func (h *Host) Close() error {
	return h.Transport.Shutdown()
}

// Router is a running router's stack: physical and link layers feeding a
// RouterNetwork, with no transport above it — the router never surfaces a
// packet upward (I3).
type Router struct {
	Network *network.RouterNetwork
}

// BootRouter binds the router's real endpoint and builds its link and
// router-network layers against the static topology and ARP tables.
func BootRouter(params wire.Params, log *zap.SugaredLogger) (*Router, error) {
	info := addr.Topology[addr.Router]
	phy, err := physical.New(addr.Router, params, log)
	if err != nil {
		return nil, fmt.Errorf("node: boot router: %w", err)
	}
	l := link.New(phy, info.MAC, addr.RouterARPTable(), log)
	return &Router{Network: network.NewRouterNetwork(l, log)}, nil
}

// Run forwards packets forever; it returns only when the underlying link
// (and so the intake goroutine behind it) reports a fatal error, typically
// because Close was called on another goroutine.
func (r *Router) Run() error {
	for {
		if err := r.Network.Receive(); err != nil {
			return fmt.Errorf("node: router forwarding stopped: %w", err)
		}
	}
}

// Close releases the router's link/physical resources.
func (r *Router) Close() error {
	return r.Network.Close()
}
