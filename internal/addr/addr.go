// Package addr defines the immutable address value types and the
// process-wide topology and per-node routing tables described in the
// design: a real (IP, Port) endpoint for the simulated datagram substrate,
// and a virtual (VIP, Port) endpoint for the end-to-end logical layer.
package addr

import "fmt"

// Port is a UDP port number in [0, 65535].
type Port uint16

// IPAddress is a dotted-quad address on the 127.0.0.0/8 loopback range used
// by this deployment.
type IPAddress string

// VIP is a virtual IP: a short opaque identifier for a logical host. It is
// never parsed as a real IP address.
type VIP string

// MAC is a six colon-separated hex octet address.
type MAC string

// Address is a real transport endpoint: what the simulated substrate
// actually binds and sends datagrams to.
type Address struct {
	IP   IPAddress
	Port Port
}

func (a Address) String() string { return fmt.Sprintf("%s:%d", a.IP, a.Port) }

// VirtualAddress is the end-to-end logical endpoint applications address
// each other by.
type VirtualAddress struct {
	VIP  VIP
	Port Port
}

func (v VirtualAddress) String() string { return fmt.Sprintf("%s:%d", v.VIP, v.Port) }

// NodeName identifies one of the four fixed virtual nodes.
type NodeName string

const (
	Alice  NodeName = "alice"
	Bob    NodeName = "bob"
	Server NodeName = "server"
	Router NodeName = "router"
)

// NodeInfo is one row of the fixed topology table: a node's VIP, MAC and
// real (IP, Port) endpoint. Identical across all four nodes' processes.
type NodeInfo struct {
	Name NodeName
	VIP  VIP
	MAC  MAC
	Addr Address
}

// Topology is the process-wide, immutable four-entry table mapping node
// name to its identity. It is a static table loaded once at package init,
// per the design's "Global state" note: no dynamic discovery exists.
var Topology = map[NodeName]NodeInfo{
	Alice: {
		Name: Alice, VIP: "HOST_A", MAC: "AA:AA:AA:AA:AA:AA",
		Addr: Address{IP: "127.0.0.1", Port: 10000},
	},
	Bob: {
		Name: Bob, VIP: "HOST_B", MAC: "BB:BB:BB:BB:BB:BB",
		Addr: Address{IP: "127.0.0.1", Port: 10001},
	},
	Server: {
		Name: Server, VIP: "HOST_S", MAC: "CC:CC:CC:CC:CC:CC",
		Addr: Address{IP: "127.0.0.1", Port: 10002},
	},
	Router: {
		Name: Router, VIP: "HOST_R", MAC: "DD:DD:DD:DD:DD:DD",
		Addr: Address{IP: "127.0.0.1", Port: 10003},
	},
}

var (
	byVIP map[VIP]NodeInfo
	byMAC map[MAC]NodeInfo
)

func init() {
	byVIP = make(map[VIP]NodeInfo, len(Topology))
	byMAC = make(map[MAC]NodeInfo, len(Topology))
	for _, n := range Topology {
		byVIP[n.VIP] = n
		byMAC[n.MAC] = n
	}
}

// ByVIP looks up a node's topology row by its VIP.
func ByVIP(vip VIP) (NodeInfo, bool) {
	n, ok := byVIP[vip]
	return n, ok
}

// ByMAC looks up a node's topology row by its MAC.
func ByMAC(mac MAC) (NodeInfo, bool) {
	n, ok := byMAC[mac]
	return n, ok
}

// ARPTable maps a VIP to the MAC of the next hop that packets for that VIP
// must be framed towards. Hosts resolve every non-self VIP to the router's
// MAC; the router resolves each host VIP to that host's own MAC.
type ARPTable map[VIP]MAC

// HostARPTable builds the static ARP table for an end-host node: every
// other VIP routes through the router.
func HostARPTable(self NodeName) ARPTable {
	t := make(ARPTable)
	router := Topology[Router]
	for _, n := range Topology {
		if n.Name == self {
			continue
		}
		t[n.VIP] = router.MAC
	}
	return t
}

// RouterARPTable builds the static ARP table for the router node: each
// host VIP resolves to that host's own MAC.
func RouterARPTable() ARPTable {
	t := make(ARPTable)
	for _, n := range Topology {
		if n.Name == Router {
			continue
		}
		t[n.VIP] = n.MAC
	}
	return t
}

// RoutingTable mirrors ARPTable for hosts: a host's routing table resolves
// every non-self VIP to the router's MAC as the next hop. It is kept as a
// distinct type from ARPTable even though the representation coincides,
// since conceptually the routing table answers "who is my next hop for this
// destination" while the ARP table answers "what MAC does this next hop
// have" — for this static deployment the two collapse onto the same map.
type RoutingTable = ARPTable
