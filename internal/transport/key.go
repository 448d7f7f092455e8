package transport

import "github.com/AndreKoraleski/Mini-Net/internal/addr"

// ConnKey identifies one reliable connection by its remote endpoint and the
// local port it was opened against. A server's listening port is shared by
// many distinct client connections, so RemoteVIP and RemotePort are part of
// the key alongside LocalPort.
type ConnKey struct {
	RemoteVIP  addr.VIP
	RemotePort addr.Port
	LocalPort  addr.Port
}
