// Package transport implements the reliable transport layer: Stop-and-Wait
// delivery per connection, multiplexed across many concurrent connections
// sharing one network-layer endpoint, and demultiplexed by (remote VIP,
// remote port, local port).
package transport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// FullNetwork is the network-layer pipe the transport's demultiplex loop
// reads from and writes to — satisfied by *network.HostNetwork.
type FullNetwork interface {
	Network
	Receive() (wire.Segment, addr.VIP, error)
}

// ReliableTransport owns one network-layer endpoint and demultiplexes
// inbound segments across the connections opened on top of it, creating a
// new passive connection for any non-ack segment whose key it has not seen
// before. Acks for unknown keys, and segments whose dst_port is not this
// transport's local port, are dropped.
type ReliableTransport struct {
	net       FullNetwork
	selfVIP   addr.VIP
	localPort addr.Port
	log       *zap.SugaredLogger

	mu    sync.Mutex
	conns map[ConnKey]*Connection

	acceptCh chan *Connection

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New builds a transport bound to net, listening for inbound connections on
// localPort, and starts the background demultiplex loop.
func New(net FullNetwork, selfVIP addr.VIP, localPort addr.Port, log *zap.SugaredLogger) *ReliableTransport {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	t := &ReliableTransport{
		net:       net,
		selfVIP:   selfVIP,
		localPort: localPort,
		log:       log,
		conns:     make(map[ConnKey]*Connection),
		acceptCh:  make(chan *Connection, 16),
		group:     g,
		cancel:    cancel,
	}
	g.Go(func() error { return t.demux(ctx) })
	return t
}

func (t *ReliableTransport) demux(ctx context.Context) error {
	for {
		seg, srcVIP, err := t.net.Receive()
		if err != nil {
			return fmt.Errorf("transport: demux receive: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		remotePort, _ := wire.PayloadInt(seg.Payload, payloadSrcPort)
		dstPort, ok := wire.PayloadInt(seg.Payload, payloadDstPort)
		if !ok || addr.Port(dstPort) != t.localPort {
			t.log.Debugw("transport: dropping segment for unknown local port", "dst_port", dstPort)
			continue
		}
		key := ConnKey{RemoteVIP: srcVIP, RemotePort: addr.Port(remotePort), LocalPort: t.localPort}

		t.mu.Lock()
		conn, exists := t.conns[key]
		if !exists {
			if seg.IsAck {
				t.mu.Unlock()
				t.log.Debugw("transport: dropping stray ack for unknown connection", "key", key)
				continue
			}
			conn = newConnection(key, t.net, t.log, func() { t.forget(key) })
			t.conns[key] = conn
			t.mu.Unlock()
			select {
			case t.acceptCh <- conn:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			t.mu.Unlock()
		}
		conn.dispatch(seg)
	}
}

func (t *ReliableTransport) forget(key ConnKey) {
	t.mu.Lock()
	delete(t.conns, key)
	t.mu.Unlock()
}

// Connect opens an active connection to (remoteVIP, remotePort). The
// connection exists purely as local bookkeeping until the first Send;
// there is no handshake segment.
func (t *ReliableTransport) Connect(remoteVIP addr.VIP, remotePort addr.Port) *Connection {
	key := ConnKey{RemoteVIP: remoteVIP, RemotePort: remotePort, LocalPort: t.localPort}
	conn := newConnection(key, t.net, t.log, func() { t.forget(key) })
	t.mu.Lock()
	t.conns[key] = conn
	t.mu.Unlock()
	return conn
}

// Accept blocks until a new inbound connection arrives or ctx is canceled.
func (t *ReliableTransport) Accept(ctx context.Context) (*Connection, error) {
	select {
	case conn, ok := <-t.acceptCh:
		if !ok {
			return nil, ErrTransportClosed
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops the demultiplex loop, closes the underlying network
// endpoint and closes the accept queue, so a blocked or later Accept
// returns ErrTransportClosed. It returns any error the loop or the close
// encountered. Connections already handed out are not closed: a Receive
// blocked on one of them stays blocked until that connection is closed.
func (t *ReliableTransport) Shutdown() error {
	t.cancel()
	closeErr := t.net.Close()
	waitErr := t.group.Wait()
	close(t.acceptCh) // the demux loop, the only sender, has returned
	if waitErr != nil && waitErr != context.Canceled {
		if closeErr != nil {
			return fmt.Errorf("transport: shutdown: %w (close: %v)", waitErr, closeErr)
		}
		return fmt.Errorf("transport: shutdown: %w", waitErr)
	}
	if closeErr != nil {
		return fmt.Errorf("transport: shutdown: %w", closeErr)
	}
	return nil
}
