package network

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// RouterNetwork never surfaces a packet upward (I3): its background intake
// task pushes every arriving packet onto an unbounded FIFO, and the
// separate Receive step pops one packet off that FIFO and either drops it
// (TTL expired) or forwards it toward its destination. Splitting intake
// from forwarding isolates blocking socket I/O from forwarding policy.
type RouterNetwork struct {
	link Linker
	log  *zap.SugaredLogger

	mu        sync.Mutex
	queue     []wire.Packet
	arrived   chan struct{}
	intakeErr error
}

// NewRouterNetwork starts the background intake goroutine and returns a
// ready-to-use RouterNetwork. Intake runs until l.Receive returns an error
// (typically because the underlying socket was closed).
func NewRouterNetwork(l Linker, log *zap.SugaredLogger) *RouterNetwork {
	r := &RouterNetwork{link: l, log: log, arrived: make(chan struct{}, 1)}
	go r.intake()
	return r
}

func (r *RouterNetwork) intake() {
	for {
		pkt, err := r.link.Receive()
		if err != nil {
			r.mu.Lock()
			r.intakeErr = err
			r.mu.Unlock()
			r.wake()
			return
		}
		r.mu.Lock()
		r.queue = append(r.queue, pkt)
		r.mu.Unlock()
		r.wake()
	}
}

func (r *RouterNetwork) wake() {
	select {
	case r.arrived <- struct{}{}:
	default:
	}
}

func (r *RouterNetwork) pop() (wire.Packet, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) > 0 {
		pkt := r.queue[0]
		r.queue = r.queue[1:]
		return pkt, true, nil
	}
	return wire.Packet{}, false, r.intakeErr
}

// Receive pops one packet from the intake queue, blocking until one is
// available. If its TTL has expired it is dropped with no notification
// (P4); otherwise it is decremented and forwarded toward its destination
// VIP. It never reports a payload to the caller — the router never
// delivers a packet upward (I3) — only an error when the intake loop has
// died or the forward send fails.
func (r *RouterNetwork) Receive() error {
	pkt, ok, err := r.pop()
	for !ok {
		if err != nil {
			return fmt.Errorf("network: router intake stopped: %w", err)
		}
		<-r.arrived
		pkt, ok, err = r.pop()
	}

	if pkt.TTL <= 1 {
		r.log.Debugw("network: dropping packet, ttl expired", "dst_vip", pkt.DstVIP)
		return nil
	}
	pkt.TTL--
	if err := r.link.Send(pkt, addr.VIP(pkt.DstVIP)); err != nil {
		return fmt.Errorf("network: router forward: %w", err)
	}
	return nil
}

// Close releases the underlying link.
func (r *RouterNetwork) Close() error {
	return r.link.Close()
}
