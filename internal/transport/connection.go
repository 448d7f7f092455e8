package transport

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/config"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// Payload keys recognized by the transport, per the wire contract: data
// carries a chunk (Base64 since JSON has no byte type), more signals
// whether further chunks of this message follow (absence means true), fin
// marks a teardown segment, and src_port/dst_port carry the logical ports
// the demultiplexer keys connections on.
const (
	payloadDataKey = "data"
	payloadMoreKey = "more"
	payloadFinKey  = "fin"
	payloadSrcPort = "src_port"
	payloadDstPort = "dst_port"
)

// Network is the network-layer pipe a Connection sends segments through —
// satisfied by *network.HostNetwork.
type Network interface {
	Send(seg wire.Segment, dstVIP addr.VIP) error
	Close() error
}

// Connection implements Stop-and-Wait reliable delivery of byte messages
// over a single (remote VIP, remote port, local port) conversation: one
// unacknowledged fragment in flight at a time (I4), MSS-bounded fragments
// reassembled on receipt, and a FIN handshake on Close.
type Connection struct {
	key    ConnKey
	net    Network
	log    *zap.SugaredLogger
	onDone func()

	sendMu  sync.Mutex
	sendSeq int

	recvSeq int // next expected seq on the receiving side, alternates 0/1

	ackCh  chan wire.Segment
	dataCh chan wire.Segment

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(key ConnKey, net Network, log *zap.SugaredLogger, onDone func()) *Connection {
	return &Connection{
		key:    key,
		net:    net,
		log:    log,
		onDone: onDone,
		ackCh:  make(chan wire.Segment, 1),
		dataCh: make(chan wire.Segment, 8),
		closed: make(chan struct{}),
	}
}

// RemoteVIP reports the virtual address this connection talks to.
func (c *Connection) RemoteVIP() addr.VIP { return c.key.RemoteVIP }

// RemotePort reports the remote port this connection talks to.
func (c *Connection) RemotePort() addr.Port { return c.key.RemotePort }

// dispatch routes an inbound segment addressed to this connection to the
// appropriate internal channel. Called only from the transport's
// demultiplex loop, never by application code.
func (c *Connection) dispatch(seg wire.Segment) {
	select {
	case <-c.closed:
		return
	default:
	}
	if seg.IsAck {
		select {
		case c.ackCh <- seg:
		default:
			// A stale or duplicate ack with no waiting sender; Stop-and-Wait
			// tolerates losing it, the peer will retransmit if it mattered.
		}
		return
	}
	select {
	case c.dataCh <- seg:
	case <-c.closed:
	}
}

// Send fragments msg into MSS-bounded chunks and delivers each in turn,
// retransmitting on ack timeout up to config.RetryCeiling times before
// giving up with ErrRetryExhausted.
func (c *Connection) Send(msg []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	mss := config.MSS
	if mss <= 0 {
		mss = config.DefaultMSS
	}
	if len(msg) == 0 {
		return c.sendFragment(nil, false)
	}
	for off := 0; off < len(msg); off += mss {
		end := off + mss
		if end > len(msg) {
			end = len(msg)
		}
		more := end != len(msg)
		if err := c.sendFragment(msg[off:end], more); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) sendFragment(chunk []byte, more bool) error {
	seg := wire.Segment{
		SeqNum: c.sendSeq,
		Payload: map[string]interface{}{
			payloadDataKey: base64.StdEncoding.EncodeToString(chunk),
			payloadMoreKey: more,
			payloadSrcPort: int(c.key.LocalPort),
			payloadDstPort: int(c.key.RemotePort),
		},
	}

	attempt := 0
	for {
		if err := c.net.Send(seg, c.key.RemoteVIP); err != nil {
			return fmt.Errorf("transport: send fragment: %w", err)
		}
		acked, err := c.awaitAck(seg.SeqNum)
		if err != nil {
			return err
		}
		if acked {
			c.sendSeq ^= 1
			return nil
		}
		attempt++
		if attempt > config.RetryCeiling {
			return ErrRetryExhausted
		}
		c.log.Debugw("transport: retransmitting segment", "seq", seg.SeqNum, "attempt", attempt)
	}
}

// awaitAck waits up to config.AckTimeout for an ack matching seq, ignoring
// stale acks left over from a prior fragment. It returns (true, nil) on a
// matching ack, (false, nil) on timeout (the caller should retransmit), and
// a non-nil error only if the connection was closed out from under it.
func (c *Connection) awaitAck(seq int) (bool, error) {
	timer := time.NewTimer(config.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.ackCh:
			if ack.SeqNum == seq {
				return true, nil
			}
		case <-timer.C:
			return false, nil
		case <-c.closed:
			return false, ErrEndOfStream
		}
	}
}

func (c *Connection) ackSegment(seq int) {
	ack := wire.Segment{
		SeqNum: seq,
		IsAck:  true,
		Payload: map[string]interface{}{
			payloadSrcPort: int(c.key.LocalPort),
			payloadDstPort: int(c.key.RemotePort),
		},
	}
	if err := c.net.Send(ack, c.key.RemoteVIP); err != nil {
		c.log.Debugw("transport: failed to send ack", "err", err)
	}
}

// Receive blocks until a full message has been reassembled from one or
// more fragments, acking each fragment as it arrives — including
// duplicates, which are acked again without being redelivered, the
// standard Stop-and-Wait response to a lost ack.
func (c *Connection) Receive() ([]byte, error) {
	var buf []byte
	for {
		select {
		case seg := <-c.dataCh:
			if wire.PayloadBool(seg.Payload, payloadFinKey, false) {
				c.ackSegment(seg.SeqNum)
				return nil, ErrEndOfStream
			}

			isDup := seg.SeqNum != c.recvSeq
			c.ackSegment(seg.SeqNum)
			if isDup {
				continue
			}
			c.recvSeq ^= 1

			chunkB64, _ := wire.PayloadString(seg.Payload, payloadDataKey)
			chunk, err := base64.StdEncoding.DecodeString(chunkB64)
			if err != nil {
				return nil, fmt.Errorf("transport: decode fragment: %w", err)
			}
			buf = append(buf, chunk...)
			if !wire.PayloadBool(seg.Payload, payloadMoreKey, true) {
				return buf, nil
			}
		case <-c.closed:
			return nil, ErrEndOfStream
		}
	}
}

// Close sends a FIN, waits for it to be acked (retrying up to
// config.RetryCeiling times), and marks the connection done so the
// transport stops tracking it. Calling Close more than once is safe; only
// the first call sends anything.
func (c *Connection) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		seg := wire.Segment{
			SeqNum: c.sendSeq,
			Payload: map[string]interface{}{
				payloadFinKey:  true,
				payloadSrcPort: int(c.key.LocalPort),
				payloadDstPort: int(c.key.RemotePort),
			},
		}
		attempt := 0
		for {
			if err := c.net.Send(seg, c.key.RemoteVIP); err != nil {
				closeErr = fmt.Errorf("transport: send fin: %w", err)
				break
			}
			acked, err := c.awaitAck(seg.SeqNum)
			if err != nil || acked {
				break
			}
			attempt++
			if attempt > config.RetryCeiling {
				closeErr = ErrRetryExhausted
				break
			}
		}
		c.sendMu.Unlock()
		close(c.closed)
		if c.onDone != nil {
			c.onDone()
		}
	})
	return closeErr
}
