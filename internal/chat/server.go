package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/transport"
)

type peerConn struct {
	name   string
	conn   *transport.Connection
	sender *PrioritySender
}

// Server accepts inbound connections, registers each one under the name
// carried by its first message, relays text and file messages between
// named peers, and coordinates a graceful, drain-before-close shutdown.
type Server struct {
	transport *transport.ReliableTransport
	log       *zap.SugaredLogger

	mu    sync.Mutex
	peers map[string]*peerConn

	wg sync.WaitGroup
}

// NewServer builds a chat server on top of an already-constructed
// transport; the caller owns starting and eventually shutting it down.
func NewServer(t *transport.ReliableTransport, log *zap.SugaredLogger) *Server {
	return &Server{transport: t, log: log, peers: make(map[string]*peerConn)}
}

// Run accepts connections until ctx is canceled or the transport reports a
// fatal error.
func (s *Server) Run(ctx context.Context) error {
	for {
		conn, err := s.transport.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("chat: server accept: %w", err)
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads messages from one connection until it ends, learning
// the peer's name from the first message's Sender field. A message with no
// Recipient serves only to open the connection and register that name; it
// is never relayed.
func (s *Server) handleConn(conn *transport.Connection) {
	defer s.wg.Done()

	var name string
	var sender *PrioritySender

	for {
		data, err := conn.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrEndOfStream) {
				s.log.Infow("chat: peer disconnected", "peer", name)
			} else {
				s.log.Warnw("chat: connection receive failed", "peer", name, "err", err)
			}
			s.detach(name, sender)
			return
		}

		msg, err := UnmarshalMessage(data)
		if err != nil {
			s.log.Warnw("chat: dropping malformed payload", "peer", name, "err", err)
			continue
		}

		if name == "" {
			name = msg.Sender
			if name == "" {
				s.log.Warnw("chat: first message from peer carried no sender, dropping connection")
				conn.Close()
				return
			}
			sender = NewPrioritySender(conn, s.log, func(err error) {
				s.log.Warnw("chat: send to peer failed", "peer", name, "err", err)
			})
			s.attach(name, sender)
		}

		if msg.Recipient == "" {
			continue
		}
		switch msg.Type {
		case MessageTypeText, MessageTypeFile:
			s.relay(name, msg)
		default:
			s.log.Debugw("chat: ignoring system message from peer", "peer", name)
		}
	}
}

// attach registers name's sender, tells it the current roster, and
// broadcasts a join notice to everyone already attached.
func (s *Server) attach(name string, sender *PrioritySender) {
	s.mu.Lock()
	roster := make([]string, 0, len(s.peers))
	for n := range s.peers {
		roster = append(roster, n)
	}
	s.peers[name] = &peerConn{name: name, sender: sender}
	others := s.othersLocked(name)
	s.mu.Unlock()

	s.sendTo(sender, Message{Type: MessageTypeSystem, Recipient: name, Timestamp: time.Now(), Roster: roster})

	joinMsg := Message{Type: MessageTypeSystem, Timestamp: time.Now(), Content: fmt.Sprintf("%s joined", name)}
	for _, p := range others {
		s.sendTo(p.sender, joinMsg)
	}
}

// detach removes name from the roster and broadcasts a leave notice.
func (s *Server) detach(name string, sender *PrioritySender) {
	if name == "" {
		return
	}
	s.mu.Lock()
	delete(s.peers, name)
	others := s.othersLocked(name)
	s.mu.Unlock()

	leaveMsg := Message{Type: MessageTypeSystem, Timestamp: time.Now(), Content: fmt.Sprintf("%s left", name)}
	for _, p := range others {
		s.sendTo(p.sender, leaveMsg)
	}
	if sender != nil {
		sender.Close()
	}
}

// othersLocked must be called with s.mu held; it returns every attached
// peer other than name.
func (s *Server) othersLocked(name string) []*peerConn {
	others := make([]*peerConn, 0, len(s.peers))
	for n, p := range s.peers {
		if n != name {
			others = append(others, p)
		}
	}
	return others
}

// relay forwards a text or file message to its recipient, or reports a
// system error back to the sender if the recipient isn't attached (§8
// scenario 5): the connection remains usable either way.
func (s *Server) relay(from string, msg Message) {
	s.mu.Lock()
	target, ok := s.peers[msg.Recipient]
	sender := s.peers[from]
	s.mu.Unlock()

	if !ok {
		if sender != nil {
			s.sendTo(sender.sender, Message{
				Type: MessageTypeSystem, Timestamp: time.Now(),
				Content: fmt.Sprintf("no such user: %s", msg.Recipient),
			})
		}
		return
	}
	msg.Sender = from
	s.sendTo(target.sender, msg)
}

func (s *Server) sendTo(sender *PrioritySender, msg Message) {
	b, err := msg.Marshal()
	if err != nil {
		s.log.Warnw("chat: failed to marshal outgoing message", "err", err)
		return
	}
	if err := sender.Send(b, PriorityFor(msg.Type)); err != nil {
		s.log.Warnw("chat: failed to enqueue outgoing message", "err", err)
	}
}

// Shutdown sends every attached peer the reserved __SHUTDOWN__ system
// message, waits (bounded by ctx) for each of their connections to close
// in response, then tears down the transport. Messages already queued by
// PrioritySender are drained, not aborted — Shutdown enqueues the
// broadcast through the same sender every other message goes through.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	peers := make([]*peerConn, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	shutdownMsg := Message{Type: MessageTypeSystem, Timestamp: time.Now(), Content: ShutdownContent}
	for _, p := range peers {
		s.sendTo(p.sender, shutdownMsg)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warnw("chat: shutdown timed out waiting for peer FINs")
	}

	return s.transport.Shutdown()
}
