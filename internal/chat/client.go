package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/config"
	"github.com/AndreKoraleski/Mini-Net/internal/transport"
)

// Client bridges one named chat participant's UI to a single reliable
// connection to the chat server. Run registers the connection and its
// PrioritySender before sending the handshake. A SendText or SendFile call
// made before that point is rejected with a "not connected" error; one
// made after it is queued in the PrioritySender and goes out once the
// handshake's Send has finished.
type Client struct {
	name       string
	transport  *transport.ReliableTransport
	serverVIP  addr.VIP
	serverPort addr.Port
	ui         UI
	log        *zap.SugaredLogger

	downloadsDir string

	mu     sync.Mutex
	conn   *transport.Connection
	sender *PrioritySender
}

// NewClient builds a client identified by name, talking to the chat server
// at (serverVIP, serverPort) once Run is called.
func NewClient(name string, t *transport.ReliableTransport, serverVIP addr.VIP, serverPort addr.Port, ui UI, log *zap.SugaredLogger) *Client {
	return &Client{
		name: name, transport: t, serverVIP: serverVIP, serverPort: serverPort,
		ui: ui, log: log, downloadsDir: filepath.Join("downloads", name),
	}
}

// Run connects to the server, sends the handshake that lets the server
// learn this client's name, and then reads inbound messages until
// end-of-stream (graceful shutdown) or a fatal transport error.
func (c *Client) Run() error {
	c.ui.SetStatus("connecting")
	conn := c.transport.Connect(c.serverVIP, c.serverPort)
	sender := NewPrioritySender(conn, c.log, func(err error) {
		c.log.Warnw("chat: send failed", "err", err)
	})

	c.mu.Lock()
	c.conn, c.sender = conn, sender
	c.mu.Unlock()

	hello := Message{Type: MessageTypeText, Sender: c.name, Timestamp: time.Now()}
	helloBytes, err := hello.Marshal()
	if err != nil {
		return fmt.Errorf("chat: marshal handshake: %w", err)
	}
	if err := conn.Send(helloBytes); err != nil {
		c.ui.SetStatus("disconnected")
		return fmt.Errorf("chat: handshake: %w", err)
	}
	c.ui.SetStatus("connected")

	for {
		data, err := conn.Receive()
		if err != nil {
			c.ui.SetStatus("disconnected")
			if errors.Is(err, transport.ErrEndOfStream) {
				return nil
			}
			return fmt.Errorf("chat: receive: %w", err)
		}

		msg, err := UnmarshalMessage(data)
		if err != nil {
			c.log.Warnw("chat: dropping malformed payload", "err", err)
			continue
		}

		if msg.Type == MessageTypeSystem && msg.Content == ShutdownContent {
			c.ui.SetStatus("shutting down")
			sender.Close()
			return conn.Close()
		}
		if msg.Type == MessageTypeSystem && msg.Roster != nil {
			c.ui.SetRoster(msg.Roster)
			continue
		}
		if msg.Type == MessageTypeFile {
			if err := c.saveFile(msg); err != nil {
				c.log.Warnw("chat: failed to save received file", "err", err)
			}
		}
		c.ui.Deliver(msg)
	}
}

// Close tears down the connection directly, for the case where the
// process is asked to exit without a server-initiated shutdown broadcast
// (e.g. a local interrupt).
func (c *Client) Close() error {
	c.mu.Lock()
	sender, conn := c.sender, c.conn
	c.mu.Unlock()
	if sender != nil {
		sender.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SendText enqueues a text message to recipient.
func (c *Client) SendText(recipient, content string) error {
	return c.send(Message{Type: MessageTypeText, Sender: c.name, Recipient: recipient, Timestamp: time.Now(), Content: content})
}

// SendFile reads path from disk and enqueues it as a file message to
// recipient. Files larger than config.MaxFileBytes are rejected outright
// rather than fragmented across an unbounded number of segments.
func (c *Client) SendFile(recipient, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("chat: read file: %w", err)
	}
	if len(raw) > config.MaxFileBytes {
		return fmt.Errorf("chat: file %s is %d bytes, exceeds max %d", path, len(raw), config.MaxFileBytes)
	}
	return c.send(Message{
		Type: MessageTypeFile, Sender: c.name, Recipient: recipient, Timestamp: time.Now(),
		Name: filepath.Base(path), Mime: mimeForPath(path), Size: int64(len(raw)),
		Data: base64.StdEncoding.EncodeToString(raw),
	})
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		return errors.New("chat: not connected")
	}
	b, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("chat: marshal message: %w", err)
	}
	return sender.Send(b, PriorityFor(msg.Type))
}

func (c *Client) saveFile(msg Message) error {
	raw, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		return fmt.Errorf("chat: decode file payload: %w", err)
	}
	if err := os.MkdirAll(c.downloadsDir, 0o755); err != nil {
		return fmt.Errorf("chat: create downloads dir: %w", err)
	}
	dest := filepath.Join(c.downloadsDir, filepath.Base(msg.Name))
	if err := os.WriteFile(dest, raw, 0o644); err != nil {
		return fmt.Errorf("chat: write file: %w", err)
	}
	return nil
}

func mimeForPath(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
