// Package chat implements the application layer: the JSON message record
// exchanged between clients through the server, the server's roster/relay
// logic and graceful shutdown, the client's connect-and-bridge loop, and
// the priority-scheduled sender that keeps a large file transfer from
// delaying short text messages.
package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types recognized in the payload's type field.
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// ShutdownContent is the reserved system-message content that tells a
// client to close its connection and exit.
const ShutdownContent = "__SHUTDOWN__"

// Priority levels a PrioritySender schedules by.
const (
	PrioritySystem = 0
	PriorityText   = 1
	PriorityFile   = 2
)

// PriorityFor maps a message type to the priority a PrioritySender should
// schedule it at.
func PriorityFor(msgType string) int {
	switch msgType {
	case MessageTypeSystem:
		return PrioritySystem
	case MessageTypeFile:
		return PriorityFile
	default:
		return PriorityText
	}
}

// Message is the application payload carried inside a segment, JSON-encoded
// on the wire. System messages never carry a Sender. Roster is non-nil
// only on the welcome message a newly attached peer receives; it is always
// encoded, so an empty roster still arrives as an empty, non-nil list.
type Message struct {
	Type      string    `json:"type"`
	Sender    string    `json:"sender,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Content string `json:"content,omitempty"`

	Name string `json:"name,omitempty"`
	Mime string `json:"mime,omitempty"`
	Size int64  `json:"size,omitempty"`
	Data string `json:"data,omitempty"`

	Roster []string `json:"roster"`
}

// Marshal encodes m as the JSON bytes carried in a segment payload.
func (m Message) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("chat: marshal message: %w", err)
	}
	return b, nil
}

// UnmarshalMessage decodes b into a Message, rejecting anything whose type
// isn't one of the three recognized kinds. A caller receiving an error
// should log and drop the payload (§7: malformed payload never tears down
// the connection).
func UnmarshalMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("chat: unmarshal message: %w", err)
	}
	switch m.Type {
	case MessageTypeText, MessageTypeFile, MessageTypeSystem:
	default:
		return Message{}, fmt.Errorf("chat: unknown message type %q", m.Type)
	}
	return m, nil
}
