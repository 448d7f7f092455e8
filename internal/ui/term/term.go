// Package term implements chat.UI as a line-oriented terminal session:
// incoming messages print to stdout, outgoing text and file commands come
// from stdin.
package term

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/chat"
)

// Terminal is a chat.UI backed by the process's own stdin/stdout.
type Terminal struct {
	name   string
	client *chat.Client
	log    *zap.SugaredLogger
	out    *bufio.Writer
	in     *bufio.Scanner
}

// New builds a terminal UI for the participant named name. Call Bind once
// the chat.Client exists, then Run to start reading commands.
func New(name string, log *zap.SugaredLogger) *Terminal {
	return &Terminal{name: name, log: log, out: bufio.NewWriter(os.Stdout), in: bufio.NewScanner(os.Stdin)}
}

// Bind attaches the client this UI drives outgoing commands through.
// Client and UI are constructed in two steps since each needs a handle to
// the other.
func (t *Terminal) Bind(c *chat.Client) { t.client = c }

func (t *Terminal) Deliver(msg chat.Message) {
	ts := msg.Timestamp.Format("15:04:05")
	switch msg.Type {
	case chat.MessageTypeText:
		fmt.Fprintf(t.out, "[%s] %s: %s\n", ts, msg.Sender, msg.Content)
	case chat.MessageTypeFile:
		fmt.Fprintf(t.out, "[%s] %s sent file %s (%d bytes)\n", ts, msg.Sender, msg.Name, msg.Size)
	case chat.MessageTypeSystem:
		fmt.Fprintf(t.out, "* %s\n", msg.Content)
	}
	t.out.Flush()
}

func (t *Terminal) SetStatus(status string) {
	fmt.Fprintf(t.out, "-- %s --\n", status)
	t.out.Flush()
}

func (t *Terminal) SetRoster(names []string) {
	fmt.Fprintf(t.out, "-- online: %s --\n", strings.Join(names, ", "))
	t.out.Flush()
}

func (t *Terminal) PromptForFile() (string, bool) {
	fmt.Fprint(t.out, "file path> ")
	t.out.Flush()
	if !t.in.Scan() {
		return "", false
	}
	path := strings.TrimSpace(t.in.Text())
	return path, path != ""
}

// Run reads command lines from stdin until EOF:
//
//	recipient: message text     sends a text message
//	/file recipient             prompts for a path, sends it as a file
func (t *Terminal) Run() error {
	for t.in.Scan() {
		line := strings.TrimSpace(t.in.Text())
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "/file "); ok {
			recipient := strings.TrimSpace(rest)
			path, ok := t.PromptForFile()
			if !ok {
				continue
			}
			if err := t.client.SendFile(recipient, path); err != nil {
				t.log.Warnw("term: failed to send file", "err", err)
			}
			continue
		}
		recipient, content, ok := strings.Cut(line, ":")
		if !ok {
			fmt.Fprintln(t.out, "usage: recipient: message   or   /file recipient")
			t.out.Flush()
			continue
		}
		if err := t.client.SendText(strings.TrimSpace(recipient), strings.TrimSpace(content)); err != nil {
			t.log.Warnw("term: failed to send text", "err", err)
		}
	}
	return t.in.Err()
}
