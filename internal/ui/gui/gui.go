// Package gui implements chat.UI as a small local web page: a browser tab
// opened at the printed URL shows delivered messages, status and roster,
// and can send text or upload a file. No Go GUI toolkit appears anywhere in
// the retrieval pack, so "graphical" here means a loopback-only HTTP
// server rather than a native widget tree — the UI interface stays the
// same either way, so a real toolkit could replace this package later
// without touching internal/chat.
//
// The event stream hijacks the HTTP connection and writes framed events to
// it by hand, the same shape as tailscale's k8s-operator/sessionrecording
// Hijacker: grab the raw net.Conn behind the ResponseWriter and stream
// data to it directly instead of returning from the handler, just for a
// live chat feed instead of a recorded kubectl exec session.
package gui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/chat"
)

// Web is a chat.UI backed by a loopback HTTP server. Bind attaches the
// client it drives outgoing commands through, mirroring term.Terminal's
// two-step construction (UI and client each need a handle to the other).
type Web struct {
	name   string
	client *chat.Client
	log    *zap.SugaredLogger
	srv    *http.Server
	addr   string

	mu       sync.Mutex
	status   string
	roster   []string
	clients  map[chan []byte]struct{}
	fileWait chan string // created and drained by PromptForFile; nothing in this package sends on it
}

// New builds a web UI for participant name, listening on loopback addr
// (e.g. "127.0.0.1:0" to let the OS pick a port).
func New(name, listenAddr string, log *zap.SugaredLogger) *Web {
	w := &Web{
		name:    name,
		log:     log,
		addr:    listenAddr,
		status:  "connecting",
		clients: make(map[chan []byte]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handleIndex)
	mux.HandleFunc("/events", w.handleEvents)
	mux.HandleFunc("/send", w.handleSend)
	mux.HandleFunc("/upload", w.handleUpload)
	w.srv = &http.Server{Handler: mux}
	return w
}

// Bind attaches the client this UI drives outgoing commands through.
func (w *Web) Bind(c *chat.Client) { w.client = c }

// Run listens and serves until the server is closed (by Close or process
// exit), logging the URL to attach a browser to before blocking.
func (w *Web) Run() error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("gui: listen: %w", err)
	}
	w.log.Infow("gui: open this in a browser", "url", fmt.Sprintf("http://%s/", ln.Addr()))
	err = w.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops accepting connections and drops any open event streams.
func (w *Web) Close() error {
	return w.srv.Close()
}

func (w *Web) Deliver(msg chat.Message) {
	w.broadcast(sseEvent{Kind: "message", Message: &msg})
}

func (w *Web) SetStatus(status string) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
	w.broadcast(sseEvent{Kind: "status", Status: status})
}

func (w *Web) SetRoster(names []string) {
	w.mu.Lock()
	w.roster = names
	w.mu.Unlock()
	w.broadcast(sseEvent{Kind: "roster", Roster: names})
}

// PromptForFile blocks until a path is sent on fileWait. Nothing in this
// package sends on that channel or closes it, and Close does not unblock
// it, so a call blocks indefinitely; the page's upload form bypasses it,
// since /upload sends the file directly. The method exists to satisfy the
// UI interface.
func (w *Web) PromptForFile() (string, bool) {
	w.mu.Lock()
	if w.fileWait == nil {
		w.fileWait = make(chan string, 1)
	}
	ch := w.fileWait
	w.mu.Unlock()
	path, ok := <-ch
	return path, ok
}

type sseEvent struct {
	Kind    string        `json:"kind"`
	Message *chat.Message `json:"message,omitempty"`
	Status  string        `json:"status,omitempty"`
	Roster  []string      `json:"roster,omitempty"`
}

func (w *Web) broadcast(ev sseEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		w.log.Warnw("gui: failed to marshal event", "err", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.clients {
		select {
		case ch <- b:
		default:
			// slow reader; drop rather than block the sender behind it
		}
	}
}

// handleEvents hijacks the connection and writes Server-Sent-Events frames
// to it directly, bypassing the ResponseWriter once the initial headers are
// on the wire. http.Flusher would do the same job for a normal handler
// return, but hijacking keeps this package independent of whether the
// net/http server in front of it ever changes to one that doesn't support
// flushing (e.g. HTTP/2 without an explicit Flusher), matching the
// defensive grab-the-raw-conn style of sessionrecording.Hijacker.
func (w *Web) handleEvents(rw http.ResponseWriter, r *http.Request) {
	hj, ok := rw.(http.Hijacker)
	if !ok {
		http.Error(rw, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	conn, brw, err := hj.Hijack()
	if err != nil {
		w.log.Warnw("gui: hijack failed", "err", err)
		return
	}
	defer conn.Close()

	fmt.Fprint(brw, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nCache-Control: no-cache\r\nConnection: keep-alive\r\n\r\n")
	brw.Flush()

	ch := make(chan []byte, 32)
	w.mu.Lock()
	w.clients[ch] = struct{}{}
	status, roster := w.status, append([]string(nil), w.roster...)
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.clients, ch)
		w.mu.Unlock()
	}()

	if b, err := json.Marshal(sseEvent{Kind: "status", Status: status}); err == nil {
		writeSSE(brw, b)
	}
	if b, err := json.Marshal(sseEvent{Kind: "roster", Roster: roster}); err == nil {
		writeSSE(brw, b)
	}

	gone := connClosed(conn)
	for {
		select {
		case b := <-ch:
			if err := writeSSE(brw, b); err != nil {
				return
			}
		case <-gone:
			return
		case <-time.After(25 * time.Second):
			if _, err := brw.WriteString(": keepalive\n\n"); err != nil {
				return
			}
			brw.Flush()
		}
	}
}

func writeSSE(brw *bufio.ReadWriter, payload []byte) error {
	if _, err := fmt.Fprintf(brw, "data: %s\n\n", payload); err != nil {
		return err
	}
	return brw.Flush()
}

// connClosed watches conn for EOF on a background read so handleEvents can
// select on it instead of blocking forever past a client that went away.
func connClosed(conn net.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var buf [1]byte
		for {
			if _, err := conn.Read(buf[:]); err != nil {
				return
			}
		}
	}()
	return done
}

func (w *Web) handleSend(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct{ Recipient, Content string }
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}
	if w.client == nil {
		http.Error(rw, "not connected", http.StatusServiceUnavailable)
		return
	}
	if err := w.client.SendText(req.Recipient, req.Content); err != nil {
		http.Error(rw, err.Error(), http.StatusBadGateway)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

func (w *Web) handleUpload(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	recipient := r.URL.Query().Get("recipient")
	if recipient == "" {
		http.Error(rw, "missing recipient", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(rw, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	tmp, err := io.ReadAll(io.LimitReader(file, 1<<30))
	if err != nil {
		http.Error(rw, "read failed", http.StatusInternalServerError)
		return
	}
	path, err := writeTempUpload(header.Filename, tmp)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	if w.client == nil {
		http.Error(rw, "not connected", http.StatusServiceUnavailable)
		return
	}
	if err := w.client.SendFile(recipient, path); err != nil {
		http.Error(rw, err.Error(), http.StatusBadGateway)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

func (w *Web) handleIndex(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(rw, indexPage, html.EscapeString(w.name))
}

const indexPage = `<!doctype html>
<html><head><title>chat — %s</title></head>
<body>
<h3>status: <span id="status">connecting</span></h3>
<h4>online: <span id="roster"></span></h4>
<pre id="log" style="height:300px;overflow-y:scroll;border:1px solid #ccc"></pre>
<input id="recipient" placeholder="recipient">
<input id="content" placeholder="message">
<button onclick="send()">send</button>
<input type="file" id="file">
<button onclick="upload()">send file</button>
<script>
const log = document.getElementById('log');
const es = new EventSource('/events');
es.onmessage = (e) => {
  const ev = JSON.parse(e.data);
  if (ev.kind === 'status') document.getElementById('status').textContent = ev.status;
  if (ev.kind === 'roster') document.getElementById('roster').textContent = (ev.roster||[]).join(', ');
  if (ev.kind === 'message') log.textContent += JSON.stringify(ev.message) + "\n";
};
function send() {
  fetch('/send', {method:'POST', body: JSON.stringify({
    Recipient: document.getElementById('recipient').value,
    Content: document.getElementById('content').value,
  })});
}
function upload() {
  const f = document.getElementById('file').files[0];
  if (!f) return;
  const fd = new FormData();
  fd.append('file', f);
  fetch('/upload?recipient=' + encodeURIComponent(document.getElementById('recipient').value), {method:'POST', body: fd});
}
</script>
</body></html>`

// writeTempUpload stages an uploaded file under uploads/ before handing its
// path to chat.Client.SendFile, which reads it back off disk the same way
// it would a path typed into the terminal UI's /file prompt.
func writeTempUpload(name string, data []byte) (string, error) {
	safe := strings.ReplaceAll(name, "/", "_")
	const dir = "uploads"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("gui: create uploads dir: %w", err)
	}
	path := dir + "/" + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + safe
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("gui: write upload: %w", err)
	}
	return path, nil
}
