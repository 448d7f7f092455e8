package chat

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/transport"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// fakeHub and fakeNetwork give every node in a test its own in-memory
// network-layer endpoint without link, physical or real sockets — the same
// seam internal/transport's own tests drive, extended to more than two
// nodes so a server and several clients can share one fake fabric.
type fakeHub struct {
	mu    sync.Mutex
	nodes map[addr.VIP]*fakeNetwork
}

func newFakeHub() *fakeHub { return &fakeHub{nodes: make(map[addr.VIP]*fakeNetwork)} }

func (h *fakeHub) node(vip addr.VIP) *fakeNetwork {
	fn := &fakeNetwork{selfVIP: vip, hub: h, inbound: make(chan networkMsg, 64)}
	h.mu.Lock()
	h.nodes[vip] = fn
	h.mu.Unlock()
	return fn
}

type networkMsg struct {
	seg wire.Segment
	src addr.VIP
}

type fakeNetwork struct {
	selfVIP addr.VIP
	hub     *fakeHub
	inbound chan networkMsg
}

func (f *fakeNetwork) Send(seg wire.Segment, dstVIP addr.VIP) error {
	f.hub.mu.Lock()
	peer, ok := f.hub.nodes[dstVIP]
	f.hub.mu.Unlock()
	if !ok {
		return fmt.Errorf("fakeNetwork: no peer %s", dstVIP)
	}
	peer.inbound <- networkMsg{seg: seg, src: f.selfVIP}
	return nil
}

func (f *fakeNetwork) Receive() (wire.Segment, addr.VIP, error) {
	m, ok := <-f.inbound
	if !ok {
		return wire.Segment{}, "", io.EOF
	}
	return m.seg, m.src, nil
}

func (f *fakeNetwork) Close() error {
	close(f.inbound)
	return nil
}

// fakeUI records everything delivered to it and exposes a channel tests can
// block on, standing in for a real terminal or web UI.
type fakeUI struct {
	mu        sync.Mutex
	delivered []Message
	statuses  []string
	rosters   [][]string
	deliverCh chan Message
}

func newFakeUI() *fakeUI { return &fakeUI{deliverCh: make(chan Message, 16)} }

func (u *fakeUI) Deliver(msg Message) {
	u.mu.Lock()
	u.delivered = append(u.delivered, msg)
	u.mu.Unlock()
	u.deliverCh <- msg
}
func (u *fakeUI) SetStatus(s string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses = append(u.statuses, s)
}
func (u *fakeUI) SetRoster(r []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rosters = append(u.rosters, r)
}
func (u *fakeUI) PromptForFile() (string, bool) { return "", false }

func TestMessageMarshalUnmarshalRoundTrip(t *testing.T) {
	msg := Message{Type: MessageTypeText, Sender: "Alice", Recipient: "Bob", Timestamp: time.Now().UTC(), Content: "hi"}
	b, err := msg.Marshal()
	require.NoError(t, err)
	got, err := UnmarshalMessage(b)
	require.NoError(t, err)
	require.Equal(t, msg.Sender, got.Sender)
	require.Equal(t, msg.Content, got.Content)
}

func TestUnmarshalMessageRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalMessage([]byte(`{"type":"bogus"}`))
	require.Error(t, err)
}

func TestPriorityQueueOrdersByPriorityThenArrival(t *testing.T) {
	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &pqItem{priority: PriorityFile, seq: 0, payload: []byte("file-chunk")})
	heap.Push(pq, &pqItem{priority: PriorityText, seq: 1, payload: []byte("text-a")})
	heap.Push(pq, &pqItem{priority: PrioritySystem, seq: 2, payload: []byte("system")})
	heap.Push(pq, &pqItem{priority: PriorityText, seq: 3, payload: []byte("text-b")})

	var order []string
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)
		order = append(order, string(item.payload))
	}
	require.Equal(t, []string{"system", "text-a", "text-b", "file-chunk"}, order)
}

func TestServerRelaysTextBetweenTwoClients(t *testing.T) {
	log := zap.NewNop().Sugar()
	hub := newFakeHub()

	serverT := transport.New(hub.node("HOST_S"), "HOST_S", 9000, log)
	aliceT := transport.New(hub.node("HOST_A"), "HOST_A", 5000, log)
	bobT := transport.New(hub.node("HOST_B"), "HOST_B", 5001, log)
	defer serverT.Shutdown()
	defer aliceT.Shutdown()
	defer bobT.Shutdown()

	server := NewServer(serverT, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	aliceUI, bobUI := newFakeUI(), newFakeUI()
	alice := NewClient("Alice", aliceT, "HOST_S", 9000, aliceUI, log)
	bob := NewClient("Bob", bobT, "HOST_S", 9000, bobUI, log)
	// Wait for each client to receive its welcome roster, proof the server
	// has registered it under its name. Bob attaches after Alice, so he gets
	// Alice in his roster rather than an "Alice joined" notice ahead of her
	// text message.
	go alice.Run()
	requireRoster(t, aliceUI)
	go bob.Run()
	requireRoster(t, bobUI)

	require.NoError(t, alice.SendText("Bob", "hi"))

	select {
	case msg := <-bobUI.deliverCh:
		require.Equal(t, MessageTypeText, msg.Type)
		require.Equal(t, "Alice", msg.Sender)
		require.Equal(t, "hi", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received alice's text message")
	}
}

func requireRoster(t *testing.T, ui *fakeUI) {
	t.Helper()
	require.Eventually(t, func() bool {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		return len(ui.rosters) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerSendsSystemErrorForUnknownRecipient(t *testing.T) {
	log := zap.NewNop().Sugar()
	hub := newFakeHub()

	serverT := transport.New(hub.node("HOST_S"), "HOST_S", 9000, log)
	aliceT := transport.New(hub.node("HOST_A"), "HOST_A", 5000, log)
	defer serverT.Shutdown()
	defer aliceT.Shutdown()

	server := NewServer(serverT, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	aliceUI := newFakeUI()
	alice := NewClient("Alice", aliceT, "HOST_S", 9000, aliceUI, log)
	go alice.Run()

	requireRoster(t, aliceUI)
	require.NoError(t, alice.SendText("Carol", "hello?"))

	select {
	case msg := <-aliceUI.deliverCh:
		require.Equal(t, MessageTypeSystem, msg.Type)
		require.Contains(t, msg.Content, "Carol")
	case <-time.After(2 * time.Second):
		t.Fatal("alice never received the no-such-user system error")
	}

	// The connection must remain usable after the error.
	require.NoError(t, alice.SendText("Carol", "still here"))
}

func TestServerShutdownBroadcastsAndWaitsForClientFins(t *testing.T) {
	log := zap.NewNop().Sugar()
	hub := newFakeHub()

	serverT := transport.New(hub.node("HOST_S"), "HOST_S", 9000, log)
	aliceT := transport.New(hub.node("HOST_A"), "HOST_A", 5000, log)
	bobT := transport.New(hub.node("HOST_B"), "HOST_B", 5001, log)

	server := NewServer(serverT, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	aliceUI, bobUI := newFakeUI(), newFakeUI()
	alice := NewClient("Alice", aliceT, "HOST_S", 9000, aliceUI, log)
	bob := NewClient("Bob", bobT, "HOST_S", 9000, bobUI, log)

	aliceDone := make(chan error, 1)
	bobDone := make(chan error, 1)
	go func() { aliceDone <- alice.Run() }()
	go func() { bobDone <- bob.Run() }()

	requireRoster(t, aliceUI)
	requireRoster(t, bobUI)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, server.Shutdown(shutdownCtx))

	select {
	case err := <-aliceDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("alice's client never exited after server shutdown")
	}
	select {
	case err := <-bobDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bob's client never exited after server shutdown")
	}

	aliceT.Shutdown()
	bobT.Shutdown()
}
