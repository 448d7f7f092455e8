package chat

import (
	"container/heap"
	"sync"

	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/transport"
)

// pqItem is one queued outbound message: lower priority value goes first,
// ties broken by arrival order so FIFO holds within a priority level.
type pqItem struct {
	priority int
	seq      int
	payload  []byte
}

type priorityQueue []*pqItem

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) {
	*q = append(*q, x.(*pqItem))
}
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// PrioritySender wraps a single reliable connection and schedules whole
// application messages onto it by priority: a priority-0 message enqueued
// behind a queued (not yet started) priority-2 file transfer is delivered
// first (P7). It never preempts a message already being sent — priority is
// only evaluated between whole messages, since Stop-and-Wait has no notion
// of pausing a segment in flight.
type PrioritySender struct {
	conn *transport.Connection
	log  *zap.SugaredLogger

	onSendError func(error)

	mu     sync.Mutex
	cond   *sync.Cond
	pq     priorityQueue
	seq    int
	closed bool
	done   chan struct{}
}

// NewPrioritySender starts the worker goroutine that drains conn's queue
// and returns immediately. onSendError, if non-nil, is called from the
// worker goroutine whenever the underlying connection's Send fails.
func NewPrioritySender(conn *transport.Connection, log *zap.SugaredLogger, onSendError func(error)) *PrioritySender {
	ps := &PrioritySender{conn: conn, log: log, onSendError: onSendError, done: make(chan struct{})}
	ps.cond = sync.NewCond(&ps.mu)
	go ps.run()
	return ps
}

// Send enqueues payload for asynchronous delivery at the given priority.
// It never blocks on the network; delivery failures are reported via the
// onSendError callback, not the return value, since by the time a queued
// message is actually sent its caller may be long gone.
func (ps *PrioritySender) Send(payload []byte, priority int) error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return transport.ErrTransportClosed
	}
	heap.Push(&ps.pq, &pqItem{priority: priority, seq: ps.seq, payload: payload})
	ps.seq++
	ps.mu.Unlock()
	ps.cond.Signal()
	return nil
}

func (ps *PrioritySender) run() {
	for {
		ps.mu.Lock()
		for ps.pq.Len() == 0 && !ps.closed {
			ps.cond.Wait()
		}
		if ps.pq.Len() == 0 && ps.closed {
			ps.mu.Unlock()
			close(ps.done)
			return
		}
		item := heap.Pop(&ps.pq).(*pqItem)
		ps.mu.Unlock()

		if err := ps.conn.Send(item.payload); err != nil && ps.onSendError != nil {
			ps.onSendError(err)
		}
	}
}

// Close stops accepting new sends and blocks until every message already
// queued has been delivered — drained, not aborted, per the shutdown
// contract in §4.5.1.
func (ps *PrioritySender) Close() {
	ps.mu.Lock()
	alreadyClosed := ps.closed
	ps.closed = true
	ps.mu.Unlock()
	if alreadyClosed {
		return
	}
	ps.cond.Signal()
	<-ps.done
}
