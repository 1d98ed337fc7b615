package rediswatcher

import "sync"

// messageQueue is an unbounded FIFO between the update operations (producer)
// and the publish worker (single consumer). Enqueue never blocks; Dequeue
// blocks until an entry arrives or the queue is closed. Entries still queued
// when the queue closes are lost, matching the watcher's best-effort
// delivery contract.
type messageQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Message
	closed bool
}

func newMessageQueue() *messageQueue {
	q := &messageQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends m and reports whether it was accepted. It returns false
// once the queue is closed.
func (q *messageQueue) Enqueue(m *Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, m)
	q.cond.Signal()
	return true
}

// Dequeue removes and returns the oldest entry, blocking while the queue is
// empty. It returns false as soon as the queue is closed, without draining
// the remainder.
func (q *messageQueue) Dequeue() (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	m := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return m, true
}

// Close wakes the consumer and rejects further entries.
func (q *messageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued entries.
func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
