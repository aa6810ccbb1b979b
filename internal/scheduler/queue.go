package scheduler

import "container/heap"

// waitQueue is a priority-ordered queue of pending tickets. Higher priority
// dequeues first; equal priorities dequeue in submission order via a
// monotonic sequence number, so a burst of same-priority submits stays FIFO
// even when their enqueue timestamps collide.
//
// Not safe for concurrent use; the Scheduler serializes access under its
// own mutex.
type waitQueue struct {
	items ticketHeap
	seq   uint64
}

func newWaitQueue() *waitQueue {
	q := &waitQueue{items: make(ticketHeap, 0)}
	heap.Init(&q.items)
	return q
}

func (q *waitQueue) push(t *Ticket) {
	q.seq++
	t.seq = q.seq
	heap.Push(&q.items, t)
}

// pop removes and returns the highest-priority ticket, or nil when empty.
func (q *waitQueue) pop() *Ticket {
	if q.items.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*Ticket)
}

// remove evicts the ticket with the given ID. Returns false if the ticket
// already left the queue (raced with admission).
func (q *waitQueue) remove(id string) bool {
	for i, t := range q.items {
		if t.ID == id {
			heap.Remove(&q.items, i)
			return true
		}
	}
	return false
}

func (q *waitQueue) len() int {
	return q.items.Len()
}

type ticketHeap []*Ticket

func (h ticketHeap) Len() int { return len(h) }

func (h ticketHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h ticketHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *ticketHeap) Push(x any) {
	t := x.(*Ticket)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *ticketHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
