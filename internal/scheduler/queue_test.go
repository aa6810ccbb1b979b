package scheduler

import "testing"

func makeTicket(id string, priority int) *Ticket {
	return &Ticket{ID: id, priority: priority, index: -1, done: make(chan struct{})}
}

func TestWaitQueue_PriorityThenFIFO(t *testing.T) {
	q := newWaitQueue()
	q.push(makeTicket("low", 1))
	q.push(makeTicket("high", 5))
	q.push(makeTicket("mid-a", 3))
	q.push(makeTicket("mid-b", 3))

	want := []string{"high", "mid-a", "mid-b", "low"}
	for _, id := range want {
		got := q.pop()
		if got == nil || got.ID != id {
			t.Fatalf("expected %s, got %+v", id, got)
		}
	}
	if q.pop() != nil {
		t.Fatal("expected empty queue")
	}
}

func TestWaitQueue_Remove(t *testing.T) {
	q := newWaitQueue()
	q.push(makeTicket("a", 2))
	q.push(makeTicket("b", 2))
	q.push(makeTicket("c", 2))

	if !q.remove("b") {
		t.Fatal("expected removal of queued ticket")
	}
	if q.remove("b") {
		t.Fatal("second removal must report not found")
	}
	if q.len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", q.len())
	}

	if got := q.pop(); got.ID != "a" {
		t.Fatalf("expected a first, got %s", got.ID)
	}
	if got := q.pop(); got.ID != "c" {
		t.Fatalf("expected c second, got %s", got.ID)
	}
}
