package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestScheduler(cfg Config) *Scheduler {
	s := New(cfg)
	s.Start()
	return s
}

func TestSubmit_RespectsConcurrencyCap(t *testing.T) {
	s := newTestScheduler(Config{MaxConcurrent: 3})
	defer s.Stop()

	release := make(chan struct{})
	tickets := make([]*Ticket, 0, 5)
	for i := 0; i < 5; i++ {
		tickets = append(tickets, s.Submit(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		}))
	}

	// Give the first three tasks time to occupy their slots.
	waitFor(t, func() bool { return s.Stats().ActiveCount == 3 })

	stats := s.Stats()
	if stats.ActiveCount != 3 {
		t.Fatalf("expected 3 active, got %d", stats.ActiveCount)
	}
	if stats.QueuedCount != 2 {
		t.Fatalf("expected 2 queued, got %d", stats.QueuedCount)
	}

	close(release)
	for i, tk := range tickets {
		if err := tk.Wait(context.Background()); err != nil {
			t.Fatalf("ticket %d failed: %v", i, err)
		}
	}

	stats = s.Stats()
	if stats.QueuedCount != 0 || stats.ActiveCount != 0 {
		t.Fatalf("expected drained scheduler, got %+v", stats)
	}
	if stats.TotalProcessed != 5 {
		t.Fatalf("expected 5 processed, got %d", stats.TotalProcessed)
	}
	if stats.TotalQueued != 2 {
		t.Fatalf("expected 2 ever queued, got %d", stats.TotalQueued)
	}
	if stats.MaxQueueDepthSeen != 2 {
		t.Fatalf("expected max depth 2, got %d", stats.MaxQueueDepthSeen)
	}
}

func TestStats_TotalQueuedCountsOnlyQueuedTickets(t *testing.T) {
	s := newTestScheduler(Config{MaxConcurrent: 1})
	defer s.Stop()

	direct := s.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err := direct.Wait(context.Background()); err != nil {
		t.Fatalf("direct ticket failed: %v", err)
	}
	if got := s.Stats().TotalQueued; got != 0 {
		t.Fatalf("directly admitted ticket counted as queued: %d", got)
	}

	release := make(chan struct{})
	blocker := s.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	waitFor(t, func() bool { return s.Stats().ActiveCount == 1 })

	queued := s.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if got := s.Stats().TotalQueued; got != 1 {
		t.Fatalf("TotalQueued=%d after one ticket waited, want 1", got)
	}

	close(release)
	for _, tk := range []*Ticket{blocker, queued} {
		if err := tk.Wait(context.Background()); err != nil {
			t.Fatalf("ticket failed: %v", err)
		}
	}
	if got := s.Stats().TotalQueued; got != 1 {
		t.Fatalf("TotalQueued=%d after drain, want 1", got)
	}
}

func TestSubmit_DrainsInPriorityOrder(t *testing.T) {
	s := newTestScheduler(Config{MaxConcurrent: 1})
	defer s.Stop()

	release := make(chan struct{})
	blocker := s.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	waitFor(t, func() bool { return s.Stats().ActiveCount == 1 })

	var mu sync.Mutex
	var order []int
	record := func(p int) func(context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
			return nil
		}
	}

	t1 := s.Submit(context.Background(), record(1), WithPriority(1))
	t5 := s.Submit(context.Background(), record(5), WithPriority(5))
	t3a := s.Submit(context.Background(), record(3), WithPriority(3))
	t3b := s.Submit(context.Background(), record(30), WithPriority(3))

	close(release)
	for _, tk := range []*Ticket{blocker, t1, t5, t3a, t3b} {
		if err := tk.Wait(context.Background()); err != nil {
			t.Fatalf("ticket failed: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{5, 3, 30, 1}
	if len(order) != len(want) {
		t.Fatalf("expected %d completions, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected drain order %v, got %v", want, order)
		}
	}
}

func TestSubmit_EvictsAfterWaitTimeout(t *testing.T) {
	s := newTestScheduler(Config{MaxConcurrent: 1, WaitTimeout: 50 * time.Millisecond})
	defer s.Stop()

	release := make(chan struct{})
	blocker := s.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	waitFor(t, func() bool { return s.Stats().ActiveCount == 1 })

	queued := s.Submit(context.Background(), func(ctx context.Context) error { return nil })

	err := queued.Wait(context.Background())
	var qte *QueueTimeoutError
	if !errors.As(err, &qte) {
		t.Fatalf("expected *QueueTimeoutError, got %v", err)
	}
	if qte.Waited < 50*time.Millisecond {
		t.Fatalf("reported wait %v shorter than the timeout", qte.Waited)
	}

	stats := s.Stats()
	if stats.QueuedCount != 0 {
		t.Fatalf("evicted ticket still counted as queued: %+v", stats)
	}
	if stats.TotalEvicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.TotalEvicted)
	}

	close(release)
	if err := blocker.Wait(context.Background()); err != nil {
		t.Fatalf("blocker failed: %v", err)
	}
}

func TestActiveNeverExceedsCap(t *testing.T) {
	const capacity = 3
	s := newTestScheduler(Config{MaxConcurrent: capacity})
	defer s.Stop()

	var current, peak int32
	tickets := make([]*Ticket, 0, 20)
	for i := 0; i < 20; i++ {
		tickets = append(tickets, s.Submit(context.Background(), func(ctx context.Context) error {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil
		}))
	}

	for _, tk := range tickets {
		if err := tk.Wait(context.Background()); err != nil {
			t.Fatalf("ticket failed: %v", err)
		}
	}

	if p := atomic.LoadInt32(&peak); p > capacity {
		t.Fatalf("observed %d concurrent tasks, cap is %d", p, capacity)
	}
}

func TestSetMaxConcurrent_DrainsImmediately(t *testing.T) {
	s := newTestScheduler(Config{MaxConcurrent: 1})
	defer s.Stop()

	release := make(chan struct{})
	blocking := func(ctx context.Context) error {
		<-release
		return nil
	}

	tickets := []*Ticket{
		s.Submit(context.Background(), blocking),
		s.Submit(context.Background(), blocking),
		s.Submit(context.Background(), blocking),
	}
	waitFor(t, func() bool {
		st := s.Stats()
		return st.ActiveCount == 1 && st.QueuedCount == 2
	})

	s.SetMaxConcurrent(3)
	waitFor(t, func() bool { return s.Stats().ActiveCount == 3 })

	close(release)
	for _, tk := range tickets {
		if err := tk.Wait(context.Background()); err != nil {
			t.Fatalf("ticket failed: %v", err)
		}
	}
}

func TestStop_EvictsQueuedAndRejectsNew(t *testing.T) {
	s := newTestScheduler(Config{MaxConcurrent: 1})

	release := make(chan struct{})
	blocker := s.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	waitFor(t, func() bool { return s.Stats().ActiveCount == 1 })

	queued := s.Submit(context.Background(), func(ctx context.Context) error { return nil })

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	s.Stop()

	if err := queued.Wait(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected queued ticket rejected on stop, got %v", err)
	}
	if err := blocker.Wait(context.Background()); err != nil {
		t.Fatalf("in-flight task should finish during stop: %v", err)
	}

	after := s.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err := after.Wait(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted after stop, got %v", err)
	}
}

func TestTicketWait_ContextCancel(t *testing.T) {
	s := newTestScheduler(Config{MaxConcurrent: 1})
	defer s.Stop()

	release := make(chan struct{})
	blocker := s.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	waitFor(t, func() bool { return s.Stats().ActiveCount == 1 })

	queued := s.Submit(context.Background(), func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := queued.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded from Wait, got %v", err)
	}

	close(release)
	if err := blocker.Wait(context.Background()); err != nil {
		t.Fatalf("blocker failed: %v", err)
	}
	if err := queued.Wait(context.Background()); err != nil {
		t.Fatalf("abandoned wait must not cancel the task: %v", err)
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
