package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"finsight/internal/logging"
)

// ErrNotStarted is returned by Submit before Start or after Stop.
var ErrNotStarted = errors.New("scheduler is not running")

// QueueTimeoutError reports a ticket evicted from the wait queue after
// exceeding its wait timeout without ever being admitted.
type QueueTimeoutError struct {
	Waited time.Duration
}

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("request evicted after waiting %v for an execution slot", e.Waited.Round(time.Millisecond))
}

// Config tunes the scheduler. Zero values fall back to defaults.
type Config struct {
	MaxConcurrent int           // simultaneous in-flight tasks, default 3
	WaitTimeout   time.Duration // max time a ticket may wait queued, default 5m
	TickInterval  time.Duration // periodic drain interval, default 1s
}

// DefaultConfig returns the standard scheduler tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 3,
		WaitTimeout:   5 * time.Minute,
		TickInterval:  1 * time.Second,
	}
}

// Stats is a point-in-time snapshot of scheduler state and counters.
type Stats struct {
	QueuedCount       int
	ActiveCount       int
	MaxConcurrent     int
	TotalQueued       uint64 // tickets that actually waited in the queue
	TotalProcessed    uint64
	TotalEvicted      uint64
	AverageWaitMs     float64
	MaxQueueDepthSeen int
}

// Ticket represents one submitted task. The caller blocks on Wait for the
// task outcome; results travel through the task closure, not the ticket.
type Ticket struct {
	ID string

	priority int
	seq      uint64
	index    int
	enqueued time.Time
	task     func(context.Context) error
	taskCtx  context.Context
	evict    *time.Timer

	once sync.Once
	done chan struct{}
	err  error
}

// Wait blocks until the task finishes, the ticket is evicted, or ctx is
// canceled. Cancellation abandons the wait but does not cancel the task.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve records the outcome exactly once.
func (t *Ticket) resolve(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// SubmitOption customizes a single submission.
type SubmitOption func(*Ticket)

// WithPriority sets the scheduling priority. Higher values are admitted
// first; equal priorities run in submission order.
func WithPriority(p int) SubmitOption {
	return func(t *Ticket) { t.priority = p }
}

// Scheduler admits tasks up to a concurrency cap and parks the overflow in a
// priority wait queue. Queued tickets are evicted with QueueTimeoutError when
// they wait past the configured timeout.
type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	running bool
	active  int
	queue   *waitQueue
	tick    *time.Timer // armed only while the queue is non-empty
	wg      sync.WaitGroup

	totalQueued    uint64
	totalProcessed uint64
	totalEvicted   uint64
	avgWaitMs      float64
	maxDepth       int
}

// New creates a stopped scheduler. Call Start before submitting.
func New(cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	return &Scheduler{
		cfg:   cfg,
		queue: newWaitQueue(),
	}
}

// Start enables submissions.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	logging.Scheduler("scheduler started: max_concurrent=%d wait_timeout=%v",
		s.cfg.MaxConcurrent, s.cfg.WaitTimeout)
}

// Stop rejects new submissions, evicts everything still queued, and waits
// for in-flight tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
	for {
		t := s.queue.pop()
		if t == nil {
			break
		}
		if t.evict != nil {
			t.evict.Stop()
		}
		s.totalEvicted++
		t.resolve(ErrNotStarted)
	}
	s.mu.Unlock()

	s.wg.Wait()
	logging.Scheduler("scheduler stopped")
}

// Submit hands a task to the scheduler. It runs immediately when a slot is
// free; otherwise the returned ticket waits in the priority queue. The
// caller observes completion through Ticket.Wait.
func (s *Scheduler) Submit(ctx context.Context, task func(context.Context) error, opts ...SubmitOption) *Ticket {
	t := &Ticket{
		ID:       uuid.New().String(),
		enqueued: time.Now(),
		task:     task,
		taskCtx:  ctx,
		done:     make(chan struct{}),
		index:    -1,
	}
	for _, opt := range opts {
		opt(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		t.resolve(ErrNotStarted)
		return t
	}

	if s.active < s.cfg.MaxConcurrent && s.queue.len() == 0 {
		s.admitLocked(t)
		return t
	}

	s.totalQueued++
	s.queue.push(t)
	if depth := s.queue.len(); depth > s.maxDepth {
		s.maxDepth = depth
	}
	t.evict = time.AfterFunc(s.cfg.WaitTimeout, func() { s.evictTicket(t) })
	s.armTickLocked()
	logging.SchedulerDebug("queued ticket %s priority=%d depth=%d", t.ID, t.priority, s.queue.len())
	return t
}

// SetMaxConcurrent adjusts the concurrency cap at runtime. Raising the cap
// drains the queue immediately; lowering it lets in-flight tasks finish.
func (s *Scheduler) SetMaxConcurrent(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.MaxConcurrent = n
	logging.Scheduler("max concurrency set to %d", n)
	s.drainLocked()
}

// Stats returns a snapshot of counters and current occupancy.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		QueuedCount:       s.queue.len(),
		ActiveCount:       s.active,
		MaxConcurrent:     s.cfg.MaxConcurrent,
		TotalQueued:       s.totalQueued,
		TotalProcessed:    s.totalProcessed,
		TotalEvicted:      s.totalEvicted,
		AverageWaitMs:     s.avgWaitMs,
		MaxQueueDepthSeen: s.maxDepth,
	}
}

// admitLocked moves a ticket into an execution slot. Caller holds s.mu.
func (s *Scheduler) admitLocked(t *Ticket) {
	if t.evict != nil {
		t.evict.Stop()
	}

	wait := time.Since(t.enqueued)
	n := float64(s.totalProcessed)
	s.avgWaitMs = (s.avgWaitMs*n + float64(wait.Milliseconds())) / (n + 1)
	s.totalProcessed++
	s.active++

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := t.task(t.taskCtx)
		t.resolve(err)

		s.mu.Lock()
		s.active--
		s.drainLocked()
		s.mu.Unlock()
	}()
}

// drainLocked admits queued tickets while slots are free. Caller holds s.mu.
func (s *Scheduler) drainLocked() {
	for s.active < s.cfg.MaxConcurrent {
		t := s.queue.pop()
		if t == nil {
			break
		}
		logging.SchedulerDebug("admitting ticket %s after %v in queue", t.ID, time.Since(t.enqueued))
		s.admitLocked(t)
	}
	s.armTickLocked()
}

// armTickLocked keeps the periodic drain timer alive only while tickets are
// waiting. Caller holds s.mu.
func (s *Scheduler) armTickLocked() {
	if s.queue.len() == 0 {
		if s.tick != nil {
			s.tick.Stop()
			s.tick = nil
		}
		return
	}
	if s.tick == nil && s.running {
		s.tick = time.AfterFunc(s.cfg.TickInterval, s.onTick)
	}
}

func (s *Scheduler) onTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = nil
	if !s.running {
		return
	}
	s.drainLocked()
}

// evictTicket fires from the ticket's wait-timeout timer. Losing the race
// with admission is fine: remove reports the ticket already left the queue.
func (s *Scheduler) evictTicket(t *Ticket) {
	s.mu.Lock()
	if !s.queue.remove(t.ID) {
		s.mu.Unlock()
		return
	}
	s.totalEvicted++
	waited := time.Since(t.enqueued)
	s.armTickLocked()
	s.mu.Unlock()

	logging.SchedulerWarn("evicted ticket %s after waiting %v", t.ID, waited)
	t.resolve(&QueueTimeoutError{Waited: waited})
}
