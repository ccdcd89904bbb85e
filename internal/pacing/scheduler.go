package pacing

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
)

// RateLimitError is implemented by errors that carry a GitHub rate-limit
// reset time, so the scheduler can pause the whole queue until the window
// resets instead of burning through retries.
type RateLimitError interface {
	error
	ResetAt() (time.Time, bool)
}

// Task is the unit of work the scheduler executes. It receives a context
// scoped to the scheduler's lifetime, not the individual submission.
type Task func(ctx context.Context) (any, error)

// SchedulerConfig tunes concurrency and retry behavior.
type SchedulerConfig struct {
	MaxConcurrent int
	MaxRetries    int
}

type queuedRequest struct {
	priority   model.RequestPriority
	createdAt  time.Time
	seq        uint64
	id         string
	pool       model.RateLimitPool
	task       Task
	retryCount int
	resultCh   chan requestResult
}

type requestResult struct {
	value any
	err   error
}

// requestHeap is a container/heap.Interface ordering by (priority, createdAt,
// seq) — lower priority value first, then FIFO within a priority tier.
type requestHeap []*queuedRequest

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	if !h[i].createdAt.Equal(h[j].createdAt) {
		return h[i].createdAt.Before(h[j].createdAt)
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)   { *h = append(*h, x.(*queuedRequest)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler is a priority-ordered, concurrency-bounded request executor. It
// runs tasks against the pacer's recommended delay and retries failed tasks
// with either a rate-limit-aware priority boost or exponential backoff.
// GitHub authentication and not-found errors fail without a retry.
type Scheduler struct {
	cfg   SchedulerConfig
	pacer *Pacer

	mu       sync.Mutex
	queue    requestHeap
	seq      uint64
	wakeCh   chan struct{}
	sem      chan struct{}
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stats    Stats
	statsMu  sync.Mutex
}

// Stats reports scheduler throughput counters.
type Stats struct {
	TotalSubmitted int
	TotalCompleted int
	TotalFailed    int
}

// NewScheduler creates a Scheduler bounded to cfg.MaxConcurrent concurrent
// tasks, retrying each up to cfg.MaxRetries times.
func NewScheduler(cfg SchedulerConfig, pacer *Pacer) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:    cfg,
		pacer:  pacer,
		wakeCh: make(chan struct{}, 1),
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Start launches the scheduler's worker loop. It returns immediately; the
// loop runs until ctx is canceled or Shutdown is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.workerLoop(runCtx)

	slog.Info("request scheduler started", "max_concurrent", s.cfg.MaxConcurrent)
}

// Shutdown stops the worker loop and waits for in-flight tasks to drain.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	stats := s.Stats()
	slog.Info("request scheduler stopped", "completed", stats.TotalCompleted, "failed", stats.TotalFailed)
}

// Submit enqueues task at priority against pool and blocks until it
// completes, fails permanently, or ctx is canceled.
func (s *Scheduler) Submit(ctx context.Context, pool model.RateLimitPool, priority model.RequestPriority, task Task) (any, error) {
	req := s.enqueue(pool, priority, task)

	select {
	case res := <-req.resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) enqueue(pool model.RateLimitPool, priority model.RequestPriority, task Task) *queuedRequest {
	s.mu.Lock()
	s.seq++
	req := &queuedRequest{
		priority:  priority,
		createdAt: time.Now(),
		seq:       s.seq,
		id:        uuid.NewString(),
		pool:      pool,
		task:      task,
		resultCh:  make(chan requestResult, 1),
	}
	heap.Push(&s.queue, req)
	s.mu.Unlock()

	s.statsMu.Lock()
	s.stats.TotalSubmitted++
	s.statsMu.Unlock()

	select {
	case s.wakeCh <- struct{}{}:
	default:
	}

	return req
}

func (s *Scheduler) workerLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		default:
		}

		req := s.popNext()
		if req == nil {
			select {
			case <-s.wakeCh:
			case <-ctx.Done():
				s.drain()
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		delay := s.pacer.Delay(req.pool, time.Now())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.requeue(req)
			s.drain()
			return
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.requeue(req)
			s.drain()
			return
		}

		s.wg.Add(1)
		go s.execute(ctx, req)
	}
}

func (s *Scheduler) popNext() *queuedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil
	}
	return heap.Pop(&s.queue).(*queuedRequest)
}

func (s *Scheduler) requeue(req *queuedRequest) {
	s.mu.Lock()
	heap.Push(&s.queue, req)
	s.mu.Unlock()
}

// drain fails every still-queued request so any blocked Submit callers are
// released when the scheduler shuts down.
func (s *Scheduler) drain() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, req := range pending {
		req.resultCh <- requestResult{err: errors.New("scheduler shut down")}
	}
}

func (s *Scheduler) execute(ctx context.Context, req *queuedRequest) {
	defer s.wg.Done()
	defer func() { <-s.sem }()

	s.pacer.RecordRequest(time.Now())
	value, err := req.task(ctx)
	if err == nil {
		s.statsMu.Lock()
		s.stats.TotalCompleted++
		s.statsMu.Unlock()
		req.resultCh <- requestResult{value: value}
		return
	}

	s.handleError(req, err)
}

func (s *Scheduler) handleError(req *queuedRequest, err error) {
	req.retryCount++

	slog.Warn("scheduled request failed", "request_id", req.id, "attempt", req.retryCount, "error", err)

	var rlErr RateLimitError
	switch {
	case errors.Is(err, driven.ErrGitHubAuth), errors.Is(err, driven.ErrGitHubNotFound):
		// A rejected token or a missing resource does not change on retry.
	case errors.As(err, &rlErr):
		if resetAt, ok := rlErr.ResetAt(); ok {
			wait := time.Until(resetAt) + 5*time.Second
			if wait > 0 {
				s.pacer.ForceWaitUntil(time.Now().Add(wait))
			}
		}
		if req.retryCount <= s.cfg.MaxRetries {
			req.priority = model.PriorityHigh
			req.createdAt = time.Now()
			s.requeueWithNewSeq(req)
			return
		}
	case req.retryCount <= s.cfg.MaxRetries:
		backoff := backoffDuration(req.retryCount)
		time.AfterFunc(backoff, func() {
			req.createdAt = time.Now()
			s.requeueWithNewSeq(req)
		})
		return
	}

	s.statsMu.Lock()
	s.stats.TotalFailed++
	s.statsMu.Unlock()
	req.resultCh <- requestResult{err: fmt.Errorf("request failed permanently after %d attempts: %w", req.retryCount, err)}
}

func (s *Scheduler) requeueWithNewSeq(req *queuedRequest) {
	s.mu.Lock()
	s.seq++
	req.seq = s.seq
	heap.Push(&s.queue, req)
	s.mu.Unlock()

	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// backoffDuration returns 2^retryCount seconds, capped at 60s.
func backoffDuration(retryCount int) time.Duration {
	d := time.Duration(1) << uint(retryCount)
	capped := 60 * time.Second
	if d*time.Second > capped {
		return capped
	}
	return d * time.Second
}

// Stats returns a snapshot of scheduler throughput counters.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// QueueSize returns the number of requests currently waiting.
func (s *Scheduler) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
