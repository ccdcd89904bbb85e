package pacing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

// ItemFailure records that an item at Index could not be processed.
type ItemFailure struct {
	Index int
	Err   error
}

// BatchResult is the outcome of a BatchExecutor run: every item either
// contributed a value to Succeeded or an entry to Failed, never both.
type BatchResult struct {
	Succeeded []any
	Failed    []ItemFailure
}

// TotalCount returns the number of items processed, successful or not.
func (r BatchResult) TotalCount() int { return len(r.Succeeded) + len(r.Failed) }

// SuccessCount returns the number of items that succeeded.
func (r BatchResult) SuccessCount() int { return len(r.Succeeded) }

// FailureCount returns the number of items that failed.
func (r BatchResult) FailureCount() int { return len(r.Failed) }

// AllSucceeded reports whether every item in the batch succeeded.
func (r BatchResult) AllSucceeded() bool { return len(r.Failed) == 0 }

// Processor processes a single batch item, returning its result.
type Processor func(ctx context.Context, item any) (any, error)

// BatchExecutor coordinates running a Processor over a slice of items
// through a Scheduler, chunking work into sub-batches and reporting
// progress through an optional ProgressTracker.
type BatchExecutor struct {
	scheduler    *Scheduler
	progress     *ProgressTracker
	stopOnError  bool
	maxBatchSize int
	pool         model.RateLimitPool

	mu        sync.Mutex
	cancelled bool
}

// NewBatchExecutor creates a BatchExecutor running work through scheduler
// against pool. progress may be nil to disable progress reporting.
func NewBatchExecutor(scheduler *Scheduler, progress *ProgressTracker, pool model.RateLimitPool, stopOnError bool, maxBatchSize int) *BatchExecutor {
	if maxBatchSize <= 0 {
		maxBatchSize = 50
	}
	return &BatchExecutor{
		scheduler:    scheduler,
		progress:     progress,
		pool:         pool,
		stopOnError:  stopOnError,
		maxBatchSize: maxBatchSize,
	}
}

// WithMaxBatchSize returns a copy of b that chunks work at size instead of
// b's configured maxBatchSize, sharing the same scheduler, progress tracker,
// and pool. Used to bound a single run's concurrency exposure without
// reconfiguring the executor every caller shares.
func (b *BatchExecutor) WithMaxBatchSize(size int) *BatchExecutor {
	if size <= 0 {
		size = b.maxBatchSize
	}
	return &BatchExecutor{
		scheduler:    b.scheduler,
		progress:     b.progress,
		pool:         b.pool,
		stopOnError:  b.stopOnError,
		maxBatchSize: size,
	}
}

// Execute runs processor over every item, respecting priority, and returns
// the aggregated BatchResult. Items are chunked into sub-batches of at most
// maxBatchSize so the scheduler's queue never has to hold the full item set
// at once.
func (b *BatchExecutor) Execute(ctx context.Context, items []any, processor Processor, priority model.RequestPriority) (BatchResult, error) {
	b.mu.Lock()
	b.cancelled = false
	b.mu.Unlock()

	var result BatchResult
	if len(items) == 0 {
		return result, nil
	}

	if b.progress != nil {
		b.progress.SetTotal(len(items))
		b.progress.Start()
	}

	var runErr error
	for start := 0; start < len(items); start += b.maxBatchSize {
		if b.IsCancelled() {
			break
		}

		end := start + b.maxBatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		chunkResult := b.executeChunk(ctx, chunk, processor, priority, start)
		result.Succeeded = append(result.Succeeded, chunkResult.Succeeded...)
		result.Failed = append(result.Failed, chunkResult.Failed...)

		if b.stopOnError && len(chunkResult.Failed) > 0 {
			break
		}
	}

	if b.progress != nil {
		switch {
		case b.IsCancelled():
			b.progress.Cancel()
		case len(result.Failed) > 0 && b.stopOnError:
			b.progress.Fail(fmt.Sprintf("stopped on error: %v", result.Failed[0].Err))
		default:
			b.progress.Complete()
		}
	}

	return result, runErr
}

func (b *BatchExecutor) executeChunk(ctx context.Context, chunk []any, processor Processor, priority model.RequestPriority, startIndex int) BatchResult {
	var result BatchResult
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, item := range chunk {
		if b.IsCancelled() {
			break
		}

		wg.Add(1)
		go func(index int, item any) {
			defer wg.Done()

			value, err := b.scheduler.Submit(ctx, b.pool, priority, func(taskCtx context.Context) (any, error) {
				return processor(taskCtx, item)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, ItemFailure{Index: startIndex + index, Err: err})
				if b.progress != nil {
					b.progress.IncrementFailed(1, err.Error())
				}
				return
			}
			result.Succeeded = append(result.Succeeded, value)
			if b.progress != nil {
				b.progress.Increment(1)
			}
		}(i, item)
	}

	wg.Wait()
	return result
}

// Cancel stops the batch after any currently-running items finish; no new
// items are started.
func (b *BatchExecutor) Cancel() {
	b.mu.Lock()
	b.cancelled = true
	b.mu.Unlock()
	slog.Info("batch execution cancelled")
}

// IsCancelled reports whether Cancel has been called for this run.
func (b *BatchExecutor) IsCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}
