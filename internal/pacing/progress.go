package pacing

import (
	"log/slog"
	"sync"
	"time"
)

// ProgressState is the lifecycle state of a tracked operation.
type ProgressState string

// ProgressState values.
const (
	ProgressPending    ProgressState = "pending"
	ProgressInProgress ProgressState = "in_progress"
	ProgressCompleted  ProgressState = "completed"
	ProgressFailed     ProgressState = "failed"
	ProgressCancelled  ProgressState = "cancelled"
)

// ProgressUpdate is a point-in-time snapshot of a tracked operation, handed
// to registered callbacks on every change.
type ProgressUpdate struct {
	Total          int
	Completed      int
	Failed         int
	State          ProgressState
	CurrentItem    string
	Error          string
	StartedAt      time.Time
	ElapsedSeconds float64
}

// Remaining returns the number of items not yet completed or failed.
func (u ProgressUpdate) Remaining() int {
	r := u.Total - u.Completed - u.Failed
	if r < 0 {
		return 0
	}
	return r
}

// ProgressPercent returns completion percentage in [0, 100]. An operation
// with zero total items reports 100.
func (u ProgressUpdate) ProgressPercent() float64 {
	if u.Total == 0 {
		return 100
	}
	return float64(u.Completed+u.Failed) / float64(u.Total) * 100
}

// SuccessRate returns the percentage of processed items that succeeded. An
// operation that has processed nothing reports 100.
func (u ProgressUpdate) SuccessRate() float64 {
	processed := u.Completed + u.Failed
	if processed == 0 {
		return 100
	}
	return float64(u.Completed) / float64(processed) * 100
}

// ProgressCallback observes ProgressTracker changes.
type ProgressCallback func(ProgressUpdate)

// ProgressTracker is an observable progress counter for a long-running
// batch operation. All methods are safe for concurrent use.
type ProgressTracker struct {
	name string

	mu          sync.Mutex
	total       int
	completed   int
	failed      int
	state       ProgressState
	currentItem string
	errMsg      string
	startedAt   time.Time
	startMono   time.Time
	metadata    map[string]any

	callbacksMu sync.Mutex
	callbacks   []ProgressCallback
}

// NewProgressTracker creates a tracker for an operation of the given total
// size (0 if unknown upfront), named for logging.
func NewProgressTracker(total int, name string) *ProgressTracker {
	return &ProgressTracker{
		total:    total,
		name:     name,
		state:    ProgressPending,
		metadata: make(map[string]any),
	}
}

// OnProgress registers a callback fired on every state change.
func (t *ProgressTracker) OnProgress(cb ProgressCallback) {
	t.callbacksMu.Lock()
	defer t.callbacksMu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

func (t *ProgressTracker) notify() {
	update := t.GetUpdate()

	t.callbacksMu.Lock()
	callbacks := append([]ProgressCallback(nil), t.callbacks...)
	t.callbacksMu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("progress callback panicked", "operation", t.name, "panic", r)
				}
			}()
			cb(update)
		}()
	}
}

// SetTotal updates the total item count, useful when it is not known until
// discovery completes.
func (t *ProgressTracker) SetTotal(total int) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
	t.notify()
}

// AddTotal adds count to the total item count.
func (t *ProgressTracker) AddTotal(count int) {
	t.mu.Lock()
	t.total += count
	t.mu.Unlock()
	t.notify()
}

// Start marks the operation as running.
func (t *ProgressTracker) Start() {
	t.mu.Lock()
	t.state = ProgressInProgress
	t.startedAt = time.Now()
	t.startMono = time.Now()
	total := t.total
	t.mu.Unlock()

	slog.Info("operation started", "operation", t.name, "total", total)
	t.notify()
}

// Complete marks the operation as successfully finished.
func (t *ProgressTracker) Complete() {
	t.mu.Lock()
	t.state = ProgressCompleted
	t.currentItem = ""
	completed, failed, elapsed := t.completed, t.failed, t.elapsedLocked()
	t.mu.Unlock()

	slog.Info("operation completed", "operation", t.name, "succeeded", completed, "failed", failed, "elapsed_seconds", elapsed)
	t.notify()
}

// Fail marks the operation as failed with the given error description.
func (t *ProgressTracker) Fail(errMsg string) {
	t.mu.Lock()
	t.state = ProgressFailed
	t.errMsg = errMsg
	t.currentItem = ""
	t.mu.Unlock()

	slog.Error("operation failed", "operation", t.name, "error", errMsg)
	t.notify()
}

// Cancel marks the operation as cancelled.
func (t *ProgressTracker) Cancel() {
	t.mu.Lock()
	t.state = ProgressCancelled
	t.currentItem = ""
	completed, failed, total := t.completed, t.failed, t.total
	t.mu.Unlock()

	slog.Info("operation cancelled", "operation", t.name, "processed", completed+failed, "total", total)
	t.notify()
}

// SetCurrent records the item currently being processed, for progress
// display.
func (t *ProgressTracker) SetCurrent(item string) {
	t.mu.Lock()
	t.currentItem = item
	t.mu.Unlock()
	t.notify()
}

// Increment records count more successfully completed items.
func (t *ProgressTracker) Increment(count int) {
	t.mu.Lock()
	t.completed += count
	t.currentItem = ""
	t.mu.Unlock()
	t.notify()
}

// IncrementFailed records count more failed items, optionally logging why.
func (t *ProgressTracker) IncrementFailed(count int, errMsg string) {
	t.mu.Lock()
	t.failed += count
	t.currentItem = ""
	t.mu.Unlock()

	if errMsg != "" {
		slog.Warn("item failed", "operation", t.name, "error", errMsg)
	}
	t.notify()
}

// GetUpdate returns a snapshot of the tracker's current state.
func (t *ProgressTracker) GetUpdate() ProgressUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ProgressUpdate{
		Total:          t.total,
		Completed:      t.completed,
		Failed:         t.failed,
		State:          t.state,
		CurrentItem:    t.currentItem,
		Error:          t.errMsg,
		StartedAt:      t.startedAt,
		ElapsedSeconds: t.elapsedLocked(),
	}
}

func (t *ProgressTracker) elapsedLocked() float64 {
	if t.startMono.IsZero() {
		return 0
	}
	return time.Since(t.startMono).Seconds()
}

// SetMetadata stores an arbitrary key/value pair alongside the tracker.
func (t *ProgressTracker) SetMetadata(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metadata[key] = value
}

// GetMetadata retrieves a previously stored value, or nil if absent.
func (t *ProgressTracker) GetMetadata(key string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metadata[key]
}

// IsDone reports whether the operation has reached a terminal state.
func (t *ProgressTracker) IsDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case ProgressCompleted, ProgressFailed, ProgressCancelled:
		return true
	default:
		return false
	}
}
