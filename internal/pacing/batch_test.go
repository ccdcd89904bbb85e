package pacing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

func TestBatchExecutor_Execute_SplitsSuccessAndFailure(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{MaxConcurrent: 4, MaxRetries: 0}, fastPacer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)
	defer scheduler.Shutdown()

	progress := NewProgressTracker(0, "test-batch")
	executor := NewBatchExecutor(scheduler, progress, model.RateLimitPoolCore, false, 10)

	items := []any{1, 2, 3, 4}
	processor := func(_ context.Context, item any) (any, error) {
		n := item.(int)
		if n%2 == 0 {
			return nil, errors.New("even numbers fail")
		}
		return n * 10, nil
	}

	result, err := executor.Execute(context.Background(), items, processor, model.PriorityNormal)

	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount())
	assert.Equal(t, 2, result.FailureCount())
	assert.False(t, result.AllSucceeded())

	update := progress.GetUpdate()
	assert.Equal(t, ProgressCompleted, update.State)
	assert.Equal(t, 4, update.Total)
}

func TestBatchExecutor_Execute_EmptyItemsReturnsEmptyResult(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{MaxConcurrent: 1, MaxRetries: 0}, fastPacer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)
	defer scheduler.Shutdown()

	executor := NewBatchExecutor(scheduler, nil, model.RateLimitPoolCore, false, 10)
	result, err := executor.Execute(context.Background(), nil, func(context.Context, any) (any, error) { return nil, nil }, model.PriorityNormal)

	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCount())
}

func TestBatchExecutor_Execute_StopsOnErrorWhenConfigured(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{MaxConcurrent: 4, MaxRetries: 0}, fastPacer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)
	defer scheduler.Shutdown()

	progress := NewProgressTracker(0, "stop-on-error")
	executor := NewBatchExecutor(scheduler, progress, model.RateLimitPoolCore, true, 2)

	items := []any{1, 2, 3, 4, 5, 6}
	processor := func(_ context.Context, item any) (any, error) {
		if item.(int) == 2 {
			return nil, errors.New("boom")
		}
		return item, nil
	}

	result, err := executor.Execute(context.Background(), items, processor, model.PriorityNormal)

	require.NoError(t, err)
	assert.Less(t, result.TotalCount(), len(items))
	assert.Equal(t, ProgressFailed, progress.GetUpdate().State)
}
