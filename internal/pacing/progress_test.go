package pacing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressUpdate_ProgressPercent(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		completed int
		failed    int
		want      float64
	}{
		{"zero total is fully done", 0, 0, 0, 100},
		{"half done", 10, 4, 1, 50},
		{"nothing processed yet", 10, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := ProgressUpdate{Total: tt.total, Completed: tt.completed, Failed: tt.failed}
			assert.Equal(t, tt.want, u.ProgressPercent())
		})
	}
}

func TestProgressUpdate_SuccessRate(t *testing.T) {
	u := ProgressUpdate{Total: 10, Completed: 3, Failed: 1}
	assert.InDelta(t, 75.0, u.SuccessRate(), 0.01)

	empty := ProgressUpdate{Total: 10}
	assert.Equal(t, 100.0, empty.SuccessRate())
}

func TestProgressTracker_LifecycleNotifiesCallbacks(t *testing.T) {
	tracker := NewProgressTracker(3, "ingest")

	var states []ProgressState
	tracker.OnProgress(func(u ProgressUpdate) {
		states = append(states, u.State)
	})

	tracker.Start()
	tracker.Increment(1)
	tracker.IncrementFailed(1, "transient error")
	tracker.Complete()

	assert.Equal(t, []ProgressState{
		ProgressInProgress,
		ProgressInProgress,
		ProgressInProgress,
		ProgressCompleted,
	}, states)

	update := tracker.GetUpdate()
	assert.Equal(t, 1, update.Completed)
	assert.Equal(t, 1, update.Failed)
	assert.Equal(t, 1, update.Remaining())
}

func TestProgressTracker_Metadata(t *testing.T) {
	tracker := NewProgressTracker(0, "ingest")
	tracker.SetMetadata("repo", "octo/demo")

	assert.Equal(t, "octo/demo", tracker.GetMetadata("repo"))
	assert.Nil(t, tracker.GetMetadata("missing"))
}
