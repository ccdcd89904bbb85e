package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

func TestPoolState_Health(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		remaining int
		want      model.RateLimitHealth
	}{
		{"plenty remaining", 5000, 4000, model.RateLimitHealthy},
		{"at healthy boundary", 5000, 2500, model.RateLimitHealthy},
		{"below healthy boundary", 5000, 2499, model.RateLimitWarning},
		{"at warning boundary", 5000, 1000, model.RateLimitWarning},
		{"below warning boundary", 5000, 999, model.RateLimitCritical},
		{"just above zero", 5000, 1, model.RateLimitCritical},
		{"exhausted", 5000, 0, model.RateLimitExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := PoolState{Limit: tt.limit, Remaining: tt.remaining}
			assert.Equal(t, tt.want, s.Health(DefaultThresholds))
		})
	}
}

func TestMonitor_Update_FiresCallbackOnDegradationOnly(t *testing.T) {
	m := NewMonitor(DefaultThresholds, 0, true)

	var seen []model.RateLimitHealth
	m.OnThresholdCrossed(func(_ PoolState, health model.RateLimitHealth) {
		seen = append(seen, health)
	})

	m.Update(PoolState{Pool: model.RateLimitPoolCore, Limit: 5000, Remaining: 4000, ResetAt: time.Now().Add(time.Hour)})
	m.Update(PoolState{Pool: model.RateLimitPoolCore, Limit: 5000, Remaining: 500, ResetAt: time.Now().Add(time.Hour)})
	// Improvement should not fire a callback.
	m.Update(PoolState{Pool: model.RateLimitPoolCore, Limit: 5000, Remaining: 4500, ResetAt: time.Now().Add(time.Hour)})
	m.Update(PoolState{Pool: model.RateLimitPoolCore, Limit: 5000, Remaining: 0, ResetAt: time.Now().Add(time.Hour)})

	assert.Equal(t, []model.RateLimitHealth{model.RateLimitCritical, model.RateLimitExhausted}, seen)
}

func TestMonitor_CanMakeRequest(t *testing.T) {
	m := NewMonitor(DefaultThresholds, 50, true)

	// No observation yet: assume OK.
	assert.True(t, m.CanMakeRequest(model.RateLimitPoolCore, 1))

	m.Update(PoolState{Pool: model.RateLimitPoolCore, Limit: 5000, Remaining: 60, ResetAt: time.Now().Add(time.Hour)})
	assert.True(t, m.CanMakeRequest(model.RateLimitPoolCore, 10))
	assert.False(t, m.CanMakeRequest(model.RateLimitPoolCore, 11))
}

func TestMonitor_RequestsAvailable_FlooredAtZero(t *testing.T) {
	m := NewMonitor(DefaultThresholds, 100, true)
	m.Update(PoolState{Pool: model.RateLimitPoolCore, Limit: 5000, Remaining: 50, ResetAt: time.Now().Add(time.Hour)})

	assert.Equal(t, 0, m.RequestsAvailable(model.RateLimitPoolCore))
}

func TestMonitor_Update_NoOpWhenTrackingDisabled(t *testing.T) {
	m := NewMonitor(DefaultThresholds, 0, false)
	m.Update(PoolState{Pool: model.RateLimitPoolCore, Limit: 5000, Remaining: 10, ResetAt: time.Now()})

	_, ok := m.Pool(model.RateLimitPoolCore)
	assert.False(t, ok)
}

func TestMonitor_TimeUntilReset(t *testing.T) {
	m := NewMonitor(DefaultThresholds, 0, true)
	now := time.Now()
	m.Update(PoolState{Pool: model.RateLimitPoolCore, Limit: 5000, Remaining: 100, ResetAt: now.Add(30 * time.Second)})

	assert.InDelta(t, 30, m.TimeUntilReset(model.RateLimitPoolCore, now), 1)
	assert.Equal(t, 0, m.TimeUntilReset(model.RateLimitPoolSearch, now))
}
