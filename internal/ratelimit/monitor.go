// Package ratelimit tracks GitHub API rate-limit pool state passively from
// response headers and classifies each pool's health for the pacer and
// scheduler to react to.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

// Thresholds configures the remaining-percent cutoffs used to classify pool
// health. Healthy requires remaining_percent >= HealthyPct, Warning requires
// >= WarningPct, Critical requires > CriticalPct, and anything at or below
// CriticalPct (zero remaining) is Exhausted.
type Thresholds struct {
	HealthyPct  float64
	WarningPct  float64
	CriticalPct float64
}

// DefaultThresholds mirror the degradation bands used across the ingestion
// pipeline: healthy at or above 50%, warning at or above 20%, critical above
// 0%.
var DefaultThresholds = Thresholds{HealthyPct: 50, WarningPct: 20, CriticalPct: 0}

// PoolState is a point-in-time snapshot of one rate-limit pool.
type PoolState struct {
	Pool      model.RateLimitPool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// UsedPct returns the percentage of the limit consumed, 0 when Limit is 0.
func (s PoolState) UsedPct() float64 {
	if s.Limit == 0 {
		return 0
	}
	return float64(s.Limit-s.Remaining) / float64(s.Limit) * 100
}

// RemainingPct returns the percentage of the limit left, 100 when Limit is 0.
func (s PoolState) RemainingPct() float64 {
	if s.Limit == 0 {
		return 100
	}
	return float64(s.Remaining) / float64(s.Limit) * 100
}

// SecondsUntilReset returns the non-negative seconds remaining until the
// pool's window resets, relative to now.
func (s PoolState) SecondsUntilReset(now time.Time) int {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Seconds())
}

// Health classifies the pool's current headroom against thresholds.
func (s PoolState) Health(t Thresholds) model.RateLimitHealth {
	pct := s.RemainingPct()
	if s.Remaining <= 0 || pct <= t.CriticalPct {
		return model.RateLimitExhausted
	}
	switch {
	case pct >= t.HealthyPct:
		return model.RateLimitHealthy
	case pct >= t.WarningPct:
		return model.RateLimitWarning
	default:
		return model.RateLimitCritical
	}
}

// ThresholdCallback is invoked when a pool's health degrades (never on
// improvement).
type ThresholdCallback func(state PoolState, health model.RateLimitHealth)

// Monitor tracks rate-limit pool state passively from response headers and
// answers health/budget questions for the pacer and scheduler.
type Monitor struct {
	thresholds       Thresholds
	minRemaining     int
	trackFromHeaders bool

	mu       sync.RWMutex
	pools    map[model.RateLimitPool]PoolState
	lastSeen map[model.RateLimitPool]model.RateLimitHealth

	callbacksMu sync.Mutex
	callbacks   []ThresholdCallback
}

// Thresholds returns the health-classification thresholds the monitor was
// configured with, for collaborators (e.g. the pacer) that need to classify
// a PoolState themselves.
func (m *Monitor) Thresholds() Thresholds {
	return m.thresholds
}

// NewMonitor creates a Monitor with the given thresholds and minimum
// remaining-request buffer. trackFromHeaders gates Update: when false,
// Update is a no-op and the monitor never holds any pool state.
func NewMonitor(t Thresholds, minRemainingBuffer int, trackFromHeaders bool) *Monitor {
	return &Monitor{
		thresholds:       t,
		minRemaining:     minRemainingBuffer,
		trackFromHeaders: trackFromHeaders,
		pools:            make(map[model.RateLimitPool]PoolState),
		lastSeen:         make(map[model.RateLimitPool]model.RateLimitHealth),
	}
}

// Update merges a freshly observed pool state into the monitor, firing any
// registered callbacks if the pool's health has degraded since the last
// observation. This is the zero-API-cost passive tracking path: callers feed
// it the rate-limit fields off every API response.
func (m *Monitor) Update(state PoolState) {
	if !m.trackFromHeaders {
		return
	}

	m.mu.Lock()
	m.pools[state.Pool] = state
	previous, hadPrevious := m.lastSeen[state.Pool]
	current := state.Health(m.thresholds)
	m.lastSeen[state.Pool] = current
	m.mu.Unlock()

	if !hadPrevious {
		previous = model.RateLimitHealthy
	}
	if isDegradation(previous, current) {
		m.fireCallbacks(state, current)
	}
}

func (m *Monitor) fireCallbacks(state PoolState, health model.RateLimitHealth) {
	m.callbacksMu.Lock()
	callbacks := append([]ThresholdCallback(nil), m.callbacks...)
	m.callbacksMu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("rate limit threshold callback panicked", "pool", state.Pool, "panic", r)
				}
			}()
			cb(state, health)
		}()
	}
}

var healthOrder = map[model.RateLimitHealth]int{
	model.RateLimitHealthy:   0,
	model.RateLimitWarning:   1,
	model.RateLimitCritical:  2,
	model.RateLimitExhausted: 3,
}

func isDegradation(previous, current model.RateLimitHealth) bool {
	return healthOrder[current] > healthOrder[previous]
}

// OnThresholdCrossed registers a callback fired whenever a pool's health
// degrades (HEALTHY -> WARNING -> CRITICAL -> EXHAUSTED). Callbacks never
// fire on improvement.
func (m *Monitor) OnThresholdCrossed(cb ThresholdCallback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Pool returns the last observed state for pool, and whether any state has
// been observed yet.
func (m *Monitor) Pool(pool model.RateLimitPool) (PoolState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.pools[pool]
	return s, ok
}

// Status returns the pool's current health, defaulting to Healthy when no
// state has been observed yet (assume OK until proven otherwise).
func (m *Monitor) Status(pool model.RateLimitPool) model.RateLimitHealth {
	state, ok := m.Pool(pool)
	if !ok {
		return model.RateLimitHealthy
	}
	return state.Health(m.thresholds)
}

// CanMakeRequest reports whether count additional requests can safely be
// made against pool, accounting for the configured minimum-remaining buffer.
// Returns true when no state has been observed yet.
func (m *Monitor) CanMakeRequest(pool model.RateLimitPool, count int) bool {
	state, ok := m.Pool(pool)
	if !ok {
		return true
	}
	return state.Remaining >= count+m.minRemaining
}

// RequestsAvailable returns the number of requests available against pool
// after subtracting the configured buffer, floored at 0.
func (m *Monitor) RequestsAvailable(pool model.RateLimitPool) int {
	state, ok := m.Pool(pool)
	if !ok {
		return 0
	}
	available := state.Remaining - m.minRemaining
	if available < 0 {
		return 0
	}
	return available
}

// TimeUntilReset returns the seconds remaining until pool's window resets,
// relative to now, or 0 if no state has been observed.
func (m *Monitor) TimeUntilReset(pool model.RateLimitPool, now time.Time) int {
	state, ok := m.Pool(pool)
	if !ok {
		return 0
	}
	return state.SecondsUntilReset(now)
}

// Snapshot returns the last observed state of every tracked pool, keyed by
// pool name, for logging and diagnostics.
func (m *Monitor) Snapshot() map[model.RateLimitPool]PoolState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.RateLimitPool]PoolState, len(m.pools))
	for k, v := range m.pools {
		out[k] = v
	}
	return out
}
