// Package pacing implements adaptive request pacing, priority scheduling,
// and batch execution with progress reporting for GitHub API ingestion.
package pacing

import (
	"sync"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/ratelimit"
)

// PacerConfig tunes the delay formula. Fields mirror the ingestion
// configuration surface (reserve buffer, burst allowance, interval bounds).
type PacerConfig struct {
	MinInterval      time.Duration
	MaxInterval      time.Duration
	ReserveBufferPct float64
	BurstAllowance   int
}

// throttleMultiplier scales the computed base delay by how degraded the
// pool's health is.
var throttleMultiplier = map[model.RateLimitHealth]float64{
	model.RateLimitHealthy:   1.0,
	model.RateLimitWarning:   1.5,
	model.RateLimitCritical:  2.0,
	model.RateLimitExhausted: 4.0,
}

// Pacer computes an adaptive delay to insert before each outbound GitHub API
// request, spreading the remaining request budget evenly across the time
// left until the rate-limit window resets, and throttling harder as the pool
// degrades.
type Pacer struct {
	cfg     PacerConfig
	monitor *ratelimit.Monitor

	mu             sync.Mutex
	requestTimes   []time.Time // sliding one-minute window, for RequestsPerMinute.
	forceWaitUntil time.Time
}

// NewPacer creates a Pacer reading pool health from monitor.
func NewPacer(cfg PacerConfig, monitor *ratelimit.Monitor) *Pacer {
	return &Pacer{cfg: cfg, monitor: monitor}
}

// Delay computes how long to wait before the next request against pool,
// given now. Without a forced wait the result is within [MinInterval,
// MaxInterval]; an active forced wait raises it to at least the time left on
// that wait, even beyond MaxInterval.
func (p *Pacer) Delay(pool model.RateLimitPool, now time.Time) time.Duration {
	p.mu.Lock()
	forceWait := p.forceWaitUntil.Sub(now)
	p.mu.Unlock()

	state, ok := p.monitor.Pool(pool)
	if !ok {
		return maxDuration(p.cfg.MinInterval, forceWait)
	}

	reserve := float64(state.Limit) * p.cfg.ReserveBufferPct / 100
	effectiveRemaining := float64(state.Remaining) - reserve + float64(p.cfg.BurstAllowance)
	if effectiveRemaining < 1 {
		effectiveRemaining = 1
	}

	secondsUntilReset := float64(state.SecondsUntilReset(now))
	baseDelay := time.Duration(secondsUntilReset/effectiveRemaining*1000) * time.Millisecond

	mult := throttleMultiplier[state.Health(p.monitor.Thresholds())]
	if mult == 0 {
		mult = 1.0
	}

	delay := time.Duration(float64(baseDelay) * mult)
	return maxDuration(clamp(delay, p.cfg.MinInterval, p.cfg.MaxInterval), forceWait)
}

// ForceWaitUntil imposes a floor on the next Delay result, used after a
// rate-limit error to stall the whole pool until its window resets.
func (p *Pacer) ForceWaitUntil(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.After(p.forceWaitUntil) {
		p.forceWaitUntil = t
	}
}

// ForceWait imposes a floor on the next Delay result for d, measured from
// now. Equivalent to ForceWaitUntil(now.Add(d)).
func (p *Pacer) ForceWait(d time.Duration, now time.Time) {
	p.ForceWaitUntil(now.Add(d))
}

// ClearForcedWait removes any forced-wait floor, letting Delay fall back to
// the normal adaptive formula immediately.
func (p *Pacer) ClearForcedWait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceWaitUntil = time.Time{}
}

// RecordRequest notes that a request was made at t, for RequestsPerMinute.
func (p *Pacer) RecordRequest(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requestTimes = append(p.requestTimes, t)
	cutoff := t.Add(-time.Minute)
	i := 0
	for i < len(p.requestTimes) && p.requestTimes[i].Before(cutoff) {
		i++
	}
	p.requestTimes = p.requestTimes[i:]
}

// RequestsPerMinute returns the count of requests recorded in the trailing
// one-minute window ending at now.
func (p *Pacer) RequestsPerMinute(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := now.Add(-time.Minute)
	count := 0
	for _, t := range p.requestTimes {
		if !t.Before(cutoff) {
			count++
		}
	}
	return count
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
