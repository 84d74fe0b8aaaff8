// Package ratelimit provides the shared request budget and response cache
// for oracle calls: a token-bucket limiter over a rolling per-minute window
// plus a daily counter, and a TTL'd LRU cache keyed by batch payload.
//
// The limiter and the cache are guarded by independent locks so rate
// accounting never contends with cache reads.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/logging"
)

// Limiter enforces the oracle request quota. It is an explicit, injected
// service instance shared by all concurrent analyses; construct one per
// process and pass it to the dispatcher.
type Limiter struct {
	mu sync.Mutex

	rpm    int
	rpd    int
	margin float64

	window     []time.Time
	dailyCount int
	dailyReset time.Time

	// now is replaceable for deterministic tests
	now func() time.Time

	logger *logging.Logger
}

const (
	windowSize = time.Minute
	dailyCycle = 24 * time.Hour

	// pollPad is added to the computed wait so the freed slot is visible
	// on the re-check
	pollPad = 100 * time.Millisecond

	// idleWait is the re-check interval when only the daily budget blocks
	idleWait = 2 * time.Second
)

// NewLimiter creates a limiter from the rate limit configuration.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		rpm:        cfg.RPM,
		rpd:        cfg.RPD,
		margin:     cfg.SafetyMargin,
		dailyReset: time.Now(),
		now:        time.Now,
		logger:     logging.GetLogger("ratelimit"),
	}
	l.logger.Info("rate limiter initialized: %d RPM, %d RPD, margin %.2f", cfg.RPM, cfg.RPD, cfg.SafetyMargin)
	return l
}

// effective applies the safety margin to a raw limit.
func (l *Limiter) effective(limit int) int {
	return int(float64(limit) * l.margin)
}

// hasSlot reports whether both the minute window and the daily budget have
// room. Caller must hold the lock.
func (l *Limiter) hasSlot() bool {
	now := l.now()

	// prune entries older than the rolling window
	cutoff := now.Add(-windowSize)
	idx := 0
	for idx < len(l.window) && !l.window[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.window = append(l.window[:0], l.window[idx:]...)
	}

	// daily counter resets every 24h
	if now.Sub(l.dailyReset) > dailyCycle {
		l.dailyCount = 0
		l.dailyReset = now
	}

	return len(l.window) < l.effective(l.rpm) && l.dailyCount < l.effective(l.rpd)
}

// Acquire blocks until a request slot is available or ctx is done.
// Returns true when a slot is available; false means the caller should
// proceed in degraded mode rather than treat the condition as an error.
//
// There is a narrow, accepted race between Acquire and Record under
// concurrent callers; this is a soft operational throttle, not a
// billing-grade enforcement mechanism.
func (l *Limiter) Acquire(ctx context.Context) bool {
	for {
		l.mu.Lock()
		free := l.hasSlot()
		wait := l.nextWait()
		l.mu.Unlock()

		if free {
			return true
		}

		l.logger.Info("rate limit reached, waiting %.1fs for slot", wait.Seconds())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Warn("timed out waiting for rate limit slot")
			return false
		case <-timer.C:
		}
	}
}

// nextWait computes the minimal wait until the oldest in-window request
// ages out. Caller must hold the lock.
func (l *Limiter) nextWait() time.Duration {
	if len(l.window) == 0 {
		return idleWait
	}
	age := l.now().Sub(l.window[0])
	if wait := windowSize - age + pollPad; wait > 0 {
		return wait
	}
	return pollPad
}

// Record registers a performed request against the budget. Call it after a
// successful Acquire, immediately before or after issuing the request.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.window = append(l.window, l.now())
	l.dailyCount++
	l.logger.Debug("request recorded: %d/%d in window, %d/%d today",
		len(l.window), l.rpm, l.dailyCount, l.rpd)
}

// Stats is a point-in-time snapshot of the budget.
type Stats struct {
	WindowCount int `json:"requests_last_minute"`
	DailyCount  int `json:"requests_today"`
	RPMLimit    int `json:"rpm_limit"`
	RPDLimit    int `json:"rpd_limit"`
	Available   int `json:"rpm_available"`
}

// Stats returns the current budget usage.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	// refresh the window before reporting
	l.hasSlot()

	available := l.effective(l.rpm) - len(l.window)
	if available < 0 {
		available = 0
	}
	return Stats{
		WindowCount: len(l.window),
		DailyCount:  l.dailyCount,
		RPMLimit:    l.rpm,
		RPDLimit:    l.rpd,
		Available:   available,
	}
}
