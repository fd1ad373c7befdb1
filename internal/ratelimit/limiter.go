// Package ratelimit paces page navigations.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter paces navigations globally and per host.
type Limiter struct {
	mu           sync.RWMutex
	limiter      *rate.Limiter
	perHost      map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter. A non-positive rate means unlimited.
func NewLimiter(pagesPerSecond float64, burst int) *Limiter {
	r := toLimit(pagesPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(r, burst),
		perHost:      make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

func toLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// Unlimited reports whether the global rate is infinite.
func (l *Limiter) Unlimited() bool {
	return l.limiter.Limit() == rate.Inf
}

// Wait blocks until a navigation is allowed or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// WaitHost blocks until a navigation to host is allowed.
func (l *Limiter) WaitHost(ctx context.Context, host string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	hostLimiter, exists := l.perHost[host]
	if !exists {
		hostLimiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.perHost[host] = hostLimiter
	}
	l.mu.Unlock()

	return hostLimiter.Wait(ctx)
}

// SetRate updates the global and default per-host rate.
func (l *Limiter) SetRate(pagesPerSecond float64, burst int) {
	r := toLimit(pagesPerSecond)
	l.limiter.SetLimit(r)
	l.limiter.SetBurst(burst)

	l.mu.Lock()
	l.defaultRate = r
	l.defaultBurst = burst
	for _, hl := range l.perHost {
		hl.SetLimit(r)
		hl.SetBurst(burst)
	}
	l.mu.Unlock()
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LimiterStats{
		HostCount:    len(l.perHost),
		DefaultRate:  float64(l.defaultRate),
		DefaultBurst: l.defaultBurst,
	}
}

// LimiterStats contains limiter statistics.
type LimiterStats struct {
	HostCount    int     `json:"host_count"`
	DefaultRate  float64 `json:"default_rate"`
	DefaultBurst int     `json:"default_burst"`
}

// AdaptiveLimiter slows down when navigations fail and recovers when they succeed.
type AdaptiveLimiter struct {
	*Limiter
	mu           sync.Mutex
	minRate      float64
	maxRate      float64
	currentRate  float64
	errorCount   int
	successCount int
	windowSize   int
}

// NewAdaptiveLimiter creates an adaptive limiter starting at maxRate.
// The rate is re-evaluated every window outcomes.
func NewAdaptiveLimiter(minRate, maxRate float64, burst, window int) *AdaptiveLimiter {
	if window < 1 {
		window = 10
	}
	return &AdaptiveLimiter{
		Limiter:     NewLimiter(maxRate, burst),
		minRate:     minRate,
		maxRate:     maxRate,
		currentRate: maxRate,
		windowSize:  window,
	}
}

// RecordSuccess records a successful navigation.
func (a *AdaptiveLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.checkAndAdjust()
}

// RecordError records a failed navigation.
func (a *AdaptiveLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.checkAndAdjust()
}

func (a *AdaptiveLimiter) checkAndAdjust() {
	total := a.successCount + a.errorCount
	if total < a.windowSize {
		return
	}

	errorRate := float64(a.errorCount) / float64(total)
	switch {
	case errorRate > 0.1:
		a.currentRate *= 0.8
		if a.currentRate < a.minRate {
			a.currentRate = a.minRate
		}
	case errorRate < 0.01:
		a.currentRate *= 1.1
		if a.currentRate > a.maxRate {
			a.currentRate = a.maxRate
		}
	}

	a.SetRate(a.currentRate, a.Stats().DefaultBurst)
	a.successCount = 0
	a.errorCount = 0
}

// CurrentRate returns the current rate in pages per second.
func (a *AdaptiveLimiter) CurrentRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}
