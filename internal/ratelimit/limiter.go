// Package ratelimit paces submissions to a target rate.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter issues permits no closer together than 1/rate. Idle time is not
// banked: a caller arriving after a quiet period gets one immediate permit
// and the next one a full interval later, so the realized rate over any
// window never exceeds the target.
type Limiter struct {
	mu             sync.Mutex
	nextPermitTime time.Time
	interval       time.Duration

	rateX1000 atomic.Int64 // rate * 1000 for lock-free reads
}

// New creates a Limiter for ratePerSec permits per second. Non-positive
// rates are clamped to 1.
func New(ratePerSec float64) *Limiter {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}

	l := &Limiter{
		nextPermitTime: time.Now(),
		interval:       time.Duration(float64(time.Second) / ratePerSec),
	}
	l.rateX1000.Store(int64(ratePerSec * 1000))

	return l
}

// Wait blocks until a permit is available or ctx is done. A cancelled
// waiter hands its slot back if no later permit was reserved after it.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	if l.nextPermitTime.Before(now) {
		l.nextPermitTime = now
	}
	permitTime := l.nextPermitTime
	l.nextPermitTime = permitTime.Add(l.interval)
	l.mu.Unlock()

	waitDuration := time.Until(permitTime)
	if waitDuration <= 0 {
		return nil
	}

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.giveBack(permitTime)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) giveBack(permitTime time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.nextPermitTime.Equal(permitTime.Add(l.interval)) {
		l.nextPermitTime = permitTime
	}
}

// SetRate updates the rate for subsequent permits.
func (l *Limiter) SetRate(ratePerSec float64) {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.interval = time.Duration(float64(time.Second) / ratePerSec)
	l.rateX1000.Store(int64(ratePerSec * 1000))

	now := time.Now()
	if l.nextPermitTime.After(now.Add(l.interval)) {
		l.nextPermitTime = now.Add(l.interval)
	}
}

// Rate returns the current rate.
func (l *Limiter) Rate() float64 {
	return float64(l.rateX1000.Load()) / 1000
}

// Interval returns the minimum spacing between permits.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}
