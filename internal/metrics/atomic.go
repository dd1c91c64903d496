package metrics

import "sync/atomic"

// subSaturating atomically subtracts delta from *addr, saturating at 0.
// A plain Add followed by a clamp can race with another writer between the
// load and the store, so this uses a CAS loop.
func subSaturating(addr *int64, delta int64) int64 {
	for {
		current := atomic.LoadInt64(addr)
		newVal := current - delta
		if newVal < 0 {
			newVal = 0
		}
		if atomic.CompareAndSwapInt64(addr, current, newVal) {
			return newVal
		}
	}
}

// atomicMax atomically sets *addr to max(*addr, val) and returns the result.
func atomicMax(addr *int64, val int64) int64 {
	for {
		current := atomic.LoadInt64(addr)
		if val <= current {
			return current
		}
		if atomic.CompareAndSwapInt64(addr, current, val) {
			return val
		}
	}
}

// Gauge is a level that never drops below zero and remembers its peak.
type Gauge struct {
	value int64
	peak  int64
}

// Inc raises the level by one and returns it.
func (g *Gauge) Inc() int64 {
	v := atomic.AddInt64(&g.value, 1)
	atomicMax(&g.peak, v)
	return v
}

// Dec lowers the level by one, saturating at zero.
func (g *Gauge) Dec() int64 {
	return subSaturating(&g.value, 1)
}

// Load returns the current level.
func (g *Gauge) Load() int64 {
	return atomic.LoadInt64(&g.value)
}

// Peak returns the highest level seen.
func (g *Gauge) Peak() int64 {
	return atomic.LoadInt64(&g.peak)
}
