package metrics

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gateway-fm/txdispatch/pkg/types"
)

// StreamingLatencyStats computes latency percentiles without keeping every
// sample: running min/max/sum plus a fixed-size reservoir (Algorithm R).
type StreamingLatencyStats struct {
	mu sync.RWMutex

	count int64
	sum   float64
	min   float64
	max   float64

	reservoir     []float64
	reservoirSize int
	seen          int64

	buckets      []int64
	bucketBounds []float64
	bucketLabels []string

	// xorshift64* state, per instance to avoid shared global state
	randState uint64
}

// DefaultReservoirSize gives <1% error at p99.
const DefaultReservoirSize = 10000

var (
	// SubmitBuckets suit submission round trips (ms).
	SubmitBuckets = []float64{10, 50, 100, 250, 1000}
	// ConfirmBuckets suit receipt polling at one-second granularity (ms).
	ConfirmBuckets = []float64{1000, 2000, 5000, 15000, 60000}
)

// NewStreamingLatencyStats creates a calculator with SubmitBuckets.
func NewStreamingLatencyStats() *StreamingLatencyStats {
	return NewStreamingLatencyStatsWithBuckets(SubmitBuckets)
}

// NewStreamingLatencyStatsWithBuckets creates a calculator whose histogram
// has one bucket below each bound (ms, ascending) and one above the last.
func NewStreamingLatencyStatsWithBuckets(bounds []float64) *StreamingLatencyStats {
	return &StreamingLatencyStats{
		min:           math.MaxFloat64,
		reservoir:     make([]float64, 0, DefaultReservoirSize),
		reservoirSize: DefaultReservoirSize,
		buckets:       make([]int64, len(bounds)+1),
		bucketBounds:  append([]float64(nil), bounds...),
		bucketLabels:  bucketLabels(bounds),
		randState:     1,
	}
}

func bucketLabels(bounds []float64) []string {
	labels := make([]string, 0, len(bounds)+1)
	lower := 0.0
	for _, b := range bounds {
		labels = append(labels, fmt.Sprintf("%s-%s", formatBound(lower), formatBound(b)))
		lower = b
	}
	return append(labels, formatBound(lower)+"+")
}

func formatBound(ms float64) string {
	if ms == 0 {
		return "0"
	}
	return time.Duration(ms * float64(time.Millisecond)).String()
}

// Add records a latency sample in milliseconds.
func (s *StreamingLatencyStats) Add(latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += latencyMs
	s.seen++

	if latencyMs < s.min {
		s.min = latencyMs
	}
	if latencyMs > s.max {
		s.max = latencyMs
	}

	s.buckets[s.getBucketIndex(latencyMs)]++

	if len(s.reservoir) < s.reservoirSize {
		s.reservoir = append(s.reservoir, latencyMs)
	} else {
		j := s.fastRand() % uint64(s.seen)
		if j < uint64(s.reservoirSize) {
			s.reservoir[j] = latencyMs
		}
	}
}

// AddDuration records d as a sample.
func (s *StreamingLatencyStats) AddDuration(d time.Duration) {
	s.Add(float64(d) / float64(time.Millisecond))
}

func (s *StreamingLatencyStats) getBucketIndex(latencyMs float64) int {
	for i, bound := range s.bucketBounds {
		if latencyMs < bound {
			return i
		}
	}
	return len(s.bucketBounds)
}

func (s *StreamingLatencyStats) fastRand() uint64 {
	s.randState ^= s.randState >> 12
	s.randState ^= s.randState << 25
	s.randState ^= s.randState >> 27
	return s.randState * 0x2545F4914F6CDD1D
}

// GetStats returns the current statistics, or nil before the first sample.
func (s *StreamingLatencyStats) GetStats() *types.LatencyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)
	sort.Float64s(sorted)

	buckets := make([]types.LatencyBucket, len(s.buckets))
	for i, c := range s.buckets {
		buckets[i] = types.LatencyBucket{Label: s.bucketLabels[i], Count: int(c)}
	}

	return &types.LatencyStats{
		Count:   int(s.count),
		Min:     s.min,
		Max:     s.max,
		Avg:     s.sum / float64(s.count),
		P50:     percentile(sorted, 0.50),
		P75:     percentile(sorted, 0.75),
		P90:     percentile(sorted, 0.90),
		P95:     percentile(sorted, 0.95),
		P99:     percentile(sorted, 0.99),
		Buckets: buckets,
	}
}

// Sum returns the sum of all samples in milliseconds.
func (s *StreamingLatencyStats) Sum() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sum
}

// percentile interpolates the p-th percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Reset clears all statistics.
func (s *StreamingLatencyStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count = 0
	s.sum = 0
	s.min = math.MaxFloat64
	s.max = 0
	s.reservoir = s.reservoir[:0]
	s.seen = 0
	for i := range s.buckets {
		s.buckets[i] = 0
	}
}

// Count returns the number of samples recorded.
func (s *StreamingLatencyStats) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}
