package metrics

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSubSaturating(t *testing.T) {
	testCases := []struct {
		name     string
		initial  int64
		delta    int64
		expected int64
	}{
		{"normal subtraction", 100, 50, 50},
		{"exact to zero", 100, 100, 0},
		{"saturating at zero", 100, 150, 0},
		{"zero minus value", 0, 50, 0},
		{"large values", 1000000, 500000, 500000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var value int64 = tc.initial
			result := subSaturating(&value, tc.delta)

			if result != tc.expected {
				t.Errorf("expected %d, got %d", tc.expected, result)
			}
			if value != tc.expected {
				t.Errorf("value expected %d, got %d", tc.expected, value)
			}
		})
	}
}

func TestSubSaturating_Concurrent(t *testing.T) {
	var value int64 = 1000000

	var wg sync.WaitGroup
	numGoroutines := 100
	subtractPerGoroutine := int64(10000)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subSaturating(&value, subtractPerGoroutine)
		}()
	}

	wg.Wait()

	// 1000000 - (100 * 10000) = 0
	if value != 0 {
		t.Errorf("expected 0, got %d", value)
	}
}

func TestSubSaturating_Oversubtract(t *testing.T) {
	var value int64 = 100

	var wg sync.WaitGroup
	numGoroutines := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subSaturating(&value, 50)
		}()
	}

	wg.Wait()

	// Should saturate at 0, never go negative
	if value != 0 {
		t.Errorf("expected 0, got %d", value)
	}
}

func TestAtomicMax(t *testing.T) {
	testCases := []struct {
		name     string
		initial  int64
		newVal   int64
		expected int64
	}{
		{"new is larger", 50, 100, 100},
		{"new is smaller", 100, 50, 100},
		{"new is equal", 100, 100, 100},
		{"zero to positive", 0, 100, 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var value int64 = tc.initial
			result := atomicMax(&value, tc.newVal)

			if result != tc.expected {
				t.Errorf("expected %d, got %d", tc.expected, result)
			}
			if value != tc.expected {
				t.Errorf("value expected %d, got %d", tc.expected, value)
			}
		})
	}
}

func TestAtomicMax_Concurrent(t *testing.T) {
	var value int64 = 0

	var wg sync.WaitGroup
	maxValue := int64(10000)

	for i := int64(0); i < maxValue; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			atomicMax(&value, v)
		}(i)
	}

	wg.Wait()

	if value != maxValue-1 {
		t.Errorf("expected %d, got %d", maxValue-1, value)
	}
}

func TestGauge(t *testing.T) {
	g := &Gauge{}

	if v := g.Inc(); v != 1 {
		t.Errorf("Inc() = %d, want 1", v)
	}
	g.Inc()
	g.Inc()
	if v := g.Dec(); v != 2 {
		t.Errorf("Dec() = %d, want 2", v)
	}
	g.Dec()
	g.Dec()
	if v := g.Dec(); v != 0 {
		t.Errorf("Dec() below zero = %d, want 0 (saturated)", v)
	}
	if v := g.Peak(); v != 3 {
		t.Errorf("Peak() = %d, want 3", v)
	}
}

func TestGauge_Concurrent(t *testing.T) {
	g := &Gauge{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Inc()
			g.Dec()
		}()
	}
	wg.Wait()

	if v := g.Load(); v != 0 {
		t.Errorf("Load() = %d, want 0", v)
	}
	if p := g.Peak(); p < 1 || p > 100 {
		t.Errorf("Peak() = %d, want within [1, 100]", p)
	}
}

func BenchmarkSubSaturating(b *testing.B) {
	var value int64 = 1000000000

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		subSaturating(&value, 1)
		atomic.AddInt64(&value, 1) // Add it back to prevent exhaustion
	}
}

func BenchmarkSubSaturating_Contended(b *testing.B) {
	var value int64 = 1000000000

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			subSaturating(&value, 1)
			atomic.AddInt64(&value, 1)
		}
	})
}
