package metrics

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestStreamingLatencyStats_Basic(t *testing.T) {
	s := NewStreamingLatencyStats()

	// Add some samples
	for i := 0; i < 100; i++ {
		s.Add(float64(i))
	}

	stats := s.GetStats()
	if stats == nil {
		t.Fatal("expected non-nil stats")
	}

	if stats.Count != 100 {
		t.Errorf("expected count 100, got %d", stats.Count)
	}

	if stats.Min != 0 {
		t.Errorf("expected min 0, got %f", stats.Min)
	}

	if stats.Max != 99 {
		t.Errorf("expected max 99, got %f", stats.Max)
	}

	// Average should be ~49.5
	if math.Abs(stats.Avg-49.5) > 0.1 {
		t.Errorf("expected avg ~49.5, got %f", stats.Avg)
	}

	// P50 should be ~50
	if math.Abs(stats.P50-49.5) > 2 {
		t.Errorf("expected p50 ~49.5, got %f", stats.P50)
	}
}

func TestStreamingLatencyStats_Empty(t *testing.T) {
	s := NewStreamingLatencyStats()

	stats := s.GetStats()
	if stats != nil {
		t.Error("expected nil stats for empty collector")
	}
}

func TestStreamingLatencyStats_Buckets(t *testing.T) {
	s := NewStreamingLatencyStatsWithBuckets(ConfirmBuckets)

	// 0-1s: 10 samples
	for i := 0; i < 10; i++ {
		s.Add(500)
	}
	// 1s-2s: 5 samples
	for i := 0; i < 5; i++ {
		s.Add(1500)
	}
	// 2s-5s: 3 samples
	for i := 0; i < 3; i++ {
		s.AddDuration(3 * time.Second)
	}

	stats := s.GetStats()
	if stats == nil {
		t.Fatal("expected non-nil stats")
	}

	if len(stats.Buckets) != len(ConfirmBuckets)+1 {
		t.Fatalf("expected %d buckets, got %d", len(ConfirmBuckets)+1, len(stats.Buckets))
	}

	wants := []struct {
		label string
		count int
	}{
		{"0-1s", 10},
		{"1s-2s", 5},
		{"2s-5s", 3},
		{"5s-15s", 0},
		{"15s-1m0s", 0},
		{"1m0s+", 0},
	}
	for i, w := range wants {
		if stats.Buckets[i].Label != w.label || stats.Buckets[i].Count != w.count {
			t.Errorf("bucket %d = %+v, want {%s %d}", i, stats.Buckets[i], w.label, w.count)
		}
	}
}

func TestStreamingLatencyStats_Concurrent(t *testing.T) {
	s := NewStreamingLatencyStats()

	var wg sync.WaitGroup
	numGoroutines := 10
	samplesPerGoroutine := 1000

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < samplesPerGoroutine; j++ {
				s.Add(float64(id*100 + j%100))
			}
		}(i)
	}

	wg.Wait()

	stats := s.GetStats()
	if stats == nil {
		t.Fatal("expected non-nil stats")
	}

	expectedCount := numGoroutines * samplesPerGoroutine
	if stats.Count != expectedCount {
		t.Errorf("expected count %d, got %d", expectedCount, stats.Count)
	}
}

func TestStreamingLatencyStats_Reset(t *testing.T) {
	s := NewStreamingLatencyStats()

	for i := 0; i < 100; i++ {
		s.Add(float64(i))
	}

	s.Reset()

	stats := s.GetStats()
	if stats != nil {
		t.Error("expected nil stats after reset")
	}

	if s.Count() != 0 {
		t.Errorf("expected count 0 after reset, got %d", s.Count())
	}
}

func BenchmarkStreamingLatencyStats_Add(b *testing.B) {
	s := NewStreamingLatencyStats()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s.Add(float64(i % 1000))
	}
}

func BenchmarkStreamingLatencyStats_GetStats(b *testing.B) {
	s := NewStreamingLatencyStats()

	// Pre-populate with 10000 samples
	for i := 0; i < 10000; i++ {
		s.Add(float64(i % 1000))
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s.GetStats()
	}
}
