// Package metrics aggregates per-unit outcomes into live snapshots and the
// final run report.
package metrics

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/pipeline"
	"github.com/gateway-fm/txdispatch/internal/signer"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	Counts         types.Counts
	InFlight       int64
	PeakInFlight   int64
	Elapsed        time.Duration
	TPS            float64
	SubmitLatency  *types.LatencyStats
	ConfirmLatency *types.LatencyStats
}

// RunStats is the final report of a run. It is immutable once produced.
type RunStats struct {
	Timestamp time.Time
	Submitted uint64
	Accepted  uint64
	Confirmed uint64
	Failed    uint64
	TimedOut  uint64

	LatencySum   time.Duration
	Elapsed      time.Duration
	AvgLatency   time.Duration
	Throughput   float64
	PeakInFlight int64

	SubmitLatency  *types.LatencyStats
	ConfirmLatency *types.LatencyStats
	Config         map[string]any
}

// Counts returns the outcome counters.
func (s *RunStats) Counts() types.Counts {
	return types.Counts{
		Submitted: s.Submitted,
		Accepted:  s.Accepted,
		Confirmed: s.Confirmed,
		Failed:    s.Failed,
		TimedOut:  s.TimedOut,
	}
}

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Kind labels Prometheus series, e.g. "load".
	Kind string
	// Prometheus mirrors every record when set.
	Prometheus *PrometheusMetrics
	// Config is copied verbatim into RunStats.
	Config map[string]any
}

// Aggregator collects outcomes from concurrent units. Counters are atomics;
// each latency distribution has its own lock.
type Aggregator struct {
	kind   string
	prom   *PrometheusMetrics
	config map[string]any

	submitted atomic.Uint64
	accepted  atomic.Uint64
	confirmed atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64

	latencySum atomic.Int64 // ns
	inFlight   Gauge

	submitLatency  *StreamingLatencyStats
	confirmLatency *StreamingLatencyStats

	startMu sync.Mutex
	start   time.Time

	finalized atomic.Bool
	once      sync.Once
	stats     *RunStats
}

// NewAggregator creates an Aggregator. The elapsed clock starts now and
// can be restarted with Start.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	kind := cfg.Kind
	if kind == "" {
		kind = "transfer"
	}
	return &Aggregator{
		kind:           kind,
		prom:           cfg.Prometheus,
		config:         cfg.Config,
		submitLatency:  NewStreamingLatencyStatsWithBuckets(SubmitBuckets),
		confirmLatency: NewStreamingLatencyStatsWithBuckets(ConfirmBuckets),
		start:          time.Now(),
	}
}

// Start resets the elapsed clock to now. The scheduler calls it when
// dispatch begins, after setup.
func (a *Aggregator) Start() {
	a.startMu.Lock()
	a.start = time.Now()
	a.startMu.Unlock()
}

func (a *Aggregator) elapsed() time.Duration {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	return time.Since(a.start)
}

// Dispatched marks a unit as having taken a slot.
func (a *Aggregator) Dispatched() {
	if a.finalized.Load() {
		return
	}
	n := a.inFlight.Inc()
	if a.prom != nil {
		a.prom.SetInFlight(n)
	}
}

// Record counts the outcome of a unit's submission.
func (a *Aggregator) Record(o pipeline.Outcome) {
	if a.finalized.Load() {
		return
	}

	n := a.inFlight.Dec()
	a.submitted.Add(1)
	a.latencySum.Add(int64(o.Latency))
	a.submitLatency.AddDuration(o.Latency)

	switch o.Status {
	case pipeline.StatusSubmitted:
		a.accepted.Add(1)
	default:
		a.failed.Add(1)
	}

	if a.prom != nil {
		a.prom.SetInFlight(n)
		a.prom.RecordSubmitLatency(a.kind, o.Latency.Seconds())
		a.prom.RecordTx(o.Status.String(), a.kind)
		if o.Status == pipeline.StatusFailed {
			a.prom.RecordError(ErrorCategory(o.Err), a.kind)
		}
	}
}

// RecordConfirmation counts the confirmation result of an accepted unit.
// latency is measured from submission to receipt.
func (a *Aggregator) RecordConfirmation(status pipeline.Status, latency time.Duration) {
	if a.finalized.Load() {
		return
	}

	switch status {
	case pipeline.StatusConfirmed:
		a.confirmed.Add(1)
		a.confirmLatency.AddDuration(latency)
		if a.prom != nil {
			a.prom.RecordConfirmLatency(a.kind, latency.Seconds())
		}
	case pipeline.StatusTimedOut:
		a.timedOut.Add(1)
	default:
		a.failed.Add(1)
	}

	if a.prom != nil {
		a.prom.RecordTx(status.String(), a.kind)
	}
}

// Snapshot returns the current counters and distributions.
func (a *Aggregator) Snapshot() Snapshot {
	elapsed := a.elapsed()
	counts := a.counts()
	return Snapshot{
		Counts:         counts,
		InFlight:       a.inFlight.Load(),
		PeakInFlight:   a.inFlight.Peak(),
		Elapsed:        elapsed,
		TPS:            throughput(counts.Submitted, elapsed),
		SubmitLatency:  a.submitLatency.GetStats(),
		ConfirmLatency: a.confirmLatency.GetStats(),
	}
}

func (a *Aggregator) counts() types.Counts {
	return types.Counts{
		Submitted: a.submitted.Load(),
		Accepted:  a.accepted.Load(),
		Confirmed: a.confirmed.Load(),
		Failed:    a.failed.Load(),
		TimedOut:  a.timedOut.Load(),
	}
}

// Finalize produces the RunStats once. Later calls return the same value
// and later records are ignored.
func (a *Aggregator) Finalize() *RunStats {
	a.once.Do(func() {
		a.finalized.Store(true)

		elapsed := a.elapsed()
		counts := a.counts()
		sum := time.Duration(a.latencySum.Load())

		var avg time.Duration
		if counts.Submitted > 0 {
			avg = sum / time.Duration(counts.Submitted)
		}

		a.stats = &RunStats{
			Timestamp:      time.Now().UTC(),
			Submitted:      counts.Submitted,
			Accepted:       counts.Accepted,
			Confirmed:      counts.Confirmed,
			Failed:         counts.Failed,
			TimedOut:       counts.TimedOut,
			LatencySum:     sum,
			Elapsed:        elapsed,
			AvgLatency:     avg,
			Throughput:     throughput(counts.Submitted, elapsed),
			PeakInFlight:   a.inFlight.Peak(),
			SubmitLatency:  a.submitLatency.GetStats(),
			ConfirmLatency: a.confirmLatency.GetStats(),
			Config:         a.config,
		}
	})
	return a.stats
}

func throughput(n uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// ErrorCategory maps a unit error to a low-cardinality label.
func ErrorCategory(err error) string {
	var (
		se  *signer.SigningError
		sub *chain.SubmissionError
	)
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, pipeline.ErrDeadlineExceeded):
		return "deadline"
	case errors.As(err, &se):
		return "signing"
	case errors.As(err, &sub):
		return string(sub.Reason)
	case chain.IsTransport(err):
		return "transport"
	default:
		return "other"
	}
}
