// Package confirm polls for receipts of submitted transactions until they
// are included or a deadline passes.
package confirm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/pipeline"
)

const (
	// DefaultPollInterval is the delay between receipt polls.
	DefaultPollInterval = time.Second
	// DefaultBatchSize caps the hashes fetched per batch request.
	DefaultBatchSize = 100

	singleConcurrency = 16
)

// Entry is an accepted transaction awaiting inclusion.
type Entry struct {
	Hash        common.Hash
	Unit        pipeline.Unit
	SubmittedAt time.Time
}

// Result is the confirmation outcome of one entry. Status is one of
// StatusConfirmed, StatusReverted or StatusTimedOut.
type Result struct {
	Entry   Entry
	Status  pipeline.Status
	Receipt *chain.Receipt
	Latency time.Duration
}

// Config for creating a Tracker.
type Config struct {
	Gateway      chain.Gateway
	PollInterval time.Duration // default DefaultPollInterval
	BatchSize    int           // default DefaultBatchSize
	// MaxPollRate caps receipt requests per second. Zero means unlimited.
	MaxPollRate float64
	// OnResult is called once per entry as soon as its result is known.
	OnResult func(Result)
	Logger   *slog.Logger
}

// Tracker polls receipts. It uses chain.BatchReceipts when the gateway
// implements it.
type Tracker struct {
	gateway   chain.Gateway
	batch     chain.BatchReceipts
	interval  time.Duration
	batchSize int
	limiter   *rate.Limiter
	onResult  func(Result)
	logger    *slog.Logger
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	t := &Tracker{
		gateway:   cfg.Gateway,
		interval:  cfg.PollInterval,
		batchSize: cfg.BatchSize,
		onResult:  cfg.OnResult,
		logger:    cfg.Logger,
	}
	if t.interval <= 0 {
		t.interval = DefaultPollInterval
	}
	if t.batchSize <= 0 {
		t.batchSize = DefaultBatchSize
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if cfg.MaxPollRate > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPollRate), 1)
	}
	if b, ok := cfg.Gateway.(chain.BatchReceipts); ok {
		t.batch = b
	}
	return t
}

// Track waits for receipts of entries for at most timeout. Every entry
// yields exactly one result: confirmed or reverted when its receipt
// arrives, timed out when the deadline passes or ctx ends first.
func (t *Tracker) Track(ctx context.Context, entries []Entry, timeout time.Duration) []Result {
	results := make([]Result, 0, len(entries))
	if len(entries) == 0 {
		return results
	}

	emit := func(r Result) {
		results = append(results, r)
		if t.onResult != nil {
			t.onResult(r)
		}
	}

	deadline := time.Now().Add(timeout)
	pending := append([]Entry(nil), entries...)

	t.logger.Info("Waiting for confirmations",
		slog.Int("pending", len(pending)),
		slog.Duration("timeout", timeout))

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		pending = t.poll(ctx, pending, emit)
		if len(pending) == 0 {
			break
		}

		wait := min(t.interval, time.Until(deadline))
		if wait <= 0 || ctx.Err() != nil {
			break
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	for _, e := range pending {
		emit(Result{Entry: e, Status: pipeline.StatusTimedOut})
	}
	if len(pending) > 0 {
		t.logger.Warn("Confirmation timed out",
			slog.Int("timed_out", len(pending)),
			slog.Int("resolved", len(entries)-len(pending)))
	}
	return results
}

// poll fetches receipts for pending entries, emits results for the ones
// found and returns the rest.
func (t *Tracker) poll(ctx context.Context, pending []Entry, emit func(Result)) []Entry {
	receipts := t.fetch(ctx, pending)
	now := time.Now()

	rest := pending[:0]
	for i, e := range pending {
		r := receipts[i]
		if r == nil {
			rest = append(rest, e)
			continue
		}
		status := pipeline.StatusConfirmed
		if !r.Succeeded() {
			status = pipeline.StatusReverted
		}
		emit(Result{
			Entry:   e,
			Status:  status,
			Receipt: r,
			Latency: now.Sub(e.SubmittedAt),
		})
	}
	return rest
}

// fetch returns receipts index-aligned with pending. Failed lookups are
// left nil and retried on the next poll.
func (t *Tracker) fetch(ctx context.Context, pending []Entry) []*chain.Receipt {
	out := make([]*chain.Receipt, len(pending))

	if t.batch != nil {
		for start := 0; start < len(pending); start += t.batchSize {
			end := min(start+t.batchSize, len(pending))
			if err := t.wait(ctx); err != nil {
				return out
			}
			hashes := make([]common.Hash, end-start)
			for i := range hashes {
				hashes[i] = pending[start+i].Hash
			}
			receipts, err := t.batch.ReceiptsOf(ctx, hashes)
			if err != nil {
				t.logger.Warn("receipt batch failed", slog.Int("size", len(hashes)), slog.String("err", err.Error()))
				continue
			}
			copy(out[start:end], receipts)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(singleConcurrency)
	for i, e := range pending {
		if err := t.wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			r, err := t.gateway.ReceiptOf(ctx, e.Hash)
			if err != nil {
				t.logger.Debug("receipt poll failed", slog.String("hash", e.Hash.Hex()), slog.String("err", err.Error()))
				return nil
			}
			out[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (t *Tracker) wait(ctx context.Context) error {
	if t.limiter == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}
