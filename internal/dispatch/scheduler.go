// Package dispatch drives a run: it assigns units to senders, bounds how
// many are in flight, paces and batches them, and hands accepted
// transactions to confirmation tracking.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txdispatch/internal/account"
	"github.com/gateway-fm/txdispatch/internal/audit"
	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/confirm"
	"github.com/gateway-fm/txdispatch/internal/metrics"
	"github.com/gateway-fm/txdispatch/internal/pipeline"
	"github.com/gateway-fm/txdispatch/internal/ratelimit"
	"github.com/gateway-fm/txdispatch/internal/sender"
	"github.com/gateway-fm/txdispatch/internal/signer"
	"github.com/gateway-fm/txdispatch/internal/txbuilder"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

type (
	// Unit is one transfer to perform.
	Unit = pipeline.Unit
	// Outcome is the submission result of a unit.
	Outcome = pipeline.Outcome
)

// Job is what a run dispatches: who sends to whom, and where results go.
type Job struct {
	// Pool holds the senders and receivers. Run initializes it.
	Pool *account.Pool
	// Plan assigns unit indexes. Nil uses RoundRobin.
	Plan Plan
	// Dest makes every unit a bridge call to this destination.
	Dest *txbuilder.CrossChain
	// Round is stamped on every unit and used as the audit id of
	// cross-chain runs.
	Round int
	// RequireFunds checks before dispatch that every sender holds the
	// total amount of its units.
	RequireFunds bool
	// Audit receives one record per unit. Nil discards them.
	Audit audit.Sink
	// Stats collects outcomes. Nil creates an Aggregator for the run.
	Stats *metrics.Aggregator
	// Observer follows the run's phases. May be nil.
	Observer Observer
}

// Observer is told the chain a run talks to and each phase it enters.
type Observer interface {
	SetChainID(id uint64)
	SetState(state types.RunState)
}

type nopObserver struct{}

func (nopObserver) SetChainID(uint64)       {}
func (nopObserver) SetState(types.RunState) {}

// Scheduler runs jobs against one chain.
type Scheduler struct {
	gateway chain.Gateway
	signer  signer.Gateway
	cfg     Config
	logger  *slog.Logger
}

// New creates a Scheduler. A nil signer uses signer.New with the default
// builders.
func New(gw chain.Gateway, sg signer.Gateway, cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if sg == nil {
		sg = signer.New(nil)
	}
	return &Scheduler{
		gateway: gw,
		signer:  sg,
		cfg:     cfg,
		logger:  logger,
	}
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// run is the state of one Run call.
type run struct {
	*Scheduler
	ctx context.Context
	job Job

	chainID  uint64
	base     *big.Int
	started  time.Time
	pipeline *pipeline.Pipeline
	slots    *sender.Sender
	tracker  *confirm.Tracker
	agg      *metrics.Aggregator
	audit    audit.Sink

	outcomes chan pipeline.Outcome
	flush    chan chan []confirm.Entry
	done     chan struct{}
}

// Run dispatches Config.Count units of job and returns the final stats.
//
// Setup failures return a *SetupError and no stats. Per-unit failures
// are counted, never returned. When ctx ends, dispatch stops, in-flight
// units settle, and Run returns the partial stats together with ctx.Err().
func (s *Scheduler) Run(ctx context.Context, job Job) (*metrics.RunStats, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, &SetupError{Stage: StageConfig, Err: err}
	}
	if job.Pool == nil {
		return nil, &SetupError{Stage: StageConfig, Err: errors.New("job has no account pool")}
	}
	if job.Plan == nil {
		job.Plan = RoundRobin{}
	}
	if job.Audit == nil {
		job.Audit = audit.Discard
	}
	if job.Stats == nil {
		job.Stats = metrics.NewAggregator(metrics.AggregatorConfig{Config: s.cfg.Summary()})
	}
	if job.Observer == nil {
		job.Observer = nopObserver{}
	}

	r := &run{
		Scheduler: s,
		ctx:       ctx,
		job:       job,
		agg:       job.Stats,
		audit:     job.Audit,
		outcomes:  make(chan pipeline.Outcome),
		flush:     make(chan chan []confirm.Entry),
		done:      make(chan struct{}),
	}
	if err := r.setup(); err != nil {
		return nil, err
	}

	s.logger.Info("Starting dispatch",
		slog.Int("count", s.cfg.Count),
		slog.Int("senders", job.Pool.Size()),
		slog.Int("receivers", job.Pool.Receivers()),
		slog.Int("concurrency", s.cfg.Concurrency),
		slog.Int("batch_size", s.cfg.BatchSize),
		slog.Float64("target_tps", s.cfg.TargetRate),
		slog.String("gas", s.cfg.Gas.String()),
		slog.String("confirm", s.cfg.Confirm.String()))

	job.Observer.SetState(types.StateRunning)
	go r.collect()
	stopProgress := r.reportProgress()

	r.agg.Start()
	r.started = time.Now()
	if s.cfg.batching() {
		r.dispatchBatches()
	} else {
		r.dispatchUnits()
	}
	r.slots.Wait()

	if s.cfg.Confirm != ConfirmNone {
		job.Observer.SetState(types.StateConfirming)
		r.confirm(r.drain())
	}

	close(r.outcomes)
	<-r.done
	stopProgress()

	stats := r.agg.Finalize()
	metrics.LogSummary(s.logger, stats)

	if err := ctx.Err(); err != nil {
		s.logger.Warn("Run stopped before completion",
			slog.Uint64("submitted", stats.Submitted),
			slog.Int("requested", s.cfg.Count),
			slog.String("err", err.Error()))
		return stats, err
	}
	return stats, nil
}

// setup queries everything the run needs before the first unit.
func (r *run) setup() error {
	gw := r.gateway

	id, err := gw.ChainID(r.ctx)
	if err != nil {
		return &SetupError{Stage: StageChainID, Err: err}
	}
	r.chainID = id
	r.job.Observer.SetChainID(id)

	if err := r.job.Pool.Init(r.ctx, gw); err != nil {
		return &SetupError{Stage: StageNonces, Err: err}
	}

	if dest := r.job.Dest; dest != nil {
		if err := r.checkBridge(dest.Contract); err != nil {
			return &SetupError{Stage: StageBridge, Err: err}
		}
	}

	if r.cfg.Gas.needsChainPrice() {
		base, err := gw.GasPrice(r.ctx)
		if err != nil {
			return &SetupError{Stage: StageGasPrice, Err: err}
		}
		r.base = base
	}

	if r.job.RequireFunds {
		if err := r.checkFunds(); err != nil {
			return &SetupError{Stage: StageFunds, Err: err}
		}
	}

	r.pipeline = pipeline.New(pipeline.Config{
		Signer:        r.signer,
		Gateway:       gw,
		ChainID:       new(big.Int).SetUint64(id),
		Legacy:        r.cfg.Legacy,
		SubmitTimeout: r.cfg.SubmitTimeout,
		Logger:        r.logger,
	})
	r.slots = sender.New(sender.Config{
		Concurrency: r.cfg.Concurrency,
		Logger:      r.logger,
	})
	r.tracker = confirm.New(confirm.Config{
		Gateway:      gw,
		PollInterval: r.cfg.PollInterval,
		MaxPollRate:  r.cfg.MaxPollRate,
		OnResult:     r.onConfirmed,
		Logger:       r.logger,
	})
	return nil
}

func (r *run) checkBridge(contract common.Address) error {
	if contract == (common.Address{}) {
		return txbuilder.ErrNoBridgeContract
	}
	code, err := r.gateway.CodeAt(r.ctx, contract)
	if err != nil {
		return fmt.Errorf("code at %s: %w", contract.Hex(), err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: %s", ErrNoBridgeCode, contract.Hex())
	}
	return nil
}

// checkFunds compares each sender's balance with the sum of its units'
// amounts.
func (r *run) checkFunds() error {
	pool := r.job.Pool
	size := pool.Size()

	need := make([]*big.Int, size)
	for i := range need {
		need[i] = new(big.Int)
	}
	for i := range r.cfg.Count {
		a := r.job.Plan.Assign(pool, i)
		idx := a.Sender % size
		need[idx].Add(need[idx], r.amount(a))
	}

	for i, b := range account.Balances(r.ctx, r.gateway, pool.Senders()) {
		if b.Err != nil {
			return fmt.Errorf("balance of %s: %w", b.Account.Address.Hex(), b.Err)
		}
		if b.Wei.Cmp(need[i]) < 0 {
			return fmt.Errorf("%w: %s holds %s wei, needs %s",
				ErrInsufficientFunds, b.Account.Address.Hex(), b.Wei, need[i])
		}
	}
	return nil
}

func (r *run) amount(a Assignment) *big.Int {
	if a.Amount != nil {
		return a.Amount
	}
	return r.cfg.Amount
}

// dispatchUnits sends units one at a time as slots free up, each waiting
// for a permit when a target rate is set.
func (r *run) dispatchUnits() {
	var limiter *ratelimit.Limiter
	var rate float64

	for i := range r.cfg.Count {
		if want := r.targetRate(); want != rate {
			rate = want
			switch {
			case rate <= 0:
				limiter = nil
			case limiter == nil:
				limiter = ratelimit.New(rate)
			default:
				limiter.SetRate(rate)
			}
		}
		if limiter != nil {
			if err := limiter.Wait(r.ctx); err != nil {
				return
			}
		}
		if !r.dispatch(i, i, 0) {
			return
		}
	}
}

// dispatchBatches sends groups of BatchSize units and waits for each group
// to settle before forming the next.
func (r *run) dispatchBatches() {
	size := r.cfg.BatchSize
	for batch := 0; batch*size < r.cfg.Count; batch++ {
		start := time.Now()
		first := batch * size
		n := min(size, r.cfg.Count-first)

		if batch > 0 && r.cfg.Gas.perBatch() {
			r.refreshBase()
		}

		sent := 0
		for pos := range n {
			if !r.dispatch(first+pos, batch, pos) {
				break
			}
			sent++
		}
		r.slots.Wait()

		r.logger.Debug("Batch settled",
			slog.Int("batch", batch),
			slog.Int("units", sent),
			slog.Duration("elapsed", time.Since(start)))

		if r.cfg.Confirm == ConfirmPerBatch {
			r.confirm(r.drain())
		}
		if sent < n || r.ctx.Err() != nil || first+n >= r.cfg.Count {
			return
		}

		if rate := r.targetRate(); rate > 0 {
			target := time.Duration(float64(n) / rate * float64(time.Second))
			if !r.sleep(target - time.Since(start)) {
				return
			}
		}
		if !r.sleep(r.cfg.BatchPause) {
			return
		}
	}
}

// targetRate is the rate to pace at now; zero or less is unbounded.
func (r *run) targetRate() float64 {
	if p := r.cfg.Pattern; p != nil {
		return p.Rate(time.Since(r.started))
	}
	return r.cfg.TargetRate
}

// dispatch takes a slot, allocates the unit's nonce in line and spawns
// its execution. It returns false when ctx ended before a slot was free.
func (r *run) dispatch(i, batch, pos int) bool {
	if err := r.slots.Acquire(r.ctx); err != nil {
		return false
	}

	a := r.job.Plan.Assign(r.job.Pool, i)
	nonce := r.job.Pool.NextNonce(a.Sender)
	u := Unit{
		Index:    i,
		Batch:    batch,
		Round:    r.job.Round,
		Sender:   r.job.Pool.SenderAt(a.Sender),
		Receiver: a.Receiver,
		Nonce:    nonce.Value(),
		Amount:   r.amount(a),
		GasPrice: r.cfg.Gas.Price(r.base, pos),
		GasLimit: r.cfg.GasLimit,
		Dest:     r.job.Dest,
	}

	r.agg.Dispatched()
	r.slots.Spawn(func() {
		out := r.pipeline.Execute(r.ctx, u, nonce)
		r.agg.Record(out)
		r.outcomes <- out
	})
	return true
}

func (r *run) refreshBase() {
	base, err := r.gateway.GasPrice(r.ctx)
	if err != nil {
		r.logger.Warn("Gas price refresh failed, keeping previous base",
			slog.String("base", r.base.String()),
			slog.String("err", err.Error()))
		return
	}
	r.base = base
}

// sleep waits for d or until ctx ends. It returns false in the latter case.
func (r *run) sleep(d time.Duration) bool {
	if d <= 0 {
		return r.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// collect is the single consumer of unit outcomes. It writes audit
// records for failed units and queues accepted ones for confirmation.
func (r *run) collect() {
	defer close(r.done)

	var pending []confirm.Entry
	for {
		select {
		case out, ok := <-r.outcomes:
			if !ok {
				return
			}
			pending = r.handle(out, pending)
		case reply := <-r.flush:
			reply <- pending
			pending = nil
		}
	}
}

func (r *run) handle(out pipeline.Outcome, pending []confirm.Entry) []confirm.Entry {
	u := out.Unit
	if out.Status != pipeline.StatusSubmitted {
		r.logger.Warn("Unit failed",
			slog.Int("index", u.Index),
			slog.String("from", u.Sender.Address.Hex()),
			slog.Uint64("nonce", u.Nonce),
			slog.String("category", metrics.ErrorCategory(out.Err)),
			slog.Any("err", out.Err))
		r.write(r.record(u, audit.StatusFailed, out.TxHash, out.Err))
		return pending
	}

	if r.cfg.Confirm == ConfirmNone {
		r.write(r.record(u, audit.StatusPending, out.TxHash, nil))
		return pending
	}
	return append(pending, confirm.Entry{Hash: out.TxHash, Unit: u, SubmittedAt: out.At})
}

// drain takes the entries queued so far. Every outcome sent before the
// call is included: outcomes is unbuffered and collect handles one
// message at a time.
func (r *run) drain() []confirm.Entry {
	reply := make(chan []confirm.Entry, 1)
	r.flush <- reply
	return <-reply
}

func (r *run) confirm(entries []confirm.Entry) {
	if len(entries) == 0 {
		return
	}
	r.tracker.Track(r.ctx, entries, r.cfg.confirmTimeout())
}

func (r *run) onConfirmed(res confirm.Result) {
	r.agg.RecordConfirmation(res.Status, res.Latency)
	r.write(r.record(res.Entry.Unit, audit.StatusFor(res.Status), res.Entry.Hash, nil))
}

func (r *run) record(u Unit, status audit.Status, hash common.Hash, err error) audit.Record {
	rec := audit.Record{
		Status:   status,
		Batch:    u.Batch,
		TxHash:   hash,
		SrcChain: r.chainID,
		DstChain: r.chainID,
		From:     u.Sender.Address,
		To:       u.Receiver,
		Amount:   u.Amount,
		Err:      err,
		At:       time.Now(),
	}
	if u.Dest != nil {
		rec.Batch = u.Round
		rec.DstChain = uint64(u.Dest.ChainID)
	}
	return rec
}

func (r *run) write(rec audit.Record) {
	if err := r.audit.Append(rec); err != nil {
		r.logger.Warn("Audit write failed",
			slog.String("tx", rec.TxHash.Hex()),
			slog.String("err", err.Error()))
	}
}

// reportProgress logs a snapshot every ProgressInterval until the returned
// stop function is called.
func (r *run) reportProgress() (stop func()) {
	if r.cfg.ProgressInterval <= 0 {
		return func() {}
	}

	quit := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(r.cfg.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				snap := r.agg.Snapshot()
				r.logger.Info("Progress",
					slog.Uint64("submitted", snap.Counts.Submitted),
					slog.Uint64("accepted", snap.Counts.Accepted),
					slog.Uint64("confirmed", snap.Counts.Confirmed),
					slog.Uint64("failed", snap.Counts.Failed),
					slog.Int64("in_flight", snap.InFlight),
					slog.Float64("tps", snap.TPS))
			}
		}
	}()
	return func() {
		close(quit)
		<-finished
	}
}
