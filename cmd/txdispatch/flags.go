package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/gateway-fm/txdispatch/internal/dispatch"
)

// runFlags are the scheduler knobs shared by the dispatching commands.
// Each command registers them with its own defaults.
type runFlags struct {
	node           string
	amount         string
	count          int
	concurrency    int
	batchSize      int
	tps            float64
	gas            string
	gasLimit       uint64
	confirm        string
	confirmTimeout time.Duration
	batchPause     time.Duration
	progress       time.Duration
}

func (f *runFlags) register(fs *pflag.FlagSet, d runFlags) {
	fs.StringVar(&f.node, "node", d.node, "node name or 1-based index")
	fs.StringVar(&f.amount, "amount", d.amount, "value per transaction: wei, or with an eth/gwei suffix")
	fs.IntVar(&f.count, "count", d.count, "number of transactions")
	fs.IntVar(&f.concurrency, "concurrency", d.concurrency, "max transactions being signed and submitted at once")
	fs.IntVar(&f.batchSize, "batch-size", d.batchSize, "transactions per batch (<= 1 disables batching)")
	fs.Float64Var(&f.tps, "tps", d.tps, "target transactions per second (0 is unbounded)")
	fs.StringVar(&f.gas, "gas", d.gas, "gas price policy: escalating, zero, fixed or fixed:<wei>")
	fs.Uint64Var(&f.gasLimit, "gas-limit", d.gasLimit, "gas limit per transaction (0 uses the transaction kind default)")
	fs.StringVar(&f.confirm, "confirm", d.confirm, "confirmation mode: none, end or batch")
	fs.DurationVar(&f.confirmTimeout, "confirm-timeout", d.confirmTimeout, "max wait for a receipt")
	fs.DurationVar(&f.batchPause, "batch-pause", d.batchPause, "pause between batches")
	fs.DurationVar(&f.progress, "progress", d.progress, "progress log interval (0 disables)")
}

// config builds the scheduler configuration from the flags.
func (f *runFlags) config() (dispatch.Config, error) {
	amount, err := parseAmount(f.amount)
	if err != nil {
		return dispatch.Config{}, fmt.Errorf("--amount: %w", err)
	}
	gas, err := dispatch.ParseGasPolicy(f.gas)
	if err != nil {
		return dispatch.Config{}, fmt.Errorf("--gas: %w", err)
	}
	confirm, err := dispatch.ParseConfirmMode(f.confirm)
	if err != nil {
		return dispatch.Config{}, fmt.Errorf("--confirm: %w", err)
	}
	return dispatch.Config{
		Count:            f.count,
		Concurrency:      f.concurrency,
		BatchSize:        f.batchSize,
		TargetRate:       f.tps,
		Gas:              gas,
		GasLimit:         f.gasLimit,
		Amount:           amount,
		Confirm:          confirm,
		ConfirmTimeout:   f.confirmTimeout,
		BatchPause:       f.batchPause,
		ProgressInterval: f.progress,
	}, nil
}
