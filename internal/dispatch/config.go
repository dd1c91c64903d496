package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/gateway-fm/txdispatch/internal/pattern"
)

const (
	// DefaultConfirmTimeout bounds confirmation when Config.ConfirmTimeout
	// is not set.
	DefaultConfirmTimeout = 60 * time.Second
)

// ConfirmMode selects when accepted transactions are tracked to inclusion.
type ConfirmMode int

const (
	// ConfirmNone skips tracking; accepted units stay pending.
	ConfirmNone ConfirmMode = iota
	// ConfirmAtEnd tracks every accepted unit once dispatch is done.
	ConfirmAtEnd
	// ConfirmPerBatch tracks each batch before the next one is formed.
	ConfirmPerBatch
)

func (m ConfirmMode) String() string {
	switch m {
	case ConfirmNone:
		return "none"
	case ConfirmAtEnd:
		return "end"
	case ConfirmPerBatch:
		return "batch"
	default:
		return fmt.Sprintf("confirm(%d)", int(m))
	}
}

// ParseConfirmMode parses "none", "end" or "batch".
func ParseConfirmMode(s string) (ConfirmMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return ConfirmNone, nil
	case "end", "at-end":
		return ConfirmAtEnd, nil
	case "batch", "per-batch":
		return ConfirmPerBatch, nil
	default:
		return ConfirmNone, fmt.Errorf("unknown confirm mode %q", s)
	}
}

// Config controls one dispatch run.
type Config struct {
	Count       int     // units to dispatch
	Concurrency int     // max units in sign+submit at once
	BatchSize   int     // >1 enables batching
	TargetRate  float64 // units per second, 0 is unbounded

	// Pattern varies the target rate over the run. It overrides TargetRate.
	Pattern pattern.Pattern

	Gas      GasPolicy
	GasLimit uint64   // 0 uses the builder default
	Amount   *big.Int // per unit unless the plan overrides it

	Confirm        ConfirmMode
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	MaxPollRate    float64

	// BatchPause is slept after every batch except the last.
	BatchPause    time.Duration
	Legacy        bool
	SubmitTimeout time.Duration

	// ProgressInterval logs a snapshot periodically while dispatching.
	ProgressInterval time.Duration

	Logger *slog.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Count < 0 {
		errs = append(errs, fmt.Errorf("count must be >= 0, got %d", c.Count))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch size must be >= 0, got %d", c.BatchSize))
	}
	if c.TargetRate < 0 {
		errs = append(errs, fmt.Errorf("target rate must be >= 0, got %v", c.TargetRate))
	}
	if c.Amount == nil || c.Amount.Sign() < 0 {
		errs = append(errs, errors.New("amount must be set and non-negative"))
	}
	if c.Confirm < ConfirmNone || c.Confirm > ConfirmPerBatch {
		errs = append(errs, fmt.Errorf("invalid confirm mode %d", c.Confirm))
	}
	if err := c.Gas.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) batching() bool {
	return c.BatchSize > 1
}

func (c *Config) confirmTimeout() time.Duration {
	if c.ConfirmTimeout <= 0 {
		return DefaultConfirmTimeout
	}
	return c.ConfirmTimeout
}

// Summary returns the config fields copied into the run report.
func (c *Config) Summary() map[string]any {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	m := map[string]any{
		"count":           c.Count,
		"concurrency":     c.Concurrency,
		"batch_size":      c.BatchSize,
		"target_tps":      c.TargetRate,
		"gas_policy":      c.Gas.String(),
		"amount_wei":      amount,
		"confirm":         c.Confirm.String(),
		"confirm_timeout": c.confirmTimeout().String(),
	}
	if c.Pattern != nil {
		m["pattern"] = c.Pattern.Name()
	}
	return m
}
