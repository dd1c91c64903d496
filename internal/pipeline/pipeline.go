// Package pipeline runs one transfer unit through sign, ordered submit and
// outcome reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txdispatch/internal/account"
	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/signer"
	"github.com/gateway-fm/txdispatch/internal/txbuilder"
)

// ErrDeadlineExceeded marks a unit whose result arrived after the run
// deadline, or which was still waiting for its turn when the deadline hit.
var ErrDeadlineExceeded = errors.New("run deadline exceeded")

// DefaultSubmitTimeout bounds a single submit call.
const DefaultSubmitTimeout = 30 * time.Second

// Status is the lifecycle state of a unit.
type Status int

const (
	StatusSubmitted Status = iota
	StatusFailed
	StatusConfirmed
	StatusReverted
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusFailed:
		return "failed"
	case StatusConfirmed:
		return "confirmed"
	case StatusReverted:
		return "reverted"
	case StatusTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Unit is one transfer to perform. It is immutable once created.
type Unit struct {
	Index    int
	Batch    int
	Round    int
	Sender   *account.Account
	Receiver common.Address
	Nonce    uint64
	Amount   *big.Int
	GasPrice *big.Int
	GasLimit uint64
	Dest     *txbuilder.CrossChain
}

// Outcome is the result of executing a unit.
type Outcome struct {
	Unit    Unit
	Status  Status
	TxHash  common.Hash
	Block   uint64
	Err     error
	Latency time.Duration
	At      time.Time
}

// Pipeline executes units against one chain.
type Pipeline struct {
	signer        signer.Gateway
	gateway       chain.Gateway
	chainID       *big.Int
	legacy        bool
	submitTimeout time.Duration
	logger        *slog.Logger
}

// Config for creating a Pipeline.
type Config struct {
	Signer        signer.Gateway
	Gateway       chain.Gateway
	ChainID       *big.Int
	Legacy        bool          // legacy (type 0) transactions instead of EIP-1559
	SubmitTimeout time.Duration // default DefaultSubmitTimeout
	Logger        *slog.Logger
}

// New creates a new Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	s := cfg.Signer
	if s == nil {
		s = signer.New(nil)
	}

	return &Pipeline{
		signer:        s,
		gateway:       cfg.Gateway,
		chainID:       cfg.ChainID,
		legacy:        cfg.Legacy,
		submitTimeout: timeout,
		logger:        logger,
	}
}

// Intent returns the transaction intent for u.
func (p *Pipeline) Intent(u Unit) txbuilder.Intent {
	return txbuilder.Intent{
		ChainID:  p.chainID,
		Nonce:    u.Nonce,
		To:       u.Receiver,
		Value:    u.Amount,
		GasPrice: u.GasPrice,
		GasLimit: u.GasLimit,
		Dest:     u.Dest,
		Legacy:   p.legacy,
	}
}

// Execute signs u, waits for its nonce turn and submits it. The nonce is
// released on every path, so later nonces of the same sender never stall
// behind a failed one.
//
// The submit call itself is detached from ctx: once started it runs to
// completion or its own timeout. If ctx ended meanwhile the result is
// discarded and the unit reported as failed with ErrDeadlineExceeded.
func (p *Pipeline) Execute(ctx context.Context, u Unit, n *account.Nonce) Outcome {
	start := time.Now()
	defer n.Release()

	out := Outcome{Unit: u, Status: StatusFailed}
	finish := func() Outcome {
		out.At = time.Now()
		out.Latency = out.At.Sub(start)
		return out
	}

	signed, err := p.signer.Sign(p.Intent(u), u.Sender.PrivateKey)
	if err != nil {
		out.Err = err
		return finish()
	}
	out.TxHash = signed.Hash

	if err := n.AwaitTurn(ctx); err != nil {
		out.Err = fmt.Errorf("%w: waiting for nonce %d: %v", ErrDeadlineExceeded, u.Nonce, err)
		return finish()
	}

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.submitTimeout)
	hash, err := p.gateway.Submit(submitCtx, signed)
	cancel()

	if ctx.Err() != nil {
		out.Err = fmt.Errorf("%w: submit of nonce %d returned after deadline", ErrDeadlineExceeded, u.Nonce)
		return finish()
	}
	if err != nil {
		p.logger.Debug("submit failed",
			slog.String("from", u.Sender.Address.Hex()),
			slog.Uint64("nonce", u.Nonce),
			slog.String("err", err.Error()))
		out.Err = err
		return finish()
	}

	out.Status = StatusSubmitted
	out.TxHash = hash
	return finish()
}
