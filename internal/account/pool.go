package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoSenders is returned when no sender is usable for a run.
	ErrNoSenders = errors.New("no usable senders")
	// ErrNoReceivers is returned when the receiver pool is empty.
	ErrNoReceivers = errors.New("no receivers")
	// ErrNotInitialized is returned when the pool is used before Init.
	ErrNotInitialized = errors.New("account pool not initialized")
)

// DefaultInitConcurrency bounds concurrent nonce queries during Init.
const DefaultInitConcurrency = 16

// SequenceSource reports the next usable nonce of an address.
type SequenceSource interface {
	SequenceOf(ctx context.Context, addr common.Address) (uint64, error)
}

// Exclusion records a sender that was dropped during Init.
type Exclusion struct {
	Account *Account
	Err     error
}

type member struct {
	account *Account
	seq     *sequence
}

// Pool owns the senders and receivers of one run. After Init it hands out
// nonces per sender; nonce allocation for one sender is serialized while
// different senders proceed independently.
type Pool struct {
	senders   []*Account
	receivers []common.Address

	active   []member
	excluded []Exclusion

	initConcurrency int
	logger          *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInitConcurrency bounds the nonce queries Init runs at once.
func WithInitConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.initConcurrency = n
		}
	}
}

// NewPool creates a pool over senders and receivers.
func NewPool(senders []*Account, receivers []common.Address, opts ...Option) *Pool {
	p := &Pool{
		senders:         senders,
		receivers:       receivers,
		initConcurrency: DefaultInitConcurrency,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init seeds every sender's counter from src. Senders whose query fails are
// excluded with a warning and the pool continues with the rest. It returns
// ErrNoSenders when nothing is left.
func (p *Pool) Init(ctx context.Context, src SequenceSource) error {
	if len(p.receivers) == 0 {
		return ErrNoReceivers
	}
	if len(p.senders) == 0 {
		return ErrNoSenders
	}

	p.logger.Info("Initializing sender nonces", slog.Int("count", len(p.senders)))

	starts := make([]uint64, len(p.senders))
	errs := make([]error, len(p.senders))

	var g errgroup.Group
	g.SetLimit(p.initConcurrency)
	for i, acc := range p.senders {
		g.Go(func() error {
			nonce, err := src.SequenceOf(ctx, acc.Address)
			if err != nil {
				errs[i] = err
				return nil
			}
			starts[i] = nonce
			return nil
		})
	}
	_ = g.Wait()

	p.active = p.active[:0]
	p.excluded = p.excluded[:0]
	for i, acc := range p.senders {
		if errs[i] != nil {
			p.logger.Warn("Excluding sender",
				slog.String("address", acc.Address.Hex()),
				slog.String("err", errs[i].Error()))
			p.excluded = append(p.excluded, Exclusion{Account: acc, Err: errs[i]})
			continue
		}
		p.active = append(p.active, member{account: acc, seq: newSequence(starts[i])})
	}

	if len(p.active) == 0 {
		return fmt.Errorf("%w: all %d nonce queries failed: %v", ErrNoSenders, len(p.senders), errs[0])
	}

	p.logger.Info("Sender nonces initialized",
		slog.Int("active", len(p.active)),
		slog.Int("excluded", len(p.excluded)))
	return nil
}

// Size returns the number of active senders, or 0 before Init.
func (p *Pool) Size() int {
	return len(p.active)
}

// Receivers returns the number of receivers.
func (p *Pool) Receivers() int {
	return len(p.receivers)
}

// SenderAt returns the active sender at i modulo Size.
func (p *Pool) SenderAt(i int) *Account {
	return p.active[mod(i, len(p.active))].account
}

// ReceiverAt returns the receiver at i modulo the receiver count.
func (p *Pool) ReceiverAt(i int) common.Address {
	return p.receivers[mod(i, len(p.receivers))]
}

// NextNonce reserves the next nonce of the active sender at i modulo Size.
func (p *Pool) NextNonce(i int) *Nonce {
	return p.active[mod(i, len(p.active))].seq.reserve()
}

// PeekNonce returns the next nonce NextNonce would hand out for sender i.
func (p *Pool) PeekNonce(i int) uint64 {
	return p.active[mod(i, len(p.active))].seq.peek()
}

// Senders returns the active senders in order.
func (p *Pool) Senders() []*Account {
	out := make([]*Account, len(p.active))
	for i, m := range p.active {
		out[i] = m.account
	}
	return out
}

// Excluded returns the senders dropped during Init.
func (p *Pool) Excluded() []Exclusion {
	return append([]Exclusion(nil), p.excluded...)
}

func mod(i, n int) int {
	r := i % n
	if r < 0 {
		r += n
	}
	return r
}
