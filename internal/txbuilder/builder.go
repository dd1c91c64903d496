// Package txbuilder turns a transfer intent into an unsigned transaction.
package txbuilder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind identifies what a transaction does.
type Kind string

const (
	KindTransfer   Kind = "transfer"
	KindCrossChain Kind = "cross-chain"
)

var (
	ErrNoChainID   = errors.New("chain id must be non-nil and non-zero")
	ErrNoGasPrice  = errors.New("gas price must be non-nil")
	ErrNoRecipient = errors.New("recipient must be non-zero")
)

// CrossChain describes the bridge call destination of a cross-chain unit.
type CrossChain struct {
	ChainID  uint32
	Contract common.Address
}

// Intent is everything needed to build one transaction.
type Intent struct {
	ChainID  *big.Int
	Nonce    uint64
	To       common.Address
	Value    *big.Int
	GasPrice *big.Int // legacy gas price, or fee cap for dynamic-fee txs
	GasTip   *big.Int // dynamic-fee tip; ignored for legacy
	GasLimit uint64   // 0 uses the builder default
	Dest     *CrossChain
	Legacy   bool
}

// Kind returns KindCrossChain when the intent carries a bridge destination.
func (in Intent) Kind() Kind {
	if in.Dest != nil {
		return KindCrossChain
	}
	return KindTransfer
}

func (in Intent) validate() error {
	if in.ChainID == nil || in.ChainID.Sign() == 0 {
		return ErrNoChainID
	}
	if in.GasPrice == nil {
		return ErrNoGasPrice
	}
	if in.To == (common.Address{}) {
		return ErrNoRecipient
	}
	return nil
}

// Builder builds transactions of one Kind.
type Builder interface {
	// Kind returns the transaction kind this builder handles.
	Kind() Kind

	// GasLimit returns the default gas limit for this kind.
	GasLimit() uint64

	// Build creates an unsigned transaction.
	Build(in Intent) (*types.Transaction, error)
}

// Registry manages builder lookup by kind.
type Registry struct {
	builders map[Kind]Builder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[Kind]Builder),
	}
}

// Register adds a builder to the registry, replacing any with the same kind.
func (r *Registry) Register(b Builder) {
	r.builders[b.Kind()] = b
}

// Get returns the builder for kind.
func (r *Registry) Get(kind Kind) (Builder, error) {
	b, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown transaction kind: %s", kind)
	}
	return b, nil
}

// Build dispatches in to the builder for its kind.
func (r *Registry) Build(in Intent) (*types.Transaction, error) {
	b, err := r.Get(in.Kind())
	if err != nil {
		return nil, err
	}
	return b.Build(in)
}

// NewDefaultRegistry registers the value-transfer and bridge-call builders.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewTransferBuilder())
	r.Register(NewBridgeBuilder())
	return r
}

func gasLimitOr(in Intent, def uint64) uint64 {
	if in.GasLimit > 0 {
		return in.GasLimit
	}
	return def
}
