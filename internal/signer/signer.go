// Package signer produces signed, submittable transactions from intents.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/txbuilder"
)

// ErrNoKey is returned when signing without key material.
var ErrNoKey = errors.New("private key is nil")

// SigningError wraps any failure to build, sign or encode a transaction.
type SigningError struct {
	Stage string // "build", "sign" or "encode"
	Err   error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// Gateway signs intents. Implementations hold no per-call state and are
// safe for concurrent use.
type Gateway interface {
	Sign(in txbuilder.Intent, key *ecdsa.PrivateKey) (*chain.SignedTx, error)
}

// Signer implements Gateway with go-ethereum's latest signer for the
// intent's chain id.
type Signer struct {
	builders *txbuilder.Registry
}

var _ Gateway = (*Signer)(nil)

// New creates a Signer. A nil registry uses txbuilder.NewDefaultRegistry.
func New(builders *txbuilder.Registry) *Signer {
	if builders == nil {
		builders = txbuilder.NewDefaultRegistry()
	}
	return &Signer{builders: builders}
}

// Sign builds, signs and encodes in.
func (s *Signer) Sign(in txbuilder.Intent, key *ecdsa.PrivateKey) (*chain.SignedTx, error) {
	if key == nil {
		return nil, &SigningError{Stage: "sign", Err: ErrNoKey}
	}

	tx, err := s.builders.Build(in)
	if err != nil {
		return nil, &SigningError{Stage: "build", Err: err}
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(in.ChainID), key)
	if err != nil {
		return nil, &SigningError{Stage: "sign", Err: err}
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, &SigningError{Stage: "encode", Err: err}
	}

	return &chain.SignedTx{
		Hash:  signed.Hash(),
		Nonce: signed.Nonce(),
		Raw:   raw,
	}, nil
}
