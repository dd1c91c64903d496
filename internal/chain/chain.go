// Package chain defines the capability the dispatcher needs from a blockchain
// endpoint and adapts the JSON-RPC client to it.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SignedTx is a signed, submittable transaction.
type SignedTx struct {
	Hash  common.Hash
	Nonce uint64
	Raw   []byte
}

// Receipt is the inclusion record of a transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockHash   common.Hash
	BlockNumber uint64
	Status      uint64
	GasUsed     uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// Gateway submits transactions to one chain and queries its state.
// Implementations must be safe for concurrent use.
type Gateway interface {
	ChainID(ctx context.Context) (uint64, error)
	SequenceOf(ctx context.Context, addr common.Address) (uint64, error)
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)

	// Submit hands a signed transaction to the node and returns its hash.
	Submit(ctx context.Context, tx *SignedTx) (common.Hash, error)

	// ReceiptOf polls for a receipt. A nil receipt means still pending.
	ReceiptOf(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// BatchReceipts is implemented by gateways that can fetch many receipts in
// one round trip. The returned slice is index-aligned with hashes.
type BatchReceipts interface {
	ReceiptsOf(ctx context.Context, hashes []common.Hash) ([]*Receipt, error)
}
