package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/gateway-fm/txdispatch/internal/rpc"
)

// RPCGateway implements Gateway and BatchReceipts on top of an rpc.Client.
type RPCGateway struct {
	client rpc.Client
}

var (
	_ Gateway       = (*RPCGateway)(nil)
	_ BatchReceipts = (*RPCGateway)(nil)
)

// NewRPCGateway wraps client.
func NewRPCGateway(client rpc.Client) *RPCGateway {
	return &RPCGateway{client: client}
}

func (g *RPCGateway) ChainID(ctx context.Context) (uint64, error) {
	id, err := g.client.ChainID(ctx)
	return id, classify("chain_id", err)
}

// SequenceOf returns the pending nonce so in-mempool transactions of a
// previous run are not reused.
func (g *RPCGateway) SequenceOf(ctx context.Context, addr common.Address) (uint64, error) {
	n, err := g.client.GetNonce(ctx, addr.Hex())
	return n, classify("sequence_of", err)
}

func (g *RPCGateway) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := g.client.GetBalance(ctx, addr.Hex())
	if err != nil {
		return nil, classify("balance_of", err)
	}
	return bal, nil
}

func (g *RPCGateway) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := g.client.GetGasPrice(ctx)
	if err != nil {
		return nil, classify("gas_price", err)
	}
	return price, nil
}

func (g *RPCGateway) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := g.client.GetCode(ctx, addr.Hex())
	if err != nil {
		return nil, classify("code_at", err)
	}
	if code == "" || code == "0x" {
		return nil, nil
	}
	b, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("decode code: %w", err)
	}
	return b, nil
}

// Submit sends tx.Raw. The hash is computed locally at signing time, so a
// node that answers "already known" is treated as accepted.
func (g *RPCGateway) Submit(ctx context.Context, tx *SignedTx) (common.Hash, error) {
	err := classify("submit", g.client.SendRawTransaction(ctx, tx.Raw))
	if err != nil && ReasonOf(err) != ReasonAlreadyKnown {
		return common.Hash{}, err
	}
	return tx.Hash, nil
}

func (g *RPCGateway) ReceiptOf(ctx context.Context, hash common.Hash) (*Receipt, error) {
	r, err := g.client.GetTransactionReceipt(ctx, hash.Hex())
	if err != nil {
		return nil, classify("receipt_of", err)
	}
	return convertReceipt(hash, r), nil
}

func (g *RPCGateway) ReceiptsOf(ctx context.Context, hashes []common.Hash) ([]*Receipt, error) {
	strs := make([]string, len(hashes))
	for i, h := range hashes {
		strs[i] = h.Hex()
	}
	raw, err := g.client.GetTransactionReceiptsBatch(ctx, strs)
	if err != nil {
		return nil, classify("receipts_of", err)
	}
	out := make([]*Receipt, len(hashes))
	for i := range hashes {
		if i < len(raw) {
			out[i] = convertReceipt(hashes[i], raw[i])
		}
	}
	return out, nil
}

func convertReceipt(hash common.Hash, r *rpc.TransactionReceipt) *Receipt {
	if r == nil {
		return nil
	}
	// Some nodes return a receipt stub before the block is sealed.
	if r.BlockNumber == 0 && (r.BlockHash == "" || strings.Trim(r.BlockHash, "0x") == "") {
		return nil
	}
	return &Receipt{
		TxHash:      hash,
		BlockHash:   common.HexToHash(r.BlockHash),
		BlockNumber: r.BlockNumber,
		Status:      r.Status,
		GasUsed:     r.GasUsed,
	}
}
