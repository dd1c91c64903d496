package txbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// newTx creates a LegacyTx or a DynamicFeeTx depending on in.Legacy.
// For dynamic-fee transactions GasPrice is the fee cap and GasTip the tip;
// a nil tip pays the whole fee cap as tip.
func newTx(in Intent, to common.Address, value *big.Int, gasLimit uint64, data []byte) *types.Transaction {
	if value == nil {
		value = new(big.Int)
	}
	if in.Legacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    in.Nonce,
			GasPrice: in.GasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}
	tip := in.GasTip
	if tip == nil || tip.Cmp(in.GasPrice) > 0 {
		tip = in.GasPrice
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   in.ChainID,
		Nonce:     in.Nonce,
		GasTipCap: tip,
		GasFeeCap: in.GasPrice,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
}
