package txbuilder

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// TransferGasLimit is the intrinsic gas of a plain value transfer.
const TransferGasLimit = 21000

// TransferBuilder builds plain value transfers.
type TransferBuilder struct{}

// NewTransferBuilder creates a new transfer builder.
func NewTransferBuilder() *TransferBuilder {
	return &TransferBuilder{}
}

func (b *TransferBuilder) Kind() Kind { return KindTransfer }

func (b *TransferBuilder) GasLimit() uint64 { return TransferGasLimit }

// Build creates a transfer of in.Value to in.To.
func (b *TransferBuilder) Build(in Intent) (*types.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return newTx(in, in.To, in.Value, gasLimitOr(in, b.GasLimit()), nil), nil
}
