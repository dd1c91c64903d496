package txbuilder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BridgeGasLimit is the gas limit used for bridge deposits.
const BridgeGasLimit = 50000

// BridgeMethod is the payable bridge entry point.
const BridgeMethod = "sendETHToDestinationChain"

const bridgeABIJSON = `[{
	"type": "function",
	"name": "sendETHToDestinationChain",
	"stateMutability": "payable",
	"inputs": [
		{"name": "dstChainId", "type": "uint32"},
		{"name": "receiver", "type": "address"}
	],
	"outputs": []
}]`

var bridgeABI = mustParseABI(bridgeABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("parse bridge abi: %v", err))
	}
	return parsed
}

// ErrNoBridgeContract is returned for a cross-chain intent without a contract.
var ErrNoBridgeContract = errors.New("bridge contract must be non-zero")

// PackBridgeCall returns the calldata for sendETHToDestinationChain(dst, receiver).
func PackBridgeCall(dstChainID uint32, receiver common.Address) ([]byte, error) {
	return bridgeABI.Pack(BridgeMethod, dstChainID, receiver)
}

// BridgeBuilder builds payable bridge calls that move in.Value to in.To on
// the destination chain.
type BridgeBuilder struct{}

// NewBridgeBuilder creates a new bridge-call builder.
func NewBridgeBuilder() *BridgeBuilder {
	return &BridgeBuilder{}
}

func (b *BridgeBuilder) Kind() Kind { return KindCrossChain }

func (b *BridgeBuilder) GasLimit() uint64 { return BridgeGasLimit }

// Build creates the bridge call. The transaction goes to the bridge contract
// and the final receiver is encoded in calldata.
func (b *BridgeBuilder) Build(in Intent) (*types.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Dest == nil || in.Dest.Contract == (common.Address{}) {
		return nil, ErrNoBridgeContract
	}
	data, err := PackBridgeCall(in.Dest.ChainID, in.To)
	if err != nil {
		return nil, fmt.Errorf("pack bridge call: %w", err)
	}
	return newTx(in, in.Dest.Contract, in.Value, gasLimitOr(in, b.GasLimit()), data), nil
}
