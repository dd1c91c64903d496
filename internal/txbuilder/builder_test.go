package txbuilder

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	testRecipient = common.HexToAddress("0x1234567890123456789012345678901234567890")
	testBridge    = common.HexToAddress("0x00000000000000000000000000000000000b41d6")
)

func baseIntent() Intent {
	return Intent{
		ChainID:  big.NewInt(1337),
		Nonce:    9,
		To:       testRecipient,
		Value:    big.NewInt(1_000_000_000_000_000),
		GasPrice: big.NewInt(1_000_000_000),
		Legacy:   true,
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewDefaultRegistry()

	for _, kind := range []Kind{KindTransfer, KindCrossChain} {
		b, err := r.Get(kind)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", kind, err)
		}
		if b.Kind() != kind {
			t.Errorf("Get(%s).Kind() = %s", kind, b.Kind())
		}
	}

	if _, err := NewRegistry().Get(KindTransfer); err == nil {
		t.Error("expected error for unregistered kind")
	}
}

func TestTransferBuilder_Legacy(t *testing.T) {
	tx, err := NewDefaultRegistry().Build(baseIntent())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if tx.Type() != types.LegacyTxType {
		t.Errorf("Type() = %d, want legacy", tx.Type())
	}
	if tx.Gas() != TransferGasLimit {
		t.Errorf("Gas() = %d, want %d", tx.Gas(), TransferGasLimit)
	}
	if tx.Nonce() != 9 {
		t.Errorf("Nonce() = %d, want 9", tx.Nonce())
	}
	if *tx.To() != testRecipient {
		t.Errorf("To() = %s, want %s", tx.To(), testRecipient)
	}
	if tx.GasPrice().Int64() != 1_000_000_000 {
		t.Errorf("GasPrice() = %s, want 1 gwei", tx.GasPrice())
	}
	if len(tx.Data()) != 0 {
		t.Errorf("Data() = %x, want empty", tx.Data())
	}
}

func TestTransferBuilder_DynamicFee(t *testing.T) {
	in := baseIntent()
	in.Legacy = false
	in.GasTip = big.NewInt(5_000_000_000) // above fee cap, gets clamped
	in.GasLimit = 30000

	tx, err := NewTransferBuilder().Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if tx.Type() != types.DynamicFeeTxType {
		t.Errorf("Type() = %d, want dynamic fee", tx.Type())
	}
	if tx.GasTipCap().Cmp(tx.GasFeeCap()) != 0 {
		t.Errorf("GasTipCap() = %s, want clamped to fee cap %s", tx.GasTipCap(), tx.GasFeeCap())
	}
	if tx.Gas() != 30000 {
		t.Errorf("Gas() = %d, want override 30000", tx.Gas())
	}
}

func TestTransferBuilder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Intent)
		wantErr error
	}{
		{"nil chain id", func(in *Intent) { in.ChainID = nil }, ErrNoChainID},
		{"zero chain id", func(in *Intent) { in.ChainID = big.NewInt(0) }, ErrNoChainID},
		{"nil gas price", func(in *Intent) { in.GasPrice = nil }, ErrNoGasPrice},
		{"zero recipient", func(in *Intent) { in.To = common.Address{} }, ErrNoRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseIntent()
			tt.mutate(&in)
			_, err := NewTransferBuilder().Build(in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBridgeBuilder(t *testing.T) {
	in := baseIntent()
	in.GasPrice = big.NewInt(0)
	in.Dest = &CrossChain{ChainID: 20002, Contract: testBridge}

	if in.Kind() != KindCrossChain {
		t.Fatalf("Kind() = %s, want cross-chain", in.Kind())
	}

	tx, err := NewDefaultRegistry().Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if *tx.To() != testBridge {
		t.Errorf("To() = %s, want bridge %s", tx.To(), testBridge)
	}
	if tx.Gas() != BridgeGasLimit {
		t.Errorf("Gas() = %d, want %d", tx.Gas(), BridgeGasLimit)
	}
	if tx.Value().Cmp(in.Value) != 0 {
		t.Errorf("Value() = %s, want %s", tx.Value(), in.Value)
	}

	data := tx.Data()
	if len(data) != 4+32+32 {
		t.Fatalf("len(Data()) = %d, want 68", len(data))
	}
	wantSelector := crypto.Keccak256([]byte("sendETHToDestinationChain(uint32,address)"))[:4]
	if !bytes.Equal(data[:4], wantSelector) {
		t.Errorf("selector = %x, want %x", data[:4], wantSelector)
	}
	if got := new(big.Int).SetBytes(data[4:36]).Uint64(); got != 20002 {
		t.Errorf("dstChainId arg = %d, want 20002", got)
	}
	if got := common.BytesToAddress(data[36:68]); got != testRecipient {
		t.Errorf("receiver arg = %s, want %s", got, testRecipient)
	}
}

func TestBridgeBuilder_MissingContract(t *testing.T) {
	in := baseIntent()
	in.Dest = &CrossChain{ChainID: 2}
	if _, err := NewBridgeBuilder().Build(in); !errors.Is(err, ErrNoBridgeContract) {
		t.Errorf("Build() error = %v, want ErrNoBridgeContract", err)
	}
}
