package account

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// GenesisBalance is the balance allocated to each account: 100000 ETH.
var GenesisBalance = hexutil.MustDecodeBig("0x152d02c7e14af6800000")

// PatchGenesis allocates balance to every account in the genesis document
// read from src and writes the result to dst. Existing allocations and all
// other top-level fields are kept.
func PatchGenesis(src, dst string, accounts []*Account, balance *big.Int) (int, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("read genesis: %w", err)
	}
	out, err := patchGenesis(data, accounts, balance)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return 0, fmt.Errorf("write genesis: %w", err)
	}
	return len(accounts), nil
}

func patchGenesis(data []byte, accounts []*Account, balance *big.Int) ([]byte, error) {
	if balance == nil {
		balance = GenesisBalance
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}

	alloc := types.GenesisAlloc{}
	if raw, ok := doc["alloc"]; ok {
		if err := json.Unmarshal(raw, &alloc); err != nil {
			return nil, fmt.Errorf("parse genesis alloc: %w", err)
		}
	}
	for _, a := range accounts {
		entry := alloc[a.Address]
		entry.Balance = new(big.Int).Set(balance)
		alloc[a.Address] = entry
	}

	raw, err := json.Marshal(alloc)
	if err != nil {
		return nil, fmt.Errorf("encode genesis alloc: %w", err)
	}
	doc["alloc"] = raw

	return json.MarshalIndent(doc, "", "  ")
}
