package account

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// KeyPair is one account entry of an accounts file.
type KeyPair struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// File is the on-disk accounts format shared by every command.
type File struct {
	Senders   []KeyPair `json:"senders"`
	Receivers []KeyPair `json:"receivers"`
}

// NewFile creates a File from accounts.
func NewFile(senders, receivers []*Account) *File {
	return &File{
		Senders:   toKeyPairs(senders),
		Receivers: toKeyPairs(receivers),
	}
}

func toKeyPairs(accounts []*Account) []KeyPair {
	out := make([]KeyPair, len(accounts))
	for i, a := range accounts {
		out[i] = KeyPair{
			Address:    strings.ToLower(a.Address.Hex()),
			PrivateKey: a.KeyHex(),
		}
	}
	return out
}

// LoadFile reads an accounts file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the file with owner-only permissions.
func (f *File) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}
	return nil
}

// SenderAccounts parses the sender keys.
func (f *File) SenderAccounts() ([]*Account, error) {
	return parseKeyPairs(f.Senders, "sender")
}

// ReceiverAccounts parses the receiver keys.
func (f *File) ReceiverAccounts() ([]*Account, error) {
	return parseKeyPairs(f.Receivers, "receiver")
}

// ReceiverAddresses returns the receiver addresses without parsing keys,
// so files carrying only addresses are accepted.
func (f *File) ReceiverAddresses() ([]common.Address, error) {
	out := make([]common.Address, len(f.Receivers))
	for i, kp := range f.Receivers {
		if !common.IsHexAddress(kp.Address) {
			return nil, fmt.Errorf("receiver %d: invalid address %q", i, kp.Address)
		}
		out[i] = common.HexToAddress(kp.Address)
	}
	return out, nil
}

// All returns senders followed by receivers.
func (f *File) All() ([]*Account, error) {
	senders, err := f.SenderAccounts()
	if err != nil {
		return nil, err
	}
	receivers, err := f.ReceiverAccounts()
	if err != nil {
		return nil, err
	}
	return append(senders, receivers...), nil
}

func parseKeyPairs(pairs []KeyPair, role string) ([]*Account, error) {
	out := make([]*Account, 0, len(pairs))
	for i, kp := range pairs {
		a, err := NewAccountFromHex(kp.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", role, i, err)
		}
		if kp.Address != "" && !strings.EqualFold(kp.Address, a.Address.Hex()) {
			return nil, fmt.Errorf("%s %d: address %s does not match key (%s)", role, i, kp.Address, a.Address.Hex())
		}
		out = append(out, a)
	}
	return out, nil
}

// Split partitions f into n files. Senders and receivers are each divided
// into n contiguous chunks of equal size; a remainder is dropped.
func (f *File) Split(n int) ([]*File, error) {
	if n <= 0 {
		return nil, fmt.Errorf("node count must be positive, got %d", n)
	}
	perS, perR := len(f.Senders)/n, len(f.Receivers)/n
	if perS == 0 {
		return nil, fmt.Errorf("%d senders cannot be split across %d nodes", len(f.Senders), n)
	}
	out := make([]*File, n)
	for i := range out {
		out[i] = &File{
			Senders:   append([]KeyPair(nil), f.Senders[i*perS:(i+1)*perS]...),
			Receivers: append([]KeyPair(nil), f.Receivers[i*perR:(i+1)*perR]...),
		}
	}
	return out, nil
}

// NodeFileName returns the per-node file name for node (1-based).
func NodeFileName(node int) string {
	return fmt.Sprintf("node-%d.json", node)
}

// SplitFile splits f into n parts and writes them to dir as node-<i>.json.
// It returns the written paths.
func SplitFile(f *File, dir string, n int) ([]string, error) {
	parts, err := f.Split(n)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(parts))
	for i, part := range parts {
		paths[i] = filepath.Join(dir, NodeFileName(i+1))
		if err := part.Save(paths[i]); err != nil {
			return nil, fmt.Errorf("node %d: %w", i+1, err)
		}
	}
	return paths, nil
}
