package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewAccountFromHex(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"plain", TestKeys[0], "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", false},
		{"prefixed", "0x" + TestKeys[1], "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", false},
		{"garbage", "zz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := NewAccountFromHex(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAccountFromHex() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && acc.Address.Hex() != tt.want {
				t.Errorf("Address = %s, want %s", acc.Address.Hex(), tt.want)
			}
		})
	}
}

func TestKeyHexRoundTrip(t *testing.T) {
	accs, err := Generate(3)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for i, a := range accs {
		back, err := NewAccountFromHex(a.KeyHex())
		if err != nil {
			t.Fatalf("account %d: %v", i, err)
		}
		if back.Address != a.Address {
			t.Errorf("account %d: address = %s, want %s", i, back.Address, a.Address)
		}
	}
}

func TestNonce_StrictlyIncreasing(t *testing.T) {
	seq := newSequence(100)

	var (
		mu   sync.Mutex
		seen = make(map[uint64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := seq.reserve()
			mu.Lock()
			if seen[n.Value()] {
				t.Errorf("nonce %d handed out twice", n.Value())
			}
			seen[n.Value()] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	for v := uint64(100); v < 150; v++ {
		if !seen[v] {
			t.Errorf("nonce %d never handed out", v)
		}
	}
	if got := seq.peek(); got != 150 {
		t.Errorf("peek() = %d, want 150", got)
	}
}

func TestNonce_AwaitTurnOrdersSubmissions(t *testing.T) {
	seq := newSequence(0)
	nonces := make([]*Nonce, 5)
	for i := range nonces {
		nonces[i] = seq.reserve()
	}

	var (
		mu    sync.Mutex
		order []uint64
		wg    sync.WaitGroup
	)
	// Start in reverse so higher nonces are waiting first.
	for i := len(nonces) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(n *Nonce) {
			defer wg.Done()
			if err := n.AwaitTurn(context.Background()); err != nil {
				t.Errorf("AwaitTurn(%d) error = %v", n.Value(), err)
				return
			}
			mu.Lock()
			order = append(order, n.Value())
			mu.Unlock()
			n.Release()
		}(nonces[i])
	}
	wg.Wait()

	for i, v := range order {
		if v != uint64(i) {
			t.Fatalf("submission order = %v, want ascending", order)
		}
	}
}

func TestNonce_ReleaseIsIdempotentAndConsumes(t *testing.T) {
	seq := newSequence(7)
	first := seq.reserve()
	second := seq.reserve()

	// A failed first attempt still advances the turn.
	first.Release()
	first.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := second.AwaitTurn(ctx); err != nil {
		t.Fatalf("AwaitTurn() error = %v", err)
	}
	if got := seq.reserve().Value(); got != 9 {
		t.Errorf("next nonce = %d, want 9 (no reuse)", got)
	}
}

func TestNonce_AwaitTurnCancelled(t *testing.T) {
	seq := newSequence(0)
	_ = seq.reserve()
	second := seq.reserve()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := second.AwaitTurn(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AwaitTurn() error = %v, want deadline exceeded", err)
	}
}
