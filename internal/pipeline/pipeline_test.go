package pipeline

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/txdispatch/internal/account"
	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/signer"
)

// mockGateway implements chain.Gateway for testing.
type mockGateway struct {
	mu      sync.Mutex
	nonces  []uint64
	delay   time.Duration
	failErr error
}

var _ chain.Gateway = (*mockGateway)(nil)

func (m *mockGateway) ChainID(context.Context) (uint64, error) { return 1337, nil }
func (m *mockGateway) SequenceOf(context.Context, common.Address) (uint64, error) {
	return 0, nil
}
func (m *mockGateway) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (m *mockGateway) GasPrice(context.Context) (*big.Int, error)             { return big.NewInt(1), nil }
func (m *mockGateway) CodeAt(context.Context, common.Address) ([]byte, error) { return nil, nil }
func (m *mockGateway) ReceiptOf(context.Context, common.Hash) (*chain.Receipt, error) {
	return nil, nil
}

func (m *mockGateway) Submit(ctx context.Context, tx *chain.SignedTx) (common.Hash, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	var decoded types.Transaction
	if err := decoded.UnmarshalBinary(tx.Raw); err != nil {
		return common.Hash{}, err
	}
	m.mu.Lock()
	m.nonces = append(m.nonces, decoded.Nonce())
	m.mu.Unlock()
	if m.failErr != nil {
		return common.Hash{}, m.failErr
	}
	return tx.Hash, nil
}

func setup(t *testing.T, gw *mockGateway) (*Pipeline, *account.Pool) {
	t.Helper()
	accs, err := account.LoadTestAccounts()
	if err != nil {
		t.Fatalf("LoadTestAccounts() error = %v", err)
	}
	pool := account.NewPool(accs[:1], account.Addresses(accs[1:2]))
	if err := pool.Init(context.Background(), gw); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	p := New(Config{
		Signer:  signer.New(nil),
		Gateway: gw,
		ChainID: big.NewInt(1337),
		Legacy:  true,
	})
	return p, pool
}

func unitFor(pool *account.Pool, n *account.Nonce, i int) Unit {
	return Unit{
		Index:    i,
		Sender:   pool.SenderAt(0),
		Receiver: pool.ReceiverAt(0),
		Nonce:    n.Value(),
		Amount:   big.NewInt(1000),
		GasPrice: big.NewInt(1_000_000_000),
	}
}

func TestExecute_Success(t *testing.T) {
	gw := &mockGateway{}
	p, pool := setup(t, gw)

	n := pool.NextNonce(0)
	out := p.Execute(context.Background(), unitFor(pool, n, 0), n)

	if out.Status != StatusSubmitted {
		t.Fatalf("Status = %s, want submitted (err %v)", out.Status, out.Err)
	}
	if out.TxHash == (common.Hash{}) {
		t.Error("TxHash is empty")
	}
	if out.Latency <= 0 {
		t.Errorf("Latency = %v, want > 0", out.Latency)
	}
}

func TestExecute_SubmitOrderFollowsNonceOrder(t *testing.T) {
	gw := &mockGateway{}
	p, pool := setup(t, gw)

	const count = 20
	nonces := make([]*account.Nonce, count)
	for i := range nonces {
		nonces[i] = pool.NextNonce(0)
	}

	var wg sync.WaitGroup
	for i := count - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Execute(context.Background(), unitFor(pool, nonces[i], i), nonces[i])
		}(i)
	}
	wg.Wait()

	if len(gw.nonces) != count {
		t.Fatalf("submitted %d, want %d", len(gw.nonces), count)
	}
	for i, v := range gw.nonces {
		if v != uint64(i) {
			t.Fatalf("submission order = %v, want ascending", gw.nonces)
		}
	}
}

func TestExecute_FailureReleasesNonce(t *testing.T) {
	rejected := &chain.SubmissionError{Reason: chain.ReasonUnderpriced, Err: errors.New("underpriced")}
	gw := &mockGateway{failErr: rejected}
	p, pool := setup(t, gw)

	first := pool.NextNonce(0)
	second := pool.NextNonce(0)

	out := p.Execute(context.Background(), unitFor(pool, first, 0), first)
	if out.Status != StatusFailed || !errors.Is(out.Err, rejected) {
		t.Fatalf("first outcome = %s / %v, want failed with submission error", out.Status, out.Err)
	}

	done := make(chan Outcome, 1)
	go func() { done <- p.Execute(context.Background(), unitFor(pool, second, 1), second) }()
	select {
	case out := <-done:
		if out.Unit.Nonce != 1 {
			t.Errorf("second unit nonce = %d, want 1", out.Unit.Nonce)
		}
	case <-time.After(time.Second):
		t.Fatal("second unit stalled behind failed nonce")
	}
}

func TestExecute_SigningError(t *testing.T) {
	gw := &mockGateway{}
	p, pool := setup(t, gw)

	n := pool.NextNonce(0)
	u := unitFor(pool, n, 0)
	u.Receiver = common.Address{}

	out := p.Execute(context.Background(), u, n)
	var se *signer.SigningError
	if out.Status != StatusFailed || !errors.As(out.Err, &se) {
		t.Errorf("outcome = %s / %v, want failed with SigningError", out.Status, out.Err)
	}
	if len(gw.nonces) != 0 {
		t.Errorf("submitted %d transactions, want 0", len(gw.nonces))
	}
}

func TestExecute_DeadlineDuringSubmit(t *testing.T) {
	gw := &mockGateway{delay: 50 * time.Millisecond}
	p, pool := setup(t, gw)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	n := pool.NextNonce(0)
	out := p.Execute(ctx, unitFor(pool, n, 0), n)

	if out.Status != StatusFailed || !errors.Is(out.Err, ErrDeadlineExceeded) {
		t.Errorf("outcome = %s / %v, want failed with ErrDeadlineExceeded", out.Status, out.Err)
	}
	// The in-flight call was not interrupted.
	if len(gw.nonces) != 1 {
		t.Errorf("gateway saw %d submissions, want 1", len(gw.nonces))
	}
}
