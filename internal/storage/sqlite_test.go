package storage

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txdispatch/internal/audit"
	"github.com/gateway-fm/txdispatch/internal/metrics"
	"github.com/gateway-fm/txdispatch/internal/pipeline"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testStats() *metrics.RunStats {
	agg := metrics.NewAggregator(metrics.AggregatorConfig{})
	for i := 0; i < 4; i++ {
		agg.Dispatched()
		agg.Record(pipeline.Outcome{Status: pipeline.StatusSubmitted, Latency: 20 * time.Millisecond})
	}
	agg.RecordConfirmation(pipeline.StatusConfirmed, time.Second)
	agg.RecordConfirmation(pipeline.StatusConfirmed, time.Second)
	agg.RecordConfirmation(pipeline.StatusConfirmed, 2*time.Second)
	agg.RecordConfirmation(pipeline.StatusTimedOut, 0)
	return agg.Finalize()
}

func TestNewSQLiteStorage_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "runs.db")
	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	run := NewRun("run-1", types.RunLoad, 1337, 4, map[string]any{"concurrency": 5})
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.State != types.StateRunning {
		t.Errorf("State = %q, want %q", got.State, types.StateRunning)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", got.FinishedAt)
	}
	if got.Config["concurrency"] != float64(5) {
		t.Errorf("Config[concurrency] = %v, want 5", got.Config["concurrency"])
	}

	stats := testStats()
	if err := store.FinishRun(ctx, "run-1", Finish{State: types.StateCompleted, Stats: stats}); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.State != types.StateCompleted {
		t.Errorf("State = %q, want %q", got.State, types.StateCompleted)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt = nil, want set")
	}
	want := types.Counts{Submitted: 4, Accepted: 4, Confirmed: 3, TimedOut: 1}
	if got.Counts != want {
		t.Errorf("Counts = %+v, want %+v", got.Counts, want)
	}
	if got.AvgLatencyMs != 20 {
		t.Errorf("AvgLatencyMs = %v, want 20", got.AvgLatencyMs)
	}
	if got.ConfirmLatency == nil || got.ConfirmLatency.Count != 3 {
		t.Errorf("ConfirmLatency = %+v, want count 3", got.ConfirmLatency)
	}
}

func TestFinishRun_SetupError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, NewRun("run-err", types.RunFund, 1, 10, nil)); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	fin := Finish{State: types.StateError, Err: errors.New("setup failed at funds: insufficient funds")}
	if err := store.FinishRun(ctx, "run-err", fin); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-err")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Error != fin.Err.Error() {
		t.Errorf("Error = %q, want %q", got.Error, fin.Err.Error())
	}
	if got.SubmitLatency != nil {
		t.Errorf("SubmitLatency = %+v, want nil", got.SubmitLatency)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
	if err := store.FinishRun(ctx, "missing", Finish{State: types.StateCompleted}); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrNotFound", err)
	}
}

func TestListRuns_Pagination(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		run := NewRun(id, types.RunLoad, 1, 1, nil)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}

	page, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Total = %d, want 3", page.Total)
	}
	if len(page.Runs) != 2 || page.Runs[0].ID != "c" || page.Runs[1].ID != "b" {
		t.Errorf("Runs = %+v, want [c b]", page.Runs)
	}

	page, err = store.ListRuns(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(page.Runs) != 1 || page.Runs[0].ID != "a" {
		t.Errorf("Runs = %+v, want [a]", page.Runs)
	}
}

func testRecord(status audit.Status, batch int) audit.Record {
	return audit.Record{
		Status:   status,
		Batch:    batch,
		TxHash:   common.BigToHash(big.NewInt(int64(batch + 1))),
		SrcChain: 20001,
		DstChain: 20002,
		From:     common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		To:       common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Amount:   big.NewInt(1000),
		At:       time.Now(),
	}
}

func TestTxLogSink_BuffersAndFlushes(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	if err := store.CreateRun(ctx, NewRun("run-tx", types.RunXChainOneWay, 20001, 5, nil)); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	sink := NewTxLogSink(store, "run-tx", 2)
	for i := 0; i < 5; i++ {
		status := audit.StatusSuccess
		if i == 3 {
			status = audit.StatusPending
		}
		if err := sink.Append(testRecord(status, i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	// Two full buffers were written, one record is still pending.
	page, err := store.GetTxLogs(ctx, "run-tx", 100, 0)
	if err != nil {
		t.Fatalf("GetTxLogs() error = %v", err)
	}
	if page.Total != 4 {
		t.Errorf("Total before Close = %d, want 4", page.Total)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	page, err = store.GetTxLogs(ctx, "run-tx", 100, 0)
	if err != nil {
		t.Fatalf("GetTxLogs() error = %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("Total = %d, want 5", page.Total)
	}

	first := page.Transactions[0]
	if first.From != "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266" {
		t.Errorf("From = %q, want lowercase hex", first.From)
	}
	if first.Amount != "1000" || first.SrcChain != 20001 || first.DstChain != 20002 {
		t.Errorf("record = %+v", first)
	}
	if page.Transactions[3].Status != "pending" {
		t.Errorf("Status = %q, want pending", page.Transactions[3].Status)
	}
}

func TestDeleteRun_CascadesTxLogs(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	if err := store.CreateRun(ctx, NewRun("run-del", types.RunLoad, 1, 1, nil)); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	rec := TxRecord(testRecord(audit.StatusFailed, 0))
	if err := store.AppendTxLogs(ctx, "run-del", []types.TxRecord{rec}); err != nil {
		t.Fatalf("AppendTxLogs() error = %v", err)
	}

	if err := store.DeleteRun(ctx, "run-del"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	page, err := store.GetTxLogs(ctx, "run-del", 10, 0)
	if err != nil {
		t.Fatalf("GetTxLogs() error = %v", err)
	}
	if page.Total != 0 {
		t.Errorf("Total = %d, want 0", page.Total)
	}
}

func TestTxRecord_Error(t *testing.T) {
	r := testRecord(audit.StatusFailed, 0)
	r.Err = errors.New("nonce too low")
	r.Amount = nil

	got := TxRecord(r)
	if got.Error != "nonce too low" {
		t.Errorf("Error = %q, want %q", got.Error, "nonce too low")
	}
	if got.Amount != "0" {
		t.Errorf("Amount = %q, want 0", got.Amount)
	}
}
