// Package monitor tracks the run in progress and serves run history to the
// status endpoints.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gateway-fm/txdispatch/internal/metrics"
	"github.com/gateway-fm/txdispatch/internal/storage"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

// ErrNoHistory is returned by history queries when no storage is set.
var ErrNoHistory = errors.New("run history is disabled")

// Monitor holds the live state of the current run. It is safe for
// concurrent use.
type Monitor struct {
	store storage.Storage
	prom  *metrics.PrometheusMetrics

	mu        sync.RWMutex
	runID     string
	kind      types.RunKind
	state     types.RunState
	chainID   uint64
	target    int
	agg       *metrics.Aggregator
	startedAt time.Time
	err       error
}

// New creates a Monitor. store and prom may be nil.
func New(store storage.Storage, prom *metrics.PrometheusMetrics) *Monitor {
	return &Monitor{store: store, prom: prom, state: types.StateIdle}
}

// Begin marks a new run as initializing.
func (m *Monitor) Begin(runID string, kind types.RunKind, target int, agg *metrics.Aggregator) {
	m.mu.Lock()
	m.runID = runID
	m.kind = kind
	m.target = target
	m.agg = agg
	m.chainID = 0
	m.err = nil
	m.startedAt = time.Now().UTC()
	m.mu.Unlock()
	m.SetState(types.StateInitializing)
}

// SetChainID records the chain the current run talks to.
func (m *Monitor) SetChainID(id uint64) {
	m.mu.Lock()
	m.chainID = id
	m.mu.Unlock()
}

// SetState moves the current run to state.
func (m *Monitor) SetState(state types.RunState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	if m.prom != nil {
		m.prom.SetRunState(string(state))
	}
}

// End marks the current run finished, as failed when err is non-nil.
func (m *Monitor) End(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	if err != nil {
		m.SetState(types.StateError)
		return
	}
	m.SetState(types.StateCompleted)
}

// Status returns the live view of the current run.
func (m *Monitor) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resp := types.StatusResponse{
		RunID:   m.runID,
		Kind:    m.kind,
		State:   m.state,
		ChainID: m.chainID,
		Target:  m.target,
	}
	if !m.startedAt.IsZero() {
		started := m.startedAt
		resp.StartedAt = &started
	}
	if m.err != nil {
		resp.Error = m.err.Error()
	}
	if m.agg != nil {
		snap := m.agg.Snapshot()
		resp.Counts = snap.Counts
		resp.InFlight = int(snap.InFlight)
		resp.ElapsedMs = snap.Elapsed.Milliseconds()
		resp.TPS = snap.TPS
		resp.SubmitLatency = snap.SubmitLatency
		resp.ConfirmLatency = snap.ConfirmLatency
	}
	return resp
}

// Active reports whether a run is initializing, running or confirming.
func (m *Monitor) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.state {
	case types.StateInitializing, types.StateRunning, types.StateConfirming:
		return true
	default:
		return false
	}
}

// ListRuns returns a page of stored runs.
func (m *Monitor) ListRuns(ctx context.Context, limit, offset int) (*types.RunListResponse, error) {
	if m.store == nil {
		return nil, ErrNoHistory
	}
	return m.store.ListRuns(ctx, limit, offset)
}

// GetRun returns a stored run.
func (m *Monitor) GetRun(ctx context.Context, id string) (*types.RunDetail, error) {
	if m.store == nil {
		return nil, ErrNoHistory
	}
	return m.store.GetRun(ctx, id)
}

// GetRunTxs returns a page of a stored run's transaction log.
func (m *Monitor) GetRunTxs(ctx context.Context, id string, limit, offset int) (*types.TxListResponse, error) {
	if m.store == nil {
		return nil, ErrNoHistory
	}
	return m.store.GetTxLogs(ctx, id, limit, offset)
}

// DeleteRun removes a stored run and its transaction log.
func (m *Monitor) DeleteRun(ctx context.Context, id string) error {
	if m.store == nil {
		return ErrNoHistory
	}
	return m.store.DeleteRun(ctx, id)
}
