// Package storage persists run history and per-transaction logs.
package storage

import (
	"strings"
	"time"

	"github.com/gateway-fm/txdispatch/internal/audit"
	"github.com/gateway-fm/txdispatch/internal/metrics"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

// Finish is the final state of a run written by FinishRun.
type Finish struct {
	State types.RunState
	// Stats is nil when the run aborted during setup.
	Stats *metrics.RunStats
	Err   error
}

// NewRun returns the record of a run that is starting now.
func NewRun(id string, kind types.RunKind, chainID uint64, target int, config map[string]any) *types.RunDetail {
	return &types.RunDetail{
		RunSummary: types.RunSummary{
			ID:        id,
			Kind:      kind,
			State:     types.StateRunning,
			ChainID:   chainID,
			Target:    target,
			StartedAt: time.Now().UTC(),
		},
		Config: config,
	}
}

// TxRecord converts an audit record to its stored form.
func TxRecord(r audit.Record) types.TxRecord {
	amount := "0"
	if r.Amount != nil {
		amount = r.Amount.String()
	}
	rec := types.TxRecord{
		Status:   string(r.Status),
		Batch:    r.Batch,
		TxHash:   r.TxHash.Hex(),
		SrcChain: r.SrcChain,
		DstChain: r.DstChain,
		From:     strings.ToLower(r.From.Hex()),
		To:       strings.ToLower(r.To.Hex()),
		Amount:   amount,
		At:       r.At.UTC(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}
