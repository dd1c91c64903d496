// Package types contains public API types of the dispatcher's status and
// history endpoints. These types form the external interface and must
// remain backwards-compatible.
package types

import "time"

// RunKind identifies which dispatcher variant a run used.
type RunKind string

const (
	RunFund         RunKind = "fund"
	RunLoad         RunKind = "load"
	RunXChainOneWay RunKind = "xchain-oneway"
	RunXChainNWay   RunKind = "xchain-nway"
	RunDefund       RunKind = "defund"
)

// RunState represents the current state of the dispatcher.
type RunState string

const (
	StateIdle         RunState = "idle"
	StateInitializing RunState = "initializing" // chain id, nonces, balance checks
	StateRunning      RunState = "running"
	StateConfirming   RunState = "confirming" // dispatch done, waiting for receipts
	StateCompleted    RunState = "completed"
	StateError        RunState = "error"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int             `json:"count"`
	Min     float64         `json:"min"`     // ms
	Max     float64         `json:"max"`     // ms
	Avg     float64         `json:"avg"`     // ms
	P50     float64         `json:"p50"`     // ms
	P75     float64         `json:"p75"`     // ms
	P90     float64         `json:"p90"`     // ms
	P95     float64         `json:"p95"`     // ms
	P99     float64         `json:"p99"`     // ms
	Buckets []LatencyBucket `json:"buckets"` // histogram
}

// Counts are the outcome counters of a run.
type Counts struct {
	Submitted uint64 `json:"submitted"`
	Accepted  uint64 `json:"accepted"`
	Confirmed uint64 `json:"confirmed"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timedOut"`
}

// StatusResponse is the live view of the current run.
type StatusResponse struct {
	RunID          string        `json:"runId,omitempty"`
	Kind           RunKind       `json:"kind,omitempty"`
	State          RunState      `json:"state"`
	ChainID        uint64        `json:"chainId,omitempty"`
	Target         int           `json:"target"`
	Counts         Counts        `json:"counts"`
	InFlight       int           `json:"inFlight"`
	ElapsedMs      int64         `json:"elapsedMs"`
	TPS            float64       `json:"tps"`
	SubmitLatency  *LatencyStats `json:"submitLatency,omitempty"`
	ConfirmLatency *LatencyStats `json:"confirmLatency,omitempty"`
	Error          string        `json:"error,omitempty"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
}

// RunSummary is one run in the history listing.
type RunSummary struct {
	ID           string     `json:"id"`
	Kind         RunKind    `json:"kind"`
	State        RunState   `json:"state"`
	ChainID      uint64     `json:"chainId"`
	Target       int        `json:"target"`
	Counts       Counts     `json:"counts"`
	TPS          float64    `json:"tps"`
	AvgLatencyMs float64    `json:"avgLatencyMs"`
	DurationMs   int64      `json:"durationMs"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// RunDetail is a run with its configuration and latency breakdown.
type RunDetail struct {
	RunSummary
	Config         map[string]any `json:"config,omitempty"`
	SubmitLatency  *LatencyStats  `json:"submitLatency,omitempty"`
	ConfirmLatency *LatencyStats  `json:"confirmLatency,omitempty"`
}

// RunListResponse is a page of run history.
type RunListResponse struct {
	Runs   []RunSummary `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// TxRecord is one audited transaction of a run.
type TxRecord struct {
	Status   string    `json:"status"` // success, failed or pending
	Batch    int       `json:"batch"`
	TxHash   string    `json:"txHash"`
	SrcChain uint64    `json:"srcChain"`
	DstChain uint64    `json:"dstChain"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Amount   string    `json:"amount"` // decimal wei
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// TxListResponse is a page of a run's transactions.
type TxListResponse struct {
	Transactions []TxRecord `json:"transactions"`
	Total        int        `json:"total"`
	Limit        int        `json:"limit"`
	Offset       int        `json:"offset"`
}
