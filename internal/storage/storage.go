package storage

import (
	"context"
	"errors"

	"github.com/gateway-fm/txdispatch/pkg/types"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Storage defines the persistence interface for run history.
type Storage interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *types.RunDetail) error
	FinishRun(ctx context.Context, id string, fin Finish) error
	GetRun(ctx context.Context, id string) (*types.RunDetail, error)

	// History queries
	ListRuns(ctx context.Context, limit, offset int) (*types.RunListResponse, error)
	DeleteRun(ctx context.Context, id string) error

	// Transaction log, appended while the run progresses
	AppendTxLogs(ctx context.Context, runID string, records []types.TxRecord) error
	GetTxLogs(ctx context.Context, runID string, limit, offset int) (*types.TxListResponse, error)

	// Lifecycle
	Close() error
}
