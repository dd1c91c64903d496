package storage

import (
	"context"
	"sync"
	"time"

	"github.com/gateway-fm/txdispatch/internal/audit"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

const (
	// DefaultFlushSize is the number of buffered records that triggers a
	// write.
	DefaultFlushSize = 256

	flushTimeout = 10 * time.Second
)

// TxLogSink is an audit.Sink that appends a run's records to Storage in
// batches. Close writes whatever is still buffered.
type TxLogSink struct {
	store     Storage
	runID     string
	flushSize int

	mu  sync.Mutex
	buf []types.TxRecord
}

var _ audit.Sink = (*TxLogSink)(nil)

// NewTxLogSink creates a sink for runID. flushSize <= 0 uses
// DefaultFlushSize.
func NewTxLogSink(store Storage, runID string, flushSize int) *TxLogSink {
	if flushSize <= 0 {
		flushSize = DefaultFlushSize
	}
	return &TxLogSink{store: store, runID: runID, flushSize: flushSize}
}

// Append buffers r and writes the buffer once it is full.
func (s *TxLogSink) Append(r audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, TxRecord(r))
	if len(s.buf) < s.flushSize {
		return nil
	}
	return s.flushLocked()
}

// Flush writes buffered records.
func (s *TxLogSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close flushes the buffer. The underlying Storage stays open.
func (s *TxLogSink) Close() error {
	return s.Flush()
}

func (s *TxLogSink) flushLocked() error {
	if len(s.buf) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := s.store.AppendTxLogs(ctx, s.runID, s.buf); err != nil {
		return err
	}
	s.buf = s.buf[:0]
	return nil
}
