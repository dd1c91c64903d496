// Package audit writes one line per transaction to an append-only log.
package audit

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txdispatch/internal/pipeline"
)

// Status is the final state written to the log.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// StatusFor maps a unit status to its log status. Reverted transactions
// are failures; timed-out and unconfirmed ones stay pending.
func StatusFor(s pipeline.Status) Status {
	switch s {
	case pipeline.StatusConfirmed:
		return StatusSuccess
	case pipeline.StatusFailed, pipeline.StatusReverted:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Record is one audited transaction.
type Record struct {
	Status   Status
	Batch    int // round for cross-chain runs, batch otherwise
	TxHash   common.Hash
	SrcChain uint64
	DstChain uint64
	From     common.Address
	To       common.Address
	Amount   *big.Int
	Err      error
	At       time.Time
}

// Line formats r as
// status,round_or_batch_id,tx_hash,src_chain_id,dst_chain_id,from,to,amount_wei
// with lowercase 0x hex and decimal wei.
func (r Record) Line() string {
	amount := "0"
	if r.Amount != nil {
		amount = r.Amount.String()
	}
	return fmt.Sprintf("%s,%d,%s,%d,%d,%s,%s,%s",
		r.Status,
		r.Batch,
		r.TxHash.Hex(),
		r.SrcChain,
		r.DstChain,
		strings.ToLower(r.From.Hex()),
		strings.ToLower(r.To.Hex()),
		amount,
	)
}

// Sink receives audit records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Append(r Record) error
}

// FileLog appends lines to a file, flushing after each record so a crash
// loses at most the line being written.
type FileLog struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

var _ Sink = (*FileLog)(nil)

// OpenFileLog opens path for appending, creating it if needed.
func OpenFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileLog{file: f, w: bufio.NewWriter(f)}, nil
}

// Append writes r as one line.
func (l *FileLog) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.WriteString(r.Line() + "\n"); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	return l.w.Flush()
}

// Close flushes and closes the file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	flushErr := l.w.Flush()
	return errors.Join(flushErr, l.file.Close())
}

// Multi fans records out to several sinks. Every sink sees every record;
// errors are joined.
type Multi []Sink

var _ Sink = Multi(nil)

// Append forwards r to every sink.
func (m Multi) Append(r Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps records in memory.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

var _ Sink = (*Memory)(nil)

// Append stores r.
func (m *Memory) Append(r Record) error {
	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of the stored records.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(Record) error { return nil }
