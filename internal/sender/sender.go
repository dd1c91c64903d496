// Package sender bounds the number of in-flight submissions with a counting
// semaphore.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrAtCapacity is returned when no slot is free.
var ErrAtCapacity = errors.New("sender at capacity")

// DefaultConcurrency is used when Config.Concurrency is not positive.
const DefaultConcurrency = 500

// Sender hands out at most Capacity slots at a time. A unit of work holds a
// slot from Acquire until the function passed to Spawn returns.
type Sender struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
	peak      atomic.Int64
	logger    *slog.Logger
}

// Config for creating a Sender.
type Config struct {
	Concurrency int
	Logger      *slog.Logger
}

// New creates a new Sender.
func New(cfg Config) *Sender {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sender{
		semaphore: make(chan struct{}, concurrency),
		logger:    logger,
	}
}

// Acquire blocks until a slot is free or ctx is done. A successful Acquire
// must be followed by exactly one Spawn or Release.
func (s *Sender) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.semaphore <- struct{}{}:
		s.notePeak()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking. It returns ErrAtCapacity when
// all slots are held.
func (s *Sender) TryAcquire() error {
	select {
	case s.semaphore <- struct{}{}:
		s.notePeak()
		return nil
	default:
		s.logger.Debug("sender at capacity", slog.Int("capacity", cap(s.semaphore)))
		return ErrAtCapacity
	}
}

// Release frees a slot obtained with Acquire that was not spawned.
func (s *Sender) Release() {
	<-s.semaphore
}

// Spawn runs fn on a new goroutine that holds an already acquired slot and
// frees it when fn returns.
func (s *Sender) Spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.semaphore }()
		fn()
	}()
}

// Go acquires a slot and spawns fn with it.
func (s *Sender) Go(ctx context.Context, fn func()) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	s.Spawn(fn)
	return nil
}

// Wait blocks until every spawned function has returned.
func (s *Sender) Wait() {
	s.wg.Wait()
}

func (s *Sender) notePeak() {
	n := int64(len(s.semaphore))
	for {
		cur := s.peak.Load()
		if n <= cur || s.peak.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Available returns the number of free slots.
func (s *Sender) Available() int {
	return cap(s.semaphore) - len(s.semaphore)
}

// Capacity returns the total number of slots.
func (s *Sender) Capacity() int {
	return cap(s.semaphore)
}

// InFlight returns the number of slots currently held.
func (s *Sender) InFlight() int {
	return len(s.semaphore)
}

// Peak returns the highest number of slots held at once.
func (s *Sender) Peak() int {
	return int(s.peak.Load())
}
