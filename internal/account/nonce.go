package account

import (
	"context"
	"sync"
	"sync/atomic"
)

// sequence is one sender's nonce counter. Values are handed out in strictly
// increasing order and never reused. turn is the lowest value not yet
// released; a holder may submit only when turn reaches its value.
type sequence struct {
	mu       sync.Mutex
	next     uint64
	turn     uint64
	released map[uint64]struct{}
	waiters  map[uint64]chan struct{}
}

func newSequence(start uint64) *sequence {
	return &sequence{
		next:     start,
		turn:     start,
		released: make(map[uint64]struct{}),
		waiters:  make(map[uint64]chan struct{}),
	}
}

func (s *sequence) reserve() *Nonce {
	s.mu.Lock()
	v := s.next
	s.next++
	s.mu.Unlock()
	return &Nonce{value: v, seq: s}
}

func (s *sequence) peek() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *sequence) release(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released[v] = struct{}{}
	for {
		if _, ok := s.released[s.turn]; !ok {
			break
		}
		delete(s.released, s.turn)
		s.turn++
	}
	if ch, ok := s.waiters[s.turn]; ok {
		close(ch)
		delete(s.waiters, s.turn)
	}
}

// wait returns a channel that is closed when v's turn comes, or nil if it
// already has.
func (s *sequence) wait(v uint64) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn >= v {
		return nil
	}
	ch, ok := s.waiters[v]
	if !ok {
		ch = make(chan struct{})
		s.waiters[v] = ch
	}
	return ch
}

// Nonce is a reserved sequence number. It is consumed whether or not the
// transaction using it succeeds; Release must be called exactly once when
// the submission attempt is over.
type Nonce struct {
	value    uint64
	seq      *sequence
	released atomic.Bool
}

// Value returns the nonce value.
func (n *Nonce) Value() uint64 {
	return n.value
}

// AwaitTurn blocks until every lower nonce of the same sender has been
// released.
func (n *Nonce) AwaitTurn(ctx context.Context) error {
	ch := n.seq.wait(n.value)
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release marks the submission attempt as finished. Safe to call multiple
// times.
func (n *Nonce) Release() {
	if n.released.Swap(true) {
		return
	}
	n.seq.release(n.value)
}
