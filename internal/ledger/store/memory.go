package store

import (
	"context"
	"sync"

	"meditrace/internal/ledger"
	"meditrace/pkg/platform/sentinel"
)

// InMemory keeps the chain in process memory. Used by unit tests and local
// demos; the service layer provides the append serialization, the store only
// guards its own slice.
type InMemory struct {
	mu     sync.RWMutex
	blocks []ledger.Block
}

// NewInMemory constructs an empty in-memory chain store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) AppendBlock(_ context.Context, block *ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Index != int64(len(s.blocks)) {
		return sentinel.ErrConflict
	}
	s.blocks = append(s.blocks, *block)
	return nil
}

func (s *InMemory) Tail(_ context.Context) (*ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 {
		return nil, sentinel.ErrNotFound
	}
	tail := s.blocks[len(s.blocks)-1]
	return &tail, nil
}

func (s *InMemory) Blocks(_ context.Context) ([]ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ledger.Block{}, s.blocks...), nil
}

func (s *InMemory) UnitBlocks(_ context.Context, unitID string) ([]ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Block
	for _, b := range s.blocks {
		if b.UnitID == unitID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *InMemory) Length(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.blocks)), nil
}

// Tamper overwrites a stored block in place, bypassing every invariant.
// Test-only hook for integrity-violation scenarios.
func (s *InMemory) Tamper(index int64, mutate func(*ledger.Block)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index >= 0 && index < int64(len(s.blocks)) {
		mutate(&s.blocks[index])
	}
}
