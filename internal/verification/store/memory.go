// Package store persists failed verification attempts.
package store

import (
	"context"
	"sync"

	"meditrace/internal/verification/models"
)

// InMemory keeps failed attempts in process memory, newest last.
type InMemory struct {
	mu       sync.RWMutex
	attempts []models.FailedAttempt
	nextID   int64
}

// NewInMemory constructs an empty in-memory attempt store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) RecordAttempt(_ context.Context, attempt *models.FailedAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	attempt.ID = s.nextID
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *InMemory) AttemptsByScannedID(_ context.Context, scannedID string) ([]models.FailedAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.FailedAttempt
	for _, a := range s.attempts {
		if a.ScannedID == scannedID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *InMemory) RecentAttempts(_ context.Context, limit int) ([]models.FailedAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.attempts) {
		limit = len(s.attempts)
	}
	out := make([]models.FailedAttempt, 0, limit)
	for i := len(s.attempts) - 1; i >= len(s.attempts)-limit; i-- {
		out = append(out, s.attempts[i])
	}
	return out, nil
}
