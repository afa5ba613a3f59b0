package store

import (
	"context"
	"sync"
	"time"

	"meditrace/internal/unit/models"
	"meditrace/pkg/platform/sentinel"
)

// InMemory keeps units and their custody event mirror in process memory.
type InMemory struct {
	mu           sync.RWMutex
	units        map[string]models.Unit // keyed by unique_id
	fingerprints map[string]string      // fingerprint_hash -> unique_id
	events       map[string][]models.CustodyEvent
	nextEventID  int64
}

// NewInMemory constructs an empty in-memory unit store.
func NewInMemory() *InMemory {
	return &InMemory{
		units:        make(map[string]models.Unit),
		fingerprints: make(map[string]string),
		events:       make(map[string][]models.CustodyEvent),
	}
}

func (s *InMemory) CreateUnit(_ context.Context, unit *models.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.units[unit.UniqueID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.fingerprints[unit.FingerprintHash]; exists {
		return sentinel.ErrConflict
	}
	s.units[unit.UniqueID] = *unit
	s.fingerprints[unit.FingerprintHash] = unit.UniqueID
	return nil
}

func (s *InMemory) FindByUniqueID(_ context.Context, uniqueID string) (*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.units[uniqueID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &unit, nil
}

func (s *InMemory) UnitsByBatch(_ context.Context, batchToken string) ([]models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Unit
	for _, u := range s.units {
		if u.BatchToken == batchToken {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *InMemory) AppendEvent(_ context.Context, event *models.CustodyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	event.ID = s.nextEventID
	s.events[event.UnitID] = append(s.events[event.UnitID], *event)
	return nil
}

func (s *InMemory) EventsByUnit(_ context.Context, unitID string) ([]models.CustodyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.CustodyEvent{}, s.events[unitID]...), nil
}

func (s *InMemory) LastEventTime(_ context.Context, unitID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[unitID]
	if len(events) == 0 {
		return time.Time{}, sentinel.ErrNotFound
	}
	return events[len(events)-1].Timestamp, nil
}
