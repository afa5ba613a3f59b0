// Package service implements unit registration and custody event appends:
// the only write paths into the ledger.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"meditrace/internal/fingerprint"
	"meditrace/internal/geo"
	"meditrace/internal/ledger"
	platformmetrics "meditrace/internal/platform/metrics"
	"meditrace/internal/unit/models"
	dErrors "meditrace/pkg/domain-errors"
	"meditrace/pkg/platform/sentinel"
	"meditrace/pkg/requestcontext"
)

// MaxBatchSize bounds a single registration request.
const MaxBatchSize = 10000

// Store is the persistence contract for units and their custody event mirror.
type Store interface {
	CreateUnit(ctx context.Context, unit *models.Unit) error
	FindByUniqueID(ctx context.Context, uniqueID string) (*models.Unit, error)
	UnitsByBatch(ctx context.Context, batchToken string) ([]models.Unit, error)
	AppendEvent(ctx context.Context, event *models.CustodyEvent) error
	EventsByUnit(ctx context.Context, unitID string) ([]models.CustodyEvent, error)
	LastEventTime(ctx context.Context, unitID string) (time.Time, error)
}

// Chain is the slice of the ledger engine the unit service writes through.
type Chain interface {
	Append(ctx context.Context, payload ledger.Payload) (*ledger.Block, error)
}

// Registration carries the immutable attributes of a batch being registered.
type Registration struct {
	Name          string
	GenericName   string
	Manufacturer  string
	LicenseNumber string
	Dosage        string
	Composition   string
	MRP           decimal.Decimal
	MfgDate       time.Time
	ExpDate       time.Time

	// BatchToken is optional; a fresh token is issued when empty.
	BatchToken string
}

// RegisteredUnit is the per-unit outcome of a registration.
type RegisteredUnit struct {
	UniqueID        string `json:"unique_id"`
	FingerprintHash string `json:"fingerprint_hash"`
}

// BatchResult reports a completed batch registration.
type BatchResult struct {
	BatchToken string           `json:"batch_token"`
	Units      []RegisteredUnit `json:"units"`
}

// Service orchestrates the write paths.
type Service struct {
	store     Store
	chain     Chain
	namespace string
	logger    *slog.Logger
	metrics   *platformmetrics.Metrics
}

// Option configures optional service dependencies.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *platformmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs the unit service. namespace is the fixed tag mixed
// into every fingerprint.
func NewService(store Store, chain Chain, namespace string, opts ...Option) *Service {
	s := &Service{
		store:     store,
		chain:     chain,
		namespace: namespace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterBatch issues quantity units under one batch token. Each unit gets
// a deterministic fingerprint and a registration block on the ledger.
func (s *Service) RegisterBatch(ctx context.Context, reg Registration, quantity int) (*BatchResult, error) {
	if quantity < 1 || quantity > MaxBatchSize {
		return nil, dErrors.New(dErrors.CodeBadRequest, "quantity must be between 1 and 10000")
	}

	token := reg.BatchToken
	if token == "" {
		token = fingerprint.NewBatchToken()
	}

	now := requestcontext.Now(ctx)
	result := &BatchResult{BatchToken: token}
	for seq := 1; seq <= quantity; seq++ {
		registered, err := s.registerOne(ctx, reg, token, seq, now)
		if err != nil {
			return nil, err
		}
		result.Units = append(result.Units, *registered)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "batch registered",
			"batch_token", token,
			"quantity", quantity,
			"drug_name", reg.Name,
		)
	}
	return result, nil
}

// RegisterUnit registers a single unit and returns its issued identifiers.
func (s *Service) RegisterUnit(ctx context.Context, reg Registration) (*RegisteredUnit, error) {
	result, err := s.RegisterBatch(ctx, reg, 1)
	if err != nil {
		return nil, err
	}
	return &result.Units[0], nil
}

func (s *Service) registerOne(ctx context.Context, reg Registration, token string, seq int, now time.Time) (*RegisteredUnit, error) {
	uniqueID, err := fingerprint.GenerateUniqueID(token, seq)
	if err != nil {
		return nil, err
	}

	unit := &models.Unit{
		UniqueID:      uniqueID,
		BatchToken:    token,
		Name:          reg.Name,
		GenericName:   reg.GenericName,
		Manufacturer:  reg.Manufacturer,
		LicenseNumber: reg.LicenseNumber,
		Dosage:        reg.Dosage,
		Composition:   reg.Composition,
		MRP:           reg.MRP,
		MfgDate:       reg.MfgDate,
		ExpDate:       reg.ExpDate,
		CreatedAt:     now,
	}
	if err := unit.Validate(); err != nil {
		return nil, err
	}
	unit.FingerprintHash = fingerprint.Compute(
		s.namespace,
		unit.Name,
		unit.UniqueID,
		unit.MfgDate.Format(models.DateLayout),
	)

	if err := s.store.CreateUnit(ctx, unit); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "unit identifier already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to persist unit")
	}

	if _, err := s.chain.Append(ctx, ledger.Payload{
		Kind:            ledger.KindRegistration,
		UnitID:          unit.UniqueID,
		FingerprintHash: unit.FingerprintHash,
		Timestamp:       now,
	}); err != nil {
		return nil, err
	}

	s.metrics.IncUnitsRegistered()
	return &RegisteredUnit{UniqueID: unit.UniqueID, FingerprintHash: unit.FingerprintHash}, nil
}

// AppendCustodyEvent records a movement for a unit and chains it onto the
// ledger. Timestamps are taken from the request clock and must not regress
// behind the unit's latest event; insertion order is the causal order.
func (s *Service) AppendCustodyEvent(ctx context.Context, unitID, location string, lat, lon float64, eventType models.EventType) (*ledger.Block, error) {
	if location == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "location name is required")
	}
	if !eventType.Valid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown event type")
	}
	if err := geo.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	unit, err := s.store.FindByUniqueID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unit is not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load unit")
	}

	now := requestcontext.Now(ctx)
	last, err := s.store.LastEventTime(ctx, unit.UniqueID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load unit events")
	}
	if err == nil && now.Before(last) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "event timestamp regresses behind the unit's latest event")
	}

	block, err := s.chain.Append(ctx, ledger.Payload{
		Kind:      ledger.KindCustody,
		UnitID:    unit.UniqueID,
		EventType: eventType,
		Location:  location,
		Latitude:  lat,
		Longitude: lon,
		Timestamp: now,
	})
	if err != nil {
		return nil, err
	}

	event := &models.CustodyEvent{
		UnitID:       unit.UniqueID,
		LocationName: location,
		Latitude:     lat,
		Longitude:    lon,
		EventType:    eventType,
		Timestamp:    now,
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		// The block is already chained; the mirror row is derivable from it,
		// so surface the failure without pretending the append didn't happen.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "custody event mirror write failed",
				"unit_id", unit.UniqueID,
				"block_index", block.Index,
				"error", err,
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to persist custody event")
	}

	return block, nil
}

// BatchUnits lists every unit registered under a batch token.
func (s *Service) BatchUnits(ctx context.Context, batchToken string) ([]models.Unit, error) {
	units, err := s.store.UnitsByBatch(ctx, batchToken)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load batch units")
	}
	if len(units) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no units registered under this batch token")
	}
	return units, nil
}

// GetUnit fetches a registered unit by its identifier.
func (s *Service) GetUnit(ctx context.Context, uniqueID string) (*models.Unit, error) {
	unit, err := s.store.FindByUniqueID(ctx, uniqueID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unit is not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load unit")
	}
	return unit, nil
}
