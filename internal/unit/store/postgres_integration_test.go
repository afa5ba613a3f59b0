//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"meditrace/internal/unit/models"
	"meditrace/internal/unit/store"
	"meditrace/pkg/platform/sentinel"
	"meditrace/pkg/testutil/containers"
)

type PostgresUnitSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresUnitSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresUnitSuite))
}

func (s *PostgresUnitSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresUnitSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *PostgresUnitSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "custody_events", "units"))
}

func (s *PostgresUnitSuite) unit(uniqueID, fingerprintHash string) *models.Unit {
	return &models.Unit{
		UniqueID:        uniqueID,
		BatchToken:      "a1b2c3d4",
		FingerprintHash: fingerprintHash,
		Name:            "Paracetamol 500",
		GenericName:     "Paracetamol",
		Manufacturer:    "Cipla Ltd",
		LicenseNumber:   "MH-12345",
		Dosage:          "500mg",
		Composition:     "Paracetamol IP 500mg",
		MRP:             decimal.NewFromFloat(25.50),
		MfgDate:         time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		ExpDate:         time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresUnitSuite) TestCreateAndFind() {
	ctx := context.Background()

	created := s.unit("a1b2c3d4-1", "fp-1")
	s.Require().NoError(s.store.CreateUnit(ctx, created))

	found, err := s.store.FindByUniqueID(ctx, "a1b2c3d4-1")
	s.Require().NoError(err)
	s.Equal(created.FingerprintHash, found.FingerprintHash)
	s.Equal(created.LicenseNumber, found.LicenseNumber)
	s.True(found.MRP.Equal(decimal.NewFromFloat(25.50)), "mrp must round-trip exactly, got %s", found.MRP)
	s.True(found.MfgDate.Equal(created.MfgDate))

	_, err = s.store.FindByUniqueID(ctx, "ffffffff-1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresUnitSuite) TestUniqueConstraints() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateUnit(ctx, s.unit("a1b2c3d4-1", "fp-1")))

	err := s.store.CreateUnit(ctx, s.unit("a1b2c3d4-1", "fp-2"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	err = s.store.CreateUnit(ctx, s.unit("a1b2c3d4-2", "fp-1"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresUnitSuite) TestUnitsByBatch() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateUnit(ctx, s.unit("a1b2c3d4-1", "fp-1")))
	s.Require().NoError(s.store.CreateUnit(ctx, s.unit("a1b2c3d4-2", "fp-2")))

	other := s.unit("ffff0000-1", "fp-3")
	other.BatchToken = "ffff0000"
	s.Require().NoError(s.store.CreateUnit(ctx, other))

	units, err := s.store.UnitsByBatch(ctx, "a1b2c3d4")
	s.Require().NoError(err)
	s.Require().Len(units, 2)
	s.Equal("a1b2c3d4-1", units[0].UniqueID)
	s.Equal("a1b2c3d4-2", units[1].UniqueID)
}

func (s *PostgresUnitSuite) TestCustodyEventMirror() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateUnit(ctx, s.unit("a1b2c3d4-1", "fp-1")))

	base := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.store.LastEventTime(ctx, "a1b2c3d4-1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	first := &models.CustodyEvent{
		UnitID:       "a1b2c3d4-1",
		LocationName: "Bangalore",
		Latitude:     12.9716,
		Longitude:    77.5946,
		EventType:    models.EventDispatch,
		Timestamp:    base,
	}
	s.Require().NoError(s.store.AppendEvent(ctx, first))
	s.NotZero(first.ID)

	second := &models.CustodyEvent{
		UnitID:       "a1b2c3d4-1",
		LocationName: "Chennai",
		Latitude:     13.0827,
		Longitude:    80.2707,
		EventType:    models.EventWarehouseReceipt,
		Timestamp:    base.Add(6 * time.Hour),
	}
	s.Require().NoError(s.store.AppendEvent(ctx, second))
	s.Greater(second.ID, first.ID)

	events, err := s.store.EventsByUnit(ctx, "a1b2c3d4-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("Bangalore", events[0].LocationName)
	s.Equal(models.EventWarehouseReceipt, events[1].EventType)

	last, err := s.store.LastEventTime(ctx, "a1b2c3d4-1")
	s.Require().NoError(err)
	s.True(last.Equal(base.Add(6 * time.Hour)))
}
