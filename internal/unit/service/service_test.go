package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"meditrace/internal/fingerprint"
	"meditrace/internal/ledger"
	ledgerstore "meditrace/internal/ledger/store"
	"meditrace/internal/unit/models"
	"meditrace/internal/unit/service"
	unitstore "meditrace/internal/unit/store"
	dErrors "meditrace/pkg/domain-errors"
	"meditrace/pkg/requestcontext"
)

const testNamespace = "meditrace-test"

type UnitServiceSuite struct {
	suite.Suite
	units   *unitstore.InMemory
	blocks  *ledgerstore.InMemory
	chain   *ledger.Service
	service *service.Service
	ctx     context.Context
}

func (s *UnitServiceSuite) SetupTest() {
	s.units = unitstore.NewInMemory()
	s.blocks = ledgerstore.NewInMemory()
	s.chain = ledger.NewService(s.blocks)
	s.service = service.NewService(s.units, s.chain, testNamespace)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC))
}

func TestUnitServiceSuite(t *testing.T) {
	suite.Run(t, new(UnitServiceSuite))
}

func (s *UnitServiceSuite) registration() service.Registration {
	return service.Registration{
		Name:          "Paracetamol 500",
		GenericName:   "Paracetamol",
		Manufacturer:  "Cipla Ltd",
		LicenseNumber: "MH-12345",
		Dosage:        "500mg",
		Composition:   "Paracetamol IP 500mg",
		MRP:           decimal.NewFromFloat(25.50),
		MfgDate:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		ExpDate:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *UnitServiceSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *UnitServiceSuite) TestRegisterBatch() {
	s.Run("issues sequential identifiers under one token", func() {
		result, err := s.service.RegisterBatch(s.ctx, s.registration(), 3)
		s.Require().NoError(err)
		s.Len(result.BatchToken, 8)
		s.Require().Len(result.Units, 3)
		for i, u := range result.Units {
			expectedID, idErr := fingerprint.GenerateUniqueID(result.BatchToken, i+1)
			s.Require().NoError(idErr)
			s.Equal(expectedID, u.UniqueID)
			s.Len(u.FingerprintHash, 64)
		}
	})

	s.Run("fingerprints are deterministic over the issued attributes", func() {
		reg := s.registration()
		reg.BatchToken = "deadbeef"
		result, err := s.service.RegisterBatch(s.ctx, reg, 1)
		s.Require().NoError(err)

		expected := fingerprint.Compute(
			testNamespace,
			reg.Name,
			result.Units[0].UniqueID,
			reg.MfgDate.Format(models.DateLayout),
		)
		s.Equal(expected, result.Units[0].FingerprintHash)
	})

	s.Run("every registered unit gets a ledger block", func() {
		before, err := s.chain.Status(s.ctx)
		s.Require().NoError(err)

		_, err = s.service.RegisterBatch(s.ctx, s.registration(), 4)
		s.Require().NoError(err)

		after, err := s.chain.Status(s.ctx)
		s.Require().NoError(err)
		s.Equal(before.Length+4, after.Length)
	})

	s.Run("rejects out-of-range quantities", func() {
		for _, quantity := range []int{0, -1, service.MaxBatchSize + 1} {
			_, err := s.service.RegisterBatch(s.ctx, s.registration(), quantity)
			s.True(dErrors.HasCode(err, dErrors.CodeBadRequest), "quantity %d", quantity)
		}
	})

	s.Run("rejects registration with swapped dates", func() {
		reg := s.registration()
		reg.MfgDate, reg.ExpDate = reg.ExpDate, reg.MfgDate
		_, err := s.service.RegisterBatch(s.ctx, reg, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("re-registering the same token conflicts", func() {
		reg := s.registration()
		reg.BatchToken = "cafe0001"
		_, err := s.service.RegisterBatch(s.ctx, reg, 1)
		s.Require().NoError(err)

		_, err = s.service.RegisterBatch(s.ctx, reg, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *UnitServiceSuite) TestAppendCustodyEvent() {
	unit, err := s.service.RegisterUnit(s.ctx, s.registration())
	s.Require().NoError(err)

	s.Run("chains the event and mirrors it in the store", func() {
		block, err := s.service.AppendCustodyEvent(s.ctx, unit.UniqueID, "Bangalore", 12.9716, 77.5946, models.EventDispatch)
		s.Require().NoError(err)
		s.NotEmpty(block.Hash)

		events, err := s.units.EventsByUnit(s.ctx, unit.UniqueID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("Bangalore", events[0].LocationName)

		chained, err := s.chain.UnitEvents(s.ctx, unit.UniqueID)
		s.Require().NoError(err)
		s.Require().Len(chained, 1)
		s.Equal("Bangalore", chained[0].Location)
	})

	s.Run("rejects unknown units", func() {
		_, err := s.service.AppendCustodyEvent(s.ctx, "ffffffff-1", "Bangalore", 12.9716, 77.5946, models.EventDispatch)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejects invalid input", func() {
		_, err := s.service.AppendCustodyEvent(s.ctx, unit.UniqueID, "", 12.9716, 77.5946, models.EventDispatch)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		_, err = s.service.AppendCustodyEvent(s.ctx, unit.UniqueID, "Bangalore", 12.9716, 77.5946, models.EventType("teleported"))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		_, err = s.service.AppendCustodyEvent(s.ctx, unit.UniqueID, "Bangalore", 95.0, 77.5946, models.EventType(models.EventDispatch))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects timestamps that regress behind the latest event", func() {
		now := requestcontext.Now(s.ctx)
		_, err := s.service.AppendCustodyEvent(s.at(now.Add(2*time.Hour)), unit.UniqueID, "Chennai", 13.0827, 80.2707, models.EventWarehouseReceipt)
		s.Require().NoError(err)

		_, err = s.service.AppendCustodyEvent(s.at(now.Add(time.Hour)), unit.UniqueID, "Mumbai", 19.0760, 72.8777, models.EventRetailScan)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("accepts an equal timestamp", func() {
		now := requestcontext.Now(s.ctx)
		_, err := s.service.AppendCustodyEvent(s.at(now.Add(2*time.Hour)), unit.UniqueID, "Chennai", 13.0827, 80.2707, models.EventRetailScan)
		s.Require().NoError(err)
	})
}

func (s *UnitServiceSuite) TestBatchUnits() {
	reg := s.registration()
	reg.BatchToken = "beefbeef"
	_, err := s.service.RegisterBatch(s.ctx, reg, 3)
	s.Require().NoError(err)

	units, err := s.service.BatchUnits(s.ctx, "beefbeef")
	s.Require().NoError(err)
	s.Len(units, 3)

	_, err = s.service.BatchUnits(s.ctx, "ffff0000")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *UnitServiceSuite) TestGetUnit() {
	registered, err := s.service.RegisterUnit(s.ctx, s.registration())
	s.Require().NoError(err)

	unit, err := s.service.GetUnit(s.ctx, registered.UniqueID)
	s.Require().NoError(err)
	s.Equal(registered.FingerprintHash, unit.FingerprintHash)
	s.False(unit.IsExpired(requestcontext.Now(s.ctx)))

	_, err = s.service.GetUnit(s.ctx, "ffffffff-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
