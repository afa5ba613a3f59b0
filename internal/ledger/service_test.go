package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"meditrace/internal/ledger"
	"meditrace/internal/ledger/store"
	unitmodels "meditrace/internal/unit/models"
	"meditrace/pkg/requestcontext"
)

type LedgerSuite struct {
	suite.Suite
	store   *store.InMemory
	service *ledger.Service
	ctx     context.Context
}

func (s *LedgerSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = ledger.NewService(s.store)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC))
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) custodyPayload(unitID, location string) ledger.Payload {
	return ledger.Payload{
		Kind:      ledger.KindCustody,
		UnitID:    unitID,
		EventType: unitmodels.EventDispatch,
		Location:  location,
		Latitude:  12.9716,
		Longitude: 77.5946,
		Timestamp: requestcontext.Now(s.ctx),
	}
}

func (s *LedgerSuite) TestAppend() {
	s.Run("first block is genesis with sentinel prev hash", func() {
		block, err := s.service.Append(s.ctx, ledger.Payload{
			Kind:      ledger.KindRegistration,
			UnitID:    "BATCH01-1",
			Timestamp: requestcontext.Now(s.ctx),
		})
		s.Require().NoError(err)
		s.Equal(int64(0), block.Index)
		s.Equal(ledger.GenesisPrevHash, block.PrevHash)
		s.Len(block.Hash, 64)
	})

	s.Run("subsequent blocks link to the predecessor", func() {
		first, err := s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", "Bangalore"))
		s.Require().NoError(err)
		second, err := s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", "Chennai"))
		s.Require().NoError(err)

		s.Equal(first.Index+1, second.Index)
		s.Equal(first.Hash, second.PrevHash)
		s.NotEqual(first.Hash, second.Hash)
	})
}

func (s *LedgerSuite) TestConcurrentAppendsKeepStrictIndexOrder() {
	const appenders = 32

	var wg sync.WaitGroup
	errs := make(chan error, appenders)
	for i := 0; i < appenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.service.Append(s.ctx, s.custodyPayload(fmt.Sprintf("BATCH01-%d", n), "Bangalore"))
			errs <- err
		}(i + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	blocks, err := s.store.Blocks(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(blocks, appenders)

	report := ledger.VerifyBlocks(blocks)
	s.True(report.Intact, "concurrent appends must produce a linked chain")
}

func (s *LedgerSuite) TestVerifyIntegrity() {
	s.Run("empty chain is intact", func() {
		report, err := s.service.VerifyIntegrity(s.ctx)
		s.Require().NoError(err)
		s.True(report.Intact)
		s.Zero(report.Length)
	})

	s.Run("sequentially appended blocks verify", func() {
		for i := 1; i <= 5; i++ {
			_, err := s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", fmt.Sprintf("Stop %d", i)))
			s.Require().NoError(err)
		}

		report, err := s.service.VerifyIntegrity(s.ctx)
		s.Require().NoError(err)
		s.True(report.Intact)
		s.Equal(int64(5), report.Length)
		s.Nil(report.BreakIndex)
	})
}

func (s *LedgerSuite) TestTamperDetection() {
	for i := 1; i <= 5; i++ {
		_, err := s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", fmt.Sprintf("Stop %d", i)))
		s.Require().NoError(err)
	}

	s.Run("payload mutation breaks at the mutated block", func() {
		tampered := store.NewInMemory()
		blocks, _ := s.store.Blocks(s.ctx)
		for i := range blocks {
			b := blocks[i]
			s.Require().NoError(tampered.AppendBlock(s.ctx, &b))
		}
		tampered.Tamper(2, func(b *ledger.Block) {
			b.Payload = `{"kind":"custody","unit_id":"BATCH01-1","location":"FAKE LOCATION"}`
		})

		mutated, err := tampered.Blocks(s.ctx)
		s.Require().NoError(err)
		report := ledger.VerifyBlocks(mutated)
		s.False(report.Intact)
		s.Require().NotNil(report.BreakIndex)
		s.Equal(int64(2), *report.BreakIndex)
	})

	s.Run("hash mutation breaks at the mutated block", func() {
		blocks, _ := s.store.Blocks(s.ctx)
		blocks[3].Hash = ledger.ComputeHash(99, blocks[3].Payload, blocks[3].PrevHash, blocks[3].Timestamp)

		report := ledger.VerifyBlocks(blocks)
		s.False(report.Intact)
		s.Require().NotNil(report.BreakIndex)
		s.Equal(int64(3), *report.BreakIndex)
	})

	s.Run("prev hash mutation breaks at the mutated block", func() {
		blocks, _ := s.store.Blocks(s.ctx)
		blocks[4].PrevHash = ledger.GenesisPrevHash

		report := ledger.VerifyBlocks(blocks)
		s.False(report.Intact)
		s.Require().NotNil(report.BreakIndex)
		s.Equal(int64(4), *report.BreakIndex)
	})

	s.Run("unit reassignment breaks at the reassigned block", func() {
		// The unit column is outside the hash pre-image, so moving a block to
		// another unit leaves every hash valid; the walk must still catch it.
		blocks, _ := s.store.Blocks(s.ctx)
		blocks[1].UnitID = "BATCH01-9"

		report := ledger.VerifyBlocks(blocks)
		s.False(report.Intact)
		s.Require().NotNil(report.BreakIndex)
		s.Equal(int64(1), *report.BreakIndex)
	})
}

func (s *LedgerSuite) TestUnitChainFiltersByUnit() {
	_, err := s.service.Append(s.ctx, ledger.Payload{Kind: ledger.KindRegistration, UnitID: "BATCH01-1", Timestamp: requestcontext.Now(s.ctx)})
	s.Require().NoError(err)
	_, err = s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", "Bangalore"))
	s.Require().NoError(err)
	_, err = s.service.Append(s.ctx, s.custodyPayload("BATCH01-2", "Mumbai"))
	s.Require().NoError(err)
	_, err = s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", "Chennai"))
	s.Require().NoError(err)

	chain, err := s.service.UnitChain(s.ctx, "BATCH01-1")
	s.Require().NoError(err)
	s.Require().Len(chain, 3)
	for i := 1; i < len(chain); i++ {
		s.Greater(chain[i].Index, chain[i-1].Index)
	}
}

func (s *LedgerSuite) TestUnitEventsSkipRegistrationBlocks() {
	_, err := s.service.Append(s.ctx, ledger.Payload{Kind: ledger.KindRegistration, UnitID: "BATCH01-1", Timestamp: requestcontext.Now(s.ctx)})
	s.Require().NoError(err)
	_, err = s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", "Bangalore"))
	s.Require().NoError(err)
	_, err = s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", "Chennai"))
	s.Require().NoError(err)

	events, err := s.service.UnitEvents(s.ctx, "BATCH01-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("Bangalore", events[0].Location)
	s.Equal("Chennai", events[1].Location)
}

func (s *LedgerSuite) TestAppendAfterRestartResumesChain() {
	_, err := s.service.Append(s.ctx, s.custodyPayload("BATCH01-1", "Bangalore"))
	s.Require().NoError(err)

	// A fresh service over the same store must pick up the persisted tail.
	restarted := ledger.NewService(s.store)
	block, err := restarted.Append(s.ctx, s.custodyPayload("BATCH01-1", "Chennai"))
	s.Require().NoError(err)
	s.Equal(int64(1), block.Index)

	blocks, _ := s.store.Blocks(s.ctx)
	s.True(ledger.VerifyBlocks(blocks).Intact)
}
