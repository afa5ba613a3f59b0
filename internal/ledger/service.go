package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	platformmetrics "meditrace/internal/platform/metrics"
	dErrors "meditrace/pkg/domain-errors"
	"meditrace/pkg/platform/sentinel"
	"meditrace/pkg/requestcontext"
)

// Store is the persistence contract for the chain. Implementations must keep
// blocks in strict block_index order and reject index collisions with
// sentinel.ErrConflict.
type Store interface {
	AppendBlock(ctx context.Context, block *Block) error
	Tail(ctx context.Context) (*Block, error)
	Blocks(ctx context.Context) ([]Block, error)
	UnitBlocks(ctx context.Context, unitID string) ([]Block, error)
	Length(ctx context.Context) (int64, error)
}

// Publisher receives every appended block, e.g. for streaming to Kafka.
// Publish failures must not fail the append; the store is the source of truth.
type Publisher interface {
	PublishBlock(ctx context.Context, block *Block) error
}

// Service is the ledger engine. Constructed once per process; the append path
// is a single-writer critical section so two appenders can never read the
// same tail and race to the same index.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *platformmetrics.Metrics
	pub     Publisher
	tracer  trace.Tracer

	mu   sync.Mutex
	tail *Block // cache of the newest block, maintained under mu
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

// WithPublisher attaches a block stream publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// NewService constructs the ledger engine over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tracer: otel.Tracer("meditrace/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append serializes the payload, links it to the current tail and persists
// the new block. The read-tail/compute/persist sequence runs under the append
// lock; the tail cache is refreshed under the same lock.
func (s *Service) Append(ctx context.Context, payload Payload) (*Block, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Append")
	defer span.End()

	encoded, err := EncodePayload(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode block payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tail, err := s.currentTail(ctx)
	if err != nil {
		return nil, err
	}

	block := &Block{
		Index:    0,
		UnitID:   payload.UnitID,
		Payload:  encoded,
		PrevHash: GenesisPrevHash,
		// Postgres keeps microsecond precision; truncate before hashing so a
		// block reloaded from the database recomputes to the same hash.
		Timestamp: requestcontext.Now(ctx).UTC().Truncate(time.Microsecond),
	}
	if tail != nil {
		block.Index = tail.Index + 1
		block.PrevHash = tail.Hash
	}
	block.Hash = ComputeHash(block.Index, block.Payload, block.PrevHash, block.Timestamp)

	if err := s.store.AppendBlock(ctx, block); err != nil {
		// A conflict here means another writer bypassed the lock (e.g. a
		// second process against the same database). Drop the cache so the
		// next append re-reads the true tail.
		s.tail = nil
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "ledger append conflict")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to persist block")
	}
	s.tail = block
	s.metrics.IncBlocksAppended()

	if s.pub != nil {
		if err := s.pub.PublishBlock(ctx, block); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "block publish failed",
				"block_index", block.Index,
				"error", err,
			)
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "block appended",
			"block_index", block.Index,
			"unit_id", block.UnitID,
			"block_hash", block.Hash[:16],
		)
	}

	return block, nil
}

// currentTail returns the cached tail, loading it from the store on a cold
// cache. Callers must hold s.mu.
func (s *Service) currentTail(ctx context.Context) (*Block, error) {
	if s.tail != nil {
		return s.tail, nil
	}
	tail, err := s.store.Tail(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read chain tail")
	}
	s.tail = tail
	return tail, nil
}

// VerifyIntegrity walks the whole chain and reports the first break, if any.
// Failures are reported, never repaired.
func (s *Service) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.VerifyIntegrity")
	defer span.End()

	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return IntegrityReport{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load chain")
	}
	report := VerifyBlocks(blocks)
	if !report.Intact && s.logger != nil {
		s.logger.ErrorContext(ctx, "chain integrity violation",
			"break_index", *report.BreakIndex,
			"length", report.Length,
		)
	}
	return report, nil
}

// UnitChain returns the unit's blocks in block_index order.
func (s *Service) UnitChain(ctx context.Context, unitID string) ([]Block, error) {
	blocks, err := s.store.UnitBlocks(ctx, unitID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load unit chain")
	}
	return blocks, nil
}

// UnitEvents decodes the unit's custody blocks into the ordered event view
// consumed by the anomaly detector and verdict timelines.
func (s *Service) UnitEvents(ctx context.Context, unitID string) ([]CustodyRecord, error) {
	blocks, err := s.UnitChain(ctx, unitID)
	if err != nil {
		return nil, err
	}

	var records []CustodyRecord
	for i := range blocks {
		payload, err := DecodePayload(&blocks[i])
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("corrupt payload at block %d", blocks[i].Index))
		}
		if payload.Kind != KindCustody {
			continue
		}
		records = append(records, CustodyRecord{
			BlockIndex: blocks[i].Index,
			Location:   payload.Location,
			Latitude:   payload.Latitude,
			Longitude:  payload.Longitude,
			EventType:  payload.EventType,
			Timestamp:  payload.Timestamp,
		})
	}
	return records, nil
}

// Status reports chain health for the operational endpoint.
func (s *Service) Status(ctx context.Context) (IntegrityReport, error) {
	return s.VerifyIntegrity(ctx)
}
