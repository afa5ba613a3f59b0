// Package service implements the verification orchestrator: one scanned
// identifier in, one verdict out, with every non-authentic outcome leaving a
// failed-attempt audit record behind.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"meditrace/internal/anomaly"
	"meditrace/internal/ledger"
	platformmetrics "meditrace/internal/platform/metrics"
	unitmodels "meditrace/internal/unit/models"
	"meditrace/internal/verification/models"
	"meditrace/internal/verification/trust"
	dErrors "meditrace/pkg/domain-errors"
	"meditrace/pkg/platform/sentinel"
	"meditrace/pkg/requestcontext"
)

// scannedIDPattern matches issued identifiers: an alphanumeric batch token,
// a dash, and a 1-based sequence number. Mirrors the envelope GenerateUniqueID
// enforces at registration, so everything registrable is scannable.
var scannedIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,32}-[1-9][0-9]*$`)

// UnitSource is the read slice of the unit store the orchestrator needs.
type UnitSource interface {
	FindByUniqueID(ctx context.Context, uniqueID string) (*unitmodels.Unit, error)
}

// Chain is the read slice of the ledger engine.
type Chain interface {
	VerifyIntegrity(ctx context.Context) (ledger.IntegrityReport, error)
	UnitEvents(ctx context.Context, unitID string) ([]ledger.CustodyRecord, error)
}

// RiskAnalyzer produces the anomaly report for a unit.
type RiskAnalyzer interface {
	Analyze(ctx context.Context, unitID string) (*anomaly.RiskReport, error)
}

// AttemptStore records failed verification attempts.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *models.FailedAttempt) error
}

// Service orchestrates verification.
type Service struct {
	units    UnitSource
	chain    Chain
	risk     RiskAnalyzer
	attempts AttemptStore

	signals       []trust.Signal
	signalTimeout time.Duration

	logger  *slog.Logger
	metrics *platformmetrics.Metrics
	tracer  trace.Tracer
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

// WithTrustSignals attaches the optional external classifiers. timeout bounds
// each verification's whole signal fan-out.
func WithTrustSignals(timeout time.Duration, signals ...trust.Signal) Option {
	return func(s *Service) {
		s.signals = signals
		s.signalTimeout = timeout
	}
}

// NewService constructs the verification orchestrator.
func NewService(units UnitSource, chain Chain, risk RiskAnalyzer, attempts AttemptStore, opts ...Option) *Service {
	s := &Service{
		units:         units,
		chain:         chain,
		risk:          risk,
		attempts:      attempts,
		signalTimeout: 2 * time.Second,
		tracer:        otel.Tracer("meditrace/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify resolves a scanned identifier to a verdict. Storage failures surface
// as errors; everything else is a verdict, including fake.
func (s *Service) Verify(ctx context.Context, scannedID string) (*models.Verdict, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Verify")
	defer span.End()

	started := time.Now()
	verdict, err := s.verify(ctx, scannedID)
	if err != nil {
		return nil, err
	}
	s.metrics.IncVerification(string(verdict.Status))
	s.metrics.ObserveVerifyDuration(time.Since(started))

	if s.logger != nil {
		s.logger.InfoContext(ctx, "verification complete",
			"scanned_id", scannedID,
			"status", verdict.Status,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return verdict, nil
}

func (s *Service) verify(ctx context.Context, scannedID string) (*models.Verdict, error) {
	now := requestcontext.Now(ctx)
	verdict := &models.Verdict{ScannedID: scannedID, VerifiedAt: now}

	if !scannedIDPattern.MatchString(scannedID) {
		verdict.Status = models.StatusFake
		verdict.Reason = "identifier does not match any issued format"
		s.recordAttempt(ctx, scannedID, models.AttemptNotFound, verdict.Reason, now)
		return verdict, nil
	}

	unit, err := s.units.FindByUniqueID(ctx, scannedID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			verdict.Status = models.StatusFake
			verdict.Reason = "no registered unit carries this identifier"
			s.recordAttempt(ctx, scannedID, models.AttemptNotFound, verdict.Reason, now)
			return verdict, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load unit")
	}

	integrity, err := s.chain.VerifyIntegrity(ctx)
	if err != nil {
		return nil, err
	}
	if !integrity.Intact {
		verdict.Status = models.StatusFake
		verdict.Reason = fmt.Sprintf("provenance chain integrity is broken at block %d", *integrity.BreakIndex)
		s.recordAttempt(ctx, scannedID, models.AttemptIntegrityViolation, verdict.Reason, now)
		return verdict, nil
	}

	timeline, err := s.chain.UnitEvents(ctx, unit.UniqueID)
	if err != nil {
		return nil, err
	}
	verdict.Unit = unit
	verdict.Timeline = timeline
	verdict.Expired = unit.IsExpired(now)

	report, err := s.risk.Analyze(ctx, unit.UniqueID)
	if err != nil {
		return nil, err
	}

	switch report.RiskLevel {
	case anomaly.RiskCritical, anomaly.RiskSuspicious:
		verdict.Status = models.StatusSuspicious
		verdict.Risk = report
		verdict.Reason = report.Recommendation
		s.recordAttempt(ctx, scannedID, models.AttemptAnomalyDetected,
			fmt.Sprintf("custody trail flagged %s", report.RiskLevel), now)
	default:
		verdict.Status = models.StatusAuthentic
		if verdict.Expired {
			verdict.Reason = "unit is genuine but past its expiry date"
		}
	}

	verdict.TrustSignals = s.gatherSignals(ctx, unit.UniqueID)
	return verdict, nil
}

// gatherSignals fans the optional classifiers out concurrently. A signal that
// errors or times out reports unavailable; it cannot flip a verdict to fake.
func (s *Service) gatherSignals(ctx context.Context, unitID string) []models.TrustSignal {
	if len(s.signals) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
	defer cancel()

	results := make([]models.TrustSignal, len(s.signals))
	g, ctx := errgroup.WithContext(ctx)
	for i, sig := range s.signals {
		g.Go(func() error {
			result, err := sig.Check(ctx, unitID)
			if err != nil {
				if s.logger != nil {
					s.logger.WarnContext(ctx, "trust signal unavailable",
						"signal", sig.Name(),
						"error", err,
					)
				}
				results[i] = models.TrustSignal{Name: sig.Name(), State: models.SignalUnavailable}
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) recordAttempt(ctx context.Context, scannedID string, attemptType models.AttemptType, reason string, now time.Time) {
	attempt := &models.FailedAttempt{
		ScannedID:   scannedID,
		AttemptType: attemptType,
		Reason:      reason,
		ClientIP:    requestcontext.ClientIP(ctx),
		Timestamp:   now,
	}
	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		// The verdict still stands; losing an audit row is logged, not fatal.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to record attempt",
				"scanned_id", scannedID,
				"attempt_type", attemptType,
				"error", err,
			)
		}
		return
	}
	s.metrics.IncFailedAttempt(string(attemptType))
}

// AnalyzeAnomalies returns the risk report for a registered unit.
func (s *Service) AnalyzeAnomalies(ctx context.Context, uniqueID string) (*anomaly.RiskReport, error) {
	if _, err := s.units.FindByUniqueID(ctx, uniqueID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unit is not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load unit")
	}
	return s.risk.Analyze(ctx, uniqueID)
}

// ChainStatus reports whole-chain integrity.
func (s *Service) ChainStatus(ctx context.Context) (ledger.IntegrityReport, error) {
	return s.chain.VerifyIntegrity(ctx)
}
