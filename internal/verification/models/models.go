// Package models defines verification verdicts and the failed-attempt audit
// record. Every unsuccessful verification leaves an attempt row so counterfeit
// hotspots can be mapped after the fact.
package models

import (
	"time"

	"meditrace/internal/anomaly"
	"meditrace/internal/ledger"
	unitmodels "meditrace/internal/unit/models"
)

// Status is the verdict discriminant.
type Status string

const (
	StatusAuthentic  Status = "authentic"
	StatusSuspicious Status = "suspicious"
	StatusFake       Status = "fake"
)

// AttemptType classifies why a verification did not come back authentic.
type AttemptType string

const (
	// AttemptNotFound covers malformed identifiers and identifiers with no
	// registered unit behind them.
	AttemptNotFound AttemptType = "not-found"
	// AttemptIntegrityViolation marks a scan that hit a broken hash chain.
	AttemptIntegrityViolation AttemptType = "integrity-violation"
	// AttemptAnomalyDetected marks a scan of a unit with a flagged custody trail.
	AttemptAnomalyDetected AttemptType = "anomaly-detected"
)

// FailedAttempt is the audit record written for every non-authentic scan.
type FailedAttempt struct {
	ID          int64       `json:"id"`
	ScannedID   string      `json:"scanned_id"`
	AttemptType AttemptType `json:"attempt_type"`
	Reason      string      `json:"reason,omitempty"`
	ClientIP    string      `json:"client_ip,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// SignalState describes the outcome of one optional trust signal.
type SignalState string

const (
	SignalPassed      SignalState = "passed"
	SignalFlagged     SignalState = "flagged"
	SignalUnavailable SignalState = "unavailable"
)

// TrustSignal is the per-signal slice of a verdict. A signal that times out or
// errors reports unavailable; it never downgrades the verdict on its own.
type TrustSignal struct {
	Name    string      `json:"name"`
	State   SignalState `json:"state"`
	Details string      `json:"details,omitempty"`
}

// Verdict is the complete answer to one scan.
type Verdict struct {
	Status    Status `json:"status"`
	ScannedID string `json:"scanned_id"`
	Reason    string `json:"reason,omitempty"`

	// Unit and Timeline are populated for authentic and suspicious verdicts.
	Unit     *unitmodels.Unit       `json:"unit,omitempty"`
	Timeline []ledger.CustodyRecord `json:"timeline,omitempty"`
	Expired  bool                   `json:"expired,omitempty"`

	// Risk carries the anomaly report when the verdict is suspicious.
	Risk *anomaly.RiskReport `json:"risk,omitempty"`

	TrustSignals []TrustSignal `json:"trust_signals,omitempty"`
	VerifiedAt   time.Time     `json:"verified_at"`
}
