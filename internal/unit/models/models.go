package models

import (
	"time"

	"github.com/shopspring/decimal"

	dErrors "meditrace/pkg/domain-errors"
)

// EventType is the closed enumeration of custody event kinds.
type EventType string

const (
	EventProduction           EventType = "production"
	EventQualityCheck         EventType = "quality-check"
	EventDispatch             EventType = "dispatch"
	EventWarehouseReceipt     EventType = "warehouse-receipt"
	EventRetailScan           EventType = "retail-scan"
	EventConsumerVerification EventType = "consumer-verification"
	EventAnomalyFlagged       EventType = "anomaly-flagged"
)

var validEventTypes = map[EventType]bool{
	EventProduction:           true,
	EventQualityCheck:         true,
	EventDispatch:             true,
	EventWarehouseReceipt:     true,
	EventRetailScan:           true,
	EventConsumerVerification: true,
	EventAnomalyFlagged:       true,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return validEventTypes[t]
}

// DateLayout is the wire and fingerprint format for manufacture/expiry dates.
const DateLayout = "2006-01-02"

// Unit is one physically trackable item. Every field is immutable after
// registration; there is no update path anywhere in the system.
type Unit struct {
	UniqueID        string          `json:"unique_id"`
	BatchToken      string          `json:"batch_token"`
	FingerprintHash string          `json:"fingerprint_hash"`
	Name            string          `json:"name"`
	GenericName     string          `json:"generic_name,omitempty"`
	Manufacturer    string          `json:"manufacturer"`
	LicenseNumber   string          `json:"license_number,omitempty"`
	Dosage          string          `json:"dosage,omitempty"`
	Composition     string          `json:"composition,omitempty"`
	MRP             decimal.Decimal `json:"mrp"`
	MfgDate         time.Time       `json:"mfg_date"`
	ExpDate         time.Time       `json:"exp_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsExpired reports whether the unit's expiry date has passed.
func (u *Unit) IsExpired(now time.Time) bool {
	return now.After(u.ExpDate)
}

// Validate checks registration invariants before the unit reaches any store.
func (u *Unit) Validate() error {
	if u.Name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "drug name is required")
	}
	if u.Manufacturer == "" {
		return dErrors.New(dErrors.CodeBadRequest, "manufacturer is required")
	}
	if u.MfgDate.IsZero() || u.ExpDate.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "manufacture and expiry dates are required")
	}
	if !u.ExpDate.After(u.MfgDate) {
		return dErrors.New(dErrors.CodeBadRequest, "expiry date must be after manufacture date")
	}
	if u.MRP.IsNegative() {
		return dErrors.New(dErrors.CodeBadRequest, "mrp must not be negative")
	}
	return nil
}

// CustodyEvent is one recorded movement or handling of a unit. Events are
// appended only; insertion order is the causal order.
type CustodyEvent struct {
	ID           int64     `json:"id"`
	UnitID       string    `json:"unit_id"`
	LocationName string    `json:"location_name"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	EventType    EventType `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
}
