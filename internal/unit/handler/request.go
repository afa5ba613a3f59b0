package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"meditrace/internal/geo"
	"meditrace/internal/unit/models"
	"meditrace/internal/unit/service"
	dErrors "meditrace/pkg/domain-errors"
)

// RegisterBatchRequest is the wire shape of a batch registration.
type RegisterBatchRequest struct {
	Name          string          `json:"name"`
	GenericName   string          `json:"generic_name"`
	Manufacturer  string          `json:"manufacturer"`
	LicenseNumber string          `json:"license_number"`
	Dosage        string          `json:"dosage"`
	Composition   string          `json:"composition"`
	MRP           decimal.Decimal `json:"mrp"`
	MfgDate       string          `json:"mfg_date"`
	ExpDate       string          `json:"exp_date"`
	Quantity      int             `json:"quantity"`
}

// Validate checks wire-level constraints; domain invariants are re-checked by
// the service.
func (r RegisterBatchRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	if r.Manufacturer == "" {
		return dErrors.New(dErrors.CodeBadRequest, "manufacturer is required")
	}
	if r.Quantity < 1 {
		return dErrors.New(dErrors.CodeBadRequest, "quantity must be at least 1")
	}
	if _, err := time.Parse(models.DateLayout, r.MfgDate); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "mfg_date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(models.DateLayout, r.ExpDate); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "exp_date must be YYYY-MM-DD")
	}
	return nil
}

// Registration converts the validated request into the service's input.
func (r RegisterBatchRequest) Registration() service.Registration {
	mfg, _ := time.Parse(models.DateLayout, r.MfgDate)
	exp, _ := time.Parse(models.DateLayout, r.ExpDate)
	return service.Registration{
		Name:          r.Name,
		GenericName:   r.GenericName,
		Manufacturer:  r.Manufacturer,
		LicenseNumber: r.LicenseNumber,
		Dosage:        r.Dosage,
		Composition:   r.Composition,
		MRP:           r.MRP,
		MfgDate:       mfg,
		ExpDate:       exp,
	}
}

// RegisterUnitRequest is the wire shape of a single-unit registration: a
// batch of one without the quantity field.
type RegisterUnitRequest struct {
	Name          string          `json:"name"`
	GenericName   string          `json:"generic_name"`
	Manufacturer  string          `json:"manufacturer"`
	LicenseNumber string          `json:"license_number"`
	Dosage        string          `json:"dosage"`
	Composition   string          `json:"composition"`
	MRP           decimal.Decimal `json:"mrp"`
	MfgDate       string          `json:"mfg_date"`
	ExpDate       string          `json:"exp_date"`
}

// Validate checks wire-level constraints.
func (r RegisterUnitRequest) Validate() error {
	return RegisterBatchRequest{
		Name:         r.Name,
		Manufacturer: r.Manufacturer,
		MfgDate:      r.MfgDate,
		ExpDate:      r.ExpDate,
		Quantity:     1,
	}.Validate()
}

// Registration converts the validated request into the service's input.
func (r RegisterUnitRequest) Registration() service.Registration {
	return RegisterBatchRequest{
		Name:          r.Name,
		GenericName:   r.GenericName,
		Manufacturer:  r.Manufacturer,
		LicenseNumber: r.LicenseNumber,
		Dosage:        r.Dosage,
		Composition:   r.Composition,
		MRP:           r.MRP,
		MfgDate:       r.MfgDate,
		ExpDate:       r.ExpDate,
	}.Registration()
}

// AppendEventRequest is the wire shape of a custody event.
type AppendEventRequest struct {
	Location  string  `json:"location"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	EventType string  `json:"event_type"`
}

// Validate checks wire-level constraints.
func (r AppendEventRequest) Validate() error {
	if r.Location == "" {
		return dErrors.New(dErrors.CodeBadRequest, "location is required")
	}
	if !models.EventType(r.EventType).Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown event type")
	}
	return geo.ValidateCoordinates(r.Latitude, r.Longitude)
}
