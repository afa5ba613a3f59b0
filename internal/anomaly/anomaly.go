// Package anomaly classifies custody transitions as plausible or not: a unit
// that moves faster than freight can fly means the same identifier is being
// scanned in two physically incompatible places.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"meditrace/internal/geo"
	"meditrace/internal/ledger"
	"meditrace/internal/platform/config"
	platformmetrics "meditrace/internal/platform/metrics"
	"meditrace/pkg/requestcontext"
)

// RiskLevel orders anomaly severity: critical > suspicious > low.
type RiskLevel string

const (
	RiskLow        RiskLevel = "low"
	RiskSuspicious RiskLevel = "suspicious"
	RiskCritical   RiskLevel = "critical"
)

// exceeds reports whether l outranks other.
func (l RiskLevel) exceeds(other RiskLevel) bool {
	return rank(l) > rank(other)
}

func rank(l RiskLevel) int {
	switch l {
	case RiskCritical:
		return 2
	case RiskSuspicious:
		return 1
	default:
		return 0
	}
}

// Transition is one offending pair of consecutive custody events.
type Transition struct {
	FromIndex    int64     `json:"from_block_index"`
	ToIndex      int64     `json:"to_block_index"`
	FromLocation string    `json:"from_location"`
	ToLocation   string    `json:"to_location"`
	DistanceKm   float64   `json:"distance_km"`
	ElapsedHours float64   `json:"elapsed_hours"`
	SpeedKmh     float64   `json:"speed_kmh"`
	// Instantaneous marks a positive distance covered in zero elapsed time;
	// SpeedKmh is 0 in that case rather than an infinity.
	Instantaneous bool      `json:"instantaneous,omitempty"`
	Severity      RiskLevel `json:"severity"`
	Reason        string    `json:"reason"`
}

// FrequencyAlert reports a burst of scans of one unit at a single location.
type FrequencyAlert struct {
	Location    string    `json:"location"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Reason      string    `json:"reason"`
}

// RiskReport aggregates every offending transition and frequency alert for a
// unit. It enumerates all findings, not just the first, for audit purposes.
type RiskReport struct {
	UnitID          string           `json:"unit_id"`
	TotalEvents     int              `json:"total_events"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	Transitions     []Transition     `json:"transitions,omitempty"`
	FrequencyAlerts []FrequencyAlert `json:"frequency_alerts,omitempty"`
	Recommendation  string           `json:"recommendation,omitempty"`
	AnalyzedAt      time.Time        `json:"analyzed_at"`
}

// EventSource supplies a unit's ordered custody events; the ledger engine's
// per-unit view implements it.
type EventSource interface {
	UnitEvents(ctx context.Context, unitID string) ([]ledger.CustodyRecord, error)
}

// Detector runs the travel and scan-frequency checks. Analysis is pure and
// repeatable over the same event sequence; recording failed attempts is the
// caller's business.
type Detector struct {
	events  EventSource
	cfg     config.Anomaly
	logger  *slog.Logger
	metrics *platformmetrics.Metrics
}

// Option configures optional detector dependencies.
type Option func(*Detector)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *platformmetrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// NewDetector constructs a detector with the given thresholds.
func NewDetector(events EventSource, cfg config.Anomaly, opts ...Option) *Detector {
	d := &Detector{events: events, cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Analyze retrieves the unit's events and classifies every consecutive
// transition plus the scan-frequency pattern.
func (d *Detector) Analyze(ctx context.Context, unitID string) (*RiskReport, error) {
	events, err := d.events.UnitEvents(ctx, unitID)
	if err != nil {
		return nil, err
	}

	report := d.AnalyzeEvents(unitID, events, requestcontext.Now(ctx))

	for _, t := range report.Transitions {
		d.metrics.IncAnomaly(string(t.Severity))
	}
	if report.RiskLevel != RiskLow && d.logger != nil {
		d.logger.WarnContext(ctx, "anomalies detected",
			"unit_id", unitID,
			"risk_level", report.RiskLevel,
			"transitions", len(report.Transitions),
			"frequency_alerts", len(report.FrequencyAlerts),
		)
	}
	return report, nil
}

// AnalyzeEvents is the pure core of the detector.
func (d *Detector) AnalyzeEvents(unitID string, events []ledger.CustodyRecord, now time.Time) *RiskReport {
	report := &RiskReport{
		UnitID:      unitID,
		TotalEvents: len(events),
		RiskLevel:   RiskLow,
		AnalyzedAt:  now,
	}

	for i := 1; i < len(events); i++ {
		if t := d.classifyTransition(&events[i-1], &events[i]); t != nil {
			report.Transitions = append(report.Transitions, *t)
			if t.Severity.exceeds(report.RiskLevel) {
				report.RiskLevel = t.Severity
			}
		}
	}

	for _, alert := range d.frequencyAlerts(events) {
		report.FrequencyAlerts = append(report.FrequencyAlerts, alert)
		if RiskSuspicious.exceeds(report.RiskLevel) {
			report.RiskLevel = RiskSuspicious
		}
	}

	switch report.RiskLevel {
	case RiskCritical:
		report.Recommendation = "Do not consume. The identifier was scanned in physically incompatible places; a cloned unit is likely in circulation."
	case RiskSuspicious:
		report.Recommendation = "Verify transport documentation and inspect the package before dispensing."
	}
	return report
}

func (d *Detector) classifyTransition(from, to *ledger.CustodyRecord) *Transition {
	distance := geo.DistanceKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	elapsed := to.Timestamp.Sub(from.Timestamp)
	speed, defined := geo.SpeedKmh(distance, elapsed)

	t := Transition{
		FromIndex:    from.BlockIndex,
		ToIndex:      to.BlockIndex,
		FromLocation: from.Location,
		ToLocation:   to.Location,
		DistanceKm:   distance,
		ElapsedHours: elapsed.Hours(),
		SpeedKmh:     speed,
	}

	switch {
	case !defined:
		t.Instantaneous = true
		t.Severity = RiskCritical
		t.Reason = fmt.Sprintf("unit covered %.2f km with no elapsed time", distance)
	case speed > d.cfg.MaxPlausibleSpeedKmh:
		t.Severity = RiskCritical
		t.Reason = fmt.Sprintf("travel speed %.2f km/h exceeds the %.0f km/h plausibility limit", speed, d.cfg.MaxPlausibleSpeedKmh)
	case speed > d.cfg.MaxGroundSpeedKmh && distance > d.cfg.GroundDistanceKm:
		t.Severity = RiskSuspicious
		t.Reason = fmt.Sprintf("ground transport at %.2f km/h over %.2f km; could be air freight", speed, distance)
	default:
		return nil
	}
	return &t
}

// frequencyAlerts finds bursts: ScanFrequencyLimit or more events at one
// location inside a sliding ScanFrequencyWindow.
func (d *Detector) frequencyAlerts(events []ledger.CustodyRecord) []FrequencyAlert {
	if d.cfg.ScanFrequencyLimit < 1 || len(events) < d.cfg.ScanFrequencyLimit {
		return nil
	}

	byLocation := make(map[string][]time.Time)
	for _, e := range events {
		byLocation[e.Location] = append(byLocation[e.Location], e.Timestamp)
	}

	var alerts []FrequencyAlert
	for location, times := range byLocation {
		// Events arrive in insertion order with non-decreasing timestamps,
		// so a two-pointer sweep finds the densest window.
		best := 0
		var start, end time.Time
		lo := 0
		for hi := range times {
			for times[hi].Sub(times[lo]) > d.cfg.ScanFrequencyWindow {
				lo++
			}
			if count := hi - lo + 1; count > best {
				best = count
				start, end = times[lo], times[hi]
			}
		}
		if best >= d.cfg.ScanFrequencyLimit {
			alerts = append(alerts, FrequencyAlert{
				Location:    location,
				Count:       best,
				WindowStart: start,
				WindowEnd:   end,
				Reason:      fmt.Sprintf("unit scanned %d times within %s at one location; possible photocopied code", best, d.cfg.ScanFrequencyWindow),
			})
		}
	}
	return alerts
}
