package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr       string
	AdminToken string

	// PostgresDSN selects the persistent store. Empty means in-memory stores,
	// which is what the test suites and local demos run against.
	PostgresDSN string

	// KafkaBrokers enables the block stream publisher when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// FingerprintNamespace is the fixed tag mixed into every unit fingerprint.
	FingerprintNamespace string

	Anomaly Anomaly

	// TrustSignalTimeout bounds each optional external classifier call.
	TrustSignalTimeout time.Duration
	PackagingCheckURL  string
	BehaviorCheckURL   string
}

// Anomaly holds the detector thresholds. Deployments may tune them; the
// defaults are the calibration the detection rules were written against.
type Anomaly struct {
	MaxPlausibleSpeedKmh float64
	MaxGroundSpeedKmh    float64
	GroundDistanceKm     float64
	ScanFrequencyLimit   int
	ScanFrequencyWindow  time.Duration
}

// DefaultAnomaly returns the stock detector thresholds.
func DefaultAnomaly() Anomaly {
	return Anomaly{
		MaxPlausibleSpeedKmh: 900, // fastest plausible commercial freight transit
		MaxGroundSpeedKmh:    120,
		GroundDistanceKm:     50,
		ScanFrequencyLimit:   10,
		ScanFrequencyWindow:  time.Hour,
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                 envOr("MEDITRACE_ADDR", ":8080"),
		AdminToken:           envOr("MEDITRACE_ADMIN_TOKEN", "dev-admin-token-change-in-production"),
		PostgresDSN:          os.Getenv("MEDITRACE_POSTGRES_DSN"),
		KafkaTopic:           envOr("MEDITRACE_KAFKA_TOPIC", "meditrace.ledger.blocks"),
		FingerprintNamespace: envOr("MEDITRACE_FINGERPRINT_NAMESPACE", "MediTrace"),
		Anomaly:              DefaultAnomaly(),
		TrustSignalTimeout:   envDurationOr("MEDITRACE_TRUST_SIGNAL_TIMEOUT", 2*time.Second),
		PackagingCheckURL:    os.Getenv("MEDITRACE_PACKAGING_CHECK_URL"),
		BehaviorCheckURL:     os.Getenv("MEDITRACE_BEHAVIOR_CHECK_URL"),
	}

	if brokers := os.Getenv("MEDITRACE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	cfg.Anomaly.MaxPlausibleSpeedKmh = envFloatOr("MEDITRACE_MAX_SPEED_KMH", cfg.Anomaly.MaxPlausibleSpeedKmh)
	cfg.Anomaly.MaxGroundSpeedKmh = envFloatOr("MEDITRACE_MAX_GROUND_SPEED_KMH", cfg.Anomaly.MaxGroundSpeedKmh)
	cfg.Anomaly.ScanFrequencyLimit = envIntOr("MEDITRACE_SCAN_FREQUENCY_LIMIT", cfg.Anomaly.ScanFrequencyLimit)
	cfg.Anomaly.ScanFrequencyWindow = envDurationOr("MEDITRACE_SCAN_FREQUENCY_WINDOW", cfg.Anomaly.ScanFrequencyWindow)

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
