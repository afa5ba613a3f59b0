// Package geo implements the great-circle distance and travel-speed math the
// anomaly detector runs over custody transitions.
package geo

import (
	"math"
	"time"

	dErrors "meditrace/pkg/domain-errors"
)

// EarthRadiusKm is the mean Earth radius of the spherical approximation.
const EarthRadiusKm = 6371.0

// DistanceKm returns the haversine great-circle distance between two points,
// inputs in degrees. Identical coordinates yield exactly 0.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(rLat1)*math.Cos(rLat2)*sinLon*sinLon

	// Floating-point error can push a marginally outside [0,1] at antipodal
	// or near-identical points, which would turn Sqrt/Atan2 into NaN.
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// SpeedKmh derives travel speed from a distance and elapsed time.
//
// The second return reports whether the speed is defined: false means the
// unit covered a positive distance in zero (or negative) elapsed time, i.e.
// the two scans were effectively simultaneous in different places. Callers
// must treat that as maximally anomalous rather than receiving an Inf/NaN
// that would corrupt aggregation.
func SpeedKmh(distanceKm float64, elapsed time.Duration) (float64, bool) {
	if distanceKm == 0 {
		return 0, true
	}
	if elapsed <= 0 {
		return 0, false
	}
	return distanceKm / elapsed.Hours(), true
}

// ValidateCoordinates rejects out-of-range latitudes/longitudes before they
// reach the ledger.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return dErrors.New(dErrors.CodeBadRequest, "latitude must be within [-90, 90]")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return dErrors.New(dErrors.CodeBadRequest, "longitude must be within [-180, 180]")
	}
	return nil
}
