package dispatch

import (
	"math"
	"sort"
	"time"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	radLat1 := lat1 * math.Pi / 180
	radLat2 := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(radLat1)*math.Cos(radLat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Candidate is an eligible driver considered for an offer. Location fields
// are nil when the driver has not reported a position.
type Candidate struct {
	DriverID   string
	Name       string
	Latitude   *float64
	Longitude  *float64
	LocatedAt  *time.Time
	DistanceKm float64
}

// rankByDistance keeps candidates with a position fresher than the cutoff and
// orders them nearest-first from the pickup point.
func rankByDistance(candidates []Candidate, pickupLat, pickupLon float64, freshCutoff time.Time) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Latitude == nil || candidate.Longitude == nil || candidate.LocatedAt == nil {
			continue
		}
		if candidate.LocatedAt.Before(freshCutoff) {
			continue
		}
		candidate.DistanceKm = haversineKm(pickupLat, pickupLon, *candidate.Latitude, *candidate.Longitude)
		ranked = append(ranked, candidate)
	}
	sort.Slice(ranked, func(left, right int) bool {
		return ranked[left].DistanceKm < ranked[right].DistanceKm
	})
	return ranked
}
