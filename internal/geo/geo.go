// Package geo provides the distance and travel-time primitives shared by
// the candidate generator, scorer, and ETA model. Grounded on the
// haversineDistance helper in the ride-hailing ETA tracker retrieved
// alongside the teacher.
package geo

import (
	"math"

	"github.com/terminal-bench/dispatchengine/internal/domain"
)

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance between two points in km.
// Symmetric and zero iff the points are equal (spec §3).
func Distance(a, b domain.Location) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLng := (b.Lng - a.Lng) * math.Pi / 180.0
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// DefaultAvgSpeedKmh and DefaultTrafficFactor are the baseline parameters
// for a pure-distance travel-time estimate (spec §4.1).
const (
	DefaultAvgSpeedKmh   = 25.0
	DefaultTrafficFactor = 1.2
)

// TravelTimeMinutes returns the rounded travel time in minutes at the given
// average speed and traffic factor. Zero-distance inputs yield exactly 0
// (spec §4.1).
func TravelTimeMinutes(origin, destination domain.Location, avgSpeedKmh, trafficFactor float64) int {
	if avgSpeedKmh <= 0 {
		return 0
	}
	distance := Distance(origin, destination)
	if distance == 0 {
		return 0
	}
	minutes := (distance / avgSpeedKmh) * 60 * trafficFactor
	return int(math.Round(minutes))
}

// WithinRadius filters a mapping of id->location to those within R km of
// target, inclusive (spec §4.1).
func WithinRadius(locations map[string]domain.Location, target domain.Location, radiusKm float64) []string {
	var ids []string
	for id, loc := range locations {
		if Distance(loc, target) <= radiusKm {
			ids = append(ids, id)
		}
	}
	return ids
}
