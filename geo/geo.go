// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"
	"sort"
)

const earthRadiusMeters = 6371000.0

// Point is a longitude/latitude pair in decimal degrees.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// DistanceMeters returns the great-circle (haversine) distance in meters
// between two points. The haversine intermediate is clamped to [0, 1] so
// floating-point overshoot at antipodal or near-zero separations cannot
// push Asin out of its domain.
func DistanceMeters(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	rLat1 := radians(a.Lat)
	rLat2 := radians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	h = math.Min(1, math.Max(0, h))

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// FirstWithin returns the first item, in input order, whose location is at
// most radiusMeters from p. Input order is the tie-break when regions
// overlap; callers must not assume the result is the nearest item.
func FirstWithin[T any](p Point, items []T, at func(T) Point, radiusMeters float64) (T, bool) {
	for _, item := range items {
		if DistanceMeters(p, at(item)) <= radiusMeters {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Ranked pairs an item with its distance from a query point.
type Ranked[T any] struct {
	Item   T
	Meters float64
}

// Nearest returns up to k items sorted ascending by distance from p.
// Equal distances keep their input order.
func Nearest[T any](p Point, items []T, at func(T) Point, k int) []Ranked[T] {
	ranked := make([]Ranked[T], 0, len(items))
	for _, item := range items {
		ranked = append(ranked, Ranked[T]{Item: item, Meters: DistanceMeters(p, at(item))})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Meters < ranked[j].Meters
	})
	if k >= 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
