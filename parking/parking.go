// Package parking owns parking spots and the geofence rules around them.
package parking

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/openvelo/rental-backend/geo"
)

const (
	// GeofenceRadiusMeters is the system-wide return radius applied around
	// every spot equally. It is not per-spot configurable.
	GeofenceRadiusMeters = 50.0

	// NearbyLimit is how many spots the nearby lookup returns.
	NearbyLimit = 3
)

// Spot is a parking spot used as a read-only geofence center.
type Spot struct {
	ID       uuid.UUID
	Name     string
	Location pgtype.Point
}

// Point returns the spot's location as a longitude/latitude pair.
func (s Spot) Point() geo.Point {
	return geo.Point{Lng: s.Location.P.X, Lat: s.Location.P.Y}
}

// EnclosingSpot returns the first spot, in input order, whose geofence
// contains p. When geofences overlap this is not necessarily the nearest
// spot.
func EnclosingSpot(p geo.Point, spots []Spot) (Spot, bool) {
	return geo.FirstWithin(p, spots, Spot.Point, GeofenceRadiusMeters)
}

// NearestSpots returns up to k spots sorted ascending by distance from p.
func NearestSpots(p geo.Point, spots []Spot, k int) []geo.Ranked[Spot] {
	return geo.Nearest(p, spots, Spot.Point, k)
}
