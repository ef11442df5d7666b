// Package rental implements the rental lifecycle: a bike is started into an
// open rental, stays busy while the rental runs, and must be returned inside
// a parking geofence to finish.
package rental

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openvelo/rental-backend/bike"
)

type Rental struct {
	ID         uuid.UUID
	CustomerID uuid.UUID `db:"customer_id"`
	BikeID     uuid.UUID `db:"bike_id"`
	// StartedAt is set at creation and never changes.
	StartedAt time.Time `db:"started_at"`
	// EndedAt and TotalCost are null while the rental is open and are set
	// exactly once, together, at finish.
	EndedAt     sql.NullTime  `db:"ended_at"`
	TotalCost   sql.NullInt64 `db:"total_cost"`
	Description string
}

// Open reports whether the rental is still in progress.
func (r Rental) Open() bool {
	return !r.EndedAt.Valid
}

var (
	ErrBikeNotFound    = errors.New("bike not found")
	ErrBikeUnavailable = errors.New("bike not available")
	ErrBikeNotBusy     = errors.New("bike not busy")
	// ErrRentalConflict is the loser's result when two starts race on the
	// open-rental uniqueness guard.
	ErrRentalConflict = errors.New("an open rental already exists")
	ErrNoActiveRental = errors.New("no active rental")
	// ErrNotInParkingZone is user-correctable: move the bike inside a
	// parking geofence and call finish again.
	ErrNotInParkingZone = errors.New("bike is not inside any parking spot")
)

// BikeSnapshot is the payload broadcast to subscribers after any bike
// mutation.
type BikeSnapshot struct {
	ID           uuid.UUID   `json:"id"`
	Type         string      `json:"type"`
	Status       bike.Status `json:"status"`
	PricePerHour int64       `json:"pricePerHour"`
	Lng          float64     `json:"lng"`
	Lat          float64     `json:"lat"`
}

// Snapshot converts a bike to its broadcast form.
func Snapshot(b bike.Bike) BikeSnapshot {
	return BikeSnapshot{
		ID:           b.ID,
		Type:         b.Type,
		Status:       b.Status,
		PricePerHour: b.PricePerHour,
		Lng:          b.Location.P.X,
		Lat:          b.Location.P.Y,
	}
}
