package bike

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/openvelo/rental-backend/geo"
)

// Status is a bike's fleet state. Busy is driven exclusively by the rental
// flow: a bike is busy if and only if exactly one open rental references it.
type Status int

const (
	Available Status = iota
	Busy
	Maintenance
	Off
)

func (s Status) String() string {
	return [...]string{"available", "busy", "maintenance", "off"}[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) Scan(i any) error {
	v, ok := i.(string)
	if !ok {
		if b, ok := i.([]byte); ok {
			v = string(b)
		} else {
			return fmt.Errorf("cannot scan %T into bike status", i)
		}
	}
	parsed, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) Value() (driver.Value, error) {
	return s.String(), nil
}

// ParseStatus converts a wire/database representation into a Status.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "available":
		return Available, nil
	case "busy":
		return Busy, nil
	case "maintenance":
		return Maintenance, nil
	case "off":
		return Off, nil
	}
	return 0, fmt.Errorf("unknown bike status %q", v)
}

// Bike represents a bike in the fleet.
type Bike struct {
	// ID is an internal identifier for a bike
	ID uuid.UUID
	// Type is a free-text category (e.g. "city", "cargo", "e-bike")
	Type string
	// PricePerHour is the hourly rate in cents, always positive
	PricePerHour int64 `db:"price_per_hour"`

	Status Status

	Location pgtype.Point
}

// Point returns the bike's location as a longitude/latitude pair.
func (b Bike) Point() geo.Point {
	return geo.Point{Lng: b.Location.P.X, Lat: b.Location.P.Y}
}
