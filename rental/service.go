package rental

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openvelo/rental-backend/bike"
	"github.com/openvelo/rental-backend/parking"
)

// Store applies rental state transitions atomically. An implementation must
// guarantee that the bike status flip and the rental row change commit as
// one unit, and that the open-rental uniqueness constraints are enforced at
// the storage level, not by check-then-act.
type Store interface {
	// Open flips the bike to busy and inserts the open rental. It returns
	// ErrBikeNotFound, ErrBikeUnavailable when the bike is not available,
	// or ErrRentalConflict when a uniqueness constraint loses a race.
	Open(ctx context.Context, r *Rental) (bike.Bike, error)
	// Close ends the open rental with the given id: sets ended_at and the
	// description, computes the total cost from the bike's current hourly
	// rate, and flips the bike back to available. Returns ErrNoActiveRental
	// if the rental is no longer open.
	Close(ctx context.Context, rentalID uuid.UUID, endedAt time.Time, description string) (Rental, bike.Bike, error)
	// Bike reads a bike, returning ErrBikeNotFound when absent.
	Bike(ctx context.Context, id uuid.UUID) (bike.Bike, error)
	// ActiveByCustomer returns the customer's open rental or
	// ErrNoActiveRental.
	ActiveByCustomer(ctx context.Context, customerID uuid.UUID) (Rental, error)
	// HistoryByCustomer returns the customer's rentals, newest first.
	HistoryByCustomer(ctx context.Context, customerID uuid.UUID) ([]Rental, error)
}

// SpotLister provides the parking spots used as geofence centers.
type SpotLister interface {
	GetSpots(ctx context.Context) ([]parking.Spot, error)
}

// Publisher broadcasts events to external subscribers. Publish failures must
// never fail the operation that triggered them.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// EventBikeUpdated is broadcast after every bike mutation.
const EventBikeUpdated = "bike:updated"

type Service struct {
	store  Store
	spots  SpotLister
	events Publisher
	logger *slog.Logger
}

func NewService(store Store, spots SpotLister, events Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		spots:  spots,
		events: events,
		logger: logger,
	}
}

// Start opens a rental for the customer on the given bike. The store's
// transaction re-checks availability under lock, so a race loser gets
// ErrBikeUnavailable or ErrRentalConflict rather than a double start.
func (s *Service) Start(ctx context.Context, customerID, bikeID uuid.UUID) (Rental, error) {
	r := Rental{
		ID:         uuid.New(),
		CustomerID: customerID,
		BikeID:     bikeID,
		StartedAt:  time.Now().UTC(),
	}

	b, err := s.store.Open(ctx, &r)
	if err != nil {
		return Rental{}, err
	}

	s.broadcast(b)
	return r, nil
}

// Finish closes the customer's open rental. The bike's current location must
// lie inside some parking geofence; otherwise the rental stays open and the
// caller is expected to move the bike and retry.
func (s *Service) Finish(ctx context.Context, customerID uuid.UUID, description string) (Rental, error) {
	r, err := s.store.ActiveByCustomer(ctx, customerID)
	if err != nil {
		return Rental{}, err
	}

	b, err := s.store.Bike(ctx, r.BikeID)
	if err != nil {
		return Rental{}, err
	}
	if b.Status != bike.Busy {
		return Rental{}, ErrBikeNotBusy
	}

	spots, err := s.spots.GetSpots(ctx)
	if err != nil {
		return Rental{}, err
	}
	if _, ok := parking.EnclosingSpot(b.Point(), spots); !ok {
		return Rental{}, ErrNotInParkingZone
	}

	closed, b, err := s.store.Close(ctx, r.ID, time.Now().UTC(), description)
	if err != nil {
		return Rental{}, err
	}

	s.broadcast(b)
	return closed, nil
}

// Active returns the customer's open rental, or ErrNoActiveRental.
func (s *Service) Active(ctx context.Context, customerID uuid.UUID) (Rental, error) {
	return s.store.ActiveByCustomer(ctx, customerID)
}

// History returns the customer's rentals, newest first.
func (s *Service) History(ctx context.Context, customerID uuid.UUID) ([]Rental, error) {
	return s.store.HistoryByCustomer(ctx, customerID)
}

// broadcast is fire and forget: the operation already committed, so a
// publish failure is only logged.
func (s *Service) broadcast(b bike.Bike) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	go func() {
		defer cancel()
		if err := s.events.Publish(ctx, EventBikeUpdated, Snapshot(b)); err != nil {
			s.logger.Warn("failed to publish bike update", "bikeId", b.ID, "error", err)
		}
	}()
}
