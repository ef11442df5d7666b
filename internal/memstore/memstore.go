// Package memstore is an in-memory implementation of the storage interfaces,
// used by the service and acceptance tests. A single mutex serializes every
// operation, which gives the same atomic-unit guarantee the SQL
// transactions provide.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/openvelo/rental-backend/bike"
	"github.com/openvelo/rental-backend/billing"
	"github.com/openvelo/rental-backend/customer"
	"github.com/openvelo/rental-backend/issue"
	"github.com/openvelo/rental-backend/parking"
	"github.com/openvelo/rental-backend/rental"
)

type Store struct {
	mu sync.Mutex

	bikes     map[uuid.UUID]bike.Bike
	bikeOrder []uuid.UUID

	spots     map[uuid.UUID]parking.Spot
	spotOrder []uuid.UUID

	rentals     map[uuid.UUID]rental.Rental
	rentalOrder []uuid.UUID

	customers map[string]customer.Customer

	issues []issue.Issue
}

func New() *Store {
	return &Store{
		bikes:     make(map[uuid.UUID]bike.Bike),
		spots:     make(map[uuid.UUID]parking.Spot),
		rentals:   make(map[uuid.UUID]rental.Rental),
		customers: make(map[string]customer.Customer),
	}
}

var _ rental.Store = (*Store)(nil)
var _ rental.SpotLister = (*Store)(nil)

// ---- bike registry ----

func (s *Store) GetBikes(ctx context.Context) ([]bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bikes := make([]bike.Bike, 0, len(s.bikeOrder))
	for _, id := range s.bikeOrder {
		bikes = append(bikes, s.bikes[id])
	}
	return bikes, nil
}

func (s *Store) GetBike(ctx context.Context, id uuid.UUID) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	return b, nil
}

func (s *Store) CreateBike(ctx context.Context, typ string, pricePerHour int64, status bike.Status, location pgtype.Point) (bike.Bike, error) {
	if pricePerHour <= 0 {
		return bike.Bike{}, bike.ErrInvalidPrice
	}
	if status == bike.Busy {
		return bike.Bike{}, bike.ErrBusyManaged
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := bike.Bike{
		ID:           uuid.New(),
		Type:         typ,
		PricePerHour: pricePerHour,
		Status:       status,
		Location:     location,
	}
	s.bikes[b.ID] = b
	s.bikeOrder = append(s.bikeOrder, b.ID)
	return b, nil
}

func (s *Store) UpdateBike(ctx context.Context, id uuid.UUID, typ string, pricePerHour int64, status bike.Status, location pgtype.Point) (bike.Bike, error) {
	if pricePerHour <= 0 {
		return bike.Bike{}, bike.ErrInvalidPrice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	if b.Status != status {
		if err := s.guardStatusChange(id, status); err != nil {
			return bike.Bike{}, err
		}
	}

	b.Type = typ
	b.PricePerHour = pricePerHour
	b.Status = status
	b.Location = location
	s.bikes[id] = b
	return b, nil
}

func (s *Store) UpdateLocation(ctx context.Context, id uuid.UUID, location pgtype.Point) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	b.Location = location
	s.bikes[id] = b
	return b, nil
}

func (s *Store) OverrideStatus(ctx context.Context, id uuid.UUID, status bike.Status) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	if err := s.guardStatusChange(id, status); err != nil {
		return bike.Bike{}, err
	}
	b.Status = status
	s.bikes[id] = b
	return b, nil
}

func (s *Store) DeleteBike(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bikes[id]; !ok {
		return bike.ErrNotFound
	}
	if s.openRentalForBike(id) != nil {
		return bike.ErrRentalOpen
	}
	delete(s.bikes, id)
	for i, bid := range s.bikeOrder {
		if bid == id {
			s.bikeOrder = append(s.bikeOrder[:i], s.bikeOrder[i+1:]...)
			break
		}
	}
	return nil
}

// guardStatusChange mirrors the SQL registry's admin-override policy;
// callers hold the mutex.
func (s *Store) guardStatusChange(id uuid.UUID, status bike.Status) error {
	if status == bike.Busy {
		return bike.ErrBusyManaged
	}
	if s.openRentalForBike(id) != nil {
		return bike.ErrRentalOpen
	}
	return nil
}

func (s *Store) openRentalForBike(bikeID uuid.UUID) *rental.Rental {
	for _, id := range s.rentalOrder {
		r := s.rentals[id]
		if r.BikeID == bikeID && r.Open() {
			return &r
		}
	}
	return nil
}

func (s *Store) openRentalForCustomer(customerID uuid.UUID) *rental.Rental {
	for _, id := range s.rentalOrder {
		r := s.rentals[id]
		if r.CustomerID == customerID && r.Open() {
			return &r
		}
	}
	return nil
}

// ---- parking directory ----

func (s *Store) GetSpots(ctx context.Context) ([]parking.Spot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spots := make([]parking.Spot, 0, len(s.spotOrder))
	for _, id := range s.spotOrder {
		spots = append(spots, s.spots[id])
	}
	return spots, nil
}

func (s *Store) GetSpot(ctx context.Context, id uuid.UUID) (parking.Spot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spot, ok := s.spots[id]
	if !ok {
		return parking.Spot{}, parking.ErrNotFound
	}
	return spot, nil
}

func (s *Store) CreateSpot(ctx context.Context, name string, location pgtype.Point) (parking.Spot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.spotOrder {
		if s.spots[id].Name == name {
			return parking.Spot{}, parking.ErrDuplicateName
		}
	}
	spot := parking.Spot{ID: uuid.New(), Name: name, Location: location}
	s.spots[spot.ID] = spot
	s.spotOrder = append(s.spotOrder, spot.ID)
	return spot, nil
}

func (s *Store) UpdateSpot(ctx context.Context, id uuid.UUID, name string, location pgtype.Point) (parking.Spot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spot, ok := s.spots[id]
	if !ok {
		return parking.Spot{}, parking.ErrNotFound
	}
	for _, other := range s.spotOrder {
		if other != id && s.spots[other].Name == name {
			return parking.Spot{}, parking.ErrDuplicateName
		}
	}
	spot.Name = name
	spot.Location = location
	s.spots[id] = spot
	return spot, nil
}

func (s *Store) DeleteSpot(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spots[id]; !ok {
		return parking.ErrNotFound
	}
	delete(s.spots, id)
	for i, sid := range s.spotOrder {
		if sid == id {
			s.spotOrder = append(s.spotOrder[:i], s.spotOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ---- rental store ----

func (s *Store) Open(ctx context.Context, r *rental.Rental) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[r.BikeID]
	if !ok {
		return bike.Bike{}, rental.ErrBikeNotFound
	}
	if b.Status != bike.Available {
		return bike.Bike{}, rental.ErrBikeUnavailable
	}
	if s.openRentalForCustomer(r.CustomerID) != nil || s.openRentalForBike(r.BikeID) != nil {
		return bike.Bike{}, rental.ErrRentalConflict
	}

	b.Status = bike.Busy
	s.bikes[b.ID] = b
	s.rentals[r.ID] = *r
	s.rentalOrder = append(s.rentalOrder, r.ID)
	return b, nil
}

func (s *Store) Close(ctx context.Context, rentalID uuid.UUID, endedAt time.Time, description string) (rental.Rental, bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rentals[rentalID]
	if !ok || !r.Open() {
		return rental.Rental{}, bike.Bike{}, rental.ErrNoActiveRental
	}
	b, ok := s.bikes[r.BikeID]
	if !ok {
		return rental.Rental{}, bike.Bike{}, rental.ErrBikeNotFound
	}
	if b.Status != bike.Busy {
		return rental.Rental{}, bike.Bike{}, rental.ErrBikeNotBusy
	}

	r.EndedAt.Time = endedAt
	r.EndedAt.Valid = true
	r.TotalCost.Int64 = billing.Cost(r.StartedAt, endedAt, b.PricePerHour)
	r.TotalCost.Valid = true
	r.Description = description
	s.rentals[rentalID] = r

	b.Status = bike.Available
	s.bikes[b.ID] = b
	return r, b, nil
}

func (s *Store) Bike(ctx context.Context, id uuid.UUID) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, rental.ErrBikeNotFound
	}
	return b, nil
}

func (s *Store) ActiveByCustomer(ctx context.Context, customerID uuid.UUID) (rental.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.openRentalForCustomer(customerID); r != nil {
		return *r, nil
	}
	return rental.Rental{}, rental.ErrNoActiveRental
}

func (s *Store) HistoryByCustomer(ctx context.Context, customerID uuid.UUID) ([]rental.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rentals []rental.Rental
	for i := len(s.rentalOrder) - 1; i >= 0; i-- {
		r := s.rentals[s.rentalOrder[i]]
		if r.CustomerID == customerID {
			rentals = append(rentals, r)
		}
	}
	return rentals, nil
}

// SetRentalStarted rewinds a rental's start time. Test helper for exercising
// multi-hour billing without waiting.
func (s *Store) SetRentalStarted(id uuid.UUID, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rentals[id]
	if !ok {
		return
	}
	r.StartedAt = startedAt
	s.rentals[id] = r
}

// ---- customer directory ----

func (s *Store) GetByAuth0ID(ctx context.Context, auth0ID string) (customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[auth0ID]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	return c, nil
}

func (s *Store) Create(ctx context.Context, auth0ID string) (customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := customer.Customer{ID: uuid.New(), Auth0ID: auth0ID, CreatedAt: time.Now().UTC()}
	s.customers[auth0ID] = c
	return c, nil
}

func (s *Store) AddStripeID(ctx context.Context, auth0ID, stripeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[auth0ID]
	if !ok {
		return customer.ErrNotFound
	}
	c.StripeID.String = stripeID
	c.StripeID.Valid = true
	s.customers[auth0ID] = c
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, auth0ID, email, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[auth0ID]
	if !ok {
		return customer.ErrNotFound
	}
	if email != "" {
		c.Email.String = email
		c.Email.Valid = true
	}
	if name != "" {
		c.Name.String = name
		c.Name.Valid = true
	}
	s.customers[auth0ID] = c
	return nil
}

// ---- issue book ----

func (s *Store) CreateIssue(ctx context.Context, customerID, bikeID uuid.UUID, description string) (issue.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bikes[bikeID]; !ok {
		return issue.Issue{}, issue.ErrBikeNotFound
	}
	i := issue.Issue{
		ID:          uuid.New(),
		CustomerID:  customerID,
		BikeID:      bikeID,
		ReportedAt:  time.Now().UTC(),
		Description: description,
	}
	s.issues = append(s.issues, i)
	return i, nil
}

func (s *Store) IssuesForBike(ctx context.Context, bikeID uuid.UUID) ([]issue.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var issues []issue.Issue
	for i := len(s.issues) - 1; i >= 0; i-- {
		if s.issues[i].BikeID == bikeID {
			issues = append(issues, s.issues[i])
		}
	}
	return issues, nil
}

func (s *Store) IssuesForCustomer(ctx context.Context, customerID uuid.UUID) ([]issue.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var issues []issue.Issue
	for i := len(s.issues) - 1; i >= 0; i-- {
		if s.issues[i].CustomerID == customerID {
			issues = append(issues, s.issues[i])
		}
	}
	return issues, nil
}
