package rental

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/openvelo/rental-backend/bike"
	"github.com/openvelo/rental-backend/billing"
)

// Repository is the Postgres-backed Store. The open-rental uniqueness
// constraints live in partial unique indexes (see db/schema.sql); the bike
// row is locked FOR UPDATE inside each transition so the status flip and
// the rental row change commit together.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Open(ctx context.Context, rental *Rental) (bike.Bike, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return bike.Bike{}, err
	}
	defer tx.Rollback()

	var b bike.Bike
	err = tx.GetContext(ctx, &b, lockBike, rental.BikeID)
	if errors.Is(err, sql.ErrNoRows) {
		return bike.Bike{}, ErrBikeNotFound
	}
	if err != nil {
		return bike.Bike{}, err
	}
	if b.Status != bike.Available {
		return bike.Bike{}, ErrBikeUnavailable
	}

	err = tx.GetContext(ctx, &b, markBusy, rental.BikeID)
	if err != nil {
		return bike.Bike{}, err
	}

	err = tx.GetContext(ctx, rental, insertRental,
		rental.ID, rental.CustomerID, rental.BikeID, rental.StartedAt)
	if isUniqueViolation(err) {
		return bike.Bike{}, ErrRentalConflict
	}
	if err != nil {
		return bike.Bike{}, err
	}

	return b, tx.Commit()
}

const lockBike = `SELECT * FROM bikes WHERE id = $1 FOR UPDATE`

const markBusy = `UPDATE bikes SET status = 'busy' WHERE id = $1 RETURNING *`

const insertRental = `
INSERT INTO rentals (id, customer_id, bike_id, started_at)
VALUES ($1, $2, $3, $4)
RETURNING *
`

func (r *Repository) Close(ctx context.Context, rentalID uuid.UUID, endedAt time.Time, description string) (Rental, bike.Bike, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Rental{}, bike.Bike{}, err
	}
	defer tx.Rollback()

	var rental Rental
	err = tx.GetContext(ctx, &rental, lockOpenRental, rentalID)
	if errors.Is(err, sql.ErrNoRows) {
		return Rental{}, bike.Bike{}, ErrNoActiveRental
	}
	if err != nil {
		return Rental{}, bike.Bike{}, err
	}

	var b bike.Bike
	err = tx.GetContext(ctx, &b, lockBike, rental.BikeID)
	if errors.Is(err, sql.ErrNoRows) {
		return Rental{}, bike.Bike{}, ErrBikeNotFound
	}
	if err != nil {
		return Rental{}, bike.Bike{}, err
	}
	if b.Status != bike.Busy {
		return Rental{}, bike.Bike{}, ErrBikeNotBusy
	}

	// The cost uses the hourly rate read under lock, so an admin price edit
	// racing this finish cannot split the rate between check and charge.
	cost := billing.Cost(rental.StartedAt, endedAt, b.PricePerHour)

	err = tx.GetContext(ctx, &b, markAvailable, rental.BikeID)
	if err != nil {
		return Rental{}, bike.Bike{}, err
	}

	err = tx.GetContext(ctx, &rental, closeRental, rentalID, endedAt, cost, description)
	if err != nil {
		return Rental{}, bike.Bike{}, err
	}

	return rental, b, tx.Commit()
}

const lockOpenRental = `SELECT * FROM rentals WHERE id = $1 AND ended_at IS NULL FOR UPDATE`

const markAvailable = `UPDATE bikes SET status = 'available' WHERE id = $1 RETURNING *`

const closeRental = `
UPDATE rentals SET ended_at = $2, total_cost = $3, description = $4
WHERE id = $1
RETURNING *
`

func (r *Repository) Bike(ctx context.Context, id uuid.UUID) (bike.Bike, error) {
	var b bike.Bike
	err := r.db.GetContext(ctx, &b, getBike, id)
	if errors.Is(err, sql.ErrNoRows) {
		return bike.Bike{}, ErrBikeNotFound
	}
	return b, err
}

const getBike = `SELECT * FROM bikes WHERE id = $1`

func (r *Repository) ActiveByCustomer(ctx context.Context, customerID uuid.UUID) (Rental, error) {
	var rental Rental
	err := r.db.GetContext(ctx, &rental, activeByCustomer, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return Rental{}, ErrNoActiveRental
	}
	return rental, err
}

const activeByCustomer = `SELECT * FROM rentals WHERE customer_id = $1 AND ended_at IS NULL`

func (r *Repository) HistoryByCustomer(ctx context.Context, customerID uuid.UUID) ([]Rental, error) {
	var rentals []Rental
	err := r.db.SelectContext(ctx, &rentals, historyByCustomer, customerID)
	return rentals, err
}

const historyByCustomer = `SELECT * FROM rentals WHERE customer_id = $1 ORDER BY started_at DESC`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
