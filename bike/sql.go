package bike

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound     = errors.New("bike not found")
	ErrInvalidPrice = errors.New("price per hour must be positive")
	// ErrRentalOpen rejects admin mutations that would orphan an open rental.
	ErrRentalOpen = errors.New("bike has an open rental")
	// ErrBusyManaged rejects setting a bike busy by hand; busy is owned by
	// the rental flow.
	ErrBusyManaged = errors.New("busy status is managed by the rental flow")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBikes(ctx context.Context) ([]Bike, error) {
	var bikes []Bike
	err := r.db.SelectContext(ctx, &bikes, getBikes)
	return bikes, err
}

const getBikes = `SELECT * FROM bikes ORDER BY type, id`

func (r *Repository) GetBike(ctx context.Context, id uuid.UUID) (Bike, error) {
	var bike Bike
	err := r.db.GetContext(ctx, &bike, getBike, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Bike{}, ErrNotFound
	}
	return bike, err
}

const getBike = `SELECT * FROM bikes WHERE id = $1`

func (r *Repository) CreateBike(ctx context.Context, typ string, pricePerHour int64, status Status, location pgtype.Point) (Bike, error) {
	if pricePerHour <= 0 {
		return Bike{}, ErrInvalidPrice
	}
	if status == Busy {
		return Bike{}, ErrBusyManaged
	}

	var bike Bike
	err := r.db.GetContext(ctx, &bike, createBike, uuid.New(), typ, pricePerHour, status, location)
	return bike, err
}

const createBike = `
INSERT INTO bikes (id, type, price_per_hour, status, location)
VALUES ($1, $2, $3, $4, $5)
RETURNING *
`

// UpdateBike is the full admin edit, independent of the rental flow. Status
// changes go through the same guard as OverrideStatus so an open rental is
// never orphaned.
func (r *Repository) UpdateBike(ctx context.Context, id uuid.UUID, typ string, pricePerHour int64, status Status, location pgtype.Point) (Bike, error) {
	if pricePerHour <= 0 {
		return Bike{}, ErrInvalidPrice
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Bike{}, err
	}
	defer tx.Rollback()

	current, err := lockBike(ctx, tx, id)
	if err != nil {
		return Bike{}, err
	}
	if current.Status != status {
		if err := guardStatusChange(ctx, tx, id, status); err != nil {
			return Bike{}, err
		}
	}

	var bike Bike
	err = tx.GetContext(ctx, &bike, updateBike, id, typ, pricePerHour, status, location)
	if err != nil {
		return Bike{}, err
	}

	return bike, tx.Commit()
}

const updateBike = `
UPDATE bikes SET type = $2, price_per_hour = $3, status = $4, location = $5
WHERE id = $1
RETURNING *
`

func (r *Repository) UpdateLocation(ctx context.Context, id uuid.UUID, location pgtype.Point) (Bike, error) {
	var bike Bike
	err := r.db.GetContext(ctx, &bike, updateLocation, id, location)
	if errors.Is(err, sql.ErrNoRows) {
		return Bike{}, ErrNotFound
	}
	return bike, err
}

const updateLocation = `UPDATE bikes SET location = $2 WHERE id = $1 RETURNING *`

// OverrideStatus is the administrative status write used for maintenance and
// off toggling. It refuses to move a bike with an open rental away from busy.
func (r *Repository) OverrideStatus(ctx context.Context, id uuid.UUID, status Status) (Bike, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Bike{}, err
	}
	defer tx.Rollback()

	if _, err := lockBike(ctx, tx, id); err != nil {
		return Bike{}, err
	}
	if err := guardStatusChange(ctx, tx, id, status); err != nil {
		return Bike{}, err
	}

	var bike Bike
	err = tx.GetContext(ctx, &bike, overrideStatus, id, status)
	if err != nil {
		return Bike{}, err
	}

	return bike, tx.Commit()
}

const overrideStatus = `UPDATE bikes SET status = $2 WHERE id = $1 RETURNING *`

func (r *Repository) DeleteBike(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := lockBike(ctx, tx, id); err != nil {
		return err
	}

	var open bool
	if err := tx.GetContext(ctx, &open, hasOpenRental, id); err != nil {
		return err
	}
	if open {
		return ErrRentalOpen
	}

	if _, err := tx.ExecContext(ctx, deleteBike, id); err != nil {
		return err
	}

	return tx.Commit()
}

const deleteBike = `DELETE FROM bikes WHERE id = $1`

func lockBike(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Bike, error) {
	var bike Bike
	err := tx.GetContext(ctx, &bike, lockBikeQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Bike{}, ErrNotFound
	}
	return bike, err
}

const lockBikeQuery = `SELECT * FROM bikes WHERE id = $1 FOR UPDATE`

func guardStatusChange(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status Status) error {
	if status == Busy {
		return ErrBusyManaged
	}

	var open bool
	if err := tx.GetContext(ctx, &open, hasOpenRental, id); err != nil {
		return err
	}
	if open {
		return ErrRentalOpen
	}
	return nil
}

const hasOpenRental = `SELECT EXISTS (SELECT 1 FROM rentals WHERE bike_id = $1 AND ended_at IS NULL)`
