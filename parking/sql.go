package parking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound      = errors.New("parking spot not found")
	ErrDuplicateName = errors.New("parking spot name already in use")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetSpots(ctx context.Context) ([]Spot, error) {
	var spots []Spot
	err := r.db.SelectContext(ctx, &spots, getSpots)
	return spots, err
}

const getSpots = `SELECT * FROM parking_spots ORDER BY name`

func (r *Repository) GetSpot(ctx context.Context, id uuid.UUID) (Spot, error) {
	var spot Spot
	err := r.db.GetContext(ctx, &spot, getSpot, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Spot{}, ErrNotFound
	}
	return spot, err
}

const getSpot = `SELECT * FROM parking_spots WHERE id = $1`

func (r *Repository) CreateSpot(ctx context.Context, name string, location pgtype.Point) (Spot, error) {
	var spot Spot
	err := r.db.GetContext(ctx, &spot, createSpot, uuid.New(), name, location)
	if isUniqueViolation(err) {
		return Spot{}, ErrDuplicateName
	}
	return spot, err
}

const createSpot = `INSERT INTO parking_spots (id, name, location) VALUES ($1, $2, $3) RETURNING *`

func (r *Repository) UpdateSpot(ctx context.Context, id uuid.UUID, name string, location pgtype.Point) (Spot, error) {
	var spot Spot
	err := r.db.GetContext(ctx, &spot, updateSpot, id, name, location)
	if errors.Is(err, sql.ErrNoRows) {
		return Spot{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return Spot{}, ErrDuplicateName
	}
	return spot, err
}

const updateSpot = `UPDATE parking_spots SET name = $2, location = $3 WHERE id = $1 RETURNING *`

func (r *Repository) DeleteSpot(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, deleteSpot, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const deleteSpot = `DELETE FROM parking_spots WHERE id = $1`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
