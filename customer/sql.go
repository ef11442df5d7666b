package customer

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("customer not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetByAuth0ID(ctx context.Context, auth0ID string) (Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, getByAuth0IDQuery, auth0ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return customer, err
}

const getByAuth0IDQuery = `SELECT * FROM customers WHERE auth0_id = $1`

func (r *Repository) Create(ctx context.Context, auth0ID string) (Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, createQuery, uuid.New(), auth0ID)
	return customer, err
}

const createQuery = `INSERT INTO customers (id, auth0_id) VALUES ($1, $2) RETURNING *`

func (r *Repository) AddStripeID(ctx context.Context, auth0ID, stripeID string) error {
	_, err := r.db.ExecContext(ctx, addStripeIDQuery, stripeID, auth0ID)
	return err
}

const addStripeIDQuery = `UPDATE customers SET stripe_id = $1 WHERE auth0_id = $2`

func (r *Repository) UpdateProfile(ctx context.Context, auth0ID, email, name string) error {
	_, err := r.db.ExecContext(ctx, updateProfileQuery, email, name, auth0ID)
	return err
}

const updateProfileQuery = `UPDATE customers SET email = NULLIF($1, ''), name = NULLIF($2, '') WHERE auth0_id = $3`
