package issue

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// ErrBikeNotFound surfaces a report against a bike that does not exist.
var ErrBikeNotFound = errors.New("bike not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateIssue(ctx context.Context, customerID, bikeID uuid.UUID, description string) (Issue, error) {
	var issue Issue
	err := r.db.GetContext(ctx, &issue, createIssue, uuid.New(), customerID, bikeID, description)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return Issue{}, ErrBikeNotFound
	}
	return issue, err
}

const createIssue = `
INSERT INTO issues (id, customer_id, bike_id, reported_at, description)
VALUES ($1, $2, $3, now(), $4)
RETURNING *
`

func (r *Repository) IssuesForBike(ctx context.Context, bikeID uuid.UUID) ([]Issue, error) {
	var issues []Issue
	err := r.db.SelectContext(ctx, &issues, issuesForBike, bikeID)
	return issues, err
}

const issuesForBike = `SELECT * FROM issues WHERE bike_id = $1 ORDER BY reported_at DESC`

func (r *Repository) IssuesForCustomer(ctx context.Context, customerID uuid.UUID) ([]Issue, error) {
	var issues []Issue
	err := r.db.SelectContext(ctx, &issues, issuesForCustomer, customerID)
	return issues, err
}

const issuesForCustomer = `SELECT * FROM issues WHERE customer_id = $1 ORDER BY reported_at DESC`
