// Package customer maps authenticated Auth0 subjects to internal customer
// rows. Rows are created lazily on a rider's first authenticated call.
package customer

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Customer is a rider known to the system. Auth0ID carries the external
// identity; StripeID is filled the first time billing needs it, and the
// profile fields are backfilled from the userinfo endpoint, so all three
// stay nullable.
type Customer struct {
	ID        uuid.UUID
	Auth0ID   string         `db:"auth0_id"`
	StripeID  sql.NullString `db:"stripe_id"`
	Email     sql.NullString `db:"email"`
	Name      sql.NullString `db:"name"`
	CreatedAt time.Time      `db:"created_at"`
}
