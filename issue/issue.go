// Package issue records rider-reported problems with bikes. Issues are
// independent of the rental lifecycle: created once, immutable, kept
// permanently.
package issue

import (
	"time"

	"github.com/google/uuid"
)

type Issue struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID `db:"customer_id"`
	BikeID      uuid.UUID `db:"bike_id"`
	ReportedAt  time.Time `db:"reported_at"`
	Description string
}
