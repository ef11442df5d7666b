// Package billing computes rental charges.
package billing

import (
	"math"
	"time"
)

// Cost returns the charge in cents for a rental that ran from startedAt to
// endedAt at the given hourly rate. Elapsed time is rounded up to the next
// whole hour, and any rental bills at least one hour. endedAt is always
// system-generated at finish time; passing an endedAt before startedAt is a
// caller bug.
func Cost(startedAt, endedAt time.Time, pricePerHour int64) int64 {
	if endedAt.Before(startedAt) {
		panic("billing: endedAt before startedAt")
	}
	hours := int64(math.Ceil(endedAt.Sub(startedAt).Hours()))
	if hours < 1 {
		hours = 1
	}
	return hours * pricePerHour
}
