package travel

import "time"

// lowTrafficHour is the local hour used for every departure timestamp, so
// routes are compared under the same (minimal) traffic conditions.
const lowTrafficHour = 2

// nextLowTrafficDeparture returns the next local 2 a.m. strictly after now.
// All pairs of one matrix build share a single departure timestamp.
func nextLowTrafficDeparture(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), lowTrafficHour, 0, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
