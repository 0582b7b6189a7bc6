package schedule

import (
	"time"

	"residence/internal/models"
)

// LatestEnd returns the latest end time among conflicts, or the zero time.
func LatestEnd(conflicts []Occupancy) time.Time {
	var latest time.Time
	for _, c := range conflicts {
		if c.EndTime.After(latest) {
			latest = c.EndTime
		}
	}
	return latest
}

// SlotOf turns the next reservation boundary into a hint. It is not a
// guarantee that the facility is free.
func SlotOf(r *models.Reservation) *Slot {
	if r == nil {
		return nil
	}
	return &Slot{StartTime: r.StartTime, EndTime: r.EndTime}
}
