package schedule

import (
	"sort"
	"time"

	"residence/internal/models"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Back-to-back intervals do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Occupancy is an active reservation as seen by the admission policy,
// labelled with its household for conflict reporting.
type Occupancy struct {
	ReservationID  string                   `json:"reservationId"`
	HouseholdID    string                   `json:"householdId"`
	HouseholdName  string                   `json:"householdName,omitempty"`
	Apartment      string                   `json:"apartment,omitempty"`
	StartTime      time.Time                `json:"startTime"`
	EndTime        time.Time                `json:"endTime"`
	NumberOfPeople int                      `json:"numberOfPeople"`
	Status         models.ReservationStatus `json:"status"`
}

// OccupancyOf builds an Occupancy; h may be nil when the household is unknown.
func OccupancyOf(r models.Reservation, h *models.Household) Occupancy {
	o := Occupancy{
		ReservationID:  r.ID,
		HouseholdID:    r.HouseholdID,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		NumberOfPeople: r.People(),
		Status:         r.Status,
	}
	if h != nil {
		o.HouseholdName = h.Name
		o.Apartment = h.Apartment
	}
	return o
}

func (o Occupancy) people() int {
	if o.NumberOfPeople <= 0 {
		return 1
	}
	return o.NumberOfPeople
}

func (o Occupancy) label() string {
	switch {
	case o.HouseholdName != "" && o.Apartment != "":
		return o.HouseholdName + " (" + o.Apartment + ")"
	case o.HouseholdName != "":
		return o.HouseholdName
	case o.Apartment != "":
		return o.Apartment
	}
	return "household " + o.HouseholdID
}

// SortByStart orders reservations by start time, oldest first.
func SortByStart(rs []models.Reservation) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].StartTime.Before(rs[j].StartTime) })
}

func sortOccupancies(os []Occupancy) []Occupancy {
	out := make([]Occupancy, len(os))
	copy(out, os)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}
