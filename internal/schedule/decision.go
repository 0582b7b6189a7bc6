package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"residence/internal/models"
)

// RejectionCode is the machine-readable reason a request was refused.
type RejectionCode string

const (
	TimeOccupied     RejectionCode = "TIME_OCCUPIED"
	CapacityExceeded RejectionCode = "CAPACITY_EXCEEDED"
)

// Slot is a suggested interval returned with a rejection.
type Slot struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Conflict is the detail attached to a rejection. Capacity numbers are only
// set, and only encoded, for capacity-bounded facilities; a zero TotalPeople
// is still reported there.
type Conflict struct {
	Reservations         []Occupancy `json:"reservations"`
	TotalPeople          int         `json:"totalPeople"`
	Capacity             int         `json:"capacity"`
	NewReservationPeople int         `json:"newReservationPeople"`
}

func (c Conflict) MarshalJSON() ([]byte, error) {
	reservations := c.Reservations
	if reservations == nil {
		reservations = []Occupancy{}
	}
	if c.Capacity <= 0 {
		return json.Marshal(struct {
			Reservations []Occupancy `json:"reservations"`
		}{reservations})
	}
	type counted Conflict
	cc := counted(c)
	cc.Reservations = reservations
	return json.Marshal(cc)
}

// Decision is one of Approved, Pending or *Rejected.
type Decision interface {
	Status() models.ReservationStatus
	isDecision()
}

type Approved struct {
	AccessCode string
}

type Pending struct {
	Admission Admission
}

type Rejected struct {
	Code          RejectionCode
	Reason        string
	Conflict      Conflict
	NextAvailable *Slot
}

func (Approved) Status() models.ReservationStatus  { return models.StatusApproved }
func (Pending) Status() models.ReservationStatus   { return models.StatusPending }
func (*Rejected) Status() models.ReservationStatus { return models.StatusRejected }

func (Approved) isDecision()  {}
func (Pending) isDecision()   {}
func (*Rejected) isDecision() {}

// Request is everything the policy needs. AccessCode is issued only if the
// outcome is Approved.
type Request struct {
	Capacity   int
	People     int
	Overlaps   []Occupancy
	AccessCode string
}

// Decide applies, in order: exclusive overlap -> reject, capacity exceeded ->
// reject, no overlap -> approve, overlap within capacity -> pending.
func Decide(req Request) Decision {
	overlaps := sortOccupancies(req.Overlaps)
	a := Admit(overlaps, req.Capacity, req.People)

	switch {
	case a.Exclusive && a.HasOverlap:
		return &Rejected{
			Code:     TimeOccupied,
			Reason:   "Time slot occupied by " + overlaps[0].label(),
			Conflict: Conflict{Reservations: overlaps},
		}
	case !a.Exclusive && a.CapacityExceeded:
		return &Rejected{
			Code: CapacityExceeded,
			Reason: fmt.Sprintf("Facility capacity exceeded: %d of %d spots already taken, %d requested",
				a.TotalPeople, a.Capacity, a.Requested),
			Conflict: Conflict{
				Reservations:         overlaps,
				TotalPeople:          a.TotalPeople,
				Capacity:             a.Capacity,
				NewReservationPeople: a.Requested,
			},
		}
	case !a.HasOverlap:
		return Approved{AccessCode: req.AccessCode}
	default:
		return Pending{Admission: a}
	}
}
