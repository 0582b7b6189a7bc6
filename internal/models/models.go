package models

import "time"

type User struct {
	ID      string `json:"id"` // hex ObjectID or uuid, depending on the store
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusApproved  ReservationStatus = "approved"
	StatusRejected  ReservationStatus = "rejected"
	StatusCompleted ReservationStatus = "completed"
)

// Active reports whether a reservation with this status holds its interval.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// DayHours is the configured window for one day of the week (0=Sunday..6=Saturday).
type DayHours struct {
	Day       int    `json:"day" bson:"day"`
	OpenTime  string `json:"openTime" bson:"open_time"`
	CloseTime string `json:"closeTime" bson:"close_time"`
	IsClosed  bool   `json:"isClosed" bson:"is_closed"`
}

type Facility struct {
	ID             string     `json:"id"`
	BuildingID     string     `json:"buildingId"`
	Name           string     `json:"name"`
	Capacity       *int       `json:"capacity,omitempty"`
	OperatingHours []DayHours `json:"operatingHours"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// EffectiveCapacity returns 0 for exclusive facilities.
func (f *Facility) EffectiveCapacity() int {
	if f.Capacity == nil || *f.Capacity <= 0 {
		return 0
	}
	return *f.Capacity
}

type Household struct {
	ID         string   `json:"id"`
	BuildingID string   `json:"buildingId"`
	Name       string   `json:"name"`
	Apartment  string   `json:"apartment"`
	MemberIDs  []string `json:"memberIds,omitempty"`
}

type Reservation struct {
	ID             string            `json:"id"`
	FacilityID     string            `json:"facilityId"`
	HouseholdID    string            `json:"householdId"`
	RequestedBy    string            `json:"requestedBy"`
	StartTime      time.Time         `json:"startTime"`
	EndTime        time.Time         `json:"endTime"`
	NumberOfPeople int               `json:"numberOfPeople"`
	Purpose        string            `json:"purpose,omitempty"`
	Status         ReservationStatus `json:"status"`
	AccessCode     string            `json:"accessCode,omitempty"`
	ApprovedBy     string            `json:"approvedBy,omitempty"`
	ApprovedAt     *time.Time        `json:"approvedAt,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// People returns the head count, counting an unset value as one.
func (r *Reservation) People() int {
	if r.NumberOfPeople <= 0 {
		return 1
	}
	return r.NumberOfPeople
}
