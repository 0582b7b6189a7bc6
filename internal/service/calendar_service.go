package service

import (
	"context"
	"errors"
	"time"

	"residence/internal/models"
	"residence/internal/repo"
	"residence/internal/schedule"
)

const maxCalendarWindow = 62 * 24 * time.Hour

// CalendarService serves read-only views over reservations.
type CalendarService interface {
	ListReservations(ctx context.Context, facilityID string, from, to time.Time) ([]models.Reservation, error)
	FindAvailable(ctx context.Context, q AvailabilityQuery) ([]Availability, error)
}

type AvailabilityQuery struct {
	BuildingID     string
	Start, End     time.Time
	People         int
	TimezoneOffset int
}

type Availability struct {
	Facility models.Facility `json:"facility"`
	// Remaining is the head count still free; nil for exclusive facilities.
	Remaining *int `json:"remaining,omitempty"`
}

type calendarService struct {
	facilities repo.FacilityRepo
	book       repo.ReservationRepo
}

func NewCalendarService(f repo.FacilityRepo, r repo.ReservationRepo) CalendarService {
	return &calendarService{facilities: f, book: r}
}

func checkWindow(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return NewValidation("from and to are required")
	}
	if !from.Before(to) {
		return NewValidation(ErrMsgEndBeforeStart)
	}
	if to.Sub(from) > maxCalendarWindow {
		return NewValidation("window must not exceed 62 days")
	}
	return nil
}

func (s *calendarService) ListReservations(ctx context.Context, facilityID string, from, to time.Time) ([]models.Reservation, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	if _, err := s.facilities.Get(ctx, facilityID); errors.Is(err, repo.ErrNotFound) {
		return nil, NewNotFound(ErrMsgFacilityNotFound)
	} else if err != nil {
		return nil, err
	}
	return s.book.ListActive(ctx, facilityID, from.UTC(), to.UTC())
}

// FindAvailable lists the building's facilities that would not reject a
// request for the interval. Facilities whose hours exclude it are skipped.
func (s *calendarService) FindAvailable(ctx context.Context, q AvailabilityQuery) ([]Availability, error) {
	if q.BuildingID == "" {
		return nil, NewValidation("buildingId is required")
	}
	if err := checkWindow(q.Start, q.End); err != nil {
		return nil, err
	}
	if q.People < 1 {
		q.People = 1
	}
	facilities, err := s.facilities.List(ctx, q.BuildingID)
	if err != nil {
		return nil, err
	}

	out := []Availability{}
	for _, f := range facilities {
		if err := schedule.CheckOperatingHours(f.OperatingHours, q.Start, q.End, q.TimezoneOffset); err != nil {
			continue
		}
		overlaps, err := s.book.FindOverlapping(ctx, f.ID, q.Start.UTC(), q.End.UTC())
		if err != nil {
			return nil, err
		}
		occ := make([]schedule.Occupancy, 0, len(overlaps))
		for _, r := range overlaps {
			occ = append(occ, schedule.OccupancyOf(r, nil))
		}
		a := schedule.Admit(occ, f.EffectiveCapacity(), q.People)
		if a.Conflict() {
			continue
		}
		av := Availability{Facility: f}
		if !a.Exclusive {
			rem := a.Remaining()
			av.Remaining = &rem
		}
		out = append(out, av)
	}
	return out, nil
}
