package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"residence/internal/models"
	"residence/internal/notify"
	"residence/internal/repo"
	"residence/internal/schedule"
	"residence/pkg/accesscode"
)

const (
	maxOffsetMinutes = 14 * 60
	rejectionTag     = "[Auto-rejected] "
)

type ReservationService interface {
	// Create decides and persists exactly one reservation for the request.
	// Rejections are reported through Result, not as errors.
	Create(ctx context.Context, in CreateInput) (*Result, error)
	Get(ctx context.Context, caller *models.User, id string) (*models.Reservation, error)
	AccessCodePNG(ctx context.Context, caller *models.User, id string) ([]byte, error)
}

type CreateInput struct {
	FacilityID     string
	HouseholdID    string
	RequestedBy    string
	StartTime      string // RFC 3339
	EndTime        string
	TimezoneOffset int // minutes added to UTC to get the caller's wall clock
	NumberOfPeople *int
	Purpose        string
	Notes          string
}

type Result struct {
	Reservation *models.Reservation
	Decision    schedule.Decision
}

func (r *Result) AutoApproved() bool {
	_, ok := r.Decision.(schedule.Approved)
	return ok
}

// Rejection returns the rejection detail, or nil when the request was admitted.
func (r *Result) Rejection() *schedule.Rejected {
	rej, _ := r.Decision.(*schedule.Rejected)
	return rej
}

type Option func(*reservationService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *reservationService) { s.now = now }
}

func WithAccessCodes(gen func() (string, error)) Option {
	return func(s *reservationService) { s.newCode = gen }
}

type reservationService struct {
	facilities repo.FacilityRepo
	households repo.HouseholdRepo
	book       repo.ReservationRepo
	notifier   notify.Dispatcher
	log        *zap.Logger
	now        func() time.Time
	newCode    func() (string, error)
}

func NewReservationService(f repo.FacilityRepo, h repo.HouseholdRepo, r repo.ReservationRepo, n notify.Dispatcher, log *zap.Logger, opts ...Option) ReservationService {
	if n == nil {
		n = notify.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &reservationService{
		facilities: f,
		households: h,
		book:       r,
		notifier:   n,
		log:        log,
		now:        time.Now,
		newCode:    accesscode.Generate,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type interval struct {
	start, end time.Time
	people     int
}

func (s *reservationService) validate(in CreateInput) (interval, error) {
	var iv interval
	if in.FacilityID == "" || in.HouseholdID == "" || in.StartTime == "" || in.EndTime == "" {
		return iv, NewValidation(ErrMsgMissingFields)
	}
	start, err := time.Parse(time.RFC3339, in.StartTime)
	if err != nil {
		return iv, NewValidationf("Invalid startTime %q", in.StartTime)
	}
	end, err := time.Parse(time.RFC3339, in.EndTime)
	if err != nil {
		return iv, NewValidationf("Invalid endTime %q", in.EndTime)
	}
	iv.start, iv.end = start.UTC(), end.UTC()
	if !iv.start.Before(iv.end) {
		return iv, NewValidation(ErrMsgEndBeforeStart)
	}
	if !iv.start.After(s.now()) {
		return iv, NewValidation(ErrMsgStartInPast)
	}
	if in.TimezoneOffset < -maxOffsetMinutes || in.TimezoneOffset > maxOffsetMinutes {
		return iv, NewValidation(ErrMsgBadOffset)
	}
	iv.people = 1
	if in.NumberOfPeople != nil {
		if *in.NumberOfPeople < 1 {
			return iv, NewValidation(ErrMsgBadPeople)
		}
		iv.people = *in.NumberOfPeople
	}
	return iv, nil
}

// admit checks building affinity and membership, then operating hours.
func (s *reservationService) admit(ctx context.Context, in CreateInput, iv interval) (*models.Facility, error) {
	facility, err := s.facilities.Get(ctx, in.FacilityID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, NewNotFound(ErrMsgFacilityNotFound)
	}
	if err != nil {
		return nil, err
	}
	household, err := s.households.Get(ctx, in.HouseholdID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, NewNotFound(ErrMsgHouseholdNotFound)
	}
	if err != nil {
		return nil, err
	}
	if household.BuildingID != facility.BuildingID {
		return nil, NewMembership(ErrMsgWrongBuilding)
	}
	member, err := s.households.IsMember(ctx, in.RequestedBy, in.HouseholdID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, NewMembership(ErrMsgNotMember)
	}

	err = schedule.CheckOperatingHours(facility.OperatingHours, iv.start, iv.end, in.TimezoneOffset)
	var v *schedule.HoursViolation
	switch {
	case errors.As(err, &v) && v.Kind == schedule.ClosedDay:
		return nil, &Error{Code: CodeClosedDay, Message: ErrMsgClosedDay, Details: v.Error()}
	case errors.As(err, &v):
		return nil, &Error{Code: CodeOutsideHours, Message: ErrMsgOutsideHours,
			Details: fmt.Sprintf("%s (operating hours %s)", v.Error(), v.Window())}
	case err != nil:
		return nil, fmt.Errorf("facility %s: %w", facility.ID, err)
	}
	return facility, nil
}

func (s *reservationService) Create(ctx context.Context, in CreateInput) (*Result, error) {
	iv, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	facility, err := s.admit(ctx, in, iv)
	if err != nil {
		return nil, err
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}

	var result *Result
	var seen int
	err = s.book.WithFacilityLock(ctx, facility.ID, func(ctx context.Context, tx repo.ReservationTx) error {
		overlaps, err := tx.FindOverlapping(ctx, facility.ID, iv.start, iv.end)
		if err != nil {
			return err
		}
		seen = len(overlaps)
		occupancy, err := s.occupancy(ctx, overlaps)
		if err != nil {
			return err
		}

		decision := schedule.Decide(schedule.Request{
			Capacity:   facility.EffectiveCapacity(),
			People:     iv.people,
			Overlaps:   occupancy,
			AccessCode: code,
		})

		now := s.now().UTC()
		res := &models.Reservation{
			FacilityID:     facility.ID,
			HouseholdID:    in.HouseholdID,
			RequestedBy:    in.RequestedBy,
			StartTime:      iv.start,
			EndTime:        iv.end,
			NumberOfPeople: iv.people,
			Purpose:        strings.TrimSpace(in.Purpose),
			Status:         decision.Status(),
			Notes:          in.Notes,
			CreatedAt:      now,
		}
		switch d := decision.(type) {
		case schedule.Approved:
			res.AccessCode = d.AccessCode
			res.ApprovedBy = in.RequestedBy
			res.ApprovedAt = &now
		case *schedule.Rejected:
			res.Notes = appendRejection(in.Notes, d.Reason)
			// the hint follows the latest conflicting end; with nothing
			// overlapping there is no boundary to suggest
			if len(d.Conflict.Reservations) == 0 {
				break
			}
			next, err := tx.NextStartingAfter(ctx, facility.ID, schedule.LatestEnd(d.Conflict.Reservations))
			if err != nil {
				return err
			}
			d.NextAvailable = schedule.SlotOf(next)
		}

		if err := tx.Insert(ctx, res); err != nil {
			return err
		}
		result = &Result{Reservation: res, Decision: decision}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reservation decided",
		zap.String("reservation_id", result.Reservation.ID),
		zap.String("facility_id", facility.ID),
		zap.String("household_id", in.HouseholdID),
		zap.String("outcome", string(result.Reservation.Status)),
		zap.Int("people", iv.people),
		zap.Int("overlaps", seen),
	)

	if result.AutoApproved() {
		s.notifyApproved(ctx, facility, result.Reservation)
	}
	return result, nil
}

func (s *reservationService) occupancy(ctx context.Context, overlaps []models.Reservation) ([]schedule.Occupancy, error) {
	if len(overlaps) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(overlaps))
	for _, r := range overlaps {
		ids = append(ids, r.HouseholdID)
	}
	households, err := s.households.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]schedule.Occupancy, 0, len(overlaps))
	for _, r := range overlaps {
		out = append(out, schedule.OccupancyOf(r, households[r.HouseholdID]))
	}
	return out, nil
}

func appendRejection(notes, reason string) string {
	if strings.TrimSpace(notes) == "" {
		return rejectionTag + reason
	}
	return notes + "\n" + rejectionTag + reason
}

func (s *reservationService) notifyApproved(ctx context.Context, facility *models.Facility, r *models.Reservation) {
	members, err := s.households.ListMembers(ctx, r.HouseholdID)
	if err != nil {
		s.log.Warn("list household members", zap.String("household_id", r.HouseholdID), zap.Error(err))
		return
	}
	if len(members) == 0 {
		return
	}
	msg := fmt.Sprintf("%s is booked for %s to %s. Access code: %s",
		facility.Name, r.StartTime.Format(time.RFC3339), r.EndTime.Format(time.RFC3339), r.AccessCode)
	meta := map[string]string{
		"type":          "reservation_approved",
		"reservationId": r.ID,
		"facilityId":    r.FacilityID,
		"startTime":     r.StartTime.Format(time.RFC3339),
		"endTime":       r.EndTime.Format(time.RFC3339),
		"accessCode":    r.AccessCode,
	}
	if err := s.notifier.Notify(ctx, members, msg, meta); err != nil {
		s.log.Warn("notify household", zap.String("reservation_id", r.ID), zap.Error(err))
	}
}

func (s *reservationService) Get(ctx context.Context, caller *models.User, id string) (*models.Reservation, error) {
	r, err := s.book.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, NewNotFound("Reservation not found")
	}
	if err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, NewUnauthorized("not logged in")
	}
	if !caller.IsAdmin {
		ok, err := s.households.IsMember(ctx, caller.ID, r.HouseholdID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewForbidden("Reservation belongs to another household")
		}
	}
	return r, nil
}

func (s *reservationService) AccessCodePNG(ctx context.Context, caller *models.User, id string) ([]byte, error) {
	r, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusApproved || r.AccessCode == "" {
		return nil, NewNotFound("Reservation has no access code")
	}
	return accesscode.QRCode(r.ID, r.AccessCode, 256)
}
