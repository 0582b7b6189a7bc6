package service

import (
	"context"
	"errors"
	"strings"

	"residence/internal/models"
	"residence/internal/repo"
	"residence/internal/schedule"
)

// FacilityService is the admin side: facilities, their hours and households.
type FacilityService interface {
	CreateFacility(ctx context.Context, f *models.Facility) (string, error)
	ListFacilities(ctx context.Context, buildingID string) ([]models.Facility, error)
	SetOperatingHours(ctx context.Context, facilityID string, hours []models.DayHours) error
	CreateHousehold(ctx context.Context, h *models.Household) (string, error)
	AddMember(ctx context.Context, householdID, userID string) error
}

type facilityService struct {
	facilities repo.FacilityRepo
	households repo.HouseholdRepo
	users      repo.UserRepo
}

func NewFacilityService(f repo.FacilityRepo, h repo.HouseholdRepo, u repo.UserRepo) FacilityService {
	return &facilityService{facilities: f, households: h, users: u}
}

func (s *facilityService) CreateFacility(ctx context.Context, f *models.Facility) (string, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" || f.BuildingID == "" {
		return "", NewValidation("name and buildingId are required")
	}
	if f.Capacity != nil {
		if *f.Capacity < 0 {
			return "", NewValidation("capacity cannot be negative")
		}
		if *f.Capacity == 0 {
			f.Capacity = nil // exclusive
		}
	}
	if err := ValidateHours(f.OperatingHours); err != nil {
		return "", err
	}
	return s.facilities.Create(ctx, f)
}

func (s *facilityService) ListFacilities(ctx context.Context, buildingID string) ([]models.Facility, error) {
	return s.facilities.List(ctx, buildingID)
}

func (s *facilityService) SetOperatingHours(ctx context.Context, facilityID string, hours []models.DayHours) error {
	if err := ValidateHours(hours); err != nil {
		return err
	}
	err := s.facilities.SetOperatingHours(ctx, facilityID, hours)
	if errors.Is(err, repo.ErrNotFound) {
		return NewNotFound(ErrMsgFacilityNotFound)
	}
	return err
}

// ValidateHours enforces one entry per weekday and open < close on open days.
func ValidateHours(hours []models.DayHours) error {
	seen := map[int]bool{}
	for _, h := range hours {
		if h.Day < 0 || h.Day > 6 {
			return NewValidationf("day must be 0..6, got %d", h.Day)
		}
		if seen[h.Day] {
			return NewValidationf("duplicate operating hours for day %d", h.Day)
		}
		seen[h.Day] = true
		if h.IsClosed {
			continue
		}
		open, err := schedule.ParseClock(h.OpenTime)
		if err != nil {
			return NewValidationf("day %d: %v", h.Day, err)
		}
		closing, err := schedule.ParseClock(h.CloseTime)
		if err != nil {
			return NewValidationf("day %d: %v", h.Day, err)
		}
		if open >= closing {
			return NewValidationf("day %d: openTime must be before closeTime", h.Day)
		}
	}
	return nil
}

func (s *facilityService) CreateHousehold(ctx context.Context, h *models.Household) (string, error) {
	h.Name = strings.TrimSpace(h.Name)
	if h.BuildingID == "" || h.Name == "" {
		return "", NewValidation("name and buildingId are required")
	}
	for _, uid := range h.MemberIDs {
		if _, err := s.users.GetByID(ctx, uid); errors.Is(err, repo.ErrNotFound) {
			return "", NewNotFound("User " + uid + " not found")
		} else if err != nil {
			return "", err
		}
	}
	return s.households.Create(ctx, h)
}

func (s *facilityService) AddMember(ctx context.Context, householdID, userID string) error {
	if userID == "" {
		return NewValidation("userId is required")
	}
	if _, err := s.users.GetByID(ctx, userID); errors.Is(err, repo.ErrNotFound) {
		return NewNotFound("User not found")
	} else if err != nil {
		return err
	}
	err := s.households.AddMember(ctx, householdID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewNotFound(ErrMsgHouseholdNotFound)
	}
	return err
}
