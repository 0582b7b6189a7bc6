package repo

import (
	"context"
	"time"

	"residence/internal/models"
)

type UserRow struct {
	models.User
	PasswordHash []byte
}

type UserRepo interface {
	Create(ctx context.Context, email, name string, passwordHash []byte) (id string, err error)
	GetByEmail(ctx context.Context, email string) (*UserRow, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// UpsertAdmin creates or promotes the user with email to admin.
	UpsertAdmin(ctx context.Context, email string, passwordHash []byte) error
}

type SessionRepo interface {
	Create(ctx context.Context, token, userID string, expires time.Time) error
	Delete(ctx context.Context, token string) error
	Lookup(ctx context.Context, token string) (userID string, expires time.Time, err error)
}

type FacilityRepo interface {
	Create(ctx context.Context, f *models.Facility) (id string, err error)
	Get(ctx context.Context, id string) (*models.Facility, error)
	// List returns every facility of buildingID, or all when buildingID is empty.
	List(ctx context.Context, buildingID string) ([]models.Facility, error)
	SetOperatingHours(ctx context.Context, id string, hours []models.DayHours) error
}

type HouseholdRepo interface {
	Create(ctx context.Context, h *models.Household) (id string, err error)
	Get(ctx context.Context, id string) (*models.Household, error)
	// GetMany skips ids that do not exist.
	GetMany(ctx context.Context, ids []string) (map[string]*models.Household, error)
	AddMember(ctx context.Context, householdID, userID string) error
	IsMember(ctx context.Context, userID, householdID string) (bool, error)
	ListMembers(ctx context.Context, householdID string) ([]string, error)
}

// ReservationReader answers the scheduling queries. Only pending and
// approved reservations are ever returned.
type ReservationReader interface {
	// FindOverlapping returns reservations with start < end and end > start,
	// ordered by start ascending.
	FindOverlapping(ctx context.Context, facilityID string, start, end time.Time) ([]models.Reservation, error)
	// NextStartingAfter returns the earliest reservation starting strictly
	// after t, or nil.
	NextStartingAfter(ctx context.Context, facilityID string, t time.Time) (*models.Reservation, error)
}

// ReservationTx is the view handed to WithFacilityLock callbacks.
type ReservationTx interface {
	ReservationReader
	// Insert assigns r.ID and CreatedAt when unset.
	Insert(ctx context.Context, r *models.Reservation) error
}

type ReservationRepo interface {
	ReservationReader
	// WithFacilityLock runs fn while no other WithFacilityLock for the same
	// facility can run. Reads and the insert inside fn are atomic with
	// respect to other callers.
	WithFacilityLock(ctx context.Context, facilityID string, fn func(ctx context.Context, tx ReservationTx) error) error
	Get(ctx context.Context, id string) (*models.Reservation, error)
	// ListActive returns pending and approved reservations intersecting
	// [from, to), ordered by start.
	ListActive(ctx context.Context, facilityID string, from, to time.Time) ([]models.Reservation, error)
}

// Store bundles one backend's repositories.
type Store struct {
	Users        UserRepo
	Sessions     SessionRepo
	Facilities   FacilityRepo
	Households   HouseholdRepo
	Reservations ReservationRepo
	Ping         func(ctx context.Context) error
	Close        func(ctx context.Context) error
}

func activeStatuses() []string {
	return []string{string(models.StatusPending), string(models.StatusApproved)}
}
