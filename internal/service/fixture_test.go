package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"residence/internal/models"
	"residence/internal/repo"
)

var fixedNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type notified struct {
	userIDs  []string
	message  string
	metadata map[string]string
}

type recorder struct {
	mu    sync.Mutex
	calls []notified
}

func (r *recorder) Notify(_ context.Context, userIDs []string, message string, metadata map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notified{userIDs: userIDs, message: message, metadata: metadata})
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fixture struct {
	store     *repo.Store
	notes     *recorder
	svc       ReservationService
	userID    string
	household string
	// exclusive facility open Friday 09:00-18:00
	room string
	// capacity 10, same hours
	gym string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f, err := buildFixture(context.Background())
	require.NoError(t, err)
	return f
}

func buildFixture(ctx context.Context) (*fixture, error) {
	f := &fixture{store: repo.NewMemoryStore(nil), notes: &recorder{}}

	var err error
	if f.userID, err = f.store.Users.Create(ctx, "resident@example.com", "Resident", nil); err != nil {
		return nil, err
	}
	f.household, err = f.store.Households.Create(ctx, &models.Household{
		BuildingID: "b1", Name: "Lee", Apartment: "12A", MemberIDs: []string{f.userID},
	})
	if err != nil {
		return nil, err
	}

	friday := []models.DayHours{{Day: 5, OpenTime: "09:00", CloseTime: "18:00"}, {Day: 0, IsClosed: true}}
	f.room, err = f.store.Facilities.Create(ctx, &models.Facility{BuildingID: "b1", Name: "Meeting Room", OperatingHours: friday})
	if err != nil {
		return nil, err
	}
	capacity := 10
	f.gym, err = f.store.Facilities.Create(ctx, &models.Facility{BuildingID: "b1", Name: "Gym", Capacity: &capacity, OperatingHours: friday})
	if err != nil {
		return nil, err
	}

	f.svc = NewReservationService(f.store.Facilities, f.store.Households, f.store.Reservations, f.notes, nil,
		WithClock(func() time.Time { return fixedNow }))
	return f, nil
}

func (f *fixture) input(facility, start, end string) CreateInput {
	return CreateInput{
		FacilityID:  facility,
		HouseholdID: f.household,
		RequestedBy: f.userID,
		StartTime:   start,
		EndTime:     end,
	}
}

func people(n int) *int { return &n }
