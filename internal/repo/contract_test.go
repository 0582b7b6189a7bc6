package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"residence/internal/models"
)

// missingID parses as an ObjectID on Mongo and matches nothing anywhere.
const missingID = "000000000000000000000000"

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, s *Store) {
	ctx := context.Background()

	uid, err := s.Users.Create(ctx, "Ann@Example.com", "Ann", []byte("hash"))
	require.NoError(t, err)
	_, err = s.Users.Create(ctx, "ann@example.com", "Dup", []byte("hash"))
	assert.ErrorIs(t, err, ErrDuplicate)

	row, err := s.Users.GetByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, uid, row.ID)
	require.NoError(t, s.Users.UpsertAdmin(ctx, "ann@example.com", []byte("new")))
	u, err := s.Users.GetByID(ctx, uid)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)

	capacity := 10
	f := &models.Facility{BuildingID: "b1", Name: "Gym", Capacity: &capacity,
		OperatingHours: []models.DayHours{{Day: 5, OpenTime: "09:00", CloseTime: "18:00"}}}
	fid, err := s.Facilities.Create(ctx, f)
	require.NoError(t, err)
	got, err := s.Facilities.Get(ctx, fid)
	require.NoError(t, err)
	assert.Equal(t, 10, got.EffectiveCapacity())
	require.Len(t, got.OperatingHours, 1)
	assert.Equal(t, "18:00", got.OperatingHours[0].CloseTime)

	require.NoError(t, s.Facilities.SetOperatingHours(ctx, fid, []models.DayHours{{Day: 0, IsClosed: true}}))
	got, err = s.Facilities.Get(ctx, fid)
	require.NoError(t, err)
	assert.True(t, got.OperatingHours[0].IsClosed)

	list, err := s.Facilities.List(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = s.Facilities.List(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, list)

	h := &models.Household{BuildingID: "b1", Name: "Smith", Apartment: "4B"}
	hid, err := s.Households.Create(ctx, h)
	require.NoError(t, err)
	ok, err := s.Households.IsMember(ctx, uid, hid)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.Households.AddMember(ctx, hid, uid))
	require.NoError(t, s.Households.AddMember(ctx, hid, uid))
	ok, err = s.Households.IsMember(ctx, uid, hid)
	require.NoError(t, err)
	assert.True(t, ok)
	members, err := s.Households.ListMembers(ctx, hid)
	require.NoError(t, err)
	assert.Equal(t, []string{uid}, members)
	many, err := s.Households.GetMany(ctx, []string{hid})
	require.NoError(t, err)
	assert.Equal(t, "4B", many[hid].Apartment)

	insert := func(start, end string, status models.ReservationStatus, people int) *models.Reservation {
		r := &models.Reservation{FacilityID: fid, HouseholdID: hid, RequestedBy: uid,
			StartTime: at(start), EndTime: at(end), NumberOfPeople: people, Status: status}
		err := s.Reservations.WithFacilityLock(ctx, fid, func(ctx context.Context, tx ReservationTx) error {
			return tx.Insert(ctx, r)
		})
		require.NoError(t, err)
		require.NotEmpty(t, r.ID)
		return r
	}
	late := insert("2025-01-10T11:00:00Z", "2025-01-10T12:00:00Z", models.StatusPending, 2)
	early := insert("2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z", models.StatusApproved, 4)
	insert("2025-01-10T09:30:00Z", "2025-01-10T10:30:00Z", models.StatusRejected, 1)
	next := insert("2025-01-10T14:00:00Z", "2025-01-10T15:00:00Z", models.StatusApproved, 1)

	over, err := s.Reservations.FindOverlapping(ctx, fid, at("2025-01-10T09:30:00Z"), at("2025-01-10T11:30:00Z"))
	require.NoError(t, err)
	require.Len(t, over, 2, "rejected rows are inert")
	assert.Equal(t, early.ID, over[0].ID)
	assert.Equal(t, late.ID, over[1].ID)

	over, err = s.Reservations.FindOverlapping(ctx, fid, at("2025-01-10T10:00:00Z"), at("2025-01-10T11:00:00Z"))
	require.NoError(t, err)
	assert.Empty(t, over, "back-to-back intervals do not overlap")

	n, err := s.Reservations.NextStartingAfter(ctx, fid, at("2025-01-10T12:00:00Z"))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, next.ID, n.ID)
	n, err = s.Reservations.NextStartingAfter(ctx, fid, at("2025-01-10T14:00:00Z"))
	require.NoError(t, err)
	assert.Nil(t, n, "strictly after")

	g, err := s.Reservations.Get(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, g.NumberOfPeople)
	assert.True(t, g.StartTime.Equal(early.StartTime))

	day, err := s.Reservations.ListActive(ctx, fid, at("2025-01-10T00:00:00Z"), at("2025-01-11T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, day, 3)

	_, err = s.Reservations.Get(ctx, missingID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Facilities.Get(ctx, missingID)
	assert.ErrorIs(t, err, ErrNotFound)

	sentinel := errors.New("boom")
	err = s.Reservations.WithFacilityLock(ctx, fid, func(context.Context, ReservationTx) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	require.NoError(t, s.Sessions.Create(ctx, "tok", uid, time.Now().Add(time.Hour)))
	sid, _, err := s.Sessions.Lookup(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, uid, sid)
	require.NoError(t, s.Sessions.Delete(ctx, "tok"))
	_, _, err = s.Sessions.Lookup(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound)
}

// runLockContract checks that check-then-insert under WithFacilityLock admits
// exactly one of many racing writers.
func runLockContract(t *testing.T, s *Store) {
	ctx := context.Background()
	uid, err := s.Users.Create(ctx, "race@example.com", "", nil)
	require.NoError(t, err)
	fid, err := s.Facilities.Create(ctx, &models.Facility{BuildingID: "b1", Name: "Room"})
	require.NoError(t, err)
	hid, err := s.Households.Create(ctx, &models.Household{BuildingID: "b1", Name: "Race"})
	require.NoError(t, err)

	start, end := at("2025-02-01T10:00:00Z"), at("2025-02-01T11:00:00Z")
	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted, sawWinner := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Reservations.WithFacilityLock(ctx, fid, func(ctx context.Context, tx ReservationTx) error {
				over, err := tx.FindOverlapping(ctx, fid, start, end)
				if err != nil {
					return err
				}
				if len(over) > 0 {
					mu.Lock()
					sawWinner++
					mu.Unlock()
					return nil
				}
				r := &models.Reservation{FacilityID: fid, HouseholdID: hid, RequestedBy: uid,
					StartTime: start, EndTime: end, Status: models.StatusApproved}
				if err := tx.Insert(ctx, r); err != nil {
					return err
				}
				mu.Lock()
				inserted++
				mu.Unlock()
				return nil
			})
			// a later holder must read the earlier commit, not fail on a stale snapshot
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 7, sawWinner)

	over, err := s.Reservations.FindOverlapping(ctx, fid, start, end)
	require.NoError(t, err)
	assert.Len(t, over, 1)
}
