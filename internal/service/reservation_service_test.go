package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"residence/internal/models"
	"residence/internal/schedule"
	"residence/pkg/accesscode"
)

func requireCode(t *testing.T, err error, code Code) *Error {
	t.Helper()
	var se *Error
	require.True(t, errors.As(err, &se), "expected service error, got %v", err)
	assert.Equal(t, code, se.Code)
	return se
}

func TestCreateApprovesFreeSlot(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), f.input(f.room, "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z"))
	require.NoError(t, err)

	assert.True(t, res.AutoApproved())
	r := res.Reservation
	assert.Equal(t, models.StatusApproved, r.Status)
	assert.True(t, accesscode.Valid(r.AccessCode), r.AccessCode)
	assert.Equal(t, f.userID, r.ApprovedBy)
	require.NotNil(t, r.ApprovedAt)
	assert.Equal(t, fixedNow, *r.ApprovedAt)
	assert.Equal(t, 1, r.NumberOfPeople)

	require.Equal(t, 1, f.notes.count())
	call := f.notes.calls[0]
	assert.Equal(t, []string{f.userID}, call.userIDs)
	assert.Equal(t, r.ID, call.metadata["reservationId"])
	assert.Equal(t, r.AccessCode, call.metadata["accessCode"])
}

func TestCreateExclusiveRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, f.input(f.room, "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z"))
	require.NoError(t, err)
	later, err := f.svc.Create(ctx, f.input(f.room, "2025-01-10T11:00:00Z", "2025-01-10T12:00:00Z"))
	require.NoError(t, err)

	in := f.input(f.room, "2025-01-10T09:30:00Z", "2025-01-10T10:30:00Z")
	in.Notes = "birthday"
	res, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	rej := res.Rejection()
	require.NotNil(t, rej)
	assert.Equal(t, schedule.TimeOccupied, rej.Code)
	assert.Equal(t, "Time slot occupied by Lee (12A)", rej.Reason)
	require.Len(t, rej.Conflict.Reservations, 1)
	assert.Equal(t, first.Reservation.ID, rej.Conflict.Reservations[0].ReservationID)

	require.NotNil(t, rej.NextAvailable)
	assert.Equal(t, later.Reservation.StartTime, rej.NextAvailable.StartTime)

	r := res.Reservation
	assert.Equal(t, models.StatusRejected, r.Status)
	assert.Empty(t, r.AccessCode)
	assert.Nil(t, r.ApprovedAt)
	assert.Equal(t, "birthday\n[Auto-rejected] Time slot occupied by Lee (12A)", r.Notes)
	assert.NotEmpty(t, r.ID, "rejections are persisted")

	stored, err := f.store.Reservations.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)

	assert.Equal(t, 2, f.notes.count(), "only approvals notify")
}

func TestCreateBackToBackIsApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.input(f.room, "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z"))
	require.NoError(t, err)
	res, err := f.svc.Create(ctx, f.input(f.room, "2025-01-10T10:00:00Z", "2025-01-10T11:00:00Z"))
	require.NoError(t, err)
	assert.True(t, res.AutoApproved())
}

func TestCreateCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input(f.gym, "2025-01-10T09:00:00Z", "2025-01-10T11:00:00Z")
	in.NumberOfPeople = people(4)
	res, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	require.True(t, res.AutoApproved())

	in = f.input(f.gym, "2025-01-10T10:00:00Z", "2025-01-10T12:00:00Z")
	in.NumberOfPeople = people(3)
	res, err = f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Reservation.Status)
	assert.Empty(t, res.Reservation.AccessCode)
	assert.False(t, res.AutoApproved())

	in.NumberOfPeople = people(8)
	in.StartTime, in.EndTime = "2025-01-10T09:30:00Z", "2025-01-10T09:45:00Z"
	res, err = f.svc.Create(ctx, in)
	require.NoError(t, err)
	rej := res.Rejection()
	require.NotNil(t, rej)
	assert.Equal(t, schedule.CapacityExceeded, rej.Code)
	assert.Equal(t, 4, rej.Conflict.TotalPeople)
	assert.Equal(t, 10, rej.Conflict.Capacity)
	assert.Equal(t, 8, rej.Conflict.NewReservationPeople)
	assert.True(t, strings.HasPrefix(res.Reservation.Notes, "[Auto-rejected] "))
	assert.Nil(t, rej.NextAvailable, "nothing starts after the conflict ends")
}

func TestCreateCapacityExceededWithoutOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input(f.gym, "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z")
	in.NumberOfPeople = people(2)
	_, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	in = f.input(f.gym, "2025-01-10T15:00:00Z", "2025-01-10T16:00:00Z")
	in.NumberOfPeople = people(12)
	res, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	rej := res.Rejection()
	require.NotNil(t, rej)
	assert.Equal(t, schedule.CapacityExceeded, rej.Code)
	assert.Empty(t, rej.Conflict.Reservations)
	assert.Equal(t, 0, rej.Conflict.TotalPeople)
	assert.Equal(t, 10, rej.Conflict.Capacity)
	assert.Equal(t, 12, rej.Conflict.NewReservationPeople)
	assert.Nil(t, rej.NextAvailable, "an earlier reservation is never offered as the next slot")

	raw, err := json.Marshal(rej.Conflict)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"totalPeople":0`)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   CreateInput
		code Code
	}{
		{"missing fields", CreateInput{FacilityID: f.room}, CodeValidation},
		{"bad start", f.input(f.room, "tomorrow", "2025-01-10T10:00:00Z"), CodeValidation},
		{"end before start", f.input(f.room, "2025-01-10T10:00:00Z", "2025-01-10T09:00:00Z"), CodeValidation},
		{"zero length", f.input(f.room, "2025-01-10T10:00:00Z", "2025-01-10T10:00:00Z"), CodeValidation},
		{"in the past", f.input(f.room, "2024-12-31T10:00:00Z", "2024-12-31T11:00:00Z"), CodeValidation},
		{"unknown facility", f.input("nope", "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z"), CodeNotFound},
		{"closed day", f.input(f.room, "2025-01-12T10:00:00Z", "2025-01-12T11:00:00Z"), CodeClosedDay},
		{"before opening", f.input(f.room, "2025-01-10T07:00:00Z", "2025-01-10T08:00:00Z"), CodeOutsideHours},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.in)
			requireCode(t, err, tc.code)
		})
	}

	in := f.input(f.room, "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z")
	in.NumberOfPeople = people(0)
	_, err := f.svc.Create(ctx, in)
	requireCode(t, err, CodeValidation)

	in.NumberOfPeople = nil
	in.TimezoneOffset = 900
	_, err = f.svc.Create(ctx, in)
	requireCode(t, err, CodeValidation)

	day, err := f.store.Reservations.ListActive(ctx, f.room, fixedNow, fixedNow.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, day, "failed validation persists nothing")
}

func TestCreateOutsideHoursNamesBound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.input(f.room, "2025-01-10T07:00:00Z", "2025-01-10T08:00:00Z"))
	se := requireCode(t, err, CodeOutsideHours)
	assert.Contains(t, se.Details, "07:00")
	assert.Contains(t, se.Details, "09:00 - 18:00")
}

func TestCreateTimezoneOffset(t *testing.T) {
	f := newFixture(t)
	// 09:00-10:00 at UTC+8 is 01:00-02:00Z, still Friday in UTC
	in := f.input(f.room, "2025-01-10T01:00:00Z", "2025-01-10T02:00:00Z")
	in.TimezoneOffset = 480
	res, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.AutoApproved())
}

func TestCreateMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input(f.room, "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z")
	in.RequestedBy = "stranger"
	_, err := f.svc.Create(ctx, in)
	requireCode(t, err, CodeMembership)

	other, err := f.store.Households.Create(ctx, &models.Household{BuildingID: "b2", Name: "Far", MemberIDs: []string{f.userID}})
	require.NoError(t, err)
	in = f.input(f.room, "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z")
	in.HouseholdID = other
	_, err = f.svc.Create(ctx, in)
	se := requireCode(t, err, CodeMembership)
	assert.Equal(t, ErrMsgWrongBuilding, se.Message)
}

func TestConcurrentSubmissionsNeverDoubleBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := map[models.ReservationStatus]int{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Create(ctx, f.input(f.room, "2025-01-10T12:00:00Z", "2025-01-10T13:00:00Z"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[res.Reservation.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, outcomes[models.StatusApproved])
	assert.Equal(t, 15, outcomes[models.StatusRejected])
}

func TestConcurrentCapacityHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := f.input(f.gym, "2025-01-10T14:00:00Z", "2025-01-10T15:00:00Z")
			in.NumberOfPeople = people(3)
			_, err := f.svc.Create(ctx, in)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := f.store.Reservations.ListActive(ctx, f.gym, fixedNow, fixedNow.AddDate(0, 1, 0))
	require.NoError(t, err)
	total := 0
	for _, r := range active {
		total += r.People()
	}
	assert.LessOrEqual(t, total, 10)
	assert.Equal(t, 9, total)
}

func TestGetAndAccessCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, f.input(f.room, "2025-01-10T09:00:00Z", "2025-01-10T10:00:00Z"))
	require.NoError(t, err)
	id := res.Reservation.ID

	me := &models.User{ID: f.userID}
	got, err := f.svc.Get(ctx, me, id)
	require.NoError(t, err)
	assert.Equal(t, res.Reservation.AccessCode, got.AccessCode)

	_, err = f.svc.Get(ctx, &models.User{ID: "someone"}, id)
	requireCode(t, err, CodeForbidden)
	_, err = f.svc.Get(ctx, &models.User{ID: "admin", IsAdmin: true}, id)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, me, "missing")
	requireCode(t, err, CodeNotFound)

	png, err := f.svc.AccessCodePNG(ctx, me, id)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	rejected, err := f.svc.Create(ctx, f.input(f.room, "2025-01-10T09:00:00Z", "2025-01-10T09:30:00Z"))
	require.NoError(t, err)
	_, err = f.svc.AccessCodePNG(ctx, me, rejected.Reservation.ID)
	requireCode(t, err, CodeNotFound)
}
