package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"residence/internal/models"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore(nil))
}

func TestMemoryStoreLock(t *testing.T) {
	runLockContract(t, NewMemoryStore(nil))
}

func TestMemoryMissingReferences(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	err := s.Reservations.WithFacilityLock(ctx, "nope", func(ctx context.Context, tx ReservationTx) error {
		return tx.Insert(ctx, &models.Reservation{FacilityID: "nope", HouseholdID: "nope"})
	})
	assert.ErrorIs(t, err, ErrMissingReference)

	hid, err := s.Households.Create(ctx, &models.Household{BuildingID: "b"})
	assert.NoError(t, err)
	assert.ErrorIs(t, s.Households.AddMember(ctx, hid, "ghost"), ErrMissingReference)
	assert.ErrorIs(t, s.Households.AddMember(ctx, "ghost", "ghost"), ErrNotFound)
}

func TestDBErrorMessage(t *testing.T) {
	e := &DBError{Code: "11000", Err: assert.AnError}
	assert.Contains(t, e.Error(), "11000")
	assert.ErrorIs(t, e, assert.AnError)
}
