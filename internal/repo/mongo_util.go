package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"residence/internal/lock"
)

func mustOID(hex string) (primitive.ObjectID, error) {
	if hex == "" {
		return primitive.NilObjectID, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid id %q", ErrNotFound, hex)
	}
	return oid, nil
}

func oidHex(id primitive.ObjectID) string {
	if id.IsZero() {
		return ""
	}
	return id.Hex()
}

func oids(hexes []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		if oid, err := primitive.ObjectIDFromHex(h); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

func mapMongoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var we mongo.WriteException
	if errors.As(err, &we) && len(we.WriteErrors) > 0 {
		return &DBError{Code: strconv.Itoa(we.WriteErrors[0].Code), Err: err}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		code := ce.Name
		if code == "" {
			code = strconv.Itoa(int(ce.Code))
		}
		return &DBError{Code: code, Err: err}
	}
	return &DBError{Err: err}
}

// NewMongoStore wires the Mongo repositories. locks guards reservation
// decisions per facility.
func NewMongoStore(client *mongo.Client, d *mongo.Database, locks lock.Locker) *Store {
	return &Store{
		Users:        NewUserRepoMongo(d),
		Sessions:     NewSessionRepoMongo(d),
		Facilities:   NewFacilityRepoMongo(d),
		Households:   NewHouseholdRepoMongo(d),
		Reservations: NewReservationRepoMongo(d, locks),
		Ping:         func(ctx context.Context) error { return client.Ping(ctx, nil) },
		Close:        client.Disconnect,
	}
}
