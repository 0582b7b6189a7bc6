package repo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"residence/internal/lock"
	"residence/internal/models"
)

type reservationRepoMongo struct {
	d     *mongo.Database
	locks lock.Locker
}

// NewReservationRepoMongo serializes decisions per facility through locks.
// A standalone mongod has no multi-document transactions, so the lock is what
// makes read-decide-insert atomic.
func NewReservationRepoMongo(d *mongo.Database, locks lock.Locker) ReservationRepo {
	return &reservationRepoMongo{d: d, locks: locks}
}

type reservationDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	FacilityID  primitive.ObjectID `bson:"facility_id"`
	HouseholdID primitive.ObjectID `bson:"household_id"`
	RequestedBy primitive.ObjectID `bson:"requested_by"`
	Start       time.Time          `bson:"start_at"`
	End         time.Time          `bson:"end_at"`
	People      int                `bson:"number_of_people"`
	Purpose     string             `bson:"purpose,omitempty"`
	Status      string             `bson:"status"`
	AccessCode  string             `bson:"access_code,omitempty"`
	ApprovedBy  primitive.ObjectID `bson:"approved_by,omitempty"`
	ApprovedAt  *time.Time         `bson:"approved_at,omitempty"`
	Notes       string             `bson:"notes,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

// newReservationDoc resolves every id reference of res; any malformed one is
// ErrMissingReference.
func newReservationDoc(res *models.Reservation) (reservationDoc, error) {
	type ref struct {
		hex string
		dst *primitive.ObjectID
	}
	var doc reservationDoc
	refs := []ref{
		{res.FacilityID, &doc.FacilityID},
		{res.HouseholdID, &doc.HouseholdID},
		{res.RequestedBy, &doc.RequestedBy},
	}
	if res.ApprovedBy != "" {
		refs = append(refs, ref{res.ApprovedBy, &doc.ApprovedBy})
	}
	for _, r := range refs {
		oid, err := mustOID(r.hex)
		if err != nil {
			return reservationDoc{}, fmt.Errorf("%w: %q", ErrMissingReference, r.hex)
		}
		*r.dst = oid
	}
	doc.Start = res.StartTime.UTC()
	doc.End = res.EndTime.UTC()
	doc.People = res.People()
	doc.Purpose = res.Purpose
	doc.Status = string(res.Status)
	doc.AccessCode = res.AccessCode
	doc.ApprovedAt = res.ApprovedAt
	doc.Notes = res.Notes
	doc.CreatedAt = res.CreatedAt
	return doc, nil
}

func (doc reservationDoc) model() models.Reservation {
	return models.Reservation{
		ID:             oidHex(doc.ID),
		FacilityID:     oidHex(doc.FacilityID),
		HouseholdID:    oidHex(doc.HouseholdID),
		RequestedBy:    oidHex(doc.RequestedBy),
		StartTime:      doc.Start.UTC(),
		EndTime:        doc.End.UTC(),
		NumberOfPeople: doc.People,
		Purpose:        doc.Purpose,
		Status:         models.ReservationStatus(doc.Status),
		AccessCode:     doc.AccessCode,
		ApprovedBy:     oidHex(doc.ApprovedBy),
		ApprovedAt:     doc.ApprovedAt,
		Notes:          doc.Notes,
		CreatedAt:      doc.CreatedAt.UTC(),
	}
}

func (r *reservationRepoMongo) coll() *mongo.Collection { return r.d.Collection("reservations") }

func (r *reservationRepoMongo) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Reservation, error) {
	cur, err := r.coll().Find(ctx, filter, opts...)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	defer cur.Close(ctx)
	var out []models.Reservation
	for cur.Next(ctx) {
		var doc reservationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, mapMongoErr(err)
		}
		out = append(out, doc.model())
	}
	return out, mapMongoErr(cur.Err())
}

func byStart() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "start_at", Value: 1}})
}

func (r *reservationRepoMongo) FindOverlapping(ctx context.Context, facilityID string, start, end time.Time) ([]models.Reservation, error) {
	fid, err := mustOID(facilityID)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, bson.M{
		"facility_id": fid,
		"status":      bson.M{"$in": activeStatuses()},
		// overlap if NOT (end_at <= start || start_at >= end)
		"$nor": []bson.M{
			{"end_at": bson.M{"$lte": start}},
			{"start_at": bson.M{"$gte": end}},
		},
	}, byStart())
}

func (r *reservationRepoMongo) NextStartingAfter(ctx context.Context, facilityID string, t time.Time) (*models.Reservation, error) {
	fid, err := mustOID(facilityID)
	if err != nil {
		return nil, err
	}
	var doc reservationDoc
	err = r.coll().FindOne(ctx, bson.M{
		"facility_id": fid,
		"status":      bson.M{"$in": activeStatuses()},
		"start_at":    bson.M{"$gt": t},
	}, options.FindOne().SetSort(bson.D{{Key: "start_at", Value: 1}})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, mapMongoErr(err)
	}
	m := doc.model()
	return &m, nil
}

func (r *reservationRepoMongo) Get(ctx context.Context, id string) (*models.Reservation, error) {
	oid, err := mustOID(id)
	if err != nil {
		return nil, err
	}
	var doc reservationDoc
	if err := r.coll().FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mapMongoErr(err)
	}
	m := doc.model()
	return &m, nil
}

func (r *reservationRepoMongo) ListActive(ctx context.Context, facilityID string, from, to time.Time) ([]models.Reservation, error) {
	return r.FindOverlapping(ctx, facilityID, from, to)
}

func (r *reservationRepoMongo) WithFacilityLock(ctx context.Context, facilityID string, fn func(ctx context.Context, tx ReservationTx) error) error {
	unlock, err := r.locks.Lock(ctx, facilityID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx, reservationTxMongo{r})
}

type reservationTxMongo struct{ *reservationRepoMongo }

func (tx reservationTxMongo) Insert(ctx context.Context, res *models.Reservation) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	doc, err := newReservationDoc(res)
	if err != nil {
		return err
	}
	out, err := tx.coll().InsertOne(ctx, doc)
	if err != nil {
		return mapMongoErr(err)
	}
	res.ID = oidHex(out.InsertedID.(primitive.ObjectID))
	return nil
}
