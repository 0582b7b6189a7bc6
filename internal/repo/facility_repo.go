package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"residence/internal/models"
)

type facilityRepoMongo struct{ d *mongo.Database }

func NewFacilityRepoMongo(d *mongo.Database) FacilityRepo { return &facilityRepoMongo{d: d} }

type facilityDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	BuildingID     string             `bson:"building_id"`
	Name           string             `bson:"name"`
	Capacity       *int               `bson:"capacity,omitempty"`
	OperatingHours []models.DayHours  `bson:"operating_hours"`
	CreatedAt      time.Time          `bson:"created_at"`
}

func (doc facilityDoc) model() models.Facility {
	return models.Facility{
		ID:             oidHex(doc.ID),
		BuildingID:     doc.BuildingID,
		Name:           doc.Name,
		Capacity:       doc.Capacity,
		OperatingHours: doc.OperatingHours,
		CreatedAt:      doc.CreatedAt,
	}
}

func (r *facilityRepoMongo) Create(ctx context.Context, f *models.Facility) (string, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	res, err := r.d.Collection("facilities").InsertOne(ctx, facilityDoc{
		BuildingID:     f.BuildingID,
		Name:           f.Name,
		Capacity:       f.Capacity,
		OperatingHours: f.OperatingHours,
		CreatedAt:      f.CreatedAt,
	})
	if err != nil {
		return "", mapMongoErr(err)
	}
	f.ID = oidHex(res.InsertedID.(primitive.ObjectID))
	return f.ID, nil
}

func (r *facilityRepoMongo) Get(ctx context.Context, id string) (*models.Facility, error) {
	oid, err := mustOID(id)
	if err != nil {
		return nil, err
	}
	var doc facilityDoc
	if err := r.d.Collection("facilities").FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mapMongoErr(err)
	}
	f := doc.model()
	return &f, nil
}

func (r *facilityRepoMongo) List(ctx context.Context, buildingID string) ([]models.Facility, error) {
	filter := bson.M{}
	if buildingID != "" {
		filter["building_id"] = buildingID
	}
	cur, err := r.d.Collection("facilities").Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, mapMongoErr(err)
	}
	defer cur.Close(ctx)
	var out []models.Facility
	for cur.Next(ctx) {
		var doc facilityDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, mapMongoErr(err)
		}
		out = append(out, doc.model())
	}
	return out, mapMongoErr(cur.Err())
}

func (r *facilityRepoMongo) SetOperatingHours(ctx context.Context, id string, hours []models.DayHours) error {
	oid, err := mustOID(id)
	if err != nil {
		return err
	}
	res, err := r.d.Collection("facilities").UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"operating_hours": hours}},
	)
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
