package repo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"residence/internal/models"
)

type householdRepoMongo struct{ d *mongo.Database }

func NewHouseholdRepoMongo(d *mongo.Database) HouseholdRepo { return &householdRepoMongo{d: d} }

type householdDoc struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty"`
	BuildingID string               `bson:"building_id"`
	Name       string               `bson:"name"`
	Apartment  string               `bson:"apartment"`
	MemberIDs  []primitive.ObjectID `bson:"member_ids"`
}

func (doc householdDoc) model() *models.Household {
	h := &models.Household{ID: oidHex(doc.ID), BuildingID: doc.BuildingID, Name: doc.Name, Apartment: doc.Apartment}
	for _, m := range doc.MemberIDs {
		h.MemberIDs = append(h.MemberIDs, oidHex(m))
	}
	return h
}

func (r *householdRepoMongo) Create(ctx context.Context, h *models.Household) (string, error) {
	res, err := r.d.Collection("households").InsertOne(ctx, householdDoc{
		BuildingID: h.BuildingID,
		Name:       h.Name,
		Apartment:  h.Apartment,
		MemberIDs:  oids(h.MemberIDs),
	})
	if err != nil {
		return "", mapMongoErr(err)
	}
	h.ID = oidHex(res.InsertedID.(primitive.ObjectID))
	return h.ID, nil
}

func (r *householdRepoMongo) Get(ctx context.Context, id string) (*models.Household, error) {
	oid, err := mustOID(id)
	if err != nil {
		return nil, err
	}
	var doc householdDoc
	if err := r.d.Collection("households").FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mapMongoErr(err)
	}
	return doc.model(), nil
}

func (r *householdRepoMongo) GetMany(ctx context.Context, ids []string) (map[string]*models.Household, error) {
	out := make(map[string]*models.Household, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.d.Collection("households").Find(ctx, bson.M{"_id": bson.M{"$in": oids(ids)}})
	if err != nil {
		return nil, mapMongoErr(err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc householdDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, mapMongoErr(err)
		}
		h := doc.model()
		out[h.ID] = h
	}
	return out, mapMongoErr(cur.Err())
}

func (r *householdRepoMongo) AddMember(ctx context.Context, householdID, userID string) error {
	hid, err := mustOID(householdID)
	if err != nil {
		return err
	}
	uid, err := mustOID(userID)
	if err != nil {
		return ErrMissingReference
	}
	res, err := r.d.Collection("households").UpdateOne(ctx,
		bson.M{"_id": hid},
		bson.M{"$addToSet": bson.M{"member_ids": uid}},
	)
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *householdRepoMongo) IsMember(ctx context.Context, userID, householdID string) (bool, error) {
	hid, err := mustOID(householdID)
	if err != nil {
		return false, nil
	}
	uid, err := mustOID(userID)
	if err != nil {
		return false, nil
	}
	cnt, err := r.d.Collection("households").CountDocuments(ctx, bson.M{"_id": hid, "member_ids": uid})
	return cnt > 0, mapMongoErr(err)
}

func (r *householdRepoMongo) ListMembers(ctx context.Context, householdID string) ([]string, error) {
	h, err := r.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}
	return h.MemberIDs, nil
}
