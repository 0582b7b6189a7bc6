package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type sessionRepoMongo struct{ d *mongo.Database }

// NewSessionRepoMongo keeps sessions next to users when no Redis is configured.
func NewSessionRepoMongo(d *mongo.Database) SessionRepo { return &sessionRepoMongo{d: d} }

func (r *sessionRepoMongo) Create(ctx context.Context, token, userID string, expires time.Time) error {
	oid, err := mustOID(userID)
	if err != nil {
		return err
	}
	_, err = r.d.Collection("sessions").InsertOne(ctx, bson.M{
		"token":      token,
		"user_id":    oid,
		"expires_at": expires.UTC(),
		"created_at": time.Now().UTC(),
	})
	return mapMongoErr(err)
}

func (r *sessionRepoMongo) Delete(ctx context.Context, token string) error {
	_, err := r.d.Collection("sessions").DeleteOne(ctx, bson.M{"token": token})
	return mapMongoErr(err)
}

func (r *sessionRepoMongo) Lookup(ctx context.Context, token string) (string, time.Time, error) {
	var doc struct {
		UserID    primitive.ObjectID `bson:"user_id"`
		ExpiresAt time.Time          `bson:"expires_at"`
	}
	err := r.d.Collection("sessions").FindOne(ctx, bson.M{"token": token}).Decode(&doc)
	if err != nil {
		return "", time.Time{}, mapMongoErr(err)
	}
	return oidHex(doc.UserID), doc.ExpiresAt, nil
}
