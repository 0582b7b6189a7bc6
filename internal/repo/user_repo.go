package repo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"residence/internal/models"
)

type userRepoMongo struct{ d *mongo.Database }

func NewUserRepoMongo(d *mongo.Database) UserRepo { return &userRepoMongo{d: d} }

type userDoc struct {
	ID    primitive.ObjectID `bson:"_id"`
	Email string             `bson:"email"`
	Name  string             `bson:"name"`
	Hash  []byte             `bson:"password_hash"`
	Admin bool               `bson:"is_admin"`
}

func (doc userDoc) model() models.User {
	return models.User{ID: oidHex(doc.ID), Email: doc.Email, Name: doc.Name, IsAdmin: doc.Admin}
}

func (r *userRepoMongo) Create(ctx context.Context, email, name string, passwordHash []byte) (string, error) {
	res, err := r.d.Collection("users").InsertOne(ctx, bson.M{
		"email":         strings.ToLower(email),
		"name":          name,
		"password_hash": passwordHash,
		"is_admin":      false,
		"created_at":    time.Now().UTC(),
	})
	if err != nil {
		return "", mapMongoErr(err)
	}
	return oidHex(res.InsertedID.(primitive.ObjectID)), nil
}

func (r *userRepoMongo) GetByEmail(ctx context.Context, email string) (*UserRow, error) {
	var doc userDoc
	err := r.d.Collection("users").FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&doc)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return &UserRow{User: doc.model(), PasswordHash: doc.Hash}, nil
}

func (r *userRepoMongo) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := mustOID(id)
	if err != nil {
		return nil, err
	}
	var doc userDoc
	err = r.d.Collection("users").FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	u := doc.model()
	return &u, nil
}

func (r *userRepoMongo) UpsertAdmin(ctx context.Context, email string, passwordHash []byte) error {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := r.d.Collection("users").UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{
			"$set":         bson.M{"email": email, "password_hash": passwordHash, "is_admin": true},
			"$setOnInsert": bson.M{"created_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return mapMongoErr(err)
}
