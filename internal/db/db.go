package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureIndexes(ctx context.Context, d *mongo.Database) error {
	// users: unique email
	if _, err := d.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}

	// sessions: token unique, expired rows reaped by the TTL monitor
	if _, err := d.Collection("sessions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	}); err != nil {
		return err
	}

	if _, err := d.Collection("facilities").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "building_id", Value: 1}, {Key: "name", Value: 1}},
	}); err != nil {
		return err
	}

	if _, err := d.Collection("households").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "building_id", Value: 1}}},
		{Keys: bson.D{{Key: "member_ids", Value: 1}}},
	}); err != nil {
		return err
	}

	// reservations: overlap and next-boundary scans per facility
	if _, err := d.Collection("reservations").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "facility_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start_at", Value: 1}, {Key: "end_at", Value: 1}}},
		{Keys: bson.D{{Key: "household_id", Value: 1}}},
	}); err != nil {
		return err
	}

	return nil
}

// OpenMongo connects, pings and prepares indexes.
func OpenMongo(ctx context.Context, uri, name string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}
	if err := mc.Ping(ctx, nil); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, nil, err
	}
	mdb := mc.Database(name)
	if err := EnsureIndexes(ctx, mdb); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, nil, err
	}
	return mc, mdb, nil
}
