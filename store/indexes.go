package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IndexSpecs lists the indexes the cart core relies on, by collection.
func IndexSpecs() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CartsCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("user_cart").SetUnique(true).SetPartialFilterExpression(bson.M{"user_id": bson.M{"$exists": true}}),
			},
			{
				Keys:    bson.D{{Key: "guest_session_id", Value: 1}},
				Options: options.Index().SetName("guest_cart").SetUnique(true).SetPartialFilterExpression(bson.M{"guest_session_id": bson.M{"$exists": true}}),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "last_activity_at", Value: 1}},
				Options: options.Index().SetName("status_activity"),
			},
		},
		SessionsCollection: {
			{
				Keys:    bson.D{{Key: "token", Value: 1}},
				Options: options.Index().SetName("token").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetName("expiry").SetExpireAfterSeconds(0),
			},
		},
		EventsCollection: {
			{
				Keys:    bson.D{{Key: "cart_id", Value: 1}, {Key: "occurred_at", Value: -1}},
				Options: options.Index().SetName("cart_timeline"),
			},
		},
		UsersCollection: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("email").SetUnique(true),
			},
		},
	}
}

// EnsureIndexes creates any missing indexes. It is safe to run repeatedly.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for collection, specs := range IndexSpecs() {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
