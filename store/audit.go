package store

import (
	"context"
	"fmt"

	"go-cartsync/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLog writes cart events to the cart_events collection. Inside a
// transaction the event commits or aborts with the cart change.
type AuditLog struct {
	Collection *mongo.Collection
}

func NewAuditLog(db *mongo.Database) *AuditLog {
	return &AuditLog{Collection: db.Collection(EventsCollection)}
}

func (a *AuditLog) Record(ctx context.Context, event models.CartEvent) error {
	if _, err := a.Collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event.Type, err)
	}
	return nil
}

// ForCart returns the newest events of a cart first.
func (a *AuditLog) ForCart(ctx context.Context, cartID primitive.ObjectID, limit int64) ([]models.CartEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}}).SetLimit(limit)
	cursor, err := a.Collection.Find(ctx, bson.M{"cart_id": cartID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []models.CartEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}
