package store

import (
	"context"
	"fmt"

	"go-cartsync/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Catalog reads variant availability, price and summed stock with a single
// aggregation per batch of ids.
type Catalog struct {
	Collection *mongo.Collection
}

func NewCatalog(db *mongo.Database) *Catalog {
	return &Catalog{Collection: db.Collection(VariantsCollection)}
}

func (c *Catalog) GetVariants(ctx context.Context, ids []string) ([]models.VariantSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := c.Collection.Aggregate(ctx, snapshotPipeline(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer cursor.Close(ctx)

	snapshots := make([]models.VariantSnapshot, 0, len(ids))
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode variants: %w", err)
	}
	return snapshots, nil
}

// snapshotPipeline joins each variant to its product and folds soft deletes
// into the active flags.
func snapshotPipeline(ids []string) mongo.Pipeline {
	notDeleted := func(field string) bson.M {
		return bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{field, nil}}, nil}}
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$in": ids}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         ProductsCollection,
			"localField":   "product_id",
			"foreignField": "_id",
			"as":           "product",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$product", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{
			"price":       1,
			"total_stock": bson.M{"$sum": "$stock_levels.quantity"},
			"is_active": bson.M{"$and": bson.A{
				bson.M{"$ifNull": bson.A{"$is_active", false}},
				notDeleted("$deleted_at"),
			}},
			"product_active": bson.M{"$and": bson.A{
				bson.M{"$ifNull": bson.A{"$product.is_active", false}},
				notDeleted("$product.deleted_at"),
			}},
		}}},
	}
}
