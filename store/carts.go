package store

import (
	"context"
	"errors"
	"fmt"

	"go-cartsync/cartsync"
	"go-cartsync/models"
	"go-cartsync/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// CartStore keeps carts in the carts collection. The version field is the
// optimistic concurrency token.
type CartStore struct {
	Collection *mongo.Collection
}

func NewCartStore(db *mongo.Database) *CartStore {
	return &CartStore{Collection: db.Collection(CartsCollection)}
}

func (s *CartStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Cart, error) {
	return s.findOne(ctx, bson.M{"_id": id}, "cart "+id.Hex())
}

func (s *CartStore) FindByOwner(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	return s.findOne(ctx, ownerFilter(owner), "cart for "+owner.Key())
}

func (s *CartStore) findOne(ctx context.Context, filter bson.M, what string) (*models.Cart, error) {
	var cart models.Cart
	err := s.Collection.FindOne(ctx, filter).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFound("%s not found", what)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", what, err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return &cart, nil
}

// Save inserts a new cart or replaces a stored one whose version still
// equals expectedVersion. A lost race surfaces as cartsync.ErrVersionConflict.
func (s *CartStore) Save(ctx context.Context, cart *models.Cart, expectedVersion int64) error {
	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
		if _, err := s.Collection.InsertOne(ctx, cart); err != nil {
			cart.ID = primitive.NilObjectID
			if mongo.IsDuplicateKeyError(err) {
				// another device created the owner's cart first
				return fmt.Errorf("cart for %s: %w", cart.Owner().Key(), cartsync.ErrVersionConflict)
			}
			return fmt.Errorf("failed to insert cart: %w", err)
		}
		return nil
	}

	res, err := s.Collection.ReplaceOne(ctx, bson.M{"_id": cart.ID, "version": expectedVersion}, cart)
	if err != nil {
		return fmt.Errorf("failed to save cart %s: %w", cart.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("cart %s at version %d: %w", cart.ID.Hex(), expectedVersion, cartsync.ErrVersionConflict)
	}
	return nil
}

// Delete removes a cart with its embedded items.
func (s *CartStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete cart %s: %w", id.Hex(), err)
	}
	return nil
}

func ownerFilter(owner models.Owner) bson.M {
	if owner.IsGuest() {
		return bson.M{"guest_session_id": owner.GuestSessionID}
	}
	return bson.M{"user_id": owner.UserID}
}
