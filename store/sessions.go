package store

import (
	"context"
	"errors"
	"fmt"

	"go-cartsync/models"
	"go-cartsync/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionStore keeps guest sessions in the guest_sessions collection.
type SessionStore struct {
	Collection *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{Collection: db.Collection(SessionsCollection)}
}

func (s *SessionStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.GuestSession, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *SessionStore) FindByToken(ctx context.Context, token string) (*models.GuestSession, error) {
	return s.findOne(ctx, bson.M{"token": token})
}

func (s *SessionStore) findOne(ctx context.Context, filter bson.M) (*models.GuestSession, error) {
	var session models.GuestSession
	err := s.Collection.FindOne(ctx, filter).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFound("guest session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guest session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) Save(ctx context.Context, session *models.GuestSession) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	_, err := s.Collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, session, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save guest session %s: %w", session.ID.Hex(), err)
	}
	return nil
}
