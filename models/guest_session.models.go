package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"go-cartsync/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GuestSessionTTL is the sliding lifetime of an anonymous session.
const GuestSessionTTL = 30 * 24 * time.Hour

type GuestSessionStatus string

const (
	SessionActive    GuestSessionStatus = "active"
	SessionExpired   GuestSessionStatus = "expired"
	SessionConverted GuestSessionStatus = "converted"
)

// GuestSession is an anonymous shopper identity. Its cart refers back to it
// by GuestSessionID.
type GuestSession struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Token               string             `bson:"token" json:"-"`
	DeviceFingerprint   string             `bson:"device_fingerprint,omitempty" json:"device_fingerprint,omitempty"`
	Status              GuestSessionStatus `bson:"status" json:"status"`
	ConvertedUserID     primitive.ObjectID `bson:"converted_user_id,omitempty" json:"converted_user_id,omitempty"`
	ConvertedAt         *time.Time         `bson:"converted_at,omitempty" json:"converted_at,omitempty"`
	MergeIdempotencyKey string             `bson:"merge_idempotency_key,omitempty" json:"-"`
	LastActivityAt      time.Time          `bson:"last_activity_at" json:"last_activity_at"`
	ExpiresAt           time.Time          `bson:"expires_at" json:"expires_at"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
}

// NewGuestSession creates an active session with a fresh random token.
func NewGuestSession(fingerprint string, now time.Time) (*GuestSession, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	return &GuestSession{
		Token:             token,
		DeviceFingerprint: fingerprint,
		Status:            SessionActive,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(GuestSessionTTL),
		CreatedAt:         now,
	}, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RefreshExpiration slides the expiry window forward from now.
func (s *GuestSession) RefreshExpiration(now time.Time) {
	s.LastActivityAt = now
	s.ExpiresAt = now.Add(GuestSessionTTL)
}

// IsExpired reports whether the session has lapsed, either by status or by
// reaching its expiry time.
func (s *GuestSession) IsExpired(now time.Time) bool {
	return s.Status == SessionExpired || !now.Before(s.ExpiresAt)
}

// MarkConverted records the one-time hand-over of the session to a user.
func (s *GuestSession) MarkConverted(userID primitive.ObjectID, idempotencyKey string, now time.Time) error {
	if s.Status == SessionConverted {
		return utils.NewBusinessRule("guest session %s has already been converted", s.ID.Hex())
	}
	s.Status = SessionConverted
	s.ConvertedUserID = userID
	s.ConvertedAt = &now
	s.MergeIdempotencyKey = idempotencyKey
	s.LastActivityAt = now
	return nil
}
