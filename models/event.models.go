package models

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CartEventType string

const (
	EventCartSynced          CartEventType = "CART_SYNCED"
	EventCartMerged          CartEventType = "CART_MERGED"
	EventCartValidated       CartEventType = "CART_VALIDATED"
	EventCartEmptied         CartEventType = "CART_EMPTIED"
	EventItemAdded           CartEventType = "CART_ITEM_ADDED"
	EventItemUpdated         CartEventType = "CART_ITEM_UPDATED"
	EventItemRemoved         CartEventType = "CART_ITEM_REMOVED"
	EventItemRestored        CartEventType = "CART_ITEM_RESTORED"
	EventGuestSessionCreated CartEventType = "GUEST_SESSION_CREATED"
)

// CartEvent is an audit record of a cart mutation.
type CartEvent struct {
	ID             string                 `bson:"_id" json:"id"`
	Type           CartEventType          `bson:"type" json:"type"`
	CartID         primitive.ObjectID     `bson:"cart_id,omitempty" json:"cart_id,omitempty"`
	UserID         primitive.ObjectID     `bson:"user_id,omitempty" json:"user_id,omitempty"`
	GuestSessionID primitive.ObjectID     `bson:"guest_session_id,omitempty" json:"guest_session_id,omitempty"`
	CartVersion    int64                  `bson:"cart_version" json:"cart_version"`
	OccurredAt     time.Time              `bson:"occurred_at" json:"occurred_at"`
	Attributes     map[string]interface{} `bson:"attributes,omitempty" json:"attributes,omitempty"`
}

// NewCartEvent builds an event describing cart. cart may be nil for events
// that precede any cart.
func NewCartEvent(eventType CartEventType, cart *Cart, now time.Time, attrs map[string]interface{}) CartEvent {
	event := CartEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: now,
		Attributes: attrs,
	}
	if cart != nil {
		event.CartID = cart.ID
		event.UserID = cart.UserID
		event.GuestSessionID = cart.GuestSessionID
		event.CartVersion = cart.Version
	}
	return event
}
