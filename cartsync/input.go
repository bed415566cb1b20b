package cartsync

import (
	"errors"
	"fmt"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SyncItem is one line of a client cart snapshot.
type SyncItem struct {
	VariantID   string    `json:"variant_id" validate:"required,max=64"`
	Quantity    int       `json:"quantity" validate:"min=1,max=50"`
	PriceAtAdd  int64     `json:"price_at_add" validate:"min=0"`
	AddedAt     time.Time `json:"added_at" validate:"required"`
	CampaignTag string    `json:"campaign_tag,omitempty" validate:"omitempty,max=64"`
}

// SyncRequest is a client's view of its cart pushed for reconciliation.
type SyncRequest struct {
	Items           []SyncItem `json:"items" validate:"max=100,unique=VariantID,dive"`
	ClientVersion   int64      `json:"client_version" validate:"min=0"`
	ClientTimestamp time.Time  `json:"client_timestamp" validate:"required"`
	Currency        string     `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
}

// MergeStrategy selects how a guest item is reconciled with a user item for
// the same variant.
type MergeStrategy string

const (
	StrategyCombine   MergeStrategy = "combine"
	StrategyKeepUser  MergeStrategy = "keep_user"
	StrategyKeepGuest MergeStrategy = "keep_guest"
	StrategyNewer     MergeStrategy = "newer"
)

// MergeRequest asks to fold a guest session's cart into a user's cart.
type MergeRequest struct {
	UserID         primitive.ObjectID `json:"-"`
	GuestSessionID primitive.ObjectID `json:"guest_session_id"`
	Strategy       MergeStrategy      `json:"strategy,omitempty" validate:"omitempty,oneof=combine keep_user keep_guest newer"`
	IdempotencyKey string             `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

// AddItemRequest adds units of a variant to a cart.
type AddItemRequest struct {
	VariantID string `json:"variant_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"min=1,max=50"`
}

// UpdateQuantityRequest sets the quantity of an existing line.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1,max=50"`
}

func ValidateSyncRequest(req SyncRequest) error {
	return validateStruct(req)
}

func ValidateMergeRequest(req MergeRequest) error {
	if req.UserID.IsZero() {
		return utils.NewInvalidInput("invalid merge request", "user id is required")
	}
	if req.GuestSessionID.IsZero() {
		return utils.NewInvalidInput("invalid merge request", "guest_session_id is required")
	}
	return validateStruct(req)
}

func ValidateAddItemRequest(req AddItemRequest) error {
	return validateStruct(req)
}

func ValidateUpdateQuantityRequest(req UpdateQuantityRequest) error {
	return validateStruct(req)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return utils.NewInvalidInput(err.Error())
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			details = append(details, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			details = append(details, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return utils.NewInvalidInput("invalid request", details...)
}

// ParseMergeStrategy maps a wire value to a strategy; empty means combine.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case "":
		return StrategyCombine, nil
	case StrategyCombine, StrategyKeepUser, StrategyKeepGuest, StrategyNewer:
		return MergeStrategy(s), nil
	default:
		return "", utils.NewInvalidInput("unknown merge strategy", s)
	}
}

func toCartItem(in SyncItem, now time.Time) models.CartItem {
	addedAt := in.AddedAt.UTC()
	if addedAt.After(now) {
		addedAt = now
	}
	item := models.NewCartItem(in.VariantID, in.Quantity, in.PriceAtAdd, addedAt)
	item.CampaignTag = in.CampaignTag
	return item
}
