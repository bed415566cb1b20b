package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go-cartsync/cartsync"
	"go-cartsync/middleware"
	"go-cartsync/models"
	"go-cartsync/utils"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const defaultTimeout = 10 * time.Second

// CartEditor is the item-level cart API.
type CartEditor interface {
	Cart(ctx context.Context, owner models.Owner) (*models.Cart, error)
	AddItem(ctx context.Context, owner models.Owner, req cartsync.AddItemRequest) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, owner models.Owner, variantID string, req cartsync.UpdateQuantityRequest) (*models.Cart, error)
	RemoveItem(ctx context.Context, owner models.Owner, variantID string) (*models.Cart, error)
	RestoreItem(ctx context.Context, owner models.Owner, variantID string) (*models.Cart, error)
}

type CartSyncer interface {
	Sync(ctx context.Context, owner models.Owner, req cartsync.SyncRequest) (*cartsync.SyncResult, error)
}

type CartMerger interface {
	Merge(ctx context.Context, req cartsync.MergeRequest) (*cartsync.MergeResult, error)
}

type CartValidator interface {
	Validate(ctx context.Context, cartID primitive.ObjectID) (*cartsync.ValidationReport, error)
}

type CartLookup interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Cart, error)
}

// CartController handles cart-related requests
type CartController struct {
	Editor    CartEditor
	Syncer    CartSyncer
	Merger    CartMerger
	Guests    middleware.GuestResolver
	Validator CartValidator
	Carts     CartLookup
	Timeout   time.Duration
}

func (cc *CartController) context(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := cc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}

// GetCart retrieves the owner's cart
func (cc *CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	ctx, cancel := cc.context(r)
	defer cancel()

	cart, err := cc.Editor.Cart(ctx, owner)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, cart)
}

// AddItem adds units of a variant to the owner's cart
func (cc *CartController) AddItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	var req cartsync.AddItemRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := cc.context(r)
	defer cancel()

	cart, err := cc.Editor.AddItem(ctx, owner, req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, cart)
}

// UpdateItem sets the quantity of a cart line
func (cc *CartController) UpdateItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	var req cartsync.UpdateQuantityRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := cc.context(r)
	defer cancel()

	cart, err := cc.Editor.UpdateQuantity(ctx, owner, mux.Vars(r)["variant_id"], req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, cart)
}

// RemoveItem removes a line; it can be restored for a few seconds
func (cc *CartController) RemoveItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	ctx, cancel := cc.context(r)
	defer cancel()

	cart, err := cc.Editor.RemoveItem(ctx, owner, mux.Vars(r)["variant_id"])
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, cart)
}

// RestoreItem undoes a recent removal
func (cc *CartController) RestoreItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	ctx, cancel := cc.context(r)
	defer cancel()

	cart, err := cc.Editor.RestoreItem(ctx, owner, mux.Vars(r)["variant_id"])
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, cart)
}

// Sync reconciles a device's cart snapshot with the stored cart
func (cc *CartController) Sync(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	var req cartsync.SyncRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := cc.context(r)
	defer cancel()

	result, err := cc.Syncer.Sync(ctx, owner, req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// Merge folds a guest session's cart into the signed-in user's cart. The
// caller proves it holds the session with its guest token.
func (cc *CartController) Merge(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	if owner.IsGuest() {
		http.Error(w, "Sign in to merge a guest cart", http.StatusForbidden)
		return
	}
	guestToken := r.Header.Get(middleware.GuestTokenHeader)
	if guestToken == "" {
		http.Error(w, "Guest token required", http.StatusForbidden)
		return
	}
	var req cartsync.MergeRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	ctx, cancel := cc.context(r)
	defer cancel()

	session, err := cc.Guests.Resolve(ctx, guestToken)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if !req.GuestSessionID.IsZero() && req.GuestSessionID != session.ID {
		http.Error(w, "Guest token does not match guest session", http.StatusForbidden)
		return
	}
	req.GuestSessionID = session.ID
	req.UserID = owner.UserID

	result, err := cc.Merger.Merge(ctx, req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// Validate runs the pre-checkout sweep on one of the owner's carts
func (cc *CartController) Validate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	cartID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid cart ID", http.StatusBadRequest)
		return
	}
	ctx, cancel := cc.context(r)
	defer cancel()

	// other owners' carts are reported as missing
	cart, err := cc.Carts.FindByID(ctx, cartID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if cart.Owner() != owner {
		utils.WriteError(w, utils.NewNotFound("cart %s not found", cartID.Hex()))
		return
	}

	report, err := cc.Validator.Validate(ctx, cartID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, report)
}

func ownerOf(w http.ResponseWriter, r *http.Request) (models.Owner, bool) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return owner, ok
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.WriteError(w, utils.NewInvalidInput("Invalid input", err.Error()))
		return false
	}
	return true
}
