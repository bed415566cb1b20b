package models

import (
	"fmt"
	"time"

	"go-cartsync/pricelock"
	"go-cartsync/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// MaxItemQuantity is the per-variant quantity ceiling.
	MaxItemQuantity = 50
	// MaxCartQuantity is the ceiling on the summed quantity of a cart.
	MaxCartQuantity = 100
	// UndoWindow is how long a removed item can be restored.
	UndoWindow = 5 * time.Second
)

// CartStatus is the lifecycle state of a cart.
type CartStatus string

const (
	CartActive     CartStatus = "active"
	CartAbandoned  CartStatus = "abandoned"
	CartConverting CartStatus = "converting"
	CartExpired    CartStatus = "expired"
)

// CartItem represents a line in the cart
type CartItem struct {
	VariantID       string     `bson:"variant_id" json:"variant_id"`
	Quantity        int        `bson:"quantity" json:"quantity"`
	PriceAtAdd      int64      `bson:"price_at_add" json:"price_at_add"`
	PriceDiscounted *int64     `bson:"price_discounted,omitempty" json:"price_discounted,omitempty"`
	AddedAt         time.Time  `bson:"added_at" json:"added_at"`
	LockedUntil     time.Time  `bson:"locked_until" json:"locked_until"`
	CampaignTag     string     `bson:"campaign_tag,omitempty" json:"campaign_tag,omitempty"`
	Valid           bool       `bson:"valid" json:"valid"`
	RemovedAt       *time.Time `bson:"removed_at,omitempty" json:"removed_at,omitempty"`
}

// NewCartItem captures price and lock for a freshly added line.
func NewCartItem(variantID string, quantity int, price int64, addedAt time.Time) CartItem {
	return CartItem{
		VariantID:   variantID,
		Quantity:    quantity,
		PriceAtAdd:  price,
		AddedAt:     addedAt,
		LockedUntil: pricelock.Until(addedAt),
		Valid:       true,
	}
}

// SetAddedAt moves the add time and recomputes the lock from it.
func (i *CartItem) SetAddedAt(t time.Time) {
	i.AddedAt = t
	i.LockedUntil = pricelock.Until(t)
}

// Lock returns the price protection for the item. An explicit discount
// below the captured price becomes the protected price.
func (i CartItem) Lock() pricelock.Lock {
	price := i.PriceAtAdd
	if i.PriceDiscounted != nil && *i.PriceDiscounted < price {
		price = *i.PriceDiscounted
	}
	return pricelock.Lock{PriceAtAdd: price, LockedUntil: i.LockedUntil}
}

func (i CartItem) Removed() bool {
	return i.RemovedAt != nil
}

// Owner identifies who a cart belongs to: a user or a guest session, never
// both and never neither.
type Owner struct {
	UserID         primitive.ObjectID
	GuestSessionID primitive.ObjectID
}

func UserOwner(id primitive.ObjectID) Owner {
	return Owner{UserID: id}
}

func GuestOwner(id primitive.ObjectID) Owner {
	return Owner{GuestSessionID: id}
}

func (o Owner) IsGuest() bool {
	return !o.GuestSessionID.IsZero()
}

// Validate enforces exclusive ownership.
func (o Owner) Validate() error {
	hasUser, hasGuest := !o.UserID.IsZero(), !o.GuestSessionID.IsZero()
	if hasUser == hasGuest {
		return utils.NewBusinessRule("cart must be owned by exactly one of a user or a guest session")
	}
	return nil
}

// Key is a stable identifier for per-owner serialization.
func (o Owner) Key() string {
	if o.IsGuest() {
		return "guest:" + o.GuestSessionID.Hex()
	}
	return "user:" + o.UserID.Hex()
}

// Cart represents a shopping cart owned by a user or a guest session
type Cart struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID         primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	GuestSessionID primitive.ObjectID `bson:"guest_session_id,omitempty" json:"guest_session_id,omitempty"`
	Items          []CartItem         `bson:"items" json:"items"`
	Version        int64              `bson:"version" json:"version"`
	TotalItems     int                `bson:"total_items" json:"total_items"`
	TotalAmount    int64              `bson:"total_amount" json:"total_amount"`
	Currency       string             `bson:"currency" json:"currency"`
	Status         CartStatus         `bson:"status" json:"status"`
	LastActivityAt time.Time          `bson:"last_activity_at" json:"last_activity_at"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// NewCart returns an empty, never-persisted cart for owner. Version 0 marks
// it as unsaved.
func NewCart(owner Owner, currency string, now time.Time) *Cart {
	return &Cart{
		UserID:         owner.UserID,
		GuestSessionID: owner.GuestSessionID,
		Items:          []CartItem{},
		Currency:       currency,
		Status:         CartActive,
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

func (c *Cart) Owner() Owner {
	return Owner{UserID: c.UserID, GuestSessionID: c.GuestSessionID}
}

// Touch records activity on the cart.
func (c *Cart) Touch(now time.Time) {
	c.LastActivityAt = now
	c.UpdatedAt = now
}

// IndexOf returns the slot holding variantID, removed or not, or -1.
func (c *Cart) IndexOf(variantID string) int {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// ActiveItem returns a pointer to the non-removed item for variantID.
func (c *Cart) ActiveItem(variantID string) (*CartItem, bool) {
	i := c.IndexOf(variantID)
	if i < 0 || c.Items[i].Removed() {
		return nil, false
	}
	return &c.Items[i], true
}

// ActiveItems returns copies of the items that have not been removed.
func (c *Cart) ActiveItems() []CartItem {
	items := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if !item.Removed() {
			items = append(items, item)
		}
	}
	return items
}

// TotalQuantity sums quantities over non-removed items.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		if !item.Removed() {
			total += item.Quantity
		}
	}
	return total
}

// PutItem stores item, reusing a removed slot for the same variant so the
// cart stays variant-unique. Callers must not pass a variant that is active.
func (c *Cart) PutItem(item CartItem) {
	if i := c.IndexOf(item.VariantID); i >= 0 {
		c.Items[i] = item
		return
	}
	c.Items = append(c.Items, item)
}

// DeleteItemAt drops the item at index i outright.
func (c *Cart) DeleteItemAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// SoftRemove marks the item removed; it can be restored within UndoWindow.
func (c *Cart) SoftRemove(variantID string, now time.Time) error {
	item, ok := c.ActiveItem(variantID)
	if !ok {
		return utils.NewNotFound("item %s is not in the cart", variantID)
	}
	removedAt := now
	item.RemovedAt = &removedAt
	return nil
}

// Restore undoes a SoftRemove while the undo window is open.
func (c *Cart) Restore(variantID string, now time.Time) error {
	i := c.IndexOf(variantID)
	if i < 0 || !c.Items[i].Removed() {
		return utils.NewNotFound("no removed item %s to restore", variantID)
	}
	item := &c.Items[i]
	if now.Sub(*item.RemovedAt) > UndoWindow {
		return utils.NewBusinessRule("undo window for item %s has expired", variantID)
	}
	if c.TotalQuantity()+item.Quantity > MaxCartQuantity {
		return utils.NewBusinessRule("restoring item %s would exceed %d items in the cart", variantID, MaxCartQuantity)
	}
	item.RemovedAt = nil
	return nil
}

// PurgeRemoved drops removed items whose undo window has closed.
func (c *Cart) PurgeRemoved(now time.Time) {
	kept := c.Items[:0]
	for _, item := range c.Items {
		if item.Removed() && now.Sub(*item.RemovedAt) > UndoWindow {
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept
}

// RecalculateTotals refreshes the cached totals from active, valid items
// priced through their lock. prices holds current catalog prices by variant
// and may be nil or partial.
func (c *Cart) RecalculateTotals(prices map[string]int64, now time.Time) {
	totalItems := 0
	var totalAmount int64
	for _, item := range c.Items {
		if item.Removed() || !item.Valid {
			continue
		}
		current, known := prices[item.VariantID]
		totalItems += item.Quantity
		totalAmount += item.Lock().EffectivePrice(current, known, now) * int64(item.Quantity)
	}
	c.TotalItems = totalItems
	c.TotalAmount = totalAmount
}

// Diagnostics reports violations of the cart ceilings and variant
// uniqueness. An empty result means the cart is consistent.
func (c *Cart) Diagnostics() []string {
	var issues []string
	seen := make(map[string]bool, len(c.Items))
	total := 0
	for _, item := range c.Items {
		if seen[item.VariantID] {
			issues = append(issues, fmt.Sprintf("duplicate variant %s", item.VariantID))
		}
		seen[item.VariantID] = true
		if item.Removed() {
			continue
		}
		if item.Quantity > MaxItemQuantity {
			issues = append(issues, fmt.Sprintf("variant %s has quantity %d, maximum is %d", item.VariantID, item.Quantity, MaxItemQuantity))
		}
		if item.Quantity < 1 {
			issues = append(issues, fmt.Sprintf("variant %s has non-positive quantity %d", item.VariantID, item.Quantity))
		}
		total += item.Quantity
	}
	if total > MaxCartQuantity {
		issues = append(issues, fmt.Sprintf("cart holds %d items, maximum is %d", total, MaxCartQuantity))
	}
	return issues
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		if item.PriceDiscounted != nil {
			v := *item.PriceDiscounted
			item.PriceDiscounted = &v
		}
		if item.RemovedAt != nil {
			v := *item.RemovedAt
			item.RemovedAt = &v
		}
		cp.Items[i] = item
	}
	return &cp
}
