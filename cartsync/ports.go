// Package cartsync reconciles shopping carts across guest sessions, logins
// and devices: multi-device sync with conflict resolution, guest-to-user
// merges, pre-checkout validation and item edits.
//
// Every mutating operation runs inside one Transactor boundary and leaves
// stored state untouched when it fails.
package cartsync

import (
	"context"
	"errors"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrVersionConflict is returned by CartStore.Save when the stored cart has
// moved past the expected version.
var ErrVersionConflict = errors.New("cart version conflict")

// CartStore persists carts. Lookups of missing carts return a NotFound
// AppError.
type CartStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Cart, error)
	FindByOwner(ctx context.Context, owner models.Owner) (*models.Cart, error)
	// Save inserts cart when its ID is zero, otherwise replaces the stored
	// cart only if the stored version still equals expectedVersion.
	Save(ctx context.Context, cart *models.Cart, expectedVersion int64) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// SessionStore persists guest sessions.
type SessionStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.GuestSession, error)
	FindByToken(ctx context.Context, token string) (*models.GuestSession, error)
	// Save inserts session when its ID is zero, otherwise replaces it.
	Save(ctx context.Context, session *models.GuestSession) error
}

// CatalogLookup returns live catalog and stock state for a batch of variants
// in one round trip. Unknown ids are omitted from the result.
type CatalogLookup interface {
	GetVariants(ctx context.Context, ids []string) ([]models.VariantSnapshot, error)
}

// Transactor runs fn atomically. fn must use the context it is given.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventSink receives audit events for cart mutations.
type EventSink interface {
	Record(ctx context.Context, event models.CartEvent) error
}

// Deps wires the collaborators shared by all cart components.
type Deps struct {
	Carts    CartStore
	Sessions SessionStore
	Catalog  CatalogLookup
	Tx       Transactor
	Events   EventSink
	Locks    *OwnerLocks
	Logger   *zap.Logger
	// DefaultCurrency applies to carts created without an explicit currency.
	DefaultCurrency string
	Clock           func() time.Time
}

func (d Deps) withDefaults() Deps {
	d.Logger = utils.OrNop(d.Logger)
	if d.Locks == nil {
		d.Locks = NewOwnerLocks()
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.DefaultCurrency == "" {
		d.DefaultCurrency = "USD"
	}
	return d
}

func (d Deps) record(ctx context.Context, event models.CartEvent) error {
	if d.Events == nil {
		return nil
	}
	if err := d.Events.Record(ctx, event); err != nil {
		return utils.AsTransient(err, "failed to record %s event", event.Type)
	}
	return nil
}

// findCart returns the owner's cart, or a new unsaved one when none exists.
func (d Deps) findCart(ctx context.Context, owner models.Owner, currency string, now time.Time) (*models.Cart, error) {
	cart, err := d.Carts.FindByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !utils.IsKind(err, utils.KindNotFound) {
		return nil, utils.AsTransient(err, "failed to load cart")
	}
	if currency == "" {
		currency = d.DefaultCurrency
	}
	return models.NewCart(owner, currency, now), nil
}

// catalogState batch-fetches snapshots for ids. A nil catalog yields no
// prices, which makes totals fall back to captured prices.
func (d Deps) catalogState(ctx context.Context, ids []string) (map[string]models.VariantSnapshot, map[string]int64, error) {
	snapshots := make(map[string]models.VariantSnapshot, len(ids))
	prices := make(map[string]int64, len(ids))
	if d.Catalog == nil || len(ids) == 0 {
		return snapshots, prices, nil
	}
	found, err := d.Catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, nil, utils.AsTransient(err, "failed to look up catalog")
	}
	for _, v := range found {
		snapshots[v.ID] = v
		prices[v.ID] = v.Price
	}
	return snapshots, prices, nil
}

// variantIDs returns the distinct variant ids of cart's active items plus
// any extra ids, in first-seen order.
func variantIDs(cart *models.Cart, extra ...string) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if cart != nil {
		for _, item := range cart.Items {
			if !item.Removed() {
				add(item.VariantID)
			}
		}
	}
	for _, id := range extra {
		add(id)
	}
	return ids
}
