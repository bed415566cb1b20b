package cartsync

import (
	"context"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"

	"go.uber.org/zap"
)

// Editor applies single-item edits to an owner's cart.
type Editor struct {
	deps Deps
}

func NewEditor(deps Deps) *Editor {
	return &Editor{deps: deps.withDefaults()}
}

// Cart returns the owner's cart, or an empty unsaved cart if none exists.
func (e *Editor) Cart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return e.deps.findCart(ctx, owner, "", e.deps.Clock())
}

// AddItem adds units of a variant at its current catalog price. Adding to an
// existing line keeps that line's price lock.
func (e *Editor) AddItem(ctx context.Context, owner models.Owner, req AddItemRequest) (*models.Cart, error) {
	if err := ValidateAddItemRequest(req); err != nil {
		return nil, err
	}
	return e.edit(ctx, "add_item", owner, []string{req.VariantID}, func(cart *models.Cart, snapshots map[string]models.VariantSnapshot, now time.Time) (models.CartEventType, error) {
		snap, ok := snapshots[req.VariantID]
		if !ok {
			return "", utils.NewNotFound("variant %s not found", req.VariantID)
		}
		if !snap.Available() {
			return "", utils.NewBusinessRule("variant %s is not available", req.VariantID)
		}

		desired := req.Quantity
		existing, exists := cart.ActiveItem(req.VariantID)
		if exists {
			desired += existing.Quantity
		}
		if desired > models.MaxItemQuantity {
			return "", utils.NewBusinessRule("at most %d units of variant %s per cart", models.MaxItemQuantity, req.VariantID)
		}
		if cart.TotalQuantity()+req.Quantity > models.MaxCartQuantity {
			return "", utils.NewBusinessRule("cart cannot hold more than %d items", models.MaxCartQuantity)
		}
		if snap.TotalStock < desired {
			return "", utils.NewBusinessRule("only %d units of variant %s in stock", snap.TotalStock, req.VariantID)
		}

		if exists {
			existing.Quantity = desired
		} else {
			cart.PutItem(models.NewCartItem(req.VariantID, req.Quantity, snap.Price, now))
		}
		return models.EventItemAdded, nil
	})
}

// UpdateQuantity sets the quantity of an existing line. The new quantity is
// held to the same availability and stock rules as an add.
func (e *Editor) UpdateQuantity(ctx context.Context, owner models.Owner, variantID string, req UpdateQuantityRequest) (*models.Cart, error) {
	if err := ValidateUpdateQuantityRequest(req); err != nil {
		return nil, err
	}
	return e.edit(ctx, "update_quantity", owner, []string{variantID}, func(cart *models.Cart, snapshots map[string]models.VariantSnapshot, _ time.Time) (models.CartEventType, error) {
		item, ok := cart.ActiveItem(variantID)
		if !ok {
			return "", utils.NewNotFound("item %s is not in the cart", variantID)
		}
		snap, ok := snapshots[variantID]
		if !ok {
			return "", utils.NewNotFound("variant %s not found", variantID)
		}
		if !snap.Available() {
			return "", utils.NewBusinessRule("variant %s is not available", variantID)
		}
		if cart.TotalQuantity()-item.Quantity+req.Quantity > models.MaxCartQuantity {
			return "", utils.NewBusinessRule("cart cannot hold more than %d items", models.MaxCartQuantity)
		}
		if snap.TotalStock < req.Quantity {
			return "", utils.NewBusinessRule("only %d units of variant %s in stock", snap.TotalStock, variantID)
		}
		item.Quantity = req.Quantity
		return models.EventItemUpdated, nil
	})
}

// RemoveItem soft-removes a line; it can be restored within the undo window.
func (e *Editor) RemoveItem(ctx context.Context, owner models.Owner, variantID string) (*models.Cart, error) {
	return e.edit(ctx, "remove_item", owner, nil, func(cart *models.Cart, _ map[string]models.VariantSnapshot, now time.Time) (models.CartEventType, error) {
		return models.EventItemRemoved, cart.SoftRemove(variantID, now)
	})
}

// RestoreItem undoes a removal still inside the undo window.
func (e *Editor) RestoreItem(ctx context.Context, owner models.Owner, variantID string) (*models.Cart, error) {
	return e.edit(ctx, "restore_item", owner, []string{variantID}, func(cart *models.Cart, _ map[string]models.VariantSnapshot, now time.Time) (models.CartEventType, error) {
		return models.EventItemRestored, cart.Restore(variantID, now)
	})
}

type editFunc func(cart *models.Cart, snapshots map[string]models.VariantSnapshot, now time.Time) (models.CartEventType, error)

// edit loads the cart, applies fn, recomputes totals and saves, all in one
// transaction. A cart left without active items emits CART_EMPTIED for the
// abandonment tracker.
func (e *Editor) edit(ctx context.Context, operation string, owner models.Owner, extraIDs []string, fn editFunc) (result *models.Cart, err error) {
	start := time.Now()
	defer func() { observe(operation, start, err) }()

	if err := owner.Validate(); err != nil {
		return nil, err
	}
	unlock := e.deps.Locks.Lock(owner.Key())
	defer unlock()

	err = e.deps.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		now := e.deps.Clock()
		cart, err := e.deps.findCart(ctx, owner, "", now)
		if err != nil {
			return err
		}
		expectedVersion := cart.Version
		hadItems := len(cart.ActiveItems()) > 0

		snapshots, prices, err := e.deps.catalogState(ctx, variantIDs(cart, extraIDs...))
		if err != nil {
			return err
		}

		eventType, err := fn(cart, snapshots, now)
		if err != nil {
			return err
		}
		cart.PurgeRemoved(now)

		cart.RecalculateTotals(prices, now)
		cart.Version = expectedVersion + 1
		cart.Status = models.CartActive
		cart.Touch(now)
		if err := e.deps.Carts.Save(ctx, cart, expectedVersion); err != nil {
			return utils.AsTransient(err, "failed to save cart")
		}
		if err := e.deps.record(ctx, models.NewCartEvent(eventType, cart, now, map[string]interface{}{
			"operation": operation,
		})); err != nil {
			return err
		}
		if hadItems && len(cart.ActiveItems()) == 0 {
			if err := e.deps.record(ctx, models.NewCartEvent(models.EventCartEmptied, cart, now, map[string]interface{}{
				"reason": operation,
			})); err != nil {
				return err
			}
		}
		result = cart
		return nil
	})
	if err != nil {
		e.deps.Logger.Debug("cart edit rejected", zap.String("operation", operation), zap.String("owner", owner.Key()), zap.Error(err))
		return nil, err
	}
	return result, nil
}
