package cartsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// LowStockThreshold is the stock level below which a warning is raised.
const LowStockThreshold = 5

type IssueCode string

const (
	IssueVariantUnavailable IssueCode = "VARIANT_UNAVAILABLE"
	IssueOutOfStock         IssueCode = "OUT_OF_STOCK"
	IssueInsufficientStock  IssueCode = "INSUFFICIENT_STOCK"
	IssueLowStock           IssueCode = "LOW_STOCK"
	IssuePriceLockExpired   IssueCode = "PRICE_LOCK_EXPIRED"
	IssuePriceDecreased     IssueCode = "PRICE_DECREASED"
	IssuePriceIncreased     IssueCode = "PRICE_INCREASED"
)

// ItemIssue is a warning or error found for one cart line.
type ItemIssue struct {
	VariantID string    `json:"variant_id"`
	Code      IssueCode `json:"code"`
	Message   string    `json:"message"`
}

// ItemUpdate is a correction applied to the cart during validation.
type ItemUpdate struct {
	VariantID string `json:"variant_id"`
	Field     string `json:"field"`
	OldValue  int64  `json:"old_value"`
	NewValue  int64  `json:"new_value"`
	Reason    string `json:"reason"`
}

// ValidationReport is the outcome of a pre-checkout sweep.
type ValidationReport struct {
	Valid                bool               `json:"valid"`
	CartID               primitive.ObjectID `json:"cart_id"`
	TotalItems           int                `json:"total_items"`
	TotalAmount          int64              `json:"total_amount"`
	Currency             string             `json:"currency"`
	Warnings             []ItemIssue        `json:"warnings"`
	Errors               []ItemIssue        `json:"errors"`
	UpdatedItems         []ItemUpdate       `json:"updated_items"`
	TotalSavings         int64              `json:"total_savings"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
	Summary              string             `json:"summary"`
}

func (r *ValidationReport) warn(variantID string, code IssueCode, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, ItemIssue{VariantID: variantID, Code: code, Message: fmt.Sprintf(format, args...)})
	validationIssues.WithLabelValues("warning", string(code)).Inc()
}

func (r *ValidationReport) fail(variantID string, code IssueCode, format string, args ...interface{}) {
	r.Errors = append(r.Errors, ItemIssue{VariantID: variantID, Code: code, Message: fmt.Sprintf(format, args...)})
	validationIssues.WithLabelValues("error", string(code)).Inc()
}

// ValidationPass reconciles a cart with live stock and catalog data before
// checkout. Corrections are written back so the stored cart is checkout-safe
// even if the report is ignored.
type ValidationPass struct {
	deps Deps
}

func NewValidationPass(deps Deps) *ValidationPass {
	return &ValidationPass{deps: deps.withDefaults()}
}

// Validate sweeps the cart identified by cartID.
func (v *ValidationPass) Validate(ctx context.Context, cartID primitive.ObjectID) (report *ValidationReport, err error) {
	start := time.Now()
	defer func() { observe("validate", start, err) }()

	current, err := v.deps.Carts.FindByID(ctx, cartID)
	if err != nil {
		return nil, utils.AsTransient(err, "failed to load cart")
	}
	unlock := v.deps.Locks.Lock(current.Owner().Key())
	defer unlock()

	err = v.deps.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		now := v.deps.Clock()
		cart, err := v.deps.Carts.FindByID(ctx, cartID)
		if err != nil {
			return utils.AsTransient(err, "failed to load cart")
		}
		snapshots, prices, err := v.deps.catalogState(ctx, variantIDs(cart))
		if err != nil {
			return err
		}

		expectedVersion := cart.Version
		before := cart.Clone()
		report = sweep(cart, snapshots, now)
		cart.RecalculateTotals(prices, now)

		if cartChanged(before, cart) {
			cart.Version = expectedVersion + 1
			cart.Touch(now)
			if err := v.deps.Carts.Save(ctx, cart, expectedVersion); err != nil {
				return utils.AsTransient(err, "failed to save cart")
			}
		}

		report.CartID = cart.ID
		report.TotalItems = cart.TotalItems
		report.TotalAmount = cart.TotalAmount
		report.Currency = cart.Currency
		report.Valid = len(report.Errors) == 0
		report.RequiresConfirmation = len(report.Errors) > 0 || len(report.UpdatedItems) > 0
		report.Summary = summarize(report, len(cart.ActiveItems()))

		if err := v.deps.record(ctx, models.NewCartEvent(models.EventCartValidated, cart, now, map[string]interface{}{
			"valid":    report.Valid,
			"errors":   len(report.Errors),
			"warnings": len(report.Warnings),
			"updates":  len(report.UpdatedItems),
			"savings":  report.TotalSavings,
		})); err != nil {
			return err
		}
		if len(before.ActiveItems()) > 0 && len(cart.ActiveItems()) == 0 {
			return v.deps.record(ctx, models.NewCartEvent(models.EventCartEmptied, cart, now, map[string]interface{}{
				"reason": "validation",
			}))
		}
		return nil
	})
	if err != nil {
		v.deps.Logger.Warn("cart validation failed", zap.String("cart_id", cartID.Hex()), zap.Error(err))
		return nil, err
	}

	v.deps.Logger.Info("cart validated",
		zap.String("cart_id", cartID.Hex()),
		zap.Bool("valid", report.Valid),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int64("savings", report.TotalSavings),
	)
	return report, nil
}

// sweep checks every active item against its snapshot in cart order,
// dropping unsellable items and correcting quantities and prices in place.
func sweep(cart *models.Cart, snapshots map[string]models.VariantSnapshot, now time.Time) *ValidationReport {
	report := &ValidationReport{
		Warnings:     []ItemIssue{},
		Errors:       []ItemIssue{},
		UpdatedItems: []ItemUpdate{},
	}

	kept := make([]models.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Removed() {
			kept = append(kept, item)
			continue
		}
		id := item.VariantID
		snap, ok := snapshots[id]

		if !ok || !snap.Available() {
			report.fail(id, IssueVariantUnavailable, "variant %s is no longer available and was removed", id)
			report.UpdatedItems = append(report.UpdatedItems, ItemUpdate{VariantID: id, Field: "removed", OldValue: int64(item.Quantity), Reason: "unavailable"})
			continue
		}
		if snap.TotalStock <= 0 {
			report.fail(id, IssueOutOfStock, "variant %s is out of stock and was removed", id)
			report.UpdatedItems = append(report.UpdatedItems, ItemUpdate{VariantID: id, Field: "removed", OldValue: int64(item.Quantity), Reason: "out of stock"})
			continue
		}
		if snap.TotalStock < item.Quantity {
			report.fail(id, IssueInsufficientStock, "only %d of variant %s in stock, quantity reduced from %d", snap.TotalStock, id, item.Quantity)
			report.UpdatedItems = append(report.UpdatedItems, ItemUpdate{VariantID: id, Field: "quantity", OldValue: int64(item.Quantity), NewValue: int64(snap.TotalStock), Reason: "insufficient stock"})
			item.Quantity = snap.TotalStock
		}
		if snap.TotalStock < LowStockThreshold {
			report.warn(id, IssueLowStock, "only %d left in stock for variant %s", snap.TotalStock, id)
		}

		lock := item.Lock()
		locked := lock.PriceAtAdd
		expired := lock.Expired(now)
		if expired {
			report.warn(id, IssuePriceLockExpired, "price lock for variant %s has expired; current price %d is %s than locked price %d",
				id, snap.Price, direction(snap.Price, locked), locked)
		}

		switch {
		case snap.Price < locked:
			saved := (locked - snap.Price) * int64(item.Quantity)
			report.TotalSavings += saved
			report.warn(id, IssuePriceDecreased, "price of variant %s dropped from %d to %d", id, locked, snap.Price)
			report.UpdatedItems = append(report.UpdatedItems, ItemUpdate{VariantID: id, Field: "price", OldValue: locked, NewValue: snap.Price, Reason: "price decreased"})
			item.PriceAtAdd = snap.Price
			item.PriceDiscounted = nil
		case snap.Price > locked && expired:
			report.warn(id, IssuePriceIncreased, "price of variant %s increased from %d to %d", id, locked, snap.Price)
		}

		item.Valid = true
		kept = append(kept, item)
	}
	cart.Items = kept
	return report
}

func direction(current, locked int64) string {
	switch {
	case current > locked:
		return "higher"
	case current < locked:
		return "lower"
	default:
		return "no different"
	}
}

func cartChanged(before, after *models.Cart) bool {
	if before.TotalItems != after.TotalItems || before.TotalAmount != after.TotalAmount || len(before.Items) != len(after.Items) {
		return true
	}
	for i := range before.Items {
		b, a := before.Items[i], after.Items[i]
		if b.VariantID != a.VariantID || b.Quantity != a.Quantity || b.PriceAtAdd != a.PriceAtAdd ||
			b.Valid != a.Valid || (b.PriceDiscounted == nil) != (a.PriceDiscounted == nil) {
			return true
		}
	}
	return false
}

func summarize(r *ValidationReport, remaining int) string {
	if remaining == 0 && len(r.Errors) == 0 {
		return "Cart is empty"
	}
	if len(r.Errors) == 0 && len(r.Warnings) == 0 && len(r.UpdatedItems) == 0 {
		return "Cart is ready for checkout"
	}
	parts := []string{
		fmt.Sprintf("%d error(s)", len(r.Errors)),
		fmt.Sprintf("%d warning(s)", len(r.Warnings)),
		fmt.Sprintf("%d item(s) updated", len(r.UpdatedItems)),
	}
	summary := strings.Join(parts, ", ")
	if r.TotalSavings > 0 {
		summary += fmt.Sprintf("; you save %d", r.TotalSavings)
	}
	return summary
}
