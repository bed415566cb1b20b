package cartsync

import (
	"context"
	"fmt"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MergeResult summarizes a guest-to-user merge.
type MergeResult struct {
	Success               bool               `json:"success"`
	CartID                primitive.ObjectID `json:"cart_id"`
	TotalItems            int                `json:"total_items"`
	ItemsAdded            int                `json:"items_added"`
	ItemsCombined         int                `json:"items_combined"`
	ItemsSkipped          int                `json:"items_skipped"`
	Messages              []string           `json:"messages"`
	GuestSessionConverted bool               `json:"guest_session_converted"`
	Cart                  *models.Cart       `json:"cart,omitempty"`
}

type itemOutcome int

const (
	outcomeAdded itemOutcome = iota
	outcomeCombined
	outcomeReplaced
	outcomeKept
	outcomeSkipped
)

func (o itemOutcome) String() string {
	switch o {
	case outcomeAdded:
		return "added"
	case outcomeCombined:
		return "combined"
	case outcomeReplaced:
		return "replaced"
	case outcomeKept:
		return "kept"
	default:
		return "skipped"
	}
}

// MergeTimeout bounds one shared merge execution.
const MergeTimeout = 30 * time.Second

// MergeEngine folds a guest cart into a user's cart exactly once per guest
// session.
type MergeEngine struct {
	deps  Deps
	group singleflight.Group
}

func NewMergeEngine(deps Deps) *MergeEngine {
	return &MergeEngine{deps: deps.withDefaults()}
}

// Merge migrates the guest session's cart into the user's cart. A session
// that is missing, expired or already converted fails the whole merge.
// Identical requests that overlap in time share one execution.
func (m *MergeEngine) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	strategy, err := ParseMergeStrategy(string(req.Strategy))
	if err != nil {
		return nil, err
	}
	req.Strategy = strategy
	if err := ValidateMergeRequest(req); err != nil {
		return nil, err
	}

	// The shared execution outlives any one caller; each caller still
	// stops waiting when its own context ends.
	key := fmt.Sprintf("%s/%s/%s", req.GuestSessionID.Hex(), req.UserID.Hex(), req.Strategy)
	ch := m.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), MergeTimeout)
		defer cancel()
		return m.merge(shared, req)
	})
	select {
	case <-ctx.Done():
		return nil, utils.NewTransient(ctx.Err(), "merge request cancelled")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*MergeResult), nil
	}
}

func (m *MergeEngine) merge(ctx context.Context, req MergeRequest) (result *MergeResult, err error) {
	start := time.Now()
	defer func() {
		observe("merge", start, err)
		switch {
		case err == nil:
			mergeTotal.WithLabelValues("success").Inc()
		case utils.IsKind(err, utils.KindBusinessRule):
			mergeTotal.WithLabelValues("rejected").Inc()
		default:
			mergeTotal.WithLabelValues("failed").Inc()
		}
	}()

	userOwner := models.UserOwner(req.UserID)
	guestOwner := models.GuestOwner(req.GuestSessionID)
	unlock := m.deps.Locks.Lock(userOwner.Key(), guestOwner.Key())
	defer unlock()

	err = m.deps.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		now := m.deps.Clock()

		session, err := m.deps.Sessions.FindByID(ctx, req.GuestSessionID)
		if err != nil {
			return utils.AsTransient(err, "failed to load guest session")
		}
		if session.Status == models.SessionConverted {
			if req.IdempotencyKey != "" && req.IdempotencyKey == session.MergeIdempotencyKey {
				return utils.NewBusinessRule("merge for idempotency key %s has already been applied", req.IdempotencyKey)
			}
			return utils.NewBusinessRule("guest session %s has already been merged", session.ID.Hex())
		}
		if session.IsExpired(now) {
			return utils.NewBusinessRule("guest session %s has expired", session.ID.Hex())
		}

		guestCart, err := m.deps.Carts.FindByOwner(ctx, guestOwner)
		if err != nil && !utils.IsKind(err, utils.KindNotFound) {
			return utils.AsTransient(err, "failed to load guest cart")
		}

		if guestCart == nil || len(guestCart.ActiveItems()) == 0 {
			result, err = m.convertEmpty(ctx, req, session, guestCart, now)
			return err
		}

		result, err = m.mergeInto(ctx, req, session, guestCart, now)
		return err
	})
	if err != nil {
		m.deps.Logger.Warn("cart merge failed",
			zap.String("guest_session_id", req.GuestSessionID.Hex()),
			zap.String("user_id", req.UserID.Hex()),
			zap.Error(err),
		)
		return nil, err
	}

	m.deps.Logger.Info("cart merged",
		zap.String("guest_session_id", req.GuestSessionID.Hex()),
		zap.String("user_id", req.UserID.Hex()),
		zap.String("strategy", string(req.Strategy)),
		zap.Int("added", result.ItemsAdded),
		zap.Int("combined", result.ItemsCombined),
		zap.Int("skipped", result.ItemsSkipped),
	)
	return result, nil
}

// convertEmpty still converts the session so a retried login does not try
// to merge again.
func (m *MergeEngine) convertEmpty(ctx context.Context, req MergeRequest, session *models.GuestSession, guestCart *models.Cart, now time.Time) (*MergeResult, error) {
	if err := m.convertSession(ctx, req, session, guestCart, now); err != nil {
		return nil, err
	}

	result := &MergeResult{
		Success:               true,
		Messages:              []string{"guest cart was empty, nothing to merge"},
		GuestSessionConverted: true,
	}
	userCart, err := m.deps.Carts.FindByOwner(ctx, models.UserOwner(req.UserID))
	switch {
	case err == nil:
		result.CartID = userCart.ID
		result.TotalItems = userCart.TotalItems
		result.Cart = userCart
	case !utils.IsKind(err, utils.KindNotFound):
		return nil, utils.AsTransient(err, "failed to load user cart")
	}

	event := models.NewCartEvent(models.EventCartMerged, result.Cart, now, map[string]interface{}{
		"guest_session_id": req.GuestSessionID.Hex(),
		"strategy":         string(req.Strategy),
		"empty":            true,
	})
	event.UserID = req.UserID
	return result, m.deps.record(ctx, event)
}

func (m *MergeEngine) mergeInto(ctx context.Context, req MergeRequest, session *models.GuestSession, guestCart *models.Cart, now time.Time) (*MergeResult, error) {
	userCart, err := m.deps.findCart(ctx, models.UserOwner(req.UserID), guestCart.Currency, now)
	if err != nil {
		return nil, err
	}
	expectedVersion := userCart.Version
	userCart.PurgeRemoved(now)

	result := &MergeResult{Messages: []string{}}
	for _, guestItem := range guestCart.ActiveItems() {
		outcome, msg := mergeItem(userCart, guestItem, req.Strategy)
		mergeItems.WithLabelValues(outcome.String()).Inc()
		switch outcome {
		case outcomeAdded:
			result.ItemsAdded++
		case outcomeCombined, outcomeReplaced:
			result.ItemsCombined++
		case outcomeSkipped:
			result.ItemsSkipped++
		}
		if msg != "" {
			result.Messages = append(result.Messages, msg)
		}
	}

	_, prices, err := m.deps.catalogState(ctx, variantIDs(userCart))
	if err != nil {
		return nil, err
	}
	userCart.RecalculateTotals(prices, now)
	userCart.Version = expectedVersion + 1
	userCart.Status = models.CartActive
	userCart.Touch(now)

	if err := m.deps.Carts.Save(ctx, userCart, expectedVersion); err != nil {
		return nil, utils.AsTransient(err, "failed to save user cart")
	}
	if err := m.convertSession(ctx, req, session, guestCart, now); err != nil {
		return nil, err
	}

	result.Success = true
	result.CartID = userCart.ID
	result.TotalItems = userCart.TotalItems
	result.GuestSessionConverted = true
	result.Cart = userCart
	result.Messages = append(result.Messages, fmt.Sprintf("merged guest cart: %d added, %d combined, %d skipped",
		result.ItemsAdded, result.ItemsCombined, result.ItemsSkipped))

	return result, m.deps.record(ctx, models.NewCartEvent(models.EventCartMerged, userCart, now, map[string]interface{}{
		"guest_session_id": req.GuestSessionID.Hex(),
		"guest_cart_id":    guestCart.ID.Hex(),
		"strategy":         string(req.Strategy),
		"items_added":      result.ItemsAdded,
		"items_combined":   result.ItemsCombined,
		"items_skipped":    result.ItemsSkipped,
	}))
}

// convertSession marks the session converted and deletes its cart.
func (m *MergeEngine) convertSession(ctx context.Context, req MergeRequest, session *models.GuestSession, guestCart *models.Cart, now time.Time) error {
	if err := session.MarkConverted(req.UserID, req.IdempotencyKey, now); err != nil {
		return err
	}
	if err := m.deps.Sessions.Save(ctx, session); err != nil {
		return utils.AsTransient(err, "failed to save guest session")
	}
	if guestCart != nil && !guestCart.ID.IsZero() {
		if err := m.deps.Carts.Delete(ctx, guestCart.ID); err != nil {
			return utils.AsTransient(err, "failed to delete guest cart")
		}
	}
	return nil
}

// mergeItem applies strategy to one guest line. Quantities are clamped so
// the cart never exceeds either ceiling; a brand-new variant that does not
// fit is skipped instead.
func mergeItem(cart *models.Cart, guest models.CartItem, strategy MergeStrategy) (itemOutcome, string) {
	existing, ok := cart.ActiveItem(guest.VariantID)
	if !ok {
		if cart.TotalQuantity()+guest.Quantity > models.MaxCartQuantity {
			return outcomeSkipped, fmt.Sprintf("skipped variant %s: adding %d would exceed %d items in the cart",
				guest.VariantID, guest.Quantity, models.MaxCartQuantity)
		}
		item := guest
		item.RemovedAt = nil
		item.Valid = true
		item.Quantity = min(item.Quantity, models.MaxItemQuantity)
		item.SetAddedAt(guest.AddedAt)
		cart.PutItem(item)
		return outcomeAdded, ""
	}

	headroom := max(0, models.MaxCartQuantity-cart.TotalQuantity())
	limit := min(models.MaxItemQuantity, existing.Quantity+headroom)
	earliest := earlierOf(existing.AddedAt, guest.AddedAt)

	if strategy == StrategyNewer && (existing.AddedAt.IsZero() || guest.AddedAt.IsZero()) {
		strategy = StrategyCombine
	}

	switch strategy {
	case StrategyKeepUser:
		return outcomeKept, fmt.Sprintf("kept your existing quantity for variant %s", guest.VariantID)
	case StrategyNewer:
		if !guest.AddedAt.After(existing.AddedAt) {
			return outcomeKept, fmt.Sprintf("kept your newer line for variant %s", guest.VariantID)
		}
		return replaceItem(existing, guest, limit, earliest)
	case StrategyKeepGuest:
		return replaceItem(existing, guest, limit, earliest)
	}

	want := existing.Quantity + guest.Quantity
	var msg string
	if want > limit {
		msg = fmt.Sprintf("quantity for variant %s capped at %d", guest.VariantID, limit)
	}
	// the earlier add keeps the longer-running lock and its price
	if !guest.AddedAt.IsZero() && (existing.AddedAt.IsZero() || guest.AddedAt.Before(existing.AddedAt)) {
		existing.PriceAtAdd = guest.PriceAtAdd
		existing.PriceDiscounted = guest.PriceDiscounted
	}
	existing.Quantity = min(want, limit)
	existing.SetAddedAt(earliest)
	return outcomeCombined, msg
}

func replaceItem(existing *models.CartItem, guest models.CartItem, limit int, earliest time.Time) (itemOutcome, string) {
	var msg string
	item := guest
	item.RemovedAt = nil
	item.Valid = true
	if item.Quantity > limit {
		msg = fmt.Sprintf("quantity for variant %s capped at %d", guest.VariantID, limit)
		item.Quantity = limit
	}
	item.SetAddedAt(earliest)
	*existing = item
	return outcomeReplaced, msg
}

// earlierOf returns the earlier non-zero time.
func earlierOf(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}
