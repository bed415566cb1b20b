package cartsync

import (
	"context"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"

	"go.uber.org/zap"
)

// SyncResult is returned to the device that pushed a snapshot.
type SyncResult struct {
	Cart      *models.Cart       `json:"cart"`
	Strategy  ResolutionStrategy `json:"strategy"`
	Conflicts []Conflict         `json:"conflicts"`
	// Applied is false when the server cart was kept unchanged.
	Applied bool `json:"applied"`
}

// Syncer applies client cart snapshots to the stored cart.
type Syncer struct {
	deps     Deps
	resolver ConflictResolver
}

func NewSyncer(deps Deps) *Syncer {
	return &Syncer{deps: deps.withDefaults()}
}

// Sync reconciles req against owner's stored cart and persists the result.
// A merged cart that breaks the quantity ceilings is rejected with its
// diagnostics and nothing is written.
func (s *Syncer) Sync(ctx context.Context, owner models.Owner, req SyncRequest) (result *SyncResult, err error) {
	start := time.Now()
	defer func() { observe("sync", start, err) }()

	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSyncRequest(req); err != nil {
		return nil, err
	}

	unlock := s.deps.Locks.Lock(owner.Key())
	defer unlock()

	err = s.deps.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		now := s.deps.Clock()
		server, err := s.deps.findCart(ctx, owner, req.Currency, now)
		if err != nil {
			return err
		}

		extra := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			extra = append(extra, item.VariantID)
		}
		_, prices, err := s.deps.catalogState(ctx, variantIDs(server, extra...))
		if err != nil {
			return err
		}

		res := s.resolver.Resolve(req, server, prices, now)
		for _, c := range res.Conflicts {
			syncConflicts.WithLabelValues(string(c.Type)).Inc()
		}
		result = &SyncResult{Cart: res.Cart, Strategy: res.Strategy, Conflicts: res.Conflicts}

		if res.Strategy != ResolutionServerWins {
			if diags := res.Cart.Diagnostics(); len(diags) > 0 {
				return utils.NewBusinessRuleWithDetails("synced cart would exceed cart limits", diags)
			}
			if err := s.deps.Carts.Save(ctx, res.Cart, server.Version); err != nil {
				return utils.AsTransient(err, "failed to save cart")
			}
			result.Applied = true
		}

		return s.deps.record(ctx, models.NewCartEvent(models.EventCartSynced, res.Cart, now, map[string]interface{}{
			"strategy":       string(res.Strategy),
			"conflicts":      len(res.Conflicts),
			"client_version": req.ClientVersion,
			"applied":        result.Applied,
		}))
	})
	if err != nil {
		s.deps.Logger.Warn("cart sync failed", zap.String("owner", owner.Key()), zap.Error(err))
		return nil, err
	}

	syncResolutions.WithLabelValues(string(result.Strategy)).Inc()
	s.deps.Logger.Info("cart synced",
		zap.String("owner", owner.Key()),
		zap.String("strategy", string(result.Strategy)),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int64("version", result.Cart.Version),
	)
	return result, nil
}
