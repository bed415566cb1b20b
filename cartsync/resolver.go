package cartsync

import (
	"fmt"
	"time"

	"go-cartsync/models"
)

const (
	// SimultaneousEditWindow is the timestamp distance under which client
	// and server writes are treated as concurrent.
	SimultaneousEditWindow = 5 * time.Second
	// ClockSkewThreshold is the timestamp distance above which a clock skew
	// conflict is logged.
	ClockSkewThreshold = 10 * time.Second
)

// ResolutionStrategy names how a sync was resolved.
type ResolutionStrategy string

const (
	ResolutionMerged     ResolutionStrategy = "MERGED"
	ResolutionServerWins ResolutionStrategy = "SERVER_WINS"
	ResolutionClientWins ResolutionStrategy = "CLIENT_WINS"
)

type ConflictType string

const (
	ConflictClockSkew        ConflictType = "CLOCK_SKEW"
	ConflictVersionMismatch  ConflictType = "VERSION_MISMATCH"
	ConflictItemQuantity     ConflictType = "ITEM_QUANTITY_CONFLICT"
	ConflictCurrencyMismatch ConflictType = "CURRENCY_MISMATCH"
)

// Conflict is one entry of the conflict log produced by a sync.
type Conflict struct {
	Type        ConflictType `json:"type"`
	VariantID   string       `json:"variant_id,omitempty"`
	ClientValue interface{}  `json:"client_value,omitempty"`
	ServerValue interface{}  `json:"server_value,omitempty"`
	Message     string       `json:"message"`
}

// Resolution is the outcome of reconciling a client snapshot with the
// server cart.
type Resolution struct {
	Cart      *models.Cart       `json:"cart"`
	Strategy  ResolutionStrategy `json:"strategy"`
	Conflicts []Conflict         `json:"conflicts"`
}

// ConflictResolver reconciles client snapshots against the authoritative
// server cart. It is deterministic: the same inputs always give the same
// strategy and item set.
type ConflictResolver struct{}

// Resolve never mutates server. prices holds current catalog prices used for
// totals and may be nil.
//
// A server cart at version 0 has never been written and carries no
// authoritative timestamp, so the client snapshot is applied as-is.
func (ConflictResolver) Resolve(req SyncRequest, server *models.Cart, prices map[string]int64, now time.Time) *Resolution {
	res := &Resolution{Conflicts: []Conflict{}}

	if server.Version == 0 {
		res.Strategy = ResolutionClientWins
	} else {
		serverTime := server.UpdatedAt
		diff := serverTime.Sub(req.ClientTimestamp)
		if diff < 0 {
			diff = -diff
		}

		if diff > ClockSkewThreshold {
			res.Conflicts = append(res.Conflicts, Conflict{
				Type:        ConflictClockSkew,
				ClientValue: req.ClientTimestamp,
				ServerValue: serverTime,
				Message:     fmt.Sprintf("client and server clocks differ by %s; server time is authoritative", diff),
			})
		}
		if req.ClientVersion != server.Version {
			res.Conflicts = append(res.Conflicts, Conflict{
				Type:        ConflictVersionMismatch,
				ClientValue: req.ClientVersion,
				ServerValue: server.Version,
				Message:     fmt.Sprintf("client version %d does not match server version %d", req.ClientVersion, server.Version),
			})
		}

		switch {
		case diff <= SimultaneousEditWindow:
			res.Strategy = ResolutionMerged
		case serverTime.After(req.ClientTimestamp):
			res.Strategy = ResolutionServerWins
		default:
			res.Strategy = ResolutionClientWins
		}
	}

	if req.Currency != "" && server.Currency != "" && req.Currency != server.Currency {
		res.Conflicts = append(res.Conflicts, Conflict{
			Type:        ConflictCurrencyMismatch,
			ClientValue: req.Currency,
			ServerValue: server.Currency,
			Message:     fmt.Sprintf("client currency %s ignored, cart is priced in %s", req.Currency, server.Currency),
		})
	}

	if res.Strategy == ResolutionServerWins {
		res.Cart = server.Clone()
		return res
	}

	cart := server.Clone()
	if cart.Currency == "" {
		cart.Currency = req.Currency
	}
	res.Conflicts = append(res.Conflicts, mergeClientItems(cart, req.Items, prices, now)...)
	cart.RecalculateTotals(prices, now)
	cart.Version = server.Version + 1
	cart.Touch(now)
	res.Cart = cart
	return res
}

// mergeClientItems folds client lines into cart. Server lines absent from
// the client are kept: absence on one device means not yet synced, never
// deleted.
//
// Prices are never taken from the client when the server knows better. A
// line new to the server captures the current catalog price; a line the
// server already holds keeps its captured price.
func mergeClientItems(cart *models.Cart, items []SyncItem, prices map[string]int64, now time.Time) []Conflict {
	var conflicts []Conflict
	for _, in := range items {
		incoming := toCartItem(in, now)

		existing, ok := cart.ActiveItem(incoming.VariantID)
		if !ok {
			if price, known := prices[incoming.VariantID]; known {
				incoming.PriceAtAdd = price
			}
			cart.PutItem(incoming)
			continue
		}

		if incoming.Quantity != existing.Quantity {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictItemQuantity,
				VariantID:   incoming.VariantID,
				ClientValue: incoming.Quantity,
				ServerValue: existing.Quantity,
				Message:     fmt.Sprintf("quantity differs for variant %s, keeping %d", incoming.VariantID, max(incoming.Quantity, existing.Quantity)),
			})
			existing.Quantity = max(incoming.Quantity, existing.Quantity)
		}

		// the earlier add starts the lock, the captured price stays
		existing.SetAddedAt(earlierOf(incoming.AddedAt, existing.AddedAt))
		if existing.CampaignTag == "" {
			existing.CampaignTag = incoming.CampaignTag
		}
	}
	return conflicts
}
