// Package pricelock computes what a customer pays for a cart line while its
// seven-day price guarantee is running.
//
// Amounts are integer minor currency units. A lock never raises a price: while
// it is active the customer pays the lower of the captured price and the
// current catalog price, and once it lapses the catalog price applies.
package pricelock

import "time"

// Duration is how long a captured price stays protected.
const Duration = 7 * 24 * time.Hour

// Until returns the lock expiry for an item added at addedAt.
func Until(addedAt time.Time) time.Time {
	if addedAt.IsZero() {
		return time.Time{}
	}
	return addedAt.Add(Duration)
}

// Lock is the price captured for a line item and when its protection ends.
// A zero LockedUntil means the item never had a lock.
type Lock struct {
	PriceAtAdd  int64
	LockedUntil time.Time
}

// Expired reports whether the lock no longer protects the price. The expiry
// instant itself counts as expired.
func (l Lock) Expired(now time.Time) bool {
	return l.LockedUntil.IsZero() || !now.Before(l.LockedUntil)
}

// EffectivePrice is the unit price charged. known is false when the catalog
// price is unavailable, in which case the captured price is used.
func (l Lock) EffectivePrice(current int64, known bool, now time.Time) int64 {
	if !known {
		return l.PriceAtAdd
	}
	if l.Expired(now) {
		return current
	}
	if current < l.PriceAtAdd {
		return current
	}
	return l.PriceAtAdd
}

// Savings is the per-unit amount the customer saves against the captured
// price. It is zero once the lock has expired.
func (l Lock) Savings(current int64, known bool, now time.Time) int64 {
	if l.Expired(now) {
		return 0
	}
	saved := l.PriceAtAdd - l.EffectivePrice(current, known, now)
	if saved < 0 {
		return 0
	}
	return saved
}

// DaysRemaining returns whole days until expiry, floored at zero.
func (l Lock) DaysRemaining(now time.Time) int {
	if l.LockedUntil.IsZero() {
		return 0
	}
	left := l.LockedUntil.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / (24 * time.Hour))
}
