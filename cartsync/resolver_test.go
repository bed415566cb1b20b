package cartsync

import (
	"testing"
	"time"

	"go-cartsync/models"
	"go-cartsync/pricelock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func conflictTypes(conflicts []Conflict) []ConflictType {
	types := make([]ConflictType, 0, len(conflicts))
	for _, c := range conflicts {
		types = append(types, c.Type)
	}
	return types
}

func serverCart(updatedAt time.Time) *models.Cart {
	owner := models.UserOwner(primitive.NewObjectID())
	cart := cartWith(owner, updatedAt,
		lineItem("v1", 2, 1000, updatedAt.Add(-time.Hour)),
		lineItem("v2", 1, 500, updatedAt.Add(-time.Hour)),
	)
	cart.ID = primitive.NewObjectID()
	return cart
}

func TestResolveSimultaneousEditMerges(t *testing.T) {
	now := baseTime.Add(time.Minute)
	server := serverCart(baseTime)
	before := server.Clone()

	req := SyncRequest{
		ClientVersion:   1,
		ClientTimestamp: baseTime.Add(3000 * time.Millisecond),
		Items: []SyncItem{
			{VariantID: "v1", Quantity: 5, PriceAtAdd: 1000, AddedAt: baseTime.Add(-time.Hour)},
			{VariantID: "v3", Quantity: 1, PriceAtAdd: 200, AddedAt: baseTime},
		},
	}

	res := ConflictResolver{}.Resolve(req, server, map[string]int64{"v1": 1000, "v2": 500, "v3": 200}, now)

	assert.Equal(t, ResolutionMerged, res.Strategy)
	assert.Equal(t, map[string]int{"v1": 5, "v2": 1, "v3": 1}, quantities(res.Cart))
	assert.Equal(t, []ConflictType{ConflictItemQuantity}, conflictTypes(res.Conflicts))
	assert.Equal(t, "v1", res.Conflicts[0].VariantID)
	assert.Equal(t, int64(2), res.Cart.Version)
	assert.Equal(t, 7, res.Cart.TotalItems)
	assert.Equal(t, int64(5*1000+500+200), res.Cart.TotalAmount)
	assert.Equal(t, now, res.Cart.UpdatedAt)
	assert.Equal(t, before, server, "server cart must not be mutated")
}

func TestResolveStaleClientServerWins(t *testing.T) {
	server := serverCart(baseTime)

	req := SyncRequest{
		ClientVersion:   1,
		ClientTimestamp: baseTime.Add(-20000 * time.Millisecond),
		Items: []SyncItem{
			{VariantID: "v1", Quantity: 9, PriceAtAdd: 1000, AddedAt: baseTime.Add(-2 * time.Hour)},
		},
	}

	res := ConflictResolver{}.Resolve(req, server, nil, baseTime.Add(time.Minute))

	assert.Equal(t, ResolutionServerWins, res.Strategy)
	assert.Equal(t, server, res.Cart)
	assert.NotSame(t, server, res.Cart)
	assert.Equal(t, []ConflictType{ConflictClockSkew}, conflictTypes(res.Conflicts))
}

func TestResolveNewerClientWinsAndKeepsServerItems(t *testing.T) {
	server := serverCart(baseTime)

	req := SyncRequest{
		ClientVersion:   0,
		ClientTimestamp: baseTime.Add(15 * time.Second),
		Items: []SyncItem{
			{VariantID: "v2", Quantity: 1, PriceAtAdd: 500, AddedAt: baseTime.Add(-time.Hour)},
			{VariantID: "v4", Quantity: 3, PriceAtAdd: 100, AddedAt: baseTime},
		},
	}

	res := ConflictResolver{}.Resolve(req, server, nil, baseTime.Add(time.Minute))

	assert.Equal(t, ResolutionClientWins, res.Strategy)
	assert.Equal(t, map[string]int{"v1": 2, "v2": 1, "v4": 3}, quantities(res.Cart))
	assert.ElementsMatch(t, []ConflictType{ConflictClockSkew, ConflictVersionMismatch}, conflictTypes(res.Conflicts))
}

func TestResolveBoundaryOfSimultaneousWindow(t *testing.T) {
	server := serverCart(baseTime)

	req := SyncRequest{ClientVersion: 1, ClientTimestamp: baseTime.Add(-SimultaneousEditWindow)}
	res := ConflictResolver{}.Resolve(req, server, nil, baseTime)
	assert.Equal(t, ResolutionMerged, res.Strategy)

	req.ClientTimestamp = baseTime.Add(-SimultaneousEditWindow - time.Millisecond)
	res = ConflictResolver{}.Resolve(req, server, nil, baseTime)
	assert.Equal(t, ResolutionServerWins, res.Strategy)
	assert.Empty(t, res.Conflicts, "a 5s gap is not clock skew")
}

func TestResolveUnsavedServerCartTakesClient(t *testing.T) {
	owner := models.UserOwner(primitive.NewObjectID())
	server := models.NewCart(owner, "USD", baseTime)

	req := SyncRequest{
		ClientVersion:   7,
		ClientTimestamp: baseTime.Add(-time.Hour),
		Items: []SyncItem{
			{VariantID: "v1", Quantity: 2, PriceAtAdd: 1000, AddedAt: baseTime.Add(-2 * time.Hour)},
		},
	}

	res := ConflictResolver{}.Resolve(req, server, nil, baseTime)

	assert.Equal(t, ResolutionClientWins, res.Strategy)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, int64(1), res.Cart.Version)
	assert.Equal(t, map[string]int{"v1": 2}, quantities(res.Cart))
}

func TestResolveKeepsEarliestAddedAtAndServerPrice(t *testing.T) {
	server := serverCart(baseTime)
	earlier := baseTime.Add(-48 * time.Hour)

	req := SyncRequest{
		ClientVersion:   1,
		ClientTimestamp: baseTime,
		Items: []SyncItem{
			{VariantID: "v1", Quantity: 2, PriceAtAdd: 900, AddedAt: earlier},
			{VariantID: "v2", Quantity: 1, PriceAtAdd: 450, AddedAt: baseTime},
		},
	}

	res := ConflictResolver{}.Resolve(req, server, nil, baseTime)

	v1, ok := res.Cart.ActiveItem("v1")
	require.True(t, ok)
	assert.Equal(t, earlier, v1.AddedAt)
	assert.Equal(t, pricelock.Until(earlier), v1.LockedUntil)
	assert.Equal(t, int64(1000), v1.PriceAtAdd, "client price must not replace the captured price")

	v2, ok := res.Cart.ActiveItem("v2")
	require.True(t, ok)
	assert.Equal(t, baseTime.Add(-time.Hour), v2.AddedAt)
	assert.Equal(t, int64(500), v2.PriceAtAdd)
	assert.Empty(t, res.Conflicts)
}

func TestResolveCapturesCatalogPriceForNewLines(t *testing.T) {
	server := serverCart(baseTime)

	req := SyncRequest{
		ClientVersion:   1,
		ClientTimestamp: baseTime,
		Items: []SyncItem{
			{VariantID: "tv", Quantity: 2, PriceAtAdd: 1, AddedAt: baseTime.Add(-time.Hour)},
			{VariantID: "gone", Quantity: 1, PriceAtAdd: 300, AddedAt: baseTime},
		},
	}

	res := ConflictResolver{}.Resolve(req, server, map[string]int64{"v1": 1000, "v2": 500, "tv": 100000}, baseTime)

	tv, ok := res.Cart.ActiveItem("tv")
	require.True(t, ok)
	assert.Equal(t, int64(100000), tv.PriceAtAdd)
	assert.Equal(t, int64(100000), tv.Lock().EffectivePrice(100000, true, baseTime))

	// unknown to the catalog: kept as sent, removed by checkout validation
	gone, ok := res.Cart.ActiveItem("gone")
	require.True(t, ok)
	assert.Equal(t, int64(300), gone.PriceAtAdd)
}

func TestResolveClampsFutureAddedAt(t *testing.T) {
	server := serverCart(baseTime)

	req := SyncRequest{
		ClientVersion:   1,
		ClientTimestamp: baseTime,
		Items: []SyncItem{
			{VariantID: "v9", Quantity: 1, PriceAtAdd: 100, AddedAt: baseTime.Add(24 * time.Hour)},
		},
	}

	res := ConflictResolver{}.Resolve(req, server, nil, baseTime)

	v9, ok := res.Cart.ActiveItem("v9")
	require.True(t, ok)
	assert.Equal(t, baseTime, v9.AddedAt)
}

func TestResolveLogsCurrencyMismatch(t *testing.T) {
	server := serverCart(baseTime)

	req := SyncRequest{ClientVersion: 1, ClientTimestamp: baseTime, Currency: "EUR"}
	res := ConflictResolver{}.Resolve(req, server, nil, baseTime)

	assert.Equal(t, []ConflictType{ConflictCurrencyMismatch}, conflictTypes(res.Conflicts))
	assert.Equal(t, "USD", res.Cart.Currency)
}

func TestResolveIsDeterministic(t *testing.T) {
	server := serverCart(baseTime)
	req := SyncRequest{
		ClientVersion:   3,
		ClientTimestamp: baseTime.Add(2 * time.Second),
		Items: []SyncItem{
			{VariantID: "v1", Quantity: 1, PriceAtAdd: 1000, AddedAt: baseTime},
			{VariantID: "v5", Quantity: 4, PriceAtAdd: 10, AddedAt: baseTime},
		},
	}
	prices := map[string]int64{"v1": 800}

	first := ConflictResolver{}.Resolve(req, server, prices, baseTime)
	second := ConflictResolver{}.Resolve(req, server, prices, baseTime)

	assert.Equal(t, first, second)
}
