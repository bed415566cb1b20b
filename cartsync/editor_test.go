package cartsync

import (
	"context"
	"testing"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newEditorFixture() (*memDB, *fakeClock, *Editor, models.Owner) {
	db := newMemDB()
	clock := newFakeClock()
	db.addVariant("v1", 1000, 100)
	db.addVariant("v2", 500, 100)
	return db, clock, NewEditor(db.deps(clock)), models.UserOwner(primitive.NewObjectID())
}

func TestEditorCartReturnsEmptyCartForNewOwner(t *testing.T) {
	_, _, editor, owner := newEditorFixture()

	cart, err := editor.Cart(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, cart.ID.IsZero())
	assert.Zero(t, cart.Version)
	assert.Empty(t, cart.Items)
	assert.Equal(t, "USD", cart.Currency)
}

func TestEditorAddItem(t *testing.T) {
	db, clock, editor, owner := newEditorFixture()

	cart, err := editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "v1", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cart.Version)
	assert.Equal(t, 2, cart.TotalItems)
	assert.Equal(t, int64(2000), cart.TotalAmount)

	// a later price rise does not touch the captured price
	db.addVariant("v1", 1200, 100)
	clock.Advance(time.Hour)
	cart, err = editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "v1", Quantity: 1})
	require.NoError(t, err)

	v1, ok := cart.ActiveItem("v1")
	require.True(t, ok)
	assert.Equal(t, 3, v1.Quantity)
	assert.Equal(t, int64(1000), v1.PriceAtAdd)
	assert.Equal(t, baseTime, v1.AddedAt)
	assert.Equal(t, int64(3000), cart.TotalAmount)
	assert.Equal(t, int64(2), db.cartOf(owner).Version)
	assert.Equal(t, []models.CartEventType{models.EventItemAdded, models.EventItemAdded}, db.eventTypes())
}

func TestEditorAddItemRejections(t *testing.T) {
	db, _, editor, owner := newEditorFixture()
	db.variants["inactive"] = models.VariantSnapshot{ID: "inactive", IsActive: false, ProductActive: true, Price: 10, TotalStock: 10}
	db.addVariant("scarce", 10, 2)
	db.addVariant("bulk", 10, 1000)
	db.addVariant("bulk2", 10, 1000)
	db.addVariant("bulk3", 10, 1000)

	tests := []struct {
		name string
		req  AddItemRequest
		kind utils.ErrorKind
	}{
		{"unknown variant", AddItemRequest{VariantID: "nope", Quantity: 1}, utils.KindNotFound},
		{"inactive variant", AddItemRequest{VariantID: "inactive", Quantity: 1}, utils.KindBusinessRule},
		{"not enough stock", AddItemRequest{VariantID: "scarce", Quantity: 3}, utils.KindBusinessRule},
		{"zero quantity", AddItemRequest{VariantID: "v1", Quantity: 0}, utils.KindInvalidInput},
		{"over item ceiling", AddItemRequest{VariantID: "bulk", Quantity: 1}, utils.KindBusinessRule},
		{"over cart ceiling", AddItemRequest{VariantID: "bulk3", Quantity: 1}, utils.KindBusinessRule},
	}

	_, err := editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "bulk", Quantity: 50})
	require.NoError(t, err)
	_, err = editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "bulk2", Quantity: 50})
	require.NoError(t, err)
	before := db.cartOf(owner)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := editor.AddItem(context.Background(), owner, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, utils.KindOf(err))
			assert.Equal(t, before, db.cartOf(owner))
		})
	}
}

func TestEditorUpdateQuantity(t *testing.T) {
	db, _, editor, owner := newEditorFixture()
	_, err := editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "v1", Quantity: 2})
	require.NoError(t, err)

	cart, err := editor.UpdateQuantity(context.Background(), owner, "v1", UpdateQuantityRequest{Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"v1": 5}, quantities(cart))
	assert.Equal(t, models.EventItemUpdated, db.lastEvent().Type)

	_, err = editor.UpdateQuantity(context.Background(), owner, "v2", UpdateQuantityRequest{Quantity: 1})
	assert.True(t, utils.IsKind(err, utils.KindNotFound))

	_, err = editor.UpdateQuantity(context.Background(), owner, "v1", UpdateQuantityRequest{Quantity: 51})
	assert.True(t, utils.IsKind(err, utils.KindInvalidInput))
}

func TestEditorUpdateQuantityRejections(t *testing.T) {
	db, _, editor, owner := newEditorFixture()
	db.addVariant("scarce", 10, 5)
	db.addVariant("retired", 10, 100)
	db.addVariant("dropped", 10, 100)
	for _, id := range []string{"scarce", "retired", "dropped"} {
		_, err := editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: id, Quantity: 1})
		require.NoError(t, err)
	}
	db.variants["retired"] = models.VariantSnapshot{ID: "retired", IsActive: true, ProductActive: false, Price: 10, TotalStock: 100}
	delete(db.variants, "dropped")
	before := db.cartOf(owner)

	tests := []struct {
		name      string
		variantID string
		quantity  int
		kind      utils.ErrorKind
	}{
		{"more than in stock", "scarce", 6, utils.KindBusinessRule},
		{"unavailable variant", "retired", 2, utils.KindBusinessRule},
		{"variant left the catalog", "dropped", 2, utils.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := editor.UpdateQuantity(context.Background(), owner, tt.variantID, UpdateQuantityRequest{Quantity: tt.quantity})
			require.Error(t, err)
			assert.Equal(t, tt.kind, utils.KindOf(err))
			assert.Equal(t, before, db.cartOf(owner))
		})
	}

	cart, err := editor.UpdateQuantity(context.Background(), owner, "scarce", UpdateQuantityRequest{Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, quantities(cart)["scarce"])
}

func TestEditorRemoveAndRestore(t *testing.T) {
	_, clock, editor, owner := newEditorFixture()
	_, err := editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "v1", Quantity: 2})
	require.NoError(t, err)
	_, err = editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "v2", Quantity: 1})
	require.NoError(t, err)

	cart, err := editor.RemoveItem(context.Background(), owner, "v1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"v2": 1}, quantities(cart))
	assert.Equal(t, int64(500), cart.TotalAmount)

	clock.Advance(3 * time.Second)
	cart, err = editor.RestoreItem(context.Background(), owner, "v1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"v1": 2, "v2": 1}, quantities(cart))
	assert.Equal(t, int64(2500), cart.TotalAmount)

	_, err = editor.RemoveItem(context.Background(), owner, "v1")
	require.NoError(t, err)
	clock.Advance(models.UndoWindow + time.Second)
	_, err = editor.RestoreItem(context.Background(), owner, "v1")
	assert.True(t, utils.IsKind(err, utils.KindBusinessRule))

	_, err = editor.RemoveItem(context.Background(), owner, "missing")
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}

func TestEditorRemovingLastItemEmitsCartEmptied(t *testing.T) {
	db, clock, editor, owner := newEditorFixture()
	_, err := editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "v1", Quantity: 1})
	require.NoError(t, err)

	_, err = editor.RemoveItem(context.Background(), owner, "v1")
	require.NoError(t, err)
	assert.Equal(t, []models.CartEventType{
		models.EventItemAdded,
		models.EventItemRemoved,
		models.EventCartEmptied,
	}, db.eventTypes())

	// the next edit drops the expired removal for good
	clock.Advance(models.UndoWindow + time.Second)
	cart, err := editor.AddItem(context.Background(), owner, AddItemRequest{VariantID: "v2", Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}
