package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is the parent catalog entry of one or more variants.
type Product struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name      string             `bson:"name" json:"name"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	DeletedAt *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

// StockLevel is the stock held for a variant at one source (warehouse,
// store, supplier).
type StockLevel struct {
	Source   string `bson:"source" json:"source"`
	Quantity int    `bson:"quantity" json:"quantity"`
}

// Variant is a purchasable SKU. Price is in minor currency units.
type Variant struct {
	ID          string             `bson:"_id" json:"id"`
	ProductID   primitive.ObjectID `bson:"product_id" json:"product_id"`
	SKU         string             `bson:"sku" json:"sku"`
	Price       int64              `bson:"price" json:"price"`
	IsActive    bool               `bson:"is_active" json:"is_active"`
	DeletedAt   *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	StockLevels []StockLevel       `bson:"stock_levels" json:"stock_levels"`
}

// VariantSnapshot is the live catalog and stock state of a variant as seen
// by the cart core.
type VariantSnapshot struct {
	ID            string `bson:"_id" json:"id"`
	IsActive      bool   `bson:"is_active" json:"is_active"`
	Price         int64  `bson:"price" json:"price"`
	TotalStock    int    `bson:"total_stock" json:"total_stock"`
	ProductActive bool   `bson:"product_active" json:"product_active"`
}

// Available reports whether both the variant and its product can be sold.
func (v VariantSnapshot) Available() bool {
	return v.IsActive && v.ProductActive
}
