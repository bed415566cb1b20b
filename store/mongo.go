// Package store holds the MongoDB implementations of the cart ports.
package store

import (
	"context"
	"fmt"

	"go-cartsync/cartsync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	CartsCollection    = "carts"
	SessionsCollection = "guest_sessions"
	VariantsCollection = "variants"
	ProductsCollection = "products"
	EventsCollection   = "cart_events"
	UsersCollection    = "users"
)

var (
	_ cartsync.CartStore     = (*CartStore)(nil)
	_ cartsync.SessionStore  = (*SessionStore)(nil)
	_ cartsync.CatalogLookup = (*Catalog)(nil)
	_ cartsync.Transactor    = (*Transactor)(nil)
	_ cartsync.EventSink     = (*AuditLog)(nil)
)

// Connect opens a client and checks the primary is reachable.
// Transactions need a replica set or sharded cluster.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}
