package main

import (
	"context"
	"errors"
	"time"

	"go-cartsync/cartsync"
	"go-cartsync/config"
	"go-cartsync/controllers"
	"go-cartsync/events"
	"go-cartsync/routes"
	"go-cartsync/store"
	"go-cartsync/utils"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const eventDeliveryTimeout = 5 * time.Second

// app owns the long-lived connections behind the router.
type app struct {
	Router *mux.Router
	client *mongo.Client
	pool   *events.ChannelPool
	logger *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	// Set the JWT secret key
	utils.JwtKey = []byte(cfg.JWTSecret)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := store.Connect(connectCtx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.MongoDatabase)

	a := &app{client: client, logger: logger}

	sink := &events.Fanout{
		Primary:     store.NewAuditLog(db),
		Secondaries: []cartsync.EventSink{events.LogSink{Logger: logger}},
		Logger:      logger,
		Timeout:     eventDeliveryTimeout,
	}
	if cfg.RabbitMQURL != "" {
		pool, err := events.NewChannelPool(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.ChannelPoolSize, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.pool = pool
		sink.Secondaries = append(sink.Secondaries, events.NewPublisher(pool, cfg.RabbitMQQueue, logger))
	}

	carts := store.NewCartStore(db)
	deps := cartsync.Deps{
		Carts:           carts,
		Sessions:        store.NewSessionStore(db),
		Catalog:         store.NewCatalog(db),
		Tx:              store.NewTransactor(client),
		Events:          sink,
		Locks:           cartsync.NewOwnerLocks(),
		Logger:          logger,
		DefaultCurrency: cfg.DefaultCurrency,
		Clock:           func() time.Time { return time.Now().UTC() },
	}

	guests := cartsync.NewGuestSessions(deps)
	merger := cartsync.NewMergeEngine(deps)

	userController := controllers.NewUserController(db, guests, merger, logger)
	userController.Timeout = cfg.RequestTimeout
	guestController := &controllers.GuestController{Sessions: guests, Timeout: cfg.RequestTimeout}
	cartController := &controllers.CartController{
		Editor:    cartsync.NewEditor(deps),
		Syncer:    cartsync.NewSyncer(deps),
		Merger:    merger,
		Guests:    guests,
		Validator: cartsync.NewValidationPass(deps),
		Carts:     carts,
		Timeout:   cfg.RequestTimeout,
	}

	a.Router = mux.NewRouter()
	routes.RegisterRoutes(a.Router, guests, userController, guestController, cartController)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.client.Disconnect(context.Background()); err != nil {
		a.logger.Warn("failed to disconnect from MongoDB", zap.Error(err))
	}
}
