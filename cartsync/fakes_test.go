package cartsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errBoom = errors.New("boom")

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: baseTime} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memDB backs every port with maps. Transactions snapshot the whole state
// and restore it when fn fails.
type memDB struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	carts    map[primitive.ObjectID]*models.Cart
	sessions map[primitive.ObjectID]*models.GuestSession
	variants map[string]models.VariantSnapshot
	events   []models.CartEvent

	// sessionGate, when set, blocks session lookups until closed;
	// sessionReached is signalled on each blocked lookup.
	sessionGate    chan struct{}
	sessionReached chan struct{}

	failCartSave error
	failRecord   error
	failCatalog  error
	catalogCalls int
	sessionSaves int
}

func newMemDB() *memDB {
	return &memDB{
		carts:    make(map[primitive.ObjectID]*models.Cart),
		sessions: make(map[primitive.ObjectID]*models.GuestSession),
		variants: make(map[string]models.VariantSnapshot),
	}
}

func (db *memDB) deps(clock *fakeClock) Deps {
	return Deps{
		Carts:    memCarts{db},
		Sessions: memSessions{db},
		Catalog:  memCatalog{db},
		Tx:       db,
		Events:   memEvents{db},
		Clock:    clock.Now,
	}
}

func (db *memDB) addVariant(id string, price int64, stock int) {
	db.variants[id] = models.VariantSnapshot{ID: id, IsActive: true, ProductActive: true, Price: price, TotalStock: stock}
}

// putCart stores a copy of cart as if it had been saved before.
func (db *memDB) putCart(cart *models.Cart) *models.Cart {
	db.mu.Lock()
	defer db.mu.Unlock()
	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
	}
	if cart.Version == 0 {
		cart.Version = 1
	}
	db.carts[cart.ID] = cart.Clone()
	return cart
}

func (db *memDB) putSession(session *models.GuestSession) *models.GuestSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	cp := *session
	db.sessions[session.ID] = &cp
	return session
}

func (db *memDB) cartOf(owner models.Owner) *models.Cart {
	cart, err := memCarts{db}.FindByOwner(context.Background(), owner)
	if err != nil {
		return nil
	}
	return cart
}

func (db *memDB) session(id primitive.ObjectID) *models.GuestSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s, ok := db.sessions[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (db *memDB) eventTypes() []models.CartEventType {
	db.mu.Lock()
	defer db.mu.Unlock()
	types := make([]models.CartEventType, 0, len(db.events))
	for _, e := range db.events {
		types = append(types, e.Type)
	}
	return types
}

func (db *memDB) lastEvent() models.CartEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.events[len(db.events)-1]
}

func (db *memDB) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	carts := make(map[primitive.ObjectID]*models.Cart, len(db.carts))
	for id, c := range db.carts {
		carts[id] = c.Clone()
	}
	sessions := make(map[primitive.ObjectID]*models.GuestSession, len(db.sessions))
	for id, s := range db.sessions {
		cp := *s
		sessions[id] = &cp
	}
	events := len(db.events)
	db.mu.Unlock()

	err := fn(ctx)
	if err == nil {
		// commit fails on an ended context, as it does against MongoDB
		err = ctx.Err()
	}
	if err != nil {
		db.mu.Lock()
		db.carts = carts
		db.sessions = sessions
		db.events = db.events[:events]
		db.mu.Unlock()
		return err
	}
	return nil
}

type memCarts struct{ db *memDB }

func (m memCarts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Cart, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if c, ok := m.db.carts[id]; ok {
		return c.Clone(), nil
	}
	return nil, utils.NewNotFound("cart %s not found", id.Hex())
}

func (m memCarts) FindByOwner(_ context.Context, owner models.Owner) (*models.Cart, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, c := range m.db.carts {
		if c.Owner() == owner {
			return c.Clone(), nil
		}
	}
	return nil, utils.NewNotFound("cart for %s not found", owner.Key())
}

func (m memCarts) Save(_ context.Context, cart *models.Cart, expectedVersion int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.failCartSave != nil {
		return m.db.failCartSave
	}
	if cart.ID.IsZero() {
		for _, c := range m.db.carts {
			if c.Owner() == cart.Owner() {
				return ErrVersionConflict
			}
		}
		cart.ID = primitive.NewObjectID()
		m.db.carts[cart.ID] = cart.Clone()
		return nil
	}
	stored, ok := m.db.carts[cart.ID]
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.db.carts[cart.ID] = cart.Clone()
	return nil
}

func (m memCarts) Delete(_ context.Context, id primitive.ObjectID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.carts, id)
	return nil
}

type memSessions struct{ db *memDB }

func (m memSessions) FindByID(_ context.Context, id primitive.ObjectID) (*models.GuestSession, error) {
	if m.db.sessionGate != nil {
		m.db.sessionReached <- struct{}{}
		<-m.db.sessionGate
	}
	if s := m.db.session(id); s != nil {
		return s, nil
	}
	return nil, utils.NewNotFound("guest session %s not found", id.Hex())
}

func (m memSessions) FindByToken(_ context.Context, token string) (*models.GuestSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.sessions {
		if s.Token == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, utils.NewNotFound("guest session not found")
}

func (m memSessions) Save(_ context.Context, session *models.GuestSession) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	cp := *session
	m.db.sessions[session.ID] = &cp
	m.db.sessionSaves++
	return nil
}

type memCatalog struct{ db *memDB }

func (m memCatalog) GetVariants(_ context.Context, ids []string) ([]models.VariantSnapshot, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.catalogCalls++
	if m.db.failCatalog != nil {
		return nil, m.db.failCatalog
	}
	var out []models.VariantSnapshot
	for _, id := range ids {
		if v, ok := m.db.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type memEvents struct{ db *memDB }

func (m memEvents) Record(_ context.Context, event models.CartEvent) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.failRecord != nil {
		return m.db.failRecord
	}
	m.db.events = append(m.db.events, event)
	return nil
}

// cartWith builds a saved-looking cart for owner holding items.
func cartWith(owner models.Owner, updatedAt time.Time, items ...models.CartItem) *models.Cart {
	cart := models.NewCart(owner, "USD", updatedAt)
	for _, it := range items {
		cart.PutItem(it)
	}
	cart.RecalculateTotals(nil, updatedAt)
	cart.Touch(updatedAt)
	cart.Version = 1
	return cart
}

func lineItem(variantID string, qty int, price int64, addedAt time.Time) models.CartItem {
	return models.NewCartItem(variantID, qty, price, addedAt)
}

func quantities(cart *models.Cart) map[string]int {
	out := make(map[string]int)
	for _, it := range cart.ActiveItems() {
		out[it.VariantID] = it.Quantity
	}
	return out
}
