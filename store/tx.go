package store

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
)

// Transactor runs cart operations in a MongoDB multi-document transaction.
type Transactor struct {
	Client *mongo.Client
}

func NewTransactor(client *mongo.Client) *Transactor {
	return &Transactor{Client: client}
}

// RunInTransaction runs fn with a context bound to a session transaction.
// The driver retries fn on transient transaction errors, so fn must reload
// whatever it reads. Hooks registered with AfterCommit run once the commit
// succeeds.
func (t *Transactor) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.Client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	var hooks *commitHooks
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		hooks = &commitHooks{}
		return nil, fn(context.WithValue(sc, commitHooksKey{}, hooks))
	})
	if err != nil {
		return err
	}
	hooks.run()
	return nil
}

type commitHooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

func (h *commitHooks) add(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *commitHooks) run() {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// AfterCommit defers fn until the transaction carried by ctx commits. It
// runs fn immediately when ctx has no transaction.
func AfterCommit(ctx context.Context, fn func()) {
	if hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		hooks.add(fn)
		return
	}
	fn()
}
