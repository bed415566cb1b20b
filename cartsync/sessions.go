package cartsync

import (
	"context"

	"go-cartsync/models"
	"go-cartsync/utils"

	"go.uber.org/zap"
)

// GuestSessions manages anonymous shopper sessions.
type GuestSessions struct {
	deps Deps
}

func NewGuestSessions(deps Deps) *GuestSessions {
	return &GuestSessions{deps: deps.withDefaults()}
}

// Create starts a new session for a device.
func (g *GuestSessions) Create(ctx context.Context, fingerprint string) (*models.GuestSession, error) {
	now := g.deps.Clock()
	session, err := models.NewGuestSession(fingerprint, now)
	if err != nil {
		return nil, err
	}

	err = g.deps.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := g.deps.Sessions.Save(ctx, session); err != nil {
			return utils.AsTransient(err, "failed to save guest session")
		}
		event := models.NewCartEvent(models.EventGuestSessionCreated, nil, now, nil)
		event.GuestSessionID = session.ID
		return g.deps.record(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	g.deps.Logger.Info("guest session created", zap.String("guest_session_id", session.ID.Hex()))
	return session, nil
}

// Resolve looks a session up by token and slides its expiry. Expired and
// converted sessions are rejected.
func (g *GuestSessions) Resolve(ctx context.Context, token string) (*models.GuestSession, error) {
	if token == "" {
		return nil, utils.NewInvalidInput("guest token is required")
	}
	session, err := g.deps.Sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, utils.AsTransient(err, "failed to load guest session")
	}

	now := g.deps.Clock()
	switch {
	case session.Status == models.SessionConverted:
		return nil, utils.NewBusinessRule("guest session has been converted, sign in to continue")
	case session.IsExpired(now):
		if session.Status != models.SessionExpired {
			session.Status = models.SessionExpired
			if err := g.deps.Sessions.Save(ctx, session); err != nil {
				return nil, utils.AsTransient(err, "failed to save guest session")
			}
		}
		return nil, utils.NewBusinessRule("guest session has expired")
	}

	session.RefreshExpiration(now)
	if err := g.deps.Sessions.Save(ctx, session); err != nil {
		return nil, utils.AsTransient(err, "failed to save guest session")
	}
	return session, nil
}
