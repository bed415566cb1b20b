package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go-cartsync/models"
	"go-cartsync/utils"
)

type GuestSessionCreator interface {
	Create(ctx context.Context, fingerprint string) (*models.GuestSession, error)
}

// GuestController issues anonymous shopper sessions
type GuestController struct {
	Sessions GuestSessionCreator
	Timeout  time.Duration
}

type guestSessionResponse struct {
	Token          string    `json:"token"`
	GuestSessionID string    `json:"guest_session_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CreateSession starts a guest session. The token goes in the X-Guest-Token
// header of later cart requests.
func (gc *GuestController) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceFingerprint string `json:"device_fingerprint"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid input", http.StatusBadRequest)
			return
		}
	}

	timeout := gc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	session, err := gc.Sessions.Create(ctx, body.DeviceFingerprint)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, guestSessionResponse{
		Token:          session.Token,
		GuestSessionID: session.ID.Hex(),
		ExpiresAt:      session.ExpiresAt,
	})
}
