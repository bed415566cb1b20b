package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-cartsync/models"
	"go-cartsync/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type stubGuests struct {
	sessions map[string]*models.GuestSession
	err      error
}

func (s stubGuests) Resolve(_ context.Context, token string) (*models.GuestSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	if session, ok := s.sessions[token]; ok {
		return session, nil
	}
	return nil, utils.NewNotFound("guest session not found")
}

func ownerEcho(t *testing.T, got *models.Owner) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := OwnerFromContext(r.Context())
		require.True(t, ok)
		*got = owner
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestOwnerMiddlewareBearer(t *testing.T) {
	userID := primitive.NewObjectID()
	token, err := utils.GenerateJWT(userID, "ada@example.com", "user")
	require.NoError(t, err)

	var got models.Owner
	handler := OwnerMiddleware(stubGuests{})(ownerEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(GuestTokenHeader, "ignored")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, models.UserOwner(userID), got)
}

func TestOwnerMiddlewareGuestToken(t *testing.T) {
	session := &models.GuestSession{ID: primitive.NewObjectID()}
	var got models.Owner
	handler := OwnerMiddleware(stubGuests{sessions: map[string]*models.GuestSession{"tok": session}})(ownerEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(GuestTokenHeader, "tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, models.GuestOwner(session.ID), got)
}

func TestOwnerMiddlewareRejects(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		guests stubGuests
		want   int
	}{
		{"no credentials", nil, stubGuests{}, http.StatusUnauthorized},
		{"bad bearer", map[string]string{"Authorization": "Bearer junk"}, stubGuests{}, http.StatusUnauthorized},
		{"unknown guest", map[string]string{GuestTokenHeader: "nope"}, stubGuests{}, http.StatusUnauthorized},
		{"expired guest", map[string]string{GuestTokenHeader: "old"}, stubGuests{err: utils.NewBusinessRule("guest session has expired")}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := OwnerMiddleware(tt.guests)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	token, err := utils.GenerateJWT(primitive.NewObjectID(), "ada@example.com", "user")
	require.NoError(t, err)

	var email string
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		email = claims.Email
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", email)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
