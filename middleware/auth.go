package middleware

import (
	"context"
	"net/http"
	"strings"

	"go-cartsync/models"
	"go-cartsync/utils"
)

// Key type for context
type contextKey string

const (
	UserContextKey  = contextKey("user")
	OwnerContextKey = contextKey("owner")
)

// GuestTokenHeader carries the guest session token of anonymous shoppers.
const GuestTokenHeader = "X-Guest-Token"

// GuestResolver looks up an active guest session by token.
type GuestResolver interface {
	Resolve(ctx context.Context, token string) (*models.GuestSession, error)
}

// AuthMiddleware verifies JWT tokens and attaches user information to the context
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header missing", http.StatusUnauthorized)
			return
		}
		claims, ok := parseBearer(authHeader)
		if !ok {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Attach user information to the request context
		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerMiddleware resolves the cart owner: a bearer token identifies a
// user, otherwise the guest token header identifies a guest session.
func OwnerMiddleware(guests GuestResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				claims, ok := parseBearer(authHeader)
				if !ok {
					http.Error(w, "Invalid token", http.StatusUnauthorized)
					return
				}
				userID, _ := claims.UserObjectID()
				ctx = context.WithValue(ctx, UserContextKey, claims)
				ctx = context.WithValue(ctx, OwnerContextKey, models.UserOwner(userID))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := r.Header.Get(GuestTokenHeader)
			if token == "" {
				http.Error(w, "Authorization or guest token required", http.StatusUnauthorized)
				return
			}
			session, err := guests.Resolve(ctx, token)
			if err != nil {
				if utils.IsKind(err, utils.KindNotFound) {
					http.Error(w, "Unknown guest session", http.StatusUnauthorized)
					return
				}
				utils.WriteError(w, err)
				return
			}
			ctx = context.WithValue(ctx, OwnerContextKey, models.GuestOwner(session.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the verified JWT claims, if any.
func ClaimsFromContext(ctx context.Context) (*utils.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*utils.Claims)
	return claims, ok
}

// OwnerFromContext returns the owner resolved by OwnerMiddleware.
func OwnerFromContext(ctx context.Context) (models.Owner, bool) {
	owner, ok := ctx.Value(OwnerContextKey).(models.Owner)
	return owner, ok
}

func parseBearer(header string) (*utils.Claims, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}
	claims, err := utils.ParseJWT(parts[1])
	if err != nil {
		return nil, false
	}
	return claims, true
}
