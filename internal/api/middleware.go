/**
 * @description
 * This file contains the HTTP middleware for the ledger-service. User
 * identity arrives on the X-User-ID header, set by the API gateway after
 * it has authenticated the request; this service trusts the gateway and
 * only parses the ID. Internal operator endpoints (market tick, price
 * override, fraud review) are additionally protected by a shared API key.
 */

package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// UserIDContextKey is the context key under which the authenticated user's
// ID is stored.
const UserIDContextKey contextKey = "user_id"

// UserIDMiddleware extracts the gateway-provided user ID and stores it on
// the request context. Requests without a valid ID are rejected before any
// handler runs.
func UserIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-User-ID")
			if raw == "" {
				http.Error(w, "Missing X-User-ID header", http.StatusUnauthorized)
				return
			}
			userID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "Invalid X-User-ID header", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated user ID stored by UserIDMiddleware.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok
}

// InternalAuthMiddleware validates the internal API key for
// server-to-server and operator calls.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || provided != requiredKey {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
