package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"campaign-mailer/database"
)

// nameHeader optionally carries the authenticated operator's display name.
const nameHeader = "X-Authenticated-Name"

type userContextKey struct{}

// UserResolver materialises the user behind an authenticated identity.
type UserResolver interface {
	EnsureUser(ctx context.Context, email, name string) (*database.User, error)
}

// RequireUser trusts the identity the upstream auth layer put in header,
// ensures the matching user exists and stores it in the request context.
// Requests without an identity are rejected as unauthorized.
func RequireUser(users UserResolver, header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := strings.TrimSpace(r.Header.Get(header))
			if email == "" {
				errorResponse(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			user, err := users.EnsureUser(r.Context(), email, strings.TrimSpace(r.Header.Get(nameHeader)))
			if err != nil {
				serviceErrorResponse(w, "ensure user", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
		})
	}
}

// currentUser returns the user RequireUser attached to the request.
func currentUser(r *http.Request) *database.User {
	user, _ := r.Context().Value(userContextKey{}).(*database.User)
	return user
}
