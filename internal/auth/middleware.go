package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rjw57/componentsdb/internal/domain/entities"
	"github.com/rjw57/componentsdb/internal/domain/services"
)

// Authenticator resolves an access token to its user. It is satisfied by
// *services.AuthenticationProvider.
type Authenticator interface {
	AuthenticateUserFromAccessToken(ctx context.Context, accessToken string) (*entities.User, error)
}

// Middleware authenticates requests carrying an Authorization header. Requests
// without one pass through anonymously. A header that is not a bearer token,
// or a token that is rejected, gets 403 Forbidden. On success the user is
// available to next via GetUserFromContext.
func Middleware(authenticator Authenticator, next http.Handler) http.Handler {
	logger := slog.Default().With("component", "auth_middleware")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := authenticator.AuthenticateUserFromAccessToken(r.Context(), token)
		if err != nil {
			if services.IsAuthError(err) {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}
			logger.Error("access token lookup failed", slog.String("error", err.Error()))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		ctx := SetUserInContext(r.Context(), NewUserContext(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
