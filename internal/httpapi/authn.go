package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"moneta.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// private authenticates the bearer token and attaches the caller identity
// and the raw token to the request context.
func (a *API) private(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, "invalid_token", err.Error())
			return
		}

		id, err := a.tokens.Validate(r.Context(), token)
		if err != nil {
			handleError(w, r, err)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithToken(ctx, token)
		setLogUser(ctx, id.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// admin is private plus an ADMIN role check.
func (a *API) admin(next http.HandlerFunc) http.Handler {
	return a.private(RequireRole(auth.RoleAdmin)(next).ServeHTTP)
}

// RequireRole rejects callers whose identity lacks role.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, r, "invalid_token", "authentication required")
				return
			}
			if !strings.EqualFold(string(id.Role), string(role)) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				handleError(w, r, auth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
