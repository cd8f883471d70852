package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/medcoder/internal/infra/httpserver/response"
)

type contextKey string

const (
	UserKey   contextKey = "user"
	APIKeyKey contextKey = "api_key"
)

// probes are served without credentials.
var probes = map[string]bool{"/health": true, "/ready": true, "/live": true}

// APIKeyAuth validates the API key from the Authorization or X-API-Key header.
// keys maps api key -> user id.
func APIKeyAuth(keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probes[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := strings.TrimSpace(r.Header.Get("X-API-Key"))
			if apiKey == "" {
				// Support both "Bearer <key>" and "<key>" formats
				apiKey = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			}
			if apiKey == "" {
				_ = response.Fail(w, http.StatusUnauthorized, response.CodeUnauthorized, "missing API key", nil, nil)
				return
			}

			// constant-time, and every key is compared
			var user string
			for key, u := range keys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					user = u
				}
			}
			if user == "" {
				_ = response.Fail(w, http.StatusUnauthorized, response.CodeUnauthorized, "invalid API key", nil, nil)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			ctx = context.WithValue(ctx, APIKeyKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext extracts the authenticated user id.
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(UserKey).(string); ok {
		return user
	}
	return ""
}

// RequireMatchingUser rejects requests whose {user} path segment is not the
// authenticated user. Mount it inside the route that declares {user}.
func RequireMatchingUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlUser := chi.URLParam(r, "user")
		if err := ValidateUserID(urlUser); err != nil {
			_ = response.Fail(w, http.StatusBadRequest, response.CodeValidation, err.Error(),
				map[string]string{"user": err.Error()}, nil)
			return
		}
		authUser := UserFromContext(r.Context())
		if authUser == "" || subtle.ConstantTimeCompare([]byte(authUser), []byte(urlUser)) != 1 {
			_ = response.Fail(w, http.StatusForbidden, response.CodeForbidden, "user does not match API key", nil, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
