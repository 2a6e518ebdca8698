package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Dan9191/digital-banking/internal/auth"
	"github.com/Dan9191/digital-banking/internal/models"
)

// AuthMiddleware puts the bearer token of the request into its context.
// Requests without one are rejected; the token itself is verified by the
// service for every call together with the required scopes.
func AuthMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, fmt.Errorf("missing bearer token: %w", models.ErrInvalidSignature))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithToken(r.Context(), token)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="digital-banking"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":      models.ErrorCode(err),
		"message":   err.Error(),
		"retryable": false,
	})
}
