// internal/handler/auth.go
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unclebandit/mailcampaign-backend/internal/controller"
)

var errMissingAccount = errors.New("token has no account id")

// Authenticator verifies HS256 bearer tokens issued by the account service.
// The "id" claim carries the account id.
type Authenticator struct {
	Secret []byte
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.Fields(auth)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// ParseAccountID validates token and extracts the account id.
func (a *Authenticator) ParseAccountID(token string) (int, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, jwt.ErrTokenMalformed
	}

	switch v := claims["id"].(type) {
	case float64:
		if v < 1 {
			return 0, errMissingAccount
		}
		return int(v), nil
	case string:
		id, err := strconv.Atoi(v)
		if err != nil || id < 1 {
			return 0, fmt.Errorf("%w: %q", errMissingAccount, v)
		}
		return id, nil
	default:
		return 0, errMissingAccount
	}
}

// Middleware rejects requests without a token (401) or with an invalid or
// expired one (403).
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Access token required")
			return
		}
		id, err := a.ParseAccountID(token)
		if err != nil {
			writeError(w, http.StatusForbidden, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(controller.WithAccountID(r.Context(), id)))
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
